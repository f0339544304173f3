// Package storetest is a behaviour suite every domain.Store backend must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcorpus/internal/domain"
)

// Factory opens a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) domain.Store

// Document builds a document source with the given id.
func Document(id string, collectionIDs ...string) domain.Source {
	return domain.Source{
		ID:            id,
		Name:          id + ".txt",
		Kind:          domain.KindDocument,
		Size:          42,
		UploadedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		CollectionIDs: append([]string{}, collectionIDs...),
		Document:      &domain.DocumentPayload{FilePath: "uploads/" + id + ".txt", MimeType: "text/plain", Ext: ".txt"},
	}
}

// Website builds a website source for host.
func Website(id, host string, collectionIDs ...string) domain.Source {
	return domain.Source{
		ID:            id,
		Name:          host,
		Kind:          domain.KindWebsite,
		UploadedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		CollectionIDs: append([]string{}, collectionIDs...),
		Website:       &domain.WebsitePayload{URL: "https://" + host + "/", Domain: host},
	}
}

// Fragments builds n fragments for src with distinct embeddings.
func Fragments(src domain.Source, n int) []domain.Fragment {
	out := make([]domain.Fragment, n)
	for i := range out {
		out[i] = domain.Fragment{
			ID:        fmt.Sprintf("%s_%d", src.ID, i),
			SourceID:  src.ID,
			Content:   fmt.Sprintf("chunk %d of %s", i, src.ID),
			Embedding: []float32{float32(i), 1, 0.5},
			Domain:    src.Domain(),
		}
	}
	return out
}

// Run executes the suite against stores built by open.
func Run(t *testing.T, open Factory) {
	ctx := context.Background()
	fresh := func(t *testing.T) domain.Store {
		s := open(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("put and get source", func(t *testing.T) {
		s := fresh(t)
		src := Document("s1")
		require.NoError(t, s.PutSource(ctx, src, Fragments(src, 3)))

		got, err := s.GetSource(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 3, got.ChunkCount)
		assert.Equal(t, src.Name, got.Name)
		assert.Equal(t, domain.KindDocument, got.Kind)
		require.NotNil(t, got.Document)
		assert.Equal(t, "text/plain", got.Document.MimeType)
		assert.True(t, src.UploadedAt.Equal(got.UploadedAt))

		frags, err := s.Fragments(ctx, domain.FragmentFilter{})
		require.NoError(t, err)
		require.Len(t, frags, 3)
		for i, f := range frags {
			assert.Equal(t, fmt.Sprintf("s1_%d", i), f.ID)
			assert.Equal(t, []float32{float32(i), 1, 0.5}, f.Embedding)
		}
	})

	t.Run("put appends fragments and recounts", func(t *testing.T) {
		s := fresh(t)
		src := Document("s1")
		frags := Fragments(src, 3)
		require.NoError(t, s.PutSource(ctx, src, frags[:2]))
		require.NoError(t, s.PutSource(ctx, src, frags[2:]))

		got, err := s.GetSource(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 3, got.ChunkCount)
	})

	t.Run("put rejects foreign fragments", func(t *testing.T) {
		s := fresh(t)
		src := Document("s1")
		other := Fragments(Document("s2"), 1)
		err := s.PutSource(ctx, src, other)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = s.GetSource(ctx, "s1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("put rejects unknown collection", func(t *testing.T) {
		s := fresh(t)
		err := s.PutSource(ctx, Document("s1", "missing"), nil)
		assert.True(t, domain.IsNotFoundEntity(err, domain.EntityCollection))
	})

	t.Run("put dedupes membership", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.CreateCollection(ctx, domain.Collection{ID: "c1", Name: "One"}))
		require.NoError(t, s.CreateCollection(ctx, domain.Collection{ID: "c2", Name: "Two"}))
		require.NoError(t, s.PutSource(ctx, Document("s1", "c1", "c2", "c1"), nil))

		got, err := s.GetSource(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, []string{"c1", "c2"}, got.CollectionIDs)
	})

	t.Run("put rejects repeated fragment ids", func(t *testing.T) {
		s := fresh(t)
		src := Document("s1")
		frags := Fragments(src, 2)

		err := s.PutSource(ctx, src, []domain.Fragment{frags[0], frags[0]})
		assert.ErrorIs(t, err, domain.ErrValidation)

		require.NoError(t, s.PutSource(ctx, src, frags))
		err = s.PutSource(ctx, src, frags[1:])
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)

		got, err := s.GetSource(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 2, got.ChunkCount)
		all, err := s.Fragments(ctx, domain.FragmentFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("website source round trip", func(t *testing.T) {
		s := fresh(t)
		src := Website("w1", "example.com")
		require.NoError(t, s.PutSource(ctx, src, nil))

		got, err := s.GetSource(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, 0, got.ChunkCount)
		assert.Equal(t, "example.com", got.Domain())
		assert.Nil(t, got.Document)
	})

	t.Run("get unknown source", func(t *testing.T) {
		s := fresh(t)
		_, err := s.GetSource(ctx, "nope")
		assert.True(t, domain.IsNotFoundEntity(err, domain.EntitySource))
	})

	t.Run("delete source cascades to fragments only", func(t *testing.T) {
		s := fresh(t)
		a, b := Document("a"), Document("b")
		require.NoError(t, s.PutSource(ctx, a, Fragments(a, 2)))
		require.NoError(t, s.PutSource(ctx, b, Fragments(b, 3)))

		require.NoError(t, s.DeleteSource(ctx, "a"))

		frags, err := s.Fragments(ctx, domain.FragmentFilter{})
		require.NoError(t, err)
		require.Len(t, frags, 3)
		for _, f := range frags {
			assert.Equal(t, "b", f.SourceID)
		}
		got, err := s.GetSource(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, 3, got.ChunkCount)

		assert.ErrorIs(t, s.DeleteSource(ctx, "a"), domain.ErrNotFound)
	})

	t.Run("fragment filters", func(t *testing.T) {
		s := fresh(t)
		d := Document("d")
		w := Website("w", "example.com")
		require.NoError(t, s.PutSource(ctx, d, Fragments(d, 2)))
		require.NoError(t, s.PutSource(ctx, w, Fragments(w, 2)))

		bySource, err := s.Fragments(ctx, domain.FragmentFilter{SourceIDs: []string{"d"}})
		require.NoError(t, err)
		assert.Len(t, bySource, 2)

		byDomain, err := s.Fragments(ctx, domain.FragmentFilter{Domains: []string{"WWW.Example.com"}})
		require.NoError(t, err)
		require.Len(t, byDomain, 2)
		assert.Equal(t, "w", byDomain[0].SourceID)

		none, err := s.Fragments(ctx, domain.FragmentFilter{SourceIDs: []string{}})
		require.NoError(t, err)
		assert.Empty(t, none)

		both, err := s.Fragments(ctx, domain.FragmentFilter{SourceIDs: []string{"d"}, Domains: []string{"example.com"}})
		require.NoError(t, err)
		assert.Empty(t, both)
	})

	t.Run("collection lifecycle", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.CreateCollection(ctx, domain.Collection{ID: "c1", Name: " Legal "}))

		got, err := s.GetCollection(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "Legal", got.Name)

		assert.ErrorIs(t, s.CreateCollection(ctx, domain.Collection{ID: "c1", Name: "Other"}), domain.ErrAlreadyExists)
		assert.ErrorIs(t, s.CreateCollection(ctx, domain.Collection{ID: "c2", Name: "legal"}), domain.ErrAlreadyExists)
		assert.ErrorIs(t, s.CreateCollection(ctx, domain.Collection{ID: "c3", Name: "  "}), domain.ErrValidation)

		require.NoError(t, s.CreateCollection(ctx, domain.Collection{ID: "c2", Name: "Finance"}))
		_, err = s.RenameCollection(ctx, "c2", "LEGAL")
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
		_, err = s.RenameCollection(ctx, "nope", "X")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		renamed, err := s.RenameCollection(ctx, "c1", "legal")
		require.NoError(t, err, "renaming to a different case of its own name is allowed")
		assert.Equal(t, "legal", renamed.Name)

		list, err := s.ListCollections(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("rename keeps membership", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.CreateCollection(ctx, domain.Collection{ID: "legal", Name: "Legal"}))
		require.NoError(t, s.PutSource(ctx, Document("s1", "legal"), nil))

		_, err := s.RenameCollection(ctx, "legal", "Legal-2024")
		require.NoError(t, err)

		src, err := s.GetSource(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, []string{"legal"}, src.CollectionIDs)
		c, err := s.GetCollection(ctx, src.CollectionIDs[0])
		require.NoError(t, err)
		assert.Equal(t, "Legal-2024", c.Name)
	})

	t.Run("delete collection strips membership", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.CreateCollection(ctx, domain.Collection{ID: "c1", Name: "One"}))
		require.NoError(t, s.CreateCollection(ctx, domain.Collection{ID: "c2", Name: "Two"}))
		require.NoError(t, s.PutSource(ctx, Document("s1", "c1", "c2"), nil))
		require.NoError(t, s.PutSource(ctx, Document("s2", "c1"), nil))

		require.NoError(t, s.DeleteCollection(ctx, "c1"))

		sources, err := s.ListSources(ctx)
		require.NoError(t, err)
		require.Len(t, sources, 2)
		for _, src := range sources {
			assert.False(t, src.HasCollection("c1"))
		}
		s1, err := s.GetSource(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, []string{"c2"}, s1.CollectionIDs)

		assert.ErrorIs(t, s.DeleteCollection(ctx, "c1"), domain.ErrNotFound)
	})

	t.Run("assign is idempotent", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.CreateCollection(ctx, domain.Collection{ID: "c1", Name: "One"}))
		require.NoError(t, s.PutSource(ctx, Document("s1"), nil))

		require.NoError(t, s.AssignCollection(ctx, "s1", "c1"))
		require.NoError(t, s.AssignCollection(ctx, "s1", "c1"))

		src, err := s.GetSource(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, []string{"c1"}, src.CollectionIDs)

		assert.True(t, domain.IsNotFoundEntity(s.AssignCollection(ctx, "nope", "c1"), domain.EntitySource))
		assert.True(t, domain.IsNotFoundEntity(s.AssignCollection(ctx, "s1", "nope"), domain.EntityCollection))

		require.NoError(t, s.UnassignCollection(ctx, "s1", "c1"))
		require.NoError(t, s.UnassignCollection(ctx, "s1", "c1"))
		src, err = s.GetSource(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, src.CollectionIDs)
	})

	t.Run("concurrent writers keep counts", func(t *testing.T) {
		s := fresh(t)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				src := Document(fmt.Sprintf("s%d", i))
				assert.NoError(t, s.PutSource(ctx, src, Fragments(src, 2)))
			}(i)
		}
		wg.Wait()

		sources, err := s.ListSources(ctx)
		require.NoError(t, err)
		assert.Len(t, sources, 8)
		frags, err := s.Fragments(ctx, domain.FragmentFilter{})
		require.NoError(t, err)
		assert.Len(t, frags, 16)
		for _, src := range sources {
			assert.Equal(t, 2, src.ChunkCount)
		}
	})

	t.Run("returned values do not alias state", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.CreateCollection(ctx, domain.Collection{ID: "c1", Name: "One"}))
		src := Document("s1", "c1")
		require.NoError(t, s.PutSource(ctx, src, Fragments(src, 1)))

		got, err := s.GetSource(ctx, "s1")
		require.NoError(t, err)
		got.CollectionIDs[0] = "mutated"
		frags, err := s.Fragments(ctx, domain.FragmentFilter{})
		require.NoError(t, err)
		frags[0].Embedding[0] = 99

		again, err := s.GetSource(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, []string{"c1"}, again.CollectionIDs)
		frags, err = s.Fragments(ctx, domain.FragmentFilter{})
		require.NoError(t, err)
		assert.Equal(t, float32(0), frags[0].Embedding[0])
	})
}
