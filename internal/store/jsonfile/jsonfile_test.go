package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcorpus/internal/domain"
	"ragcorpus/internal/store"
	"ragcorpus/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store {
		s, err := Open(filepath.Join(t.TempDir(), "data", "store.json"))
		require.NoError(t, err)
		return s
	})
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateCollection(ctx, domain.Collection{ID: "c1", Name: "Legal"}))
	src := storetest.Website("w1", "example.com", "c1")
	require.NoError(t, s.PutSource(ctx, src, storetest.Fragments(src, 2)))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	got, err := reopened.GetSource(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, src.Website, got.Website)
	assert.Equal(t, []string{"c1"}, got.CollectionIDs)
	assert.True(t, src.UploadedAt.Equal(got.UploadedAt))

	frags, err := reopened.Fragments(ctx, domain.FragmentFilter{Domains: []string{"example.com"}})
	require.NoError(t, err)
	assert.Equal(t, storetest.Fragments(src, 2), frags)
}

func TestStore_FailedMutationLeavesFileUntouched(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateCollection(ctx, domain.Collection{ID: "c1", Name: "Legal"}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Error(t, s.CreateCollection(ctx, domain.Collection{ID: "c2", Name: "legal"}))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOpen_ToleratesMissingArrays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sources":[]}`), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateCollection(context.Background(), domain.Collection{ID: "c1", Name: "A"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc store.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.NotNil(t, doc.Fragments)
	assert.Len(t, doc.Collections, 1)
}

func TestOpen_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}
