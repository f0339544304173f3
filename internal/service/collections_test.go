package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcorpus/internal/domain"
)

func TestRenameCollection_ResolvedNamesFollow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	legal, err := f.svc.CreateCollection(ctx, "", "Legal")
	require.NoError(t, err)
	_, err = uuid.Parse(legal.ID)
	assert.NoError(t, err)

	s1, err := f.svc.IngestDocument(ctx, UploadInput{Name: "s1.txt", Data: []byte("clause"), Collection: "Legal"})
	require.NoError(t, err)

	_, err = f.svc.RenameCollection(ctx, "legal", "Legal-2024")
	require.NoError(t, err)

	got, err := f.svc.GetSource(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Legal-2024"}, got.CollectionNames)
	assert.NotContains(t, got.CollectionNames, "Legal")
}

func TestCreateCollection_Conflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	_, err := f.svc.CreateCollection(ctx, "c1", "Finance")
	require.NoError(t, err)

	_, err = f.svc.CreateCollection(ctx, "", "finance ")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	_, err = f.svc.CreateCollection(ctx, "", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeleteCollection_KeepsSources(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	_, err := f.svc.CreateCollection(ctx, "c1", "One")
	require.NoError(t, err)
	src, err := f.svc.IngestDocument(ctx, UploadInput{Name: "a.txt", Data: []byte("text"), Collection: "c1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteCollection(ctx, "One"))

	got, err := f.svc.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CollectionIDs)
	assert.Empty(t, got.CollectionNames)

	cols, err := f.svc.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestAssignCollection_Twice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	_, err := f.svc.CreateCollection(ctx, "c1", "One")
	require.NoError(t, err)
	src, err := f.svc.IngestDocument(ctx, UploadInput{Name: "a.txt", Data: []byte("text")})
	require.NoError(t, err)

	_, err = f.svc.AssignCollection(ctx, src.ID, "One")
	require.NoError(t, err)
	got, err := f.svc.AssignCollection(ctx, src.ID, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, got.CollectionIDs)

	cols, err := f.svc.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, 1, cols[0].Sources)

	got, err = f.svc.UnassignCollection(ctx, src.ID, "one")
	require.NoError(t, err)
	assert.Empty(t, got.CollectionIDs)

	_, err = f.svc.AssignCollection(ctx, "missing", "c1")
	assert.True(t, domain.IsNotFoundEntity(err, domain.EntitySource))
}

func TestBulkOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	_, err := f.svc.CreateCollection(ctx, "c1", "One")
	require.NoError(t, err)
	a, err := f.svc.IngestDocument(ctx, UploadInput{Name: "a.txt", Data: []byte("alpha")})
	require.NoError(t, err)
	b, err := f.svc.IngestDocument(ctx, UploadInput{Name: "b.txt", Data: []byte("beta")})
	require.NoError(t, err)

	res, err := f.svc.BulkAssign(ctx, []string{a.ID, "ghost", b.ID}, "One")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, res.Items[1].OK)
	assert.Contains(t, res.Items[1].Error, "ghost")

	_, err = f.svc.BulkAssign(ctx, []string{a.ID}, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.BulkAssign(ctx, nil, "One")
	assert.ErrorIs(t, err, domain.ErrValidation)

	del, err := f.svc.BulkDelete(ctx, []string{a.ID, "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 1, del.Succeeded)
	assert.Equal(t, 1, del.Failed)

	sources, err := f.svc.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, b.ID, sources[0].ID)

	for _, fr := range f.fragments(t, domain.FragmentFilter{}) {
		assert.Equal(t, b.ID, fr.SourceID)
	}
}

func TestDeleteSource_RemovesUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	src, err := f.svc.IngestDocument(ctx, UploadInput{Name: "a.txt", Data: []byte("alpha")})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSource(ctx, src.ID))

	_, _, err = f.blobs.Open(src.ID + ".txt")
	assert.True(t, domain.IsNotFoundEntity(err, domain.EntityFile))
	_, _, err = f.svc.OpenFile(ctx, src.ID)
	assert.True(t, domain.IsNotFoundEntity(err, domain.EntitySource))
	assert.ErrorIs(t, f.svc.DeleteSource(ctx, src.ID), domain.ErrNotFound)
}
