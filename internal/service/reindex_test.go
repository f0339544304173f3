package service

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ragcorpus/internal/chunker"
	"ragcorpus/internal/domain"
	"ragcorpus/internal/extract"
	"ragcorpus/internal/generation/extractive"
)

type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) Upsert(ctx context.Context, fragments []domain.Fragment) error {
	return m.Called(ctx, fragments).Error(0)
}

func (m *mockIndex) Search(ctx context.Context, query []float32, k int, filter domain.FragmentFilter) ([]domain.ScoredFragment, error) {
	args := m.Called(ctx, query, k, filter)
	hits, _ := args.Get(0).([]domain.ScoredFragment)
	return hits, args.Error(1)
}

func (m *mockIndex) DeleteSource(ctx context.Context, sourceID string) error {
	return m.Called(ctx, sourceID).Error(0)
}

func (m *mockIndex) Close() error { return nil }

// withIndex rebuilds f's service over the same store and blobs with idx
// attached.
func (f *fixture) withIndex(idx domain.VectorIndex) *Service {
	return New(Deps{
		Store:     f.store,
		Chunker:   chunker.NewWindowChunker(10, 0),
		Embedder:  f.embedder,
		Extractor: extract.New(),
		Generator: extractive.NewGenerator(3),
		Blobs:     f.blobs,
		Index:     idx,
	}, Options{})
}

func TestIngest_MirrorFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	idx := &mockIndex{}
	idx.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("qdrant unavailable"))
	svc := f.withIndex(idx)

	_, err := svc.IngestDocument(ctx, UploadInput{Name: "a.txt", Data: []byte("twenty characters!!!")})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvider)

	sources, err := f.store.ListSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, sources)
	assert.Empty(t, f.fragments(t, domain.FragmentFilter{}))

	entries, err := os.ReadDir(f.blobs.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "upload removed with the source")
}

func TestSyncIndex_MirrorsExistingSources(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	a, err := f.svc.IngestDocument(ctx, UploadInput{Name: "a.txt", Data: []byte("aaaaaaaaaabbbbbbbbbbccccc")})
	require.NoError(t, err)

	idx := &mockIndex{}
	idx.On("Upsert", mock.Anything, mock.MatchedBy(func(frags []domain.Fragment) bool {
		return len(frags) == 3 && frags[0].SourceID == a.ID
	})).Return(nil).Once()

	n, err := f.withIndex(idx).SyncIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	idx.AssertExpectations(t)
}

func TestSyncIndex_WithoutIndex(t *testing.T) {
	f := newFixture(t, nil, Options{})
	_, err := f.svc.SyncIndex(context.Background())
	assert.ErrorIs(t, err, ErrNoIndex)
}
