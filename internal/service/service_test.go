package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ragcorpus/internal/blob"
	"ragcorpus/internal/chunker"
	"ragcorpus/internal/domain"
	"ragcorpus/internal/embedding/hashing"
	"ragcorpus/internal/extract"
	"ragcorpus/internal/generation/extractive"
	"ragcorpus/internal/store/memory"
)

// countingEmbedder wraps the hashing embedder and can be told to fail.
type countingEmbedder struct {
	inner *hashing.Embedder
	calls atomic.Int32
	fail  bool
}

func (c *countingEmbedder) Name() string { return "counting" }

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, errors.New("provider down")
	}
	return c.inner.EmbedBatch(ctx, texts)
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Name() string { return "mock" }

func (m *mockGenerator) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

type fixture struct {
	svc      *Service
	store    *memory.Storage
	embedder *countingEmbedder
	blobs    *blob.Store
}

func newFixture(t *testing.T, gen domain.Generator, opts Options) *fixture {
	t.Helper()
	blobs, err := blob.New(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	if gen == nil {
		gen = extractive.NewGenerator(3)
	}
	f := &fixture{
		store:    memory.NewStorage(),
		embedder: &countingEmbedder{inner: hashing.NewEmbedder(128)},
		blobs:    blobs,
	}
	f.svc = New(Deps{
		Store:     f.store,
		Chunker:   chunker.NewWindowChunker(10, 0),
		Embedder:  f.embedder,
		Extractor: extract.New(),
		Fetcher:   extract.NewFetcher(5*time.Second, 0),
		Generator: gen,
		Blobs:     blobs,
	}, opts)
	return f
}

func (f *fixture) fragments(t *testing.T, filter domain.FragmentFilter) []domain.Fragment {
	t.Helper()
	frags, err := f.store.Fragments(context.Background(), filter)
	require.NoError(t, err)
	return frags
}

func TestIngestDocument_ThreeChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	_, err := f.svc.CreateCollection(ctx, "legal", "Legal")
	require.NoError(t, err)

	view, err := f.svc.IngestDocument(ctx, UploadInput{
		Name:       "contract.txt",
		Data:       []byte("aaaaaaaaaabbbbbbbbbbccccc"),
		Collection: "legal",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, view.ChunkCount)
	assert.Equal(t, domain.KindDocument, view.Kind)
	assert.Equal(t, []string{"Legal"}, view.CollectionNames)
	assert.Equal(t, ".txt", view.Ext)
	assert.Equal(t, int64(25), view.Size)
	assert.Regexp(t, `^\d+_[0-9a-z]{6}$`, view.ID)
	assert.Equal(t, int32(1), f.embedder.calls.Load())

	frags := f.fragments(t, domain.FragmentFilter{})
	require.Len(t, frags, 3)
	for i, fr := range frags {
		assert.Equal(t, fmt.Sprintf("%s_%d", view.ID, i), fr.ID)
	}
	assert.Equal(t, "ccccc", frags[2].Content)

	rc, info, err := f.svc.OpenFile(ctx, view.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "aaaaaaaaaabbbbbbbbbbccccc", string(data))
	assert.Equal(t, "contract.txt", info.Name)
}

func TestIngestDocument_BatchesAcrossCalls(t *testing.T) {
	f := newFixture(t, nil, Options{BatchSize: 2})
	view, err := f.svc.IngestDocument(context.Background(), UploadInput{
		Name: "a.txt",
		Data: []byte(strings.Repeat("word ", 10)),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, view.ChunkCount)
	assert.Equal(t, int32(3), f.embedder.calls.Load())
}

func TestIngestDocument_NothingCreatedOnFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("blank text", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		_, err := f.svc.IngestDocument(ctx, UploadInput{Name: "blank.txt", Data: []byte("  \n\t ")})
		assert.ErrorIs(t, err, domain.ErrExtraction)
		assert.Empty(t, f.fragments(t, domain.FragmentFilter{}))
		assert.Equal(t, int32(0), f.embedder.calls.Load())
	})

	t.Run("unknown collection", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		_, err := f.svc.IngestDocument(ctx, UploadInput{Name: "a.txt", Data: []byte("hello"), Collection: "nope"})
		assert.True(t, domain.IsNotFoundEntity(err, domain.EntityCollection))
		assert.Equal(t, int32(0), f.embedder.calls.Load())
	})

	t.Run("embedding failure", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		f.embedder.fail = true
		_, err := f.svc.IngestDocument(ctx, UploadInput{Name: "a.txt", Data: []byte("hello world")})
		assert.ErrorIs(t, err, domain.ErrEmbedding)
		assert.ErrorIs(t, err, domain.ErrProvider)

		sources, err := f.svc.ListSources(ctx)
		require.NoError(t, err)
		assert.Empty(t, sources)
		matches, _ := filepath.Glob(filepath.Join(f.blobs.Dir(), "*"))
		assert.Empty(t, matches)
	})

	t.Run("unsupported format", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		_, err := f.svc.IngestDocument(ctx, UploadInput{Name: "scan.pdf", Data: []byte("%PDF-1.4 binary")})
		assert.ErrorIs(t, err, domain.ErrExtraction)
	})

	t.Run("missing name", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		_, err := f.svc.IngestDocument(ctx, UploadInput{Data: []byte("x")})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestIngestDocument_RetriesIDCollision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	ids := []string{"1_aaaaaa", "1_aaaaaa", "2_bbbbbb"}
	f.svc.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := f.svc.IngestDocument(ctx, UploadInput{Name: "a.txt", Data: []byte("alpha")})
	require.NoError(t, err)
	second, err := f.svc.IngestDocument(ctx, UploadInput{Name: "b.txt", Data: []byte("beta")})
	require.NoError(t, err)

	assert.Equal(t, "1_aaaaaa", first.ID)
	assert.Equal(t, "2_bbbbbb", second.ID)
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Pricing</title></head><body><p>Plans cost ten euro.</p></body></html>`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIngestURL_IndexPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	srv := newSite(t)
	_, err := f.svc.CreateCollection(ctx, "", "Web")
	require.NoError(t, err)

	view, err := f.svc.IngestURL(ctx, srv.URL+"/pricing", "web")
	require.NoError(t, err)
	assert.Equal(t, domain.KindWebsite, view.Kind)
	assert.Equal(t, "Pricing", view.Name)
	assert.Equal(t, "127.0.0.1", view.Domain)
	assert.Equal(t, []string{"Web"}, view.CollectionNames)
	assert.Positive(t, view.ChunkCount)

	for _, fr := range f.fragments(t, domain.FragmentFilter{}) {
		assert.Equal(t, "127.0.0.1", fr.Domain)
	}

	_, _, err = f.svc.OpenFile(ctx, view.ID)
	assert.True(t, domain.IsNotFoundEntity(err, domain.EntityFile))
}

func TestIngestURL_MetadataOnly(t *testing.T) {
	f := newFixture(t, nil, Options{WebsitePolicy: PolicyMetadataOnly})
	view, err := f.svc.IngestURL(context.Background(), "https://www.example.com/docs", "")
	require.NoError(t, err)
	assert.Equal(t, 0, view.ChunkCount)
	assert.Equal(t, "example.com", view.Domain)
	assert.Equal(t, int32(0), f.embedder.calls.Load())
}

func TestIngestURL_Invalid(t *testing.T) {
	f := newFixture(t, nil, Options{})
	_, err := f.svc.IngestURL(context.Background(), "not a url", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAsk_BuildsPromptFromRankedContext(t *testing.T) {
	ctx := context.Background()
	gen := &mockGenerator{}
	f := newFixture(t, gen, Options{})
	_, err := f.svc.IngestDocument(ctx, UploadInput{Name: "notes.txt", Data: []byte("payment due")})
	require.NoError(t, err)

	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p domain.Prompt) bool {
		return p.Instructions == Instructions &&
			p.Question == "payment?" &&
			strings.HasPrefix(p.Context, "# Chunk 1 (notes.txt)\n")
	})).Return("It is due.", nil)

	ans, err := f.svc.Ask(ctx, QueryInput{Question: "  payment?  "})
	require.NoError(t, err)
	assert.Equal(t, "It is due.", ans.Answer)
	assert.Equal(t, 2, ans.UsedChunks)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "notes.txt", ans.Sources[0].Name)
	gen.AssertExpectations(t)
}

func TestAsk_Validation(t *testing.T) {
	f := newFixture(t, nil, Options{})
	_, err := f.svc.Ask(context.Background(), QueryInput{Question: "   "})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAsk_EmptyScopeIsInsufficient(t *testing.T) {
	ctx := context.Background()
	gen := &mockGenerator{}
	f := newFixture(t, gen, Options{})
	_, err := f.svc.CreateCollection(ctx, "empty", "Empty")
	require.NoError(t, err)
	_, err = f.svc.IngestDocument(ctx, UploadInput{Name: "a.txt", Data: []byte("some text")})
	require.NoError(t, err)

	ans, err := f.svc.Ask(ctx, QueryInput{Question: "anything?", Collection: "Empty"})
	require.NoError(t, err)
	assert.Equal(t, domain.InsufficientInformation, ans.Answer)
	assert.Zero(t, ans.UsedChunks)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestSearch_CollectionRestrictsToWebsite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Options{})
	srv := newSite(t)
	_, err := f.svc.CreateCollection(ctx, "web", "Web")
	require.NoError(t, err)
	_, err = f.svc.IngestURL(ctx, srv.URL, "web")
	require.NoError(t, err)
	_, err = f.svc.IngestDocument(ctx, UploadInput{Name: "doc.txt", Data: []byte("plans cost money")})
	require.NoError(t, err)

	res, err := f.svc.Search(ctx, QueryInput{Question: "plans cost", Collection: "web"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	for _, h := range res.Hits {
		assert.Equal(t, "127.0.0.1", h.Domain)
	}
	assert.Equal(t, []string{"127.0.0.1"}, res.Domains)

	_, err = f.svc.Search(ctx, QueryInput{Question: "x", Collection: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBuildContext(t *testing.T) {
	got := BuildContext([]Hit{
		{SourceName: "a.txt", Content: "first"},
		{SourceName: "example.com", Content: "second"},
	})
	assert.Equal(t, "# Chunk 1 (a.txt)\nfirst\n\n# Chunk 2 (example.com)\nsecond", got)
}
