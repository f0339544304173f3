package domain

import (
	"context"
	"io"
)

// Chunker splits extracted text into ordered fragments for indexing.
type Chunker interface {
	Chunk(text string) []string
}

// Embedder converts text into fixed-length vectors. EmbedBatch returns one
// vector per input, in input order.
type Embedder interface {
	Name() string
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Extractor turns raw bytes of a known format into plain text.
type Extractor interface {
	Extract(ctx context.Context, raw []byte, format string) (string, error)
}

// Page is a fetched and extracted web page.
type Page struct {
	URL    string
	Domain string
	Title  string
	Text   string
	Size   int64
}

// Fetcher downloads a URL and extracts its readable text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Prompt is what the answer generator receives.
type Prompt struct {
	Instructions string
	Question     string
	Context      string
	Domains      []string
}

// Generator produces an answer from a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Store persists sources, their fragments, and collections. Every method is
// atomic with respect to the whole persisted state.
type Store interface {
	PutSource(ctx context.Context, src Source, fragments []Fragment) error
	ListSources(ctx context.Context) ([]Source, error)
	GetSource(ctx context.Context, id string) (Source, error)
	DeleteSource(ctx context.Context, id string) error

	ListCollections(ctx context.Context) ([]Collection, error)
	GetCollection(ctx context.Context, id string) (Collection, error)
	CreateCollection(ctx context.Context, c Collection) error
	RenameCollection(ctx context.Context, id, name string) (Collection, error)
	DeleteCollection(ctx context.Context, id string) error

	AssignCollection(ctx context.Context, sourceID, collectionID string) error
	UnassignCollection(ctx context.Context, sourceID, collectionID string) error

	// Fragments returns fragments whose source exists, narrowed by filter.
	Fragments(ctx context.Context, filter FragmentFilter) ([]Fragment, error)

	Close() error
}

// VectorIndex is an optional external mirror of fragment embeddings that
// answers filtered similarity queries. The Store stays authoritative.
type VectorIndex interface {
	Upsert(ctx context.Context, fragments []Fragment) error
	Search(ctx context.Context, query []float32, k int, filter FragmentFilter) ([]ScoredFragment, error)
	DeleteSource(ctx context.Context, sourceID string) error
	Close() error
}

// FileInfo describes a stored binary.
type FileInfo struct {
	Name      string
	MediaType string
	Size      int64
}

// BlobStore keeps uploaded binaries for later download or preview.
type BlobStore interface {
	Save(name string, r io.Reader) (path string, size int64, err error)
	Open(path string) (io.ReadCloser, FileInfo, error)
	Remove(path string) error
}

// InsufficientInformation is the exact reply expected when the retrieved
// context does not contain the answer.
const InsufficientInformation = "I don't have enough information in the uploaded documents to answer that."
