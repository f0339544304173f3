// Package service implements the ingestion and query pipelines and the
// collection, source and bulk operations the adapters expose.
package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"ragcorpus/internal/domain"
	"ragcorpus/internal/embedding"
	"ragcorpus/internal/retriever"
)

// Website ingestion policies.
const (
	PolicyIndex        = "index"
	PolicyMetadataOnly = "metadata-only"
)

// Deps are the collaborators a Service drives. Index is optional.
type Deps struct {
	Store     domain.Store
	Chunker   domain.Chunker
	Embedder  domain.Embedder
	Extractor domain.Extractor
	Fetcher   domain.Fetcher
	Generator domain.Generator
	Blobs     domain.BlobStore
	Index     domain.VectorIndex
}

// Options tune the pipelines. Zero values pick defaults.
type Options struct {
	BatchSize     int
	TopK          int
	WebsitePolicy string
}

// Service is safe for concurrent use; consistency is the store's job.
type Service struct {
	store     domain.Store
	chunker   domain.Chunker
	embedder  domain.Embedder
	extractor domain.Extractor
	fetcher   domain.Fetcher
	generator domain.Generator
	blobs     domain.BlobStore
	index     domain.VectorIndex
	retriever *retriever.Retriever
	opts      Options

	now   func() time.Time
	newID func() string
}

func New(d Deps, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = embedding.DefaultBatchSize
	}
	if opts.TopK <= 0 {
		opts.TopK = retriever.DefaultK
	}
	if opts.WebsitePolicy == "" {
		opts.WebsitePolicy = PolicyIndex
	}
	return &Service{
		store:     d.Store,
		chunker:   d.Chunker,
		embedder:  d.Embedder,
		extractor: d.Extractor,
		fetcher:   d.Fetcher,
		generator: d.Generator,
		blobs:     d.Blobs,
		index:     d.Index,
		retriever: retriever.New(d.Store, d.Index),
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:     newSourceID,
	}
}

// Options returns the effective options.
func (s *Service) Options() Options { return s.opts }

// Store exposes the underlying store to adapters that only read.
func (s *Service) Store() domain.Store { return s.store }

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newSourceID returns "<unixMillis>_<6 random base36 chars>".
func newSourceID() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + string(b)
}

// FragmentID names the i-th fragment of a source.
func FragmentID(sourceID string, i int) string {
	return sourceID + "_" + strconv.Itoa(i)
}

// uniqueSourceID draws ids until one is free.
func (s *Service) uniqueSourceID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		id := s.newID()
		_, err := s.store.GetSource(ctx, id)
		if domain.IsNotFoundEntity(err, domain.EntitySource) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("check source id: %w", err)
		}
	}
	return "", fmt.Errorf("could not allocate a unique source id")
}
