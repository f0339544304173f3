// Package jsonfile persists the corpus as a single JSON document. Every
// operation loads the file, applies the change, and saves it atomically.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ragcorpus/internal/domain"
	"ragcorpus/internal/store"
)

var _ domain.Store = (*Store)(nil)

// Store is safe for concurrent use within one process. Writers are
// serialized by mu; two processes sharing the file are not supported.
type Store struct {
	mu   sync.RWMutex
	path string
}

// Open prepares a store at path, creating its directory. A missing file is
// an empty corpus.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{path: path}
	// Fail early on a corrupt file rather than on the first request.
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) load() (*store.Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return store.NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}
	doc := store.NewDocument()
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode store file %s: %w", s.path, err)
	}
	doc.Normalize()
	return doc, nil
}

// save writes to a temp file in the same directory and renames it over the
// old one, so readers never see a partial document.
func (s *Store) save(doc *store.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".store-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write store file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close store file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}

// mutate runs fn against a freshly loaded document and saves only on success.
func (s *Store) mutate(ctx context.Context, fn func(d *store.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

func (s *Store) read(ctx context.Context) (*store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

func (s *Store) PutSource(ctx context.Context, src domain.Source, fragments []domain.Fragment) error {
	return s.mutate(ctx, func(d *store.Document) error { return d.PutSource(src, fragments) })
}

func (s *Store) ListSources(ctx context.Context) ([]domain.Source, error) {
	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return doc.ListSources(), nil
}

func (s *Store) GetSource(ctx context.Context, id string) (domain.Source, error) {
	doc, err := s.read(ctx)
	if err != nil {
		return domain.Source{}, err
	}
	return doc.GetSource(id)
}

func (s *Store) DeleteSource(ctx context.Context, id string) error {
	return s.mutate(ctx, func(d *store.Document) error { return d.DeleteSource(id) })
}

func (s *Store) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return doc.ListCollections(), nil
}

func (s *Store) GetCollection(ctx context.Context, id string) (domain.Collection, error) {
	doc, err := s.read(ctx)
	if err != nil {
		return domain.Collection{}, err
	}
	return doc.GetCollection(id)
}

func (s *Store) CreateCollection(ctx context.Context, c domain.Collection) error {
	return s.mutate(ctx, func(d *store.Document) error { return d.CreateCollection(c) })
}

func (s *Store) RenameCollection(ctx context.Context, id, name string) (domain.Collection, error) {
	var out domain.Collection
	err := s.mutate(ctx, func(d *store.Document) error {
		var err error
		out, err = d.RenameCollection(id, name)
		return err
	})
	return out, err
}

func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	return s.mutate(ctx, func(d *store.Document) error { return d.DeleteCollection(id) })
}

func (s *Store) AssignCollection(ctx context.Context, sourceID, collectionID string) error {
	return s.mutate(ctx, func(d *store.Document) error { return d.AssignCollection(sourceID, collectionID) })
}

func (s *Store) UnassignCollection(ctx context.Context, sourceID, collectionID string) error {
	return s.mutate(ctx, func(d *store.Document) error { return d.UnassignCollection(sourceID, collectionID) })
}

func (s *Store) Fragments(ctx context.Context, filter domain.FragmentFilter) ([]domain.Fragment, error) {
	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Select(filter), nil
}

// Close is a no-op; nothing is held open between operations.
func (s *Store) Close() error { return nil }
