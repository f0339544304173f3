// Package memory is an in-process store; state is lost on Close.
package memory

import (
	"context"
	"sync"

	"ragcorpus/internal/domain"
	"ragcorpus/internal/store"
)

var _ domain.Store = (*Storage)(nil)

// Storage keeps the corpus document in memory behind a RWMutex.
type Storage struct {
	mu  sync.RWMutex
	doc *store.Document
}

func NewStorage() *Storage { return &Storage{doc: store.NewDocument()} }

func (s *Storage) write(fn func(d *store.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.doc)
}

func (s *Storage) PutSource(_ context.Context, src domain.Source, fragments []domain.Fragment) error {
	return s.write(func(d *store.Document) error { return d.PutSource(src, fragments) })
}

func (s *Storage) ListSources(context.Context) ([]domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.ListSources(), nil
}

func (s *Storage) GetSource(_ context.Context, id string) (domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.GetSource(id)
}

func (s *Storage) DeleteSource(_ context.Context, id string) error {
	return s.write(func(d *store.Document) error { return d.DeleteSource(id) })
}

func (s *Storage) ListCollections(context.Context) ([]domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.ListCollections(), nil
}

func (s *Storage) GetCollection(_ context.Context, id string) (domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.GetCollection(id)
}

func (s *Storage) CreateCollection(_ context.Context, c domain.Collection) error {
	return s.write(func(d *store.Document) error { return d.CreateCollection(c) })
}

func (s *Storage) RenameCollection(_ context.Context, id, name string) (domain.Collection, error) {
	var out domain.Collection
	err := s.write(func(d *store.Document) error {
		var err error
		out, err = d.RenameCollection(id, name)
		return err
	})
	return out, err
}

func (s *Storage) DeleteCollection(_ context.Context, id string) error {
	return s.write(func(d *store.Document) error { return d.DeleteCollection(id) })
}

func (s *Storage) AssignCollection(_ context.Context, sourceID, collectionID string) error {
	return s.write(func(d *store.Document) error { return d.AssignCollection(sourceID, collectionID) })
}

func (s *Storage) UnassignCollection(_ context.Context, sourceID, collectionID string) error {
	return s.write(func(d *store.Document) error { return d.UnassignCollection(sourceID, collectionID) })
}

func (s *Storage) Fragments(_ context.Context, filter domain.FragmentFilter) ([]domain.Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Select(filter), nil
}

// Close drops all state.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = store.NewDocument()
	return nil
}
