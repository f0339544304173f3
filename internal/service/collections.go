package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"ragcorpus/internal/domain"
	"ragcorpus/internal/store"
)

// ResolveCollection finds a collection by id, then by case-insensitive name.
func (s *Service) ResolveCollection(ctx context.Context, ref string) (domain.Collection, error) {
	ref = strings.TrimSpace(ref)
	c, err := s.store.GetCollection(ctx, ref)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Collection{}, err
	}
	cols, err := s.store.ListCollections(ctx)
	if err != nil {
		return domain.Collection{}, fmt.Errorf("list collections: %w", err)
	}
	key := store.NameKey(ref)
	for _, c := range cols {
		if store.NameKey(c.Name) == key {
			return c, nil
		}
	}
	return domain.Collection{}, domain.NotFound(domain.EntityCollection, ref)
}

// ListCollections returns every collection with its member count.
func (s *Service) ListCollections(ctx context.Context) ([]CollectionView, error) {
	cols, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, src := range sources {
		for _, id := range src.CollectionIDs {
			counts[id]++
		}
	}
	out := make([]CollectionView, len(cols))
	for i, c := range cols {
		out[i] = CollectionView{ID: c.ID, Name: c.Name, Sources: counts[c.ID]}
	}
	return out, nil
}

// CreateCollection registers a collection. A blank id gets a fresh UUID.
func (s *Service) CreateCollection(ctx context.Context, id, name string) (domain.Collection, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	c := domain.Collection{ID: id, Name: strings.TrimSpace(name)}
	if err := s.store.CreateCollection(ctx, c); err != nil {
		return domain.Collection{}, err
	}
	slog.Info("Collection created", "collection_id", c.ID, "name", c.Name)
	return c, nil
}

// RenameCollection changes the display name. ref may be an id or a name.
func (s *Service) RenameCollection(ctx context.Context, ref, name string) (domain.Collection, error) {
	c, err := s.ResolveCollection(ctx, ref)
	if err != nil {
		return domain.Collection{}, err
	}
	renamed, err := s.store.RenameCollection(ctx, c.ID, name)
	if err != nil {
		return domain.Collection{}, err
	}
	slog.Info("Collection renamed", "collection_id", c.ID, "from", c.Name, "to", renamed.Name)
	return renamed, nil
}

// DeleteCollection removes the collection; its sources stay.
func (s *Service) DeleteCollection(ctx context.Context, ref string) error {
	c, err := s.ResolveCollection(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCollection(ctx, c.ID); err != nil {
		return err
	}
	slog.Info("Collection deleted", "collection_id", c.ID, "name", c.Name)
	return nil
}
