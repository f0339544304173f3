package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ragcorpus/internal/domain"
)

// ErrNoIndex is returned by SyncIndex when no index mirror is configured.
var ErrNoIndex = errors.New("no index mirror configured")

// SyncIndex upserts every stored fragment into the index mirror, one source
// at a time. Point ids are derived from fragment ids, so rerunning it is
// safe. It brings in sources ingested before the mirror was enabled.
func (s *Service) SyncIndex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, ErrNoIndex
	}
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		frags, err := s.store.Fragments(ctx, domain.FragmentFilter{SourceIDs: []string{src.ID}})
		if err != nil {
			return total, fmt.Errorf("load fragments of %s: %w", src.ID, err)
		}
		if len(frags) == 0 {
			continue
		}
		if err := s.index.Upsert(ctx, frags); err != nil {
			return total, fmt.Errorf("%w: mirror %s: %w", domain.ErrProvider, src.ID, err)
		}
		total += len(frags)
		slog.Debug("Source mirrored", "source_id", src.ID, "fragments", len(frags))
	}
	slog.Info("Index synced", "sources", len(sources), "fragments", total)
	return total, nil
}
