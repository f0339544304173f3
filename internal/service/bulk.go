package service

import (
	"context"
	"errors"

	"ragcorpus/internal/domain"
)

// ItemResult is the outcome of one item of a bulk operation.
type ItemResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// BulkResult reports every item; earlier successes are never rolled back.
type BulkResult struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

func (r *BulkResult) add(id string, err error) {
	item := ItemResult{ID: id, OK: err == nil}
	if err != nil {
		item.Error = err.Error()
		r.Failed++
	} else {
		r.Succeeded++
	}
	r.Items = append(r.Items, item)
}

// BulkAssign adds each source to the collection independently. An unknown
// collection fails the whole call before any item is attempted.
func (s *Service) BulkAssign(ctx context.Context, sourceIDs []string, collection string) (BulkResult, error) {
	if len(sourceIDs) == 0 {
		return BulkResult{}, domain.Validationf("no source ids given")
	}
	c, err := s.ResolveCollection(ctx, collection)
	if err != nil {
		return BulkResult{}, err
	}
	res := BulkResult{Items: make([]ItemResult, 0, len(sourceIDs))}
	for _, id := range sourceIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.add(id, s.store.AssignCollection(ctx, id, c.ID))
	}
	return res, nil
}

// BulkDelete deletes each source independently.
func (s *Service) BulkDelete(ctx context.Context, sourceIDs []string) (BulkResult, error) {
	if len(sourceIDs) == 0 {
		return BulkResult{}, domain.Validationf("no source ids given")
	}
	res := BulkResult{Items: make([]ItemResult, 0, len(sourceIDs))}
	for _, id := range sourceIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		err := s.DeleteSource(ctx, id)
		if errors.Is(err, context.Canceled) {
			return res, err
		}
		res.add(id, err)
	}
	return res, nil
}
