// Package retriever ranks stored fragments against a query embedding.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"ragcorpus/internal/domain"
)

// DefaultK is the number of fragments returned when k <= 0.
const DefaultK = 8

// Filter scopes a search. CollectionID wins over Domains; both empty means
// the whole corpus.
type Filter struct {
	CollectionID string
	Domains      []string
}

// Scope is a resolved Filter: the fragment filter handed to the pool plus
// the domains the answer is scoped to.
type Scope struct {
	Fragments domain.FragmentFilter
	Domains   []string
}

// Retriever scores fragments by cosine similarity. With an index attached
// the candidate search is delegated to it.
type Retriever struct {
	store domain.Store
	index domain.VectorIndex
}

// New creates a retriever over store. index may be nil.
func New(store domain.Store, index domain.VectorIndex) *Retriever {
	return &Retriever{store: store, index: index}
}

// Resolve turns a Filter into a Scope. A collection resolves to its member
// source ids and their website domains; an unknown collection is NotFound.
func (r *Retriever) Resolve(ctx context.Context, f Filter) (Scope, error) {
	if f.CollectionID != "" {
		if _, err := r.store.GetCollection(ctx, f.CollectionID); err != nil {
			return Scope{}, err
		}
		sources, err := r.store.ListSources(ctx)
		if err != nil {
			return Scope{}, fmt.Errorf("list sources: %w", err)
		}
		ids := []string{}
		var domains []string
		for _, s := range sources {
			if !s.HasCollection(f.CollectionID) {
				continue
			}
			ids = append(ids, s.ID)
			if d := s.Domain(); d != "" {
				domains = append(domains, d)
			}
		}
		return Scope{
			Fragments: domain.FragmentFilter{SourceIDs: ids},
			Domains:   domain.NormalizeDomains(domains),
		}, nil
	}
	if domains := domain.NormalizeDomains(f.Domains); len(domains) > 0 {
		return Scope{Fragments: domain.FragmentFilter{Domains: domains}, Domains: domains}, nil
	}
	return Scope{}, nil
}

// TopK returns at most k fragments best first. An empty pool is not an error.
func (r *Retriever) TopK(ctx context.Context, query []float32, k int, scope Scope) ([]domain.ScoredFragment, error) {
	if k <= 0 {
		k = DefaultK
	}
	if r.index != nil {
		return r.searchIndex(ctx, query, k, scope)
	}

	pool, err := r.store.Fragments(ctx, scope.Fragments)
	if err != nil {
		return nil, fmt.Errorf("load fragments: %w", err)
	}
	hits, mismatched := Rank(query, pool, k)
	if mismatched > 0 {
		slog.Warn("Embedding dimension mismatch", "fragments", mismatched, "query_dim", len(query))
	}
	slog.Debug("Retrieved fragments", "pool", len(pool), "returned", len(hits))
	return hits, nil
}

// maxOverfetch bounds how many times k the index is asked for while
// stale hits are being skipped.
const maxOverfetch = 8

// searchIndex asks the index for more than k hits and drops those whose
// source has been deleted from the store since they were mirrored, widening
// the request while stale hits crowd out live ones. When the index still
// comes up short of k but the store holds more fragments in scope, the
// mirror is incomplete and the store pool is ranked instead.
func (r *Retriever) searchIndex(ctx context.Context, query []float32, k int, scope Scope) ([]domain.ScoredFragment, error) {
	if scope.Fragments.SourceIDs != nil && len(scope.Fragments.SourceIDs) == 0 {
		return []domain.ScoredFragment{}, nil
	}
	sources, err := r.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	live := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		live[s.ID] = struct{}{}
	}

	var out []domain.ScoredFragment
	for limit := 2 * k; ; limit *= 2 {
		hits, err := r.index.Search(ctx, query, limit, scope.Fragments)
		if err != nil {
			return nil, fmt.Errorf("index search: %w", err)
		}
		out = out[:0]
		for _, h := range hits {
			if _, ok := live[h.SourceID]; ok {
				out = append(out, h)
			}
		}
		if dropped := len(hits) - len(out); dropped > 0 {
			slog.Debug("Skipped index hits of deleted sources", "dropped", dropped, "limit", limit)
		}
		if len(out) >= k || len(hits) < limit || limit >= maxOverfetch*k {
			break
		}
	}
	if len(out) >= k {
		return out[:k], nil
	}

	pool, err := r.store.Fragments(ctx, scope.Fragments)
	if err != nil {
		return nil, fmt.Errorf("load fragments: %w", err)
	}
	if len(pool) <= len(out) {
		return out, nil
	}
	slog.Warn("Index mirror is missing fragments, ranking the store instead",
		"index_hits", len(out), "store_fragments", len(pool))
	ranked, _ := Rank(query, pool, k)
	return ranked, nil
}

// Rank scores pool against query and keeps the best k. Equal scores keep
// pool order. It also reports how many fragments had a different dimension.
func Rank(query []float32, pool []domain.Fragment, k int) ([]domain.ScoredFragment, int) {
	if k <= 0 {
		k = DefaultK
	}
	scored := make([]domain.ScoredFragment, len(pool))
	mismatched := 0
	for i, f := range pool {
		if len(f.Embedding) != len(query) {
			mismatched++
		}
		scored[i] = domain.ScoredFragment{Fragment: f, Score: Cosine(query, f.Embedding)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, mismatched
}

// Cosine computes dot/(|a||b|) over the shorter vector's length. A zero
// norm yields 0.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
