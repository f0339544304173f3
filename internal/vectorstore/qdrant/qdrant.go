// Package qdrant mirrors fragment embeddings into a Qdrant collection and
// serves filtered similarity queries from it.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"ragcorpus/internal/domain"
)

// Payload keys stored on every point.
const (
	fieldFragmentID = "fragment_id"
	fieldSourceID   = "source_id"
	fieldDomain     = "domain"
	fieldContent    = "content"
)

var _ domain.VectorIndex = (*Storage)(nil)

// Storage is a gRPC client to Qdrant. It assumes cosine distance and creates
// the collection on the first upsert, sized by the first vector.
type Storage struct {
	client     *qdrant.Client
	collection string

	mu    sync.Mutex
	ready bool
}

type Config struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
	UseTLS     bool
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "fragments"
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	return &Storage{client: client, collection: cfg.Collection}, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{
						Size:     uint64(dimension),
						Distance: qdrant.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		slog.Info("Qdrant collection created", "collection", s.collection, "dimension", dimension)
	}
	s.ready = true
	return nil
}

// Upsert writes one point per fragment. Point ids are derived from fragment
// ids, so re-mirroring a fragment overwrites it.
func (s *Storage) Upsert(ctx context.Context, fragments []domain.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}
	if len(fragments[0].Embedding) == 0 {
		return errors.New("qdrant upsert: fragment without embedding")
	}
	if err := s.ensureCollection(ctx, len(fragments[0].Embedding)); err != nil {
		return err
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         toPoints(fragments),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Search runs a filtered nearest-neighbour query.
func (s *Storage) Search(ctx context.Context, query []float32, k int, filter domain.FragmentFilter) ([]domain.ScoredFragment, error) {
	if filter.SourceIDs != nil && len(filter.SourceIDs) == 0 {
		return []domain.ScoredFragment{}, nil
	}
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if !ready {
		exists, err := s.client.CollectionExists(ctx, s.collection)
		if err != nil {
			return nil, fmt.Errorf("check collection: %w", err)
		}
		if !exists {
			return []domain.ScoredFragment{}, nil
		}
	}

	limit := uint64(k)
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Filter:         buildFilter(filter),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	out := make([]domain.ScoredFragment, 0, len(resp))
	for _, p := range resp {
		out = append(out, domain.ScoredFragment{
			Fragment: fromPayload(p.GetPayload()),
			Score:    float64(p.GetScore()),
		})
	}
	return out, nil
}

// DeleteSource removes every point of the source.
func (s *Storage) DeleteSource(ctx context.Context, sourceID string) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		return nil
	}
	wait := true
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(fieldSourceID, sourceID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}
	return nil
}

// PointID maps a fragment id onto a stable UUID.
func PointID(fragmentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("fragment:"+fragmentID)).String()
}

func toPoints(fragments []domain.Fragment) []*qdrant.PointStruct {
	pts := make([]*qdrant.PointStruct, len(fragments))
	for i, f := range fragments {
		pts[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(f.ID)),
			Vectors: qdrant.NewVectors(f.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				fieldFragmentID: f.ID,
				fieldSourceID:   f.SourceID,
				fieldDomain:     domain.NormalizeDomain(f.Domain),
				fieldContent:    f.Content,
			}),
		}
	}
	return pts
}

// buildFilter pushes a FragmentFilter down as payload conditions. Each
// dimension is an any-of match; dimensions are combined with AND.
func buildFilter(f domain.FragmentFilter) *qdrant.Filter {
	var must []*qdrant.Condition
	if len(f.SourceIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords(fieldSourceID, f.SourceIDs...))
	}
	if f.Domains != nil {
		must = append(must, qdrant.NewMatchKeywords(fieldDomain, domain.NormalizeDomains(f.Domains)...))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func fromPayload(p map[string]*qdrant.Value) domain.Fragment {
	str := func(key string) string {
		if v, ok := p[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	return domain.Fragment{
		ID:       str(fieldFragmentID),
		SourceID: str(fieldSourceID),
		Content:  str(fieldContent),
		Domain:   str(fieldDomain),
	}
}
