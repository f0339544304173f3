package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"ragcorpus/internal/domain"
	"ragcorpus/internal/embedding"
	"ragcorpus/internal/retriever"
)

// Instructions is the system prompt given to the answer generator.
const Instructions = "You are a strict RAG assistant. Only answer using the provided CONTEXT.\n" +
	"If the answer is not fully contained in the CONTEXT, say exactly: \"" + domain.InsufficientInformation + "\""

// QueryInput scopes a question. Collection (id or name) wins over Domains.
type QueryInput struct {
	Question   string
	K          int
	Collection string
	Domains    []string
}

// Hit is a retrieved fragment with its source's display name.
type Hit struct {
	FragmentID string  `json:"fragmentId"`
	SourceID   string  `json:"sourceId"`
	SourceName string  `json:"sourceName"`
	Content    string  `json:"content"`
	Domain     string  `json:"domain,omitempty"`
	Score      float64 `json:"score"`
}

// SourceRef names a source an answer drew from.
type SourceRef struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	Kind domain.SourceKind `json:"sourceType"`
	URL  string            `json:"url,omitempty"`
}

// SearchResult is the retrieval half of a query.
type SearchResult struct {
	Hits    []Hit       `json:"hits"`
	Domains []string    `json:"domains"`
	Sources []SourceRef `json:"sources"`
}

// Answer is the generated reply plus what grounded it.
type Answer struct {
	Answer        string      `json:"answer"`
	UsedChunks    int         `json:"usedChunks"`
	UsedFragments []Hit       `json:"usedFragments"`
	Domains       []string    `json:"domains"`
	Sources       []SourceRef `json:"sources"`
}

// Search embeds the question and returns the best fragments in scope.
func (s *Service) Search(ctx context.Context, in QueryInput) (SearchResult, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return SearchResult{}, domain.Validationf("question must not be blank")
	}

	filter := retriever.Filter{Domains: in.Domains}
	if ref := strings.TrimSpace(in.Collection); ref != "" {
		c, err := s.ResolveCollection(ctx, ref)
		if err != nil {
			return SearchResult{}, err
		}
		filter = retriever.Filter{CollectionID: c.ID}
	}
	scope, err := s.retriever.Resolve(ctx, filter)
	if err != nil {
		return SearchResult{}, err
	}

	vec, err := embedding.EmbedOne(ctx, s.embedder, question)
	if err != nil {
		return SearchResult{}, fmt.Errorf("embed question: %w", err)
	}

	k := in.K
	if k <= 0 {
		k = s.opts.TopK
	}
	scored, err := s.retriever.TopK(ctx, vec, k, scope)
	if err != nil {
		return SearchResult{}, err
	}

	sources, err := s.store.ListSources(ctx)
	if err != nil {
		return SearchResult{}, fmt.Errorf("list sources: %w", err)
	}
	byID := make(map[string]domain.Source, len(sources))
	for _, src := range sources {
		byID[src.ID] = src
	}

	res := SearchResult{
		Hits:    make([]Hit, 0, len(scored)),
		Domains: scope.Domains,
		Sources: []SourceRef{},
	}
	if res.Domains == nil {
		res.Domains = []string{}
	}
	seen := map[string]bool{}
	for _, sf := range scored {
		src := byID[sf.SourceID]
		res.Hits = append(res.Hits, Hit{
			FragmentID: sf.ID,
			SourceID:   sf.SourceID,
			SourceName: src.Name,
			Content:    sf.Content,
			Domain:     sf.Domain,
			Score:      sf.Score,
		})
		if !seen[sf.SourceID] {
			seen[sf.SourceID] = true
			ref := SourceRef{ID: src.ID, Name: src.Name, Kind: src.Kind}
			if src.Website != nil {
				ref.URL = src.Website.URL
			}
			res.Sources = append(res.Sources, ref)
		}
	}
	return res, nil
}

// Ask runs Search and hands the ranked context to the generator. With
// nothing retrieved the insufficient-information reply is returned directly.
func (s *Service) Ask(ctx context.Context, in QueryInput) (Answer, error) {
	res, err := s.Search(ctx, in)
	if err != nil {
		return Answer{}, err
	}
	out := Answer{
		UsedChunks:    len(res.Hits),
		UsedFragments: res.Hits,
		Domains:       res.Domains,
		Sources:       res.Sources,
	}
	if len(res.Hits) == 0 {
		out.Answer = domain.InsufficientInformation
		return out, nil
	}

	answer, err := s.generator.Generate(ctx, domain.Prompt{
		Instructions: Instructions,
		Question:     strings.TrimSpace(in.Question),
		Context:      BuildContext(res.Hits),
		Domains:      res.Domains,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	out.Answer = answer
	slog.Info("Question answered", "generator", s.generator.Name(), "used_chunks", out.UsedChunks)
	return out, nil
}

// BuildContext labels each hit "# Chunk N (source name)" in rank order and
// separates blocks with a blank line.
func BuildContext(hits []Hit) string {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = "# Chunk " + strconv.Itoa(i+1) + " (" + h.SourceName + ")\n" + h.Content
	}
	return strings.Join(blocks, "\n\n")
}
