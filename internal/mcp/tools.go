package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"ragcorpus/internal/service"
)

// QueryInput is the input schema shared by ask and search.
type QueryInput struct {
	Question string   `json:"question" jsonschema:"the question to answer from the corpus"`
	Corpus   string   `json:"corpus,omitempty" jsonschema:"optional collection id or name to restrict retrieval to"`
	Sites    []string `json:"sites,omitempty" jsonschema:"optional website domains to restrict retrieval to"`
	K        int      `json:"k,omitempty" jsonschema:"number of chunks to retrieve (default 8)"`
}

func (in QueryInput) query() service.QueryInput {
	return service.QueryInput{Question: in.Question, K: in.K, Collection: in.Corpus, Domains: in.Sites}
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer     string              `json:"answer"`
	UsedChunks int                 `json:"used_chunks"`
	Sources    []service.SourceRef `json:"sources"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []service.Hit `json:"results"`
	Count   int           `json:"count"`
}

// ListInput takes no arguments.
type ListInput struct{}

// SourcesOutput is the output schema for list_sources.
type SourcesOutput struct {
	Sources []service.SourceView `json:"sources"`
}

// CollectionsOutput is the output schema for list_collections.
type CollectionsOutput struct {
	Collections []service.CollectionView `json:"collections"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using only the uploaded documents and indexed websites",
	}, s.handleAsk)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Return the corpus chunks most similar to a question",
	}, s.handleSearch)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_sources",
		Description: "List every document and website in the corpus",
	}, s.handleListSources)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_collections",
		Description: "List collections with their source counts",
	}, s.handleListCollections)
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, AskOutput, error) {
	ans, err := s.svc.Ask(ctx, input.query())
	if err != nil {
		return nil, AskOutput{}, err
	}
	return nil, AskOutput{Answer: ans.Answer, UsedChunks: ans.UsedChunks, Sources: ans.Sources}, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, SearchOutput, error) {
	res, err := s.svc.Search(ctx, input.query())
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, SearchOutput{Results: res.Hits, Count: len(res.Hits)}, nil
}

func (s *Server) handleListSources(ctx context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, SourcesOutput, error) {
	sources, err := s.svc.ListSources(ctx)
	if err != nil {
		return nil, SourcesOutput{}, err
	}
	return nil, SourcesOutput{Sources: sources}, nil
}

func (s *Server) handleListCollections(ctx context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, CollectionsOutput, error) {
	cols, err := s.svc.ListCollections(ctx)
	if err != nil {
		return nil, CollectionsOutput{}, err
	}
	return nil, CollectionsOutput{Collections: cols}, nil
}
