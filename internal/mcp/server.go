// Package mcp exposes the corpus to AI assistants over the Model Context
// Protocol.
package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"ragcorpus/internal/service"
)

// Version is the MCP server version.
const Version = "0.1.0"

// ErrMissingService is returned when no service is provided.
var ErrMissingService = errors.New("mcp: service is required")

// Service is the subset of service.Service the tools call.
type Service interface {
	Ask(ctx context.Context, in service.QueryInput) (service.Answer, error)
	Search(ctx context.Context, in service.QueryInput) (service.SearchResult, error)
	ListSources(ctx context.Context) ([]service.SourceView, error)
	ListCollections(ctx context.Context) ([]service.CollectionView, error)
}

// Server is the MCP server for the corpus.
type Server struct {
	svc    Service
	server *mcp.Server
}

func NewServer(svc Service) (*Server, error) {
	if svc == nil {
		return nil, ErrMissingService
	}
	s := &Server{
		svc:    svc,
		server: mcp.NewServer(&mcp.Implementation{Name: "ragcorpus", Version: Version}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
