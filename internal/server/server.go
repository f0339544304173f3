// Package server exposes the service over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"ragcorpus/internal/service"
)

// Config holds the listener settings.
type Config struct {
	Addr           string
	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

// Server routes API requests to a service.Service.
type Server struct {
	svc      *service.Service
	cfg      Config
	validate *validator.Validate
}

func New(svc *service.Service, cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	return &Server{svc: svc, cfg: cfg, validate: validator.New()}
}

// Handler returns the routed API with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/sources", s.handleListSources)
	mux.HandleFunc("GET /api/sources/{id}", s.handleGetSource)
	mux.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource)
	mux.HandleFunc("GET /api/sources/{id}/file", s.handleSourceFile)
	mux.HandleFunc("POST /api/sources/{id}/collections", s.handleAssign)
	mux.HandleFunc("DELETE /api/sources/{id}/collections/{cid}", s.handleUnassign)
	mux.HandleFunc("POST /api/sources/bulk-assign", s.handleBulkAssign)
	mux.HandleFunc("POST /api/sources/bulk-delete", s.handleBulkDelete)

	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/fetch-url", s.handleFetchURL)

	mux.HandleFunc("GET /api/corpus", s.handleListCollections)
	mux.HandleFunc("POST /api/corpus", s.handleCreateCollection)
	mux.HandleFunc("PATCH /api/corpus/{id}", s.handleRenameCollection)
	mux.HandleFunc("DELETE /api/corpus/{id}", s.handleDeleteCollection)

	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("POST /api/search", s.handleSearch)

	// Older clients list and delete through /api/docs.
	mux.HandleFunc("GET /api/docs", s.handleListDocs)
	mux.HandleFunc("DELETE /api/docs/{id}", s.handleDeleteSource)

	var h http.Handler = mux
	h = withTimeout(s.cfg.RequestTimeout, h)
	h = withCORS(s.cfg.CORSOrigins, h)
	h = withLogging(h)
	return h
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
