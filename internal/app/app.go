// Package app assembles the configured components into a Service and owns
// their lifecycle.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ragcorpus/internal/blob"
	"ragcorpus/internal/chunker"
	"ragcorpus/internal/config"
	"ragcorpus/internal/domain"
	"ragcorpus/internal/embedding/hashing"
	"ragcorpus/internal/embedding/ollama"
	embopenai "ragcorpus/internal/embedding/openai"
	"ragcorpus/internal/extract"
	"ragcorpus/internal/generation/extractive"
	genopenai "ragcorpus/internal/generation/openai"
	"ragcorpus/internal/service"
	"ragcorpus/internal/store/jsonfile"
	"ragcorpus/internal/store/memory"
	"ragcorpus/internal/store/sqlite"
	"ragcorpus/internal/vectorstore/qdrant"
)

// App is a wired Service plus the resources it must release.
type App struct {
	Config  *config.AppConfig
	Service *service.Service

	store domain.Store
	index domain.VectorIndex
}

// New builds every component named by cfg. On error nothing stays open.
func New(cfg *config.AppConfig) (*App, error) {
	ch, err := buildChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	emb, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	gen, err := buildGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.New(cfg.UploadsDir())
	if err != nil {
		return nil, fmt.Errorf("uploads dir: %w", err)
	}

	st, err := buildStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	idx, err := buildIndex(cfg.Index)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	svc := service.New(service.Deps{
		Store:     st,
		Chunker:   ch,
		Embedder:  emb,
		Extractor: extract.New(),
		Fetcher:   extract.NewFetcher(time.Duration(cfg.Ingest.FetchTimeoutSecs)*time.Second, cfg.Ingest.MaxFetchBytes),
		Generator: gen,
		Blobs:     blobs,
		Index:     idx,
	}, service.Options{
		BatchSize:     cfg.Embedder.BatchSize,
		TopK:          cfg.Query.TopK,
		WebsitePolicy: cfg.Ingest.WebsitePolicy,
	})

	slog.Debug("Components assembled",
		"chunker", cfg.Chunker.Type,
		"embedder", emb.Name(),
		"store", cfg.Store.Type,
		"index", cfg.Index.Type,
		"generator", gen.Name(),
	)
	return &App{Config: cfg, Service: svc, store: st, index: idx}, nil
}

// Close releases the index mirror and the store.
func (a *App) Close() error {
	var errs []error
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

func buildChunker(c config.ChunkerConfig) (domain.Chunker, error) {
	switch c.Type {
	case "window", "":
		return chunker.NewWindowChunker(c.Size, c.Overlap), nil
	case "sentence":
		return chunker.NewSentenceChunker(c.SentencesPerChunk, c.OverlapSentences), nil
	}
	return nil, fmt.Errorf("unknown chunker: %s", c.Type)
}

func buildEmbedder(c config.EmbedderConfig) (domain.Embedder, error) {
	switch c.Type {
	case "hashing", "":
		return hashing.NewEmbedder(c.Hashing.Dimension), nil
	case "openai":
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:           c.OpenAI.BaseURL,
			APIKeyEnv:         c.OpenAI.APIKeyEnv,
			Model:             c.OpenAI.Model,
			Timeout:           time.Duration(c.OpenAI.TimeoutSecs) * time.Second,
			RequestsPerSecond: c.OpenAI.RequestsPerSecond,
			MaxRetries:        c.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	case "ollama":
		return ollama.NewClient(ollama.Config{
			Host:    c.Ollama.Host,
			Model:   c.Ollama.Model,
			Timeout: time.Duration(c.Ollama.TimeoutSecs) * time.Second,
		}), nil
	}
	return nil, fmt.Errorf("unknown embedder: %s", c.Type)
}

func buildGenerator(c config.GeneratorConfig) (domain.Generator, error) {
	switch c.Type {
	case "extractive", "":
		return extractive.NewGenerator(c.MaxSentences), nil
	case "openai":
		p, err := genopenai.NewProvider(genopenai.Config{
			BaseURL:     c.OpenAI.BaseURL,
			APIKeyEnv:   c.OpenAI.APIKeyEnv,
			Model:       c.OpenAI.Model,
			Temperature: c.OpenAI.Temperature,
			Timeout:     time.Duration(c.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai generator init failed: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown generator: %s", c.Type)
}

func buildStore(c config.StoreConfig) (domain.Store, error) {
	switch c.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "jsonfile":
		st, err := jsonfile.Open(c.Path)
		if err != nil {
			return nil, fmt.Errorf("open json store: %w", err)
		}
		return st, nil
	case "sqlite", "":
		st, err := sqlite.Open(c.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown store: %s", c.Type)
}

// buildIndex returns a nil interface when no mirror is configured.
func buildIndex(c config.IndexConfig) (domain.VectorIndex, error) {
	switch c.Type {
	case "none", "":
		return nil, nil
	case "qdrant":
		st, err := qdrant.NewStorage(qdrant.Config{
			Host:       c.Qdrant.Host,
			Port:       c.Qdrant.Port,
			APIKey:     c.Qdrant.APIKey,
			Collection: c.Qdrant.Collection,
			UseTLS:     c.Qdrant.UseTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown index: %s", c.Type)
}
