package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ragcorpus/internal/domain"
	"ragcorpus/internal/embedding"
	"ragcorpus/internal/extract"
)

// UploadInput is one document to ingest.
type UploadInput struct {
	Name      string
	Data      []byte
	MediaType string
	// Collection is an optional collection id or name.
	Collection string
}

// IngestDocument extracts, chunks, embeds and stores an uploaded document.
// Nothing is persisted unless every stage succeeds.
func (s *Service) IngestDocument(ctx context.Context, in UploadInput) (SourceView, error) {
	name := strings.TrimSpace(filepath.Base(in.Name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return SourceView{}, domain.Validationf("file name is required")
	}
	if len(in.Data) == 0 {
		return SourceView{}, domain.Validationf("file %s is empty", name)
	}
	collectionIDs, err := s.initialCollection(ctx, in.Collection)
	if err != nil {
		return SourceView{}, err
	}

	ext := extract.ExtOf(name)
	format := ext
	if format == "" {
		format = in.MediaType
	}
	slog.Debug("Extracting document", "name", name, "format", format)
	text, err := s.extractor.Extract(ctx, in.Data, format)
	if err != nil {
		return SourceView{}, fmt.Errorf("extract %s: %w", name, err)
	}

	chunks, vectors, err := s.chunkAndEmbed(ctx, name, text)
	if err != nil {
		return SourceView{}, err
	}

	id, err := s.uniqueSourceID(ctx)
	if err != nil {
		return SourceView{}, err
	}
	mediaType := in.MediaType
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = extract.MediaType(format, in.Data)
	}
	src := domain.Source{
		ID:            id,
		Name:          name,
		Kind:          domain.KindDocument,
		Size:          int64(len(in.Data)),
		UploadedAt:    s.now(),
		CollectionIDs: collectionIDs,
		Document:      &domain.DocumentPayload{MimeType: mediaType, Ext: ext},
	}

	if s.blobs != nil {
		path, _, err := s.blobs.Save(id+ext, bytes.NewReader(in.Data))
		if err != nil {
			return SourceView{}, fmt.Errorf("store upload %s: %w", name, err)
		}
		src.Document.FilePath = path
	}

	if err := s.persist(ctx, src, chunks, vectors, ""); err != nil {
		if src.Document.FilePath != "" {
			if rerr := s.blobs.Remove(src.Document.FilePath); rerr != nil {
				slog.Warn("Failed to remove orphaned upload", "path", src.Document.FilePath, "error", rerr)
			}
		}
		return SourceView{}, err
	}
	return s.getView(ctx, id)
}

// IngestPath reads a local file and ingests it as a document.
func (s *Service) IngestPath(ctx context.Context, path, collection string) (SourceView, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SourceView{}, fmt.Errorf("read %s: %w", path, err)
	}
	return s.IngestDocument(ctx, UploadInput{Name: filepath.Base(path), Data: data, Collection: collection})
}

// IngestURL indexes a web page according to the website policy.
func (s *Service) IngestURL(ctx context.Context, rawURL, collection string) (SourceView, error) {
	u, err := extract.ParseURL(rawURL)
	if err != nil {
		return SourceView{}, err
	}
	collectionIDs, err := s.initialCollection(ctx, collection)
	if err != nil {
		return SourceView{}, err
	}
	host := domain.NormalizeDomain(u.Hostname())

	src := domain.Source{
		Name:          u.String(),
		Kind:          domain.KindWebsite,
		CollectionIDs: collectionIDs,
		Website:       &domain.WebsitePayload{URL: u.String(), Domain: host},
	}

	var (
		chunks  []string
		vectors [][]float32
	)
	if s.opts.WebsitePolicy != PolicyMetadataOnly {
		page, err := s.fetcher.Fetch(ctx, u.String())
		if err != nil {
			return SourceView{}, fmt.Errorf("fetch %s: %w", u, err)
		}
		if page.Title != "" {
			src.Name = page.Title
		}
		if page.Domain != "" {
			src.Website.Domain = page.Domain
		}
		src.Size = page.Size
		chunks, vectors, err = s.chunkAndEmbed(ctx, u.String(), page.Text)
		if err != nil {
			return SourceView{}, err
		}
	}

	if src.ID, err = s.uniqueSourceID(ctx); err != nil {
		return SourceView{}, err
	}
	src.UploadedAt = s.now()
	if err := s.persist(ctx, src, chunks, vectors, src.Website.Domain); err != nil {
		return SourceView{}, err
	}
	return s.getView(ctx, src.ID)
}

func (s *Service) chunkAndEmbed(ctx context.Context, name, text string) ([]string, [][]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, fmt.Errorf("%w: no text could be extracted from %s", domain.ErrExtraction, name)
	}
	chunks := s.chunker.Chunk(text)
	if len(chunks) == 0 {
		return nil, nil, fmt.Errorf("%w: %s produced no chunks", domain.ErrExtraction, name)
	}
	slog.Debug("Embedding chunks", "name", name, "chunks", len(chunks), "batch_size", s.opts.BatchSize)
	vectors, err := embedding.EmbedAll(ctx, s.embedder, chunks, s.opts.BatchSize)
	if err != nil {
		return nil, nil, err
	}
	return chunks, vectors, nil
}

// persist commits the source and its fragments, then mirrors them to the
// index. A mirror failure rolls the source back out of the store so the two
// never disagree about a live source.
func (s *Service) persist(ctx context.Context, src domain.Source, chunks []string, vectors [][]float32, host string) error {
	fragments := make([]domain.Fragment, len(chunks))
	for i, c := range chunks {
		fragments[i] = domain.Fragment{
			ID:        FragmentID(src.ID, i),
			SourceID:  src.ID,
			Content:   c,
			Embedding: vectors[i],
			Domain:    host,
		}
	}
	if err := s.store.PutSource(ctx, src, fragments); err != nil {
		return fmt.Errorf("save source: %w", err)
	}

	if s.index != nil && len(fragments) > 0 {
		if err := s.index.Upsert(ctx, fragments); err != nil {
			if derr := s.store.DeleteSource(context.WithoutCancel(ctx), src.ID); derr != nil {
				slog.Error("Rollback after index mirror failure failed", "source_id", src.ID, "error", derr)
			}
			return fmt.Errorf("%w: index mirror: %w", domain.ErrProvider, err)
		}
	}
	slog.Info("Source indexed", "source_id", src.ID, "name", src.Name, "kind", src.Kind, "chunks", len(fragments))
	return nil
}

// initialCollection resolves an optional collection reference before any
// work is done, so an unknown collection fails fast.
func (s *Service) initialCollection(ctx context.Context, ref string) ([]string, error) {
	if strings.TrimSpace(ref) == "" {
		return []string{}, nil
	}
	c, err := s.ResolveCollection(ctx, ref)
	if err != nil {
		return nil, err
	}
	return []string{c.ID}, nil
}

func (s *Service) getView(ctx context.Context, id string) (SourceView, error) {
	src, err := s.store.GetSource(ctx, id)
	if err != nil {
		return SourceView{}, err
	}
	return s.view(ctx, src)
}
