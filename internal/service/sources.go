package service

import (
	"context"
	"io"
	"log/slog"

	"ragcorpus/internal/domain"
)

// ListSources returns every source with collection names resolved.
func (s *Service) ListSources(ctx context.Context) ([]SourceView, error) {
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := s.collectionNames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SourceView, len(sources))
	for i, src := range sources {
		out[i] = idx.view(src)
	}
	return out, nil
}

func (s *Service) GetSource(ctx context.Context, id string) (SourceView, error) {
	return s.getView(ctx, id)
}

// DeleteSource removes the source and its fragments, then cleans up the
// index mirror and the stored upload.
func (s *Service) DeleteSource(ctx context.Context, id string) error {
	src, err := s.store.GetSource(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSource(ctx, id); err != nil {
		return err
	}
	slog.Info("Source deleted", "source_id", id, "name", src.Name)

	if s.index != nil {
		if err := s.index.DeleteSource(ctx, id); err != nil {
			slog.Warn("Index cleanup failed", "source_id", id, "error", err)
		}
	}
	if d := src.Document; d != nil && d.FilePath != "" && s.blobs != nil {
		if err := s.blobs.Remove(d.FilePath); err != nil {
			slog.Warn("Upload cleanup failed", "source_id", id, "path", d.FilePath, "error", err)
		}
	}
	return nil
}

// AssignCollection adds the source to a collection given by id or name.
func (s *Service) AssignCollection(ctx context.Context, sourceID, collection string) (SourceView, error) {
	c, err := s.ResolveCollection(ctx, collection)
	if err != nil {
		return SourceView{}, err
	}
	if err := s.store.AssignCollection(ctx, sourceID, c.ID); err != nil {
		return SourceView{}, err
	}
	return s.getView(ctx, sourceID)
}

// UnassignCollection removes the source from a collection.
func (s *Service) UnassignCollection(ctx context.Context, sourceID, collection string) (SourceView, error) {
	c, err := s.ResolveCollection(ctx, collection)
	if err != nil {
		return SourceView{}, err
	}
	if err := s.store.UnassignCollection(ctx, sourceID, c.ID); err != nil {
		return SourceView{}, err
	}
	return s.getView(ctx, sourceID)
}

// OpenFile returns the stored upload of a document source. A missing
// source and a source without a file are distinct NotFound errors.
func (s *Service) OpenFile(ctx context.Context, sourceID string) (io.ReadCloser, domain.FileInfo, error) {
	src, err := s.store.GetSource(ctx, sourceID)
	if err != nil {
		return nil, domain.FileInfo{}, err
	}
	if src.Document == nil || src.Document.FilePath == "" || s.blobs == nil {
		return nil, domain.FileInfo{}, domain.NotFound(domain.EntityFile, sourceID)
	}
	rc, info, err := s.blobs.Open(src.Document.FilePath)
	if err != nil {
		return nil, domain.FileInfo{}, err
	}
	info.Name = src.Name
	if src.Document.MimeType != "" {
		info.MediaType = src.Document.MimeType
	}
	return rc, info, nil
}
