package service

import (
	"context"
	"fmt"
	"time"

	"ragcorpus/internal/domain"
)

// SourceView is a source with its collection names resolved.
type SourceView struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Kind            domain.SourceKind `json:"sourceType"`
	Size            int64             `json:"size"`
	UploadedAt      time.Time         `json:"uploadedAt"`
	ChunkCount      int               `json:"chunkCount"`
	CollectionIDs   []string          `json:"collectionIds"`
	CollectionNames []string          `json:"corpusNames"`
	URL             string            `json:"url,omitempty"`
	Domain          string            `json:"domain,omitempty"`
	MimeType        string            `json:"mimeType,omitempty"`
	Ext             string            `json:"ext,omitempty"`
}

// CollectionView is a collection with the number of member sources.
type CollectionView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Sources int    `json:"sourceCount"`
}

type nameIndex map[string]string

func (s *Service) collectionNames(ctx context.Context) (nameIndex, error) {
	cols, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	idx := make(nameIndex, len(cols))
	for _, c := range cols {
		idx[c.ID] = c.Name
	}
	return idx, nil
}

func (idx nameIndex) view(src domain.Source) SourceView {
	v := SourceView{
		ID:              src.ID,
		Name:            src.Name,
		Kind:            src.Kind,
		Size:            src.Size,
		UploadedAt:      src.UploadedAt,
		ChunkCount:      src.ChunkCount,
		CollectionIDs:   append([]string{}, src.CollectionIDs...),
		CollectionNames: []string{},
	}
	for _, id := range src.CollectionIDs {
		if name, ok := idx[id]; ok {
			v.CollectionNames = append(v.CollectionNames, name)
		}
	}
	if w := src.Website; w != nil {
		v.URL, v.Domain = w.URL, w.Domain
	}
	if d := src.Document; d != nil {
		v.MimeType, v.Ext = d.MimeType, d.Ext
	}
	return v
}

func (s *Service) view(ctx context.Context, src domain.Source) (SourceView, error) {
	idx, err := s.collectionNames(ctx)
	if err != nil {
		return SourceView{}, err
	}
	return idx.view(src), nil
}
