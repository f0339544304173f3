package domain

import (
	"strings"
	"time"
)

// SourceKind tags which payload a Source carries.
type SourceKind string

const (
	KindDocument SourceKind = "document"
	KindWebsite  SourceKind = "website"
)

// DocumentPayload holds the fields only an uploaded document has.
type DocumentPayload struct {
	FilePath string `json:"filePath,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Ext      string `json:"ext,omitempty"`
}

// WebsitePayload holds the fields only an indexed web page has.
type WebsitePayload struct {
	URL    string `json:"url"`
	Domain string `json:"domain,omitempty"`
}

// Source is one ingested document or website. Exactly one of Document and
// Website is set, matching Kind.
type Source struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Kind          SourceKind       `json:"sourceType"`
	Size          int64            `json:"size"`
	UploadedAt    time.Time        `json:"uploadedAt"`
	ChunkCount    int              `json:"chunkCount"`
	CollectionIDs []string         `json:"collectionIds"`
	Document      *DocumentPayload `json:"document,omitempty"`
	Website       *WebsitePayload  `json:"website,omitempty"`
}

// Domain returns the website domain, or "" for documents.
func (s Source) Domain() string {
	if s.Website == nil {
		return ""
	}
	return s.Website.Domain
}

// HasCollection reports whether the source is a member of the collection.
func (s Source) HasCollection(collectionID string) bool {
	for _, id := range s.CollectionIDs {
		if id == collectionID {
			return true
		}
	}
	return false
}

// AddCollection appends the collection id unless already present.
// It reports whether the membership changed.
func (s *Source) AddCollection(collectionID string) bool {
	if s.HasCollection(collectionID) {
		return false
	}
	s.CollectionIDs = append(s.CollectionIDs, collectionID)
	return true
}

// RemoveCollection drops the collection id, keeping the order of the rest.
func (s *Source) RemoveCollection(collectionID string) bool {
	out := s.CollectionIDs[:0]
	removed := false
	for _, id := range s.CollectionIDs {
		if id == collectionID {
			removed = true
			continue
		}
		out = append(out, id)
	}
	s.CollectionIDs = out
	return removed
}

// Clone returns a deep copy so callers cannot alias store state.
func (s Source) Clone() Source {
	out := s
	out.CollectionIDs = append([]string{}, s.CollectionIDs...)
	if s.Document != nil {
		d := *s.Document
		out.Document = &d
	}
	if s.Website != nil {
		w := *s.Website
		out.Website = &w
	}
	return out
}

// Validate checks that the variant tag and payload agree.
func (s Source) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return Validationf("source id is required")
	}
	switch s.Kind {
	case KindDocument:
		if s.Document == nil || s.Website != nil {
			return Validationf("document source %s must carry only a document payload", s.ID)
		}
	case KindWebsite:
		if s.Website == nil || s.Document != nil {
			return Validationf("website source %s must carry only a website payload", s.ID)
		}
	default:
		return Validationf("unknown source type %q", s.Kind)
	}
	return nil
}

// Fragment is a bounded slice of a source's text plus its embedding.
type Fragment struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"sourceId"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
	Domain    string    `json:"domain,omitempty"`
}

// ScoredFragment is a retrieval hit.
type ScoredFragment struct {
	Fragment
	Score float64 `json:"score"`
}

// Collection is a user-defined grouping of sources. ID is stable; Name is
// a display attribute and may change.
type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FragmentFilter narrows a fragment read. A nil slice means no restriction
// on that dimension; a non-nil empty slice matches nothing.
type FragmentFilter struct {
	SourceIDs []string
	Domains   []string
}

// NormalizeDomain lowercases a host and strips a leading "www.".
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	return strings.TrimPrefix(d, "www.")
}

// NormalizeDomains normalizes a list, dropping blanks and duplicates.
func NormalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, d := range in {
		n := NormalizeDomain(d)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
