// Package extract turns uploaded bytes and fetched pages into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"ragcorpus/internal/domain"
)

var _ domain.Extractor = (*Extractor)(nil)

// Extractor handles the text family and HTML. Other binary formats are
// rejected with domain.ErrExtraction.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

// Extract decodes raw according to format, which may be a media type, a
// file extension, or empty to sniff the content.
func (e *Extractor) Extract(ctx context.Context, raw []byte, format string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	mt := MediaType(format, raw)
	switch {
	case mt == "text/html" || mt == "application/xhtml+xml":
		text, _, err := HTMLText(bytes.NewReader(raw))
		if err != nil {
			return "", fmt.Errorf("%w: parse html: %v", domain.ErrExtraction, err)
		}
		return text, nil
	case isText(mt):
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("%w: %s content is not valid UTF-8", domain.ErrExtraction, mt)
		}
		return strings.TrimPrefix(string(raw), "\ufeff"), nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q", domain.ErrExtraction, mt)
	}
}

// MediaType resolves format to a bare media type. Extensions go through
// the mime tables; anything else unknown is sniffed from raw.
func MediaType(format string, raw []byte) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if strings.HasPrefix(format, ".") {
		if mt, ok := extTypes[format]; ok {
			return mt
		}
		if mt := mime.TypeByExtension(format); mt != "" {
			return bare(mt)
		}
		format = ""
	}
	if format != "" && format != "application/octet-stream" {
		return bare(format)
	}
	return bare(mimetype.Detect(raw).String())
}

// ExtOf returns the lowercase extension of a file name.
func ExtOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

var extTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".tsv":      "text/tab-separated-values",
	".json":     "application/json",
	".yaml":     "application/yaml",
	".yml":      "application/yaml",
	".toml":     "application/toml",
	".xml":      "application/xml",
	".htm":      "text/html",
	".html":     "text/html",
	".go":       "text/x-go",
	".py":       "text/x-python",
	".js":       "text/javascript",
	".ts":       "text/plain",
	".rst":      "text/plain",
}

func isText(mt string) bool {
	if strings.HasPrefix(mt, "text/") {
		return true
	}
	switch mt {
	case "application/json", "application/xml", "application/yaml", "application/toml",
		"application/x-yaml", "application/javascript", "application/x-ndjson":
		return true
	}
	return false
}

func bare(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
