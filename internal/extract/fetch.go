package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ragcorpus/internal/domain"
)

// DefaultMaxFetchBytes caps how much of a page body is read.
const DefaultMaxFetchBytes = 5 << 20

var _ domain.Fetcher = (*Fetcher)(nil)

// Fetcher downloads web pages and extracts their text.
type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	extractor *Extractor
}

// NewFetcher creates a fetcher. Zero values pick defaults.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFetchBytes
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		maxBytes:  maxBytes,
		extractor: New(),
	}
}

// ParseURL accepts only absolute http(s) URLs.
func ParseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, domain.Validationf("invalid url %q", raw)
	}
	return u, nil
}

// Fetch implements domain.Fetcher. Network and HTTP status failures are
// extraction errors: the page yielded no usable text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (domain.Page, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return domain.Page{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return domain.Page{}, err
	}
	req.Header.Set("User-Agent", "ragcorpus/1.0 (+https://github.com)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.Page{}, fmt.Errorf("%w: fetch %s: %v", domain.ErrExtraction, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Page{}, fmt.Errorf("%w: fetch %s: status %d %s", domain.ErrExtraction, u,
			resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return domain.Page{}, fmt.Errorf("%w: read %s: %v", domain.ErrExtraction, u, err)
	}

	final := resp.Request.URL
	page := domain.Page{
		URL:    u.String(),
		Domain: domain.NormalizeDomain(final.Hostname()),
		Size:   int64(len(body)),
	}
	mt := MediaType(resp.Header.Get("Content-Type"), body)
	if mt == "text/html" || mt == "application/xhtml+xml" {
		page.Text, page.Title, err = HTMLText(bytes.NewReader(body))
		if err != nil {
			return domain.Page{}, fmt.Errorf("%w: parse %s: %v", domain.ErrExtraction, u, err)
		}
	} else {
		page.Text, err = f.extractor.Extract(ctx, body, mt)
		if err != nil {
			return domain.Page{}, err
		}
	}
	if page.Title == "" {
		page.Title = page.Domain
	}
	slog.Debug("Page fetched", "url", page.URL, "bytes", page.Size, "media_type", mt)
	return page, nil
}
