// Package openai is an OpenAI-compatible batch embeddings client.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"ragcorpus/internal/domain"
)

var _ domain.Embedder = (*Client)(nil)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	// RequestsPerSecond caps outgoing requests; 0 disables the limiter.
	RequestsPerSecond float64
	MaxRetries        int
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	return newClient(cfg, key), nil
}

func newClient(cfg Config, key string) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
		sleep:      sleepCtx,
	}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// EmbedBatch returns one vector per input, ordered by the response's index field.
// Throttling (429) and server errors are retried with backoff, honouring Retry-After.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	data, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		vecs, wait, err := c.do(ctx, data, len(texts))
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if wait < 0 || attempt == c.maxRetries {
			break
		}
		if wait == 0 {
			wait = retryDelay(attempt)
		}
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: openai embeddings: %v", domain.ErrProvider, lastErr)
}

// do performs one request. A negative wait marks the error as permanent.
func (c *Client) do(ctx context.Context, body []byte, n int) ([][]float32, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, -1, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, -1, err
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, retryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("status %s", resp.Status)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode >= 300 {
		return nil, -1, fmt.Errorf("status %s: %s", resp.Status, bytes.TrimSpace(payload))
	}

	var out embeddingResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, -1, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return nil, -1, fmt.Errorf("api error: %s", out.Error.Message)
	}
	vecs := make([][]float32, n)
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= n {
			return nil, -1, fmt.Errorf("response index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, 0, nil
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
