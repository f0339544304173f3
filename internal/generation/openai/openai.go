// Package openai generates answers with an OpenAI-compatible chat
// completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"ragcorpus/internal/domain"
	"ragcorpus/internal/generation"
)

var _ domain.Generator = (*Provider)(nil)

// Config configures the chat client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Provider implements domain.Generator.
type Provider struct {
	apiKey      string
	apiBase     string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewProvider reads the API key from the configured environment variable.
func NewProvider(cfg Config) (*Provider, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	return newProvider(cfg, key), nil
}

func newProvider(cfg Config, key string) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Provider{
		apiKey:      key,
		apiBase:     strings.TrimSuffix(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *Provider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Generate sends the system and user messages and returns the first choice.
func (p *Provider) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: generation.SystemMessage(prompt)},
			{Role: "user", Content: generation.UserMessage(prompt)},
		},
		Temperature: p.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: chat request: %v", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", domain.ErrProvider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: chat API error (status %d): %s", domain.ErrProvider, resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", domain.ErrProvider, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", domain.ErrProvider)
	}
	return out.Choices[0].Message.Content, nil
}
