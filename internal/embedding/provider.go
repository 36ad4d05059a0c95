// Package embedding defines the embedding-provider collaborator
// (embed(texts, task) → [][]float32) and an HTTP-backed implementation.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"droidmind/internal/observability"
)

// TaskType selects the embedding model's instruction-tuned mode.
type TaskType string

const (
	TaskRetrievalDocument TaskType = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    TaskType = "RETRIEVAL_QUERY"
)

// Provider embeds a batch of texts for a given task type.
type Provider interface {
	Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error)
	Ping(ctx context.Context) error
}

// Config configures the HTTP embedding client.
type Config struct {
	BaseURL    string
	Path       string // default "/embeddings"
	Model      string
	APIKey     string
	AuthHeader string // default "Authorization" with "Bearer " prefix; set to a custom header name to skip the prefix
	Timeout    time.Duration
}

type request struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
	Task  string   `json:"task,omitempty"`
}

type responseRow struct {
	Embedding []float32 `json:"embedding"`
}

type response struct {
	Data []responseRow `json:"data"`
}

// HTTPClient is an embedding Provider backed by an OpenAI-compatible
// embeddings endpoint.
type HTTPClient struct {
	cfg    Config
	client *http.Client
}

func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Path == "" {
		cfg.Path = "/embeddings"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPClient{cfg: cfg, client: observability.NewHTTPClient(&http.Client{Timeout: cfg.Timeout})}
}

func (c *HTTPClient) Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(request{Model: c.cfg.Model, Input: texts, Task: string(task)})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding: status %d: %s", resp.StatusCode, string(raw))
	}
	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("embedding: parse response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: expected %d vectors, got %d", len(texts), len(parsed.Data))
	}
	out := make([][]float32, len(parsed.Data))
	for i, row := range parsed.Data {
		out[i] = row.Embedding
	}
	return out, nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.cfg.APIKey == "" {
		return
	}
	header := c.cfg.AuthHeader
	if header == "" || header == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		return
	}
	req.Header.Set(header, c.cfg.APIKey)
}

// Ping issues a zero-text embed call's preflight by hitting the base URL;
// a reachable-but-erroring endpoint still counts as reachable.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL, nil)
	if err != nil {
		return fmt.Errorf("embedding: build ping request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding: unreachable: %w", err)
	}
	defer resp.Body.Close()
	return nil
}
