// Package devicedriver defines the narrow contract consumed from the
// external device control surface (C1) and an HTTP-based adapter.
package devicedriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"droidmind/internal/memory"
	"droidmind/internal/observability"
)

// RawExecutionResult is the outcome of one execute_command call.
type RawExecutionResult struct {
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
	Steps     []string  `json:"steps,omitempty"`
}

// VersionInfo is the ping response.
type VersionInfo struct {
	Version string `json:"version"`
}

// Driver is the narrow C1 contract: get_state, execute_command, ping.
// get_state must be cheap enough to poll at 1Hz by default;
// execute_command is synchronous from the caller's view and may take
// minutes.
type Driver interface {
	GetState(ctx context.Context) (memory.UIState, error)
	ExecuteCommand(ctx context.Context, text string, reasoning string, timeout time.Duration) (RawExecutionResult, error)
	Ping(ctx context.Context) (VersionInfo, error)
}

// Config configures the HTTP adapter.
type Config struct {
	BaseURL        string
	APIKey         string
	DefaultTimeout time.Duration // default per-call timeout, overridden per ExecuteCommand call
}

// HTTPDriver talks to a companion device-control service over JSON/HTTP, in
// the same request/response-struct-pair idiom as the embedding client.
type HTTPDriver struct {
	cfg    Config
	client *http.Client
}

func NewHTTPDriver(cfg Config) *HTTPDriver {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 120 * time.Second
	}
	return &HTTPDriver{cfg: cfg, client: observability.NewHTTPClient(&http.Client{Timeout: cfg.DefaultTimeout})}
}

type getStateResponse struct {
	DenoisedText string             `json:"denoised_text"`
	FocusedID    *int               `json:"focused_id"`
	Elements     []memory.UIElement `json:"ui_elements"`
	Phone        memory.PhoneState  `json:"phone_state"`
}

func (d *HTTPDriver) GetState(ctx context.Context) (memory.UIState, error) {
	var out getStateResponse
	if err := d.doJSON(ctx, http.MethodGet, "/get-state", nil, &out); err != nil {
		return memory.UIState{}, fmt.Errorf("devicedriver: get_state: %w", err)
	}
	return memory.UIState{
		ID:           uuid.NewString(),
		DenoisedText: out.DenoisedText,
		FocusedID:    out.FocusedID,
		Elements:     out.Elements,
		Phone:        out.Phone,
		ObservedAt:   time.Now(),
	}, nil
}

type executeCommandRequest struct {
	Text      string `json:"text"`
	Reasoning string `json:"reasoning,omitempty"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

func (d *HTTPDriver) ExecuteCommand(ctx context.Context, text string, reasoning string, timeout time.Duration) (RawExecutionResult, error) {
	if timeout <= 0 {
		timeout = d.cfg.DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The shared client's Timeout is the default; this call gets its own.
	client := *d.client
	client.Timeout = timeout
	call := &HTTPDriver{cfg: d.cfg, client: &client}

	var out RawExecutionResult
	req := executeCommandRequest{Text: text, Reasoning: reasoning, TimeoutMS: timeout.Milliseconds()}
	if err := call.doJSON(cctx, http.MethodPost, "/execute-command", req, &out); err != nil {
		return RawExecutionResult{Timestamp: time.Now(), Command: text, Success: false, Reason: err.Error()}, fmt.Errorf("devicedriver: execute_command: %w", err)
	}
	return out, nil
}

func (d *HTTPDriver) Ping(ctx context.Context) (VersionInfo, error) {
	var out VersionInfo
	if err := d.doJSON(ctx, http.MethodGet, "/ping", nil, &out); err != nil {
		return VersionInfo{}, fmt.Errorf("devicedriver: ping: %w", err)
	}
	return out, nil
}

func (d *HTTPDriver) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport error: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
