package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPConfig parameterizes one JSON-over-HTTP adapter instance. The
// ticket, workflow, documentation, monitoring, and security-scan adapters
// are all instances of the same shape: POST the input to a base URL with
// bearer auth, return the decoded JSON response.
type HTTPConfig struct {
	Name    string
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPAdapter posts action input to a downstream JSON API.
type HTTPAdapter struct {
	name    string
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTP creates a JSON-over-HTTP adapter. Returns a mock when no base
// URL is configured.
func NewHTTP(cfg HTTPConfig) Adapter {
	if cfg.BaseURL == "" {
		slog.Info("Adapter endpoint not configured, using mock", "adapter", cfg.Name)
		return Mock(cfg.Name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPAdapter{
		name:    cfg.Name,
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  slog.Default().With("component", cfg.Name+"-adapter"),
	}
}

func (a *HTTPAdapter) Name() string { return a.name }

func (a *HTTPAdapter) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", a.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", a.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", a.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", a.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned status %d: %s", a.name, resp.StatusCode, truncate(string(raw), 200))
	}

	result := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", a.name, err)
		}
	}
	a.logger.Debug("Adapter call succeeded", "status", resp.StatusCode)
	return result, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
