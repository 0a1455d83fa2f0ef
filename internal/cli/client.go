package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/logresolver/internal/ingest"
	"github.com/kiranshivaraju/logresolver/internal/resolver"
	"github.com/kiranshivaraju/logresolver/pkg/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Client calls the LogResolver HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// ResolveRequest is the body of POST /api/v1/resolve.
type ResolveRequest struct {
	LogID       string `json:"log_id,omitempty"`
	LogText     string `json:"log_text,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	TopK        int    `json:"top_k,omitempty"`
}

func (c *Client) Resolve(ctx context.Context, req ResolveRequest) (*resolver.Outcome, error) {
	var out resolver.Outcome
	if err := c.do(ctx, http.MethodPost, "/api/v1/resolve", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Similar(ctx context.Context, logID string, topK int) (*resolver.Analysis, error) {
	path := "/api/v1/analysis/" + url.PathEscape(logID) + "/similar"
	if topK > 0 {
		path += "?top_k=" + strconv.Itoa(topK)
	}
	var out resolver.Analysis
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) IngestStructured(ctx context.Context, in ingest.StructuredLog) (*models.LogRecord, error) {
	var out models.LogRecord
	if err := c.do(ctx, http.MethodPost, "/api/v1/logs", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) IngestText(ctx context.Context, text, service string) (*models.LogRecord, error) {
	body := map[string]string{"text": text, "service_name": service}
	var out models.LogRecord
	if err := c.do(ctx, http.MethodPost, "/api/v1/logs/text", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	slog.DebugContext(ctx, "api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return &APIError{Status: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
