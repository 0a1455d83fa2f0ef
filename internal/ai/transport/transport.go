// Package transport is the shared HTTP plumbing for completion providers:
// client-side rate limiting, JSON encoding, and error classification.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/logresolver/internal/metrics"
	"golang.org/x/time/rate"
)

// Sentinel errors shared by every provider. Re-exported by package ai.
var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
	ErrRateLimited         = errors.New("ai provider rate limited")
)

// Client posts JSON to a provider API under a token-bucket limiter.
type Client struct {
	provider string
	model    string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a Client allowing rps requests per second (burst 1 or
// the ceiling of rps). timeout bounds each HTTP round trip.
func NewClient(provider, model string, rps float64, timeout time.Duration) *Client {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		provider: provider,
		model:    model,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// PostJSON sends body to url and decodes a 2xx JSON response into out.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	start := time.Now()
	status := "ok"
	defer func() {
		metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.model, status).Inc()
		metrics.LLMRequestDuration.WithLabelValues(c.provider, c.model).Observe(time.Since(start).Seconds())
	}()

	err := c.post(ctx, url, headers, body, out)
	if err != nil {
		status = statusLabel(err)
	}
	return err
}

func (c *Client) post(ctx context.Context, url string, headers map[string]string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("ai request cancelled: %w", ctx.Err())
		}
		// Wait fails early when the deadline would pass before a token frees up.
		return fmt.Errorf("%w: %s: waiting for rate limiter: %v", ErrInferenceTimeout, c.provider, err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", c.provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := strings.TrimSpace(string(snippet))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s: status %d: %s", ErrRateLimited, c.provider, resp.StatusCode, detail)
		case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
			return fmt.Errorf("%w: %s: status %d", ErrInferenceTimeout, c.provider, resp.StatusCode)
		default:
			return fmt.Errorf("%w: %s: status %d: %s", ErrProviderUnavailable, c.provider, resp.StatusCode, detail)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return classify(ctx, err)
		}
		return fmt.Errorf("%w: %s: decoding response: %v", ErrInvalidResponse, c.provider, err)
	}
	return nil
}

// classify maps transport-level errors to sentinel errors.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrInferenceTimeout, context.DeadlineExceeded)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("ai request cancelled: %w", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func statusLabel(err error) string {
	switch {
	case errors.Is(err, ErrInferenceTimeout):
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

// Options carries the settings common to every provider.
type Options struct {
	RequestsPerSecond float64
	Timeout           time.Duration
	MaxTokens         int
}

// MaxTokensFor returns requested when positive, otherwise the configured default.
func (o Options) MaxTokensFor(requested int) int {
	if requested > 0 {
		return requested
	}
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return 1000
}
