// Package loki pulls historical log lines from a Loki server for import.
package loki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/logresolver/internal/config"
	"github.com/kiranshivaraju/logresolver/pkg/models"
)

// Sentinel errors for Loki client failures.
var (
	ErrLokiUnreachable = errors.New("loki unreachable")
	ErrLokiQueryError  = errors.New("loki query error")
	ErrLokiTimeout     = errors.New("loki query timeout")
)

// Source is the read side of Loki used by the importer.
type Source interface {
	QueryRange(ctx context.Context, req QueryRangeRequest) ([]models.LogLine, error)
	LabelValues(ctx context.Context, label string) ([]string, error)
	Ready(ctx context.Context) error
}

// QueryRangeRequest defines parameters for a Loki range query.
type QueryRangeRequest struct {
	Query     string
	Start     time.Time
	End       time.Time
	Limit     int
	Direction string
}

// HTTPClient implements Source using Loki's HTTP API.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	orgID    string
	client   *http.Client
}

// NewHTTPClient creates a Loki client from cfg.
func NewHTTPClient(cfg config.LokiConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		orgID:    cfg.OrgID,
		client:   &http.Client{Timeout: timeout},
	}
}

// QueryRange returns the log lines matching req, oldest first unless
// req.Direction says otherwise.
func (c *HTTPClient) QueryRange(ctx context.Context, req QueryRangeRequest) ([]models.LogLine, error) {
	direction := req.Direction
	if direction == "" {
		direction = "forward"
	}

	params := url.Values{
		"query":     {req.Query},
		"start":     {strconv.FormatInt(req.Start.UnixNano(), 10)},
		"end":       {strconv.FormatInt(req.End.UnixNano(), 10)},
		"direction": {direction},
	}
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}

	var out queryResponse
	if err := c.get(ctx, "/loki/api/v1/query_range", params, &out); err != nil {
		return nil, err
	}
	return parseStreams(out.Data.Result), nil
}

// LabelValues lists the known values of a stream label, such as "service".
func (c *HTTPClient) LabelValues(ctx context.Context, label string) ([]string, error) {
	var out labelsResponse
	if err := c.get(ctx, "/loki/api/v1/label/"+url.PathEscape(label)+"/values", nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return []string{}, nil
	}
	return out.Data, nil
}

// Ready checks Loki's readiness endpoint.
func (c *HTTPClient) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLokiUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: loki not ready (status %d)", ErrLokiUnreachable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrLokiQueryError, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrLokiQueryError, path, err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if c.orgID != "" {
		req.Header.Set("X-Scope-OrgID", c.orgID)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrLokiTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrLokiTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrLokiUnreachable, err)
}

// parseStreams flattens Loki streams into log lines. Lines without a level
// label fall back to "detected_level", which Loki adds on newer versions.
func parseStreams(streams []stream) []models.LogLine {
	lines := []models.LogLine{}
	for _, s := range streams {
		level := s.Labels["level"]
		if level == "" {
			level = s.Labels["detected_level"]
		}
		for _, v := range s.Values {
			ts, err := strconv.ParseInt(v[0], 10, 64)
			if err != nil {
				continue
			}
			lines = append(lines, models.LogLine{
				Timestamp: time.Unix(0, ts).UTC(),
				Message:   v[1],
				Labels:    s.Labels,
				Level:     level,
			})
		}
	}
	return lines
}

type queryResponse struct {
	Data struct {
		ResultType string   `json:"resultType"`
		Result     []stream `json:"result"`
	} `json:"data"`
}

type stream struct {
	Labels map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type labelsResponse struct {
	Status string   `json:"status"`
	Data   []string `json:"data"`
}

var _ Source = (*HTTPClient)(nil)
