package loki

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/logresolver/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewHTTPClient(config.LokiConfig{BaseURL: ts.URL + "/", Timeout: 2 * time.Second})
}

func TestQueryRange_ParsesStreams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/query_range", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, `{service="payments"}`, q.Get("query"))
		assert.Equal(t, "500", q.Get("limit"))
		assert.Equal(t, "forward", q.Get("direction"))
		assert.Equal(t, "1708128000000000000", q.Get("start"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"streams","result":[
			{"stream":{"service":"payments","level":"error"},"values":[
				["1708128000000000000","connection refused to database"],
				["1708128060000000000","retry attempt 1 failed"]]},
			{"stream":{"service":"payments","detected_level":"fatal"},"values":[
				["1708128120000000000","out of memory"],
				["not-a-timestamp","dropped"]]}
		]}}`)
	})

	lines, err := c.QueryRange(context.Background(), QueryRangeRequest{
		Query: `{service="payments"}`,
		Start: time.Unix(0, 1708128000000000000),
		End:   time.Unix(0, 1708131600000000000),
		Limit: 500,
	})
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, "connection refused to database", lines[0].Message)
	assert.Equal(t, "error", lines[0].Level)
	assert.Equal(t, "payments", lines[0].Labels["service"])
	assert.True(t, lines[1].Timestamp.Equal(time.Unix(0, 1708128060000000000)))
	assert.Equal(t, "fatal", lines[2].Level)
}

func TestQueryRange_EmptyResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"streams","result":[]}}`)
	})

	lines, err := c.QueryRange(context.Background(), QueryRangeRequest{Query: `{service="x"}`})
	require.NoError(t, err)
	assert.NotNil(t, lines)
	assert.Empty(t, lines)
}

func TestQueryRange_ErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "parse error", http.StatusBadRequest)
	})

	_, err := c.QueryRange(context.Background(), QueryRangeRequest{Query: "{"})
	assert.ErrorIs(t, err, ErrLokiQueryError)
}

func TestQueryRange_InvalidJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json")
	})

	_, err := c.QueryRange(context.Background(), QueryRangeRequest{Query: `{service="x"}`})
	assert.ErrorIs(t, err, ErrLokiQueryError)
}

func TestQueryRange_Unreachable(t *testing.T) {
	c := NewHTTPClient(config.LokiConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})

	_, err := c.QueryRange(context.Background(), QueryRangeRequest{Query: `{service="x"}`})
	assert.ErrorIs(t, err, ErrLokiUnreachable)
}

func TestQueryRange_ContextTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.QueryRange(ctx, QueryRangeRequest{Query: `{service="x"}`})
	assert.ErrorIs(t, err, ErrLokiTimeout)
}

func TestLabelValues(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/label/service/values", r.URL.Path)
		fmt.Fprint(w, `{"status":"success","data":["auth","payments"]}`)
	})

	values, err := c.LabelValues(context.Background(), "service")
	require.NoError(t, err)
	assert.Equal(t, []string{"auth", "payments"}, values)
}

func TestLabelValues_NullData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success"}`)
	})

	values, err := c.LabelValues(context.Background(), "service")
	require.NoError(t, err)
	assert.Equal(t, []string{}, values)
}

func TestSetHeaders(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "tenant-1", r.Header.Get("X-Scope-OrgID"))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := NewHTTPClient(config.LokiConfig{BaseURL: ts.URL, Username: "admin", Password: "secret", OrgID: "tenant-1"})
	require.NoError(t, c.Ready(context.Background()))
}

func TestReady_NotReady(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := c.Ready(context.Background())
	assert.ErrorIs(t, err, ErrLokiUnreachable)
}
