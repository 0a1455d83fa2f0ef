package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/logresolver/internal/ai/mock"
	"github.com/kiranshivaraju/logresolver/internal/apikey"
	"github.com/kiranshivaraju/logresolver/internal/config"
	"github.com/kiranshivaraju/logresolver/internal/store"
	"github.com/kiranshivaraju/logresolver/internal/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const adminKey = "lr_adminadminadminadminadminadminadmin0000"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RateLimitPerMin: 100},
		Embedding: config.EmbeddingConfig{
			Provider:    "hash",
			Dimension:   384,
			LoadTimeout: 5 * time.Second,
			CacheSize:   64,
		},
		AI: config.AIConfig{MaxTokens: 500},
		Pipeline: config.PipelineConfig{
			DefaultTopK:      5,
			MaxTopK:          20,
			PatternThreshold: 0.75,
			ContextMaxChars:  4000,
			Temperature:      0.3,
			StageTimeout:     5 * time.Second,
		},
	}
}

type testApp struct {
	handler http.Handler
	store   *store.SQLiteStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	apikey.Cost = bcrypt.MinCost
	ctx := context.Background()

	db, err := store.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := store.NewSQLiteStore(db)

	_, err = apikey.Bootstrap(ctx, s, adminKey)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := newApp(testConfig(), s, vectorindex.NewMemoryIndex(384), nil, mock.NewMockProvider(), logger)
	require.NoError(t, err)
	return &testApp{handler: h, store: s}
}

func (a *testApp) call(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+adminKey)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	var env map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func TestNewApp_HealthReportsComponents(t *testing.T) {
	app := newTestApp(t)

	code, env := app.call(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, code)

	data := env["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "disabled", data["services"].(map[string]any)["cache"])
	assert.Equal(t, map[string]any{"model": "hash-v1", "dimension": float64(384)}, data["embedding"])
	assert.Equal(t, "mock", data["ai"].(map[string]any)["provider"])
}

func TestNewApp_IngestThenResolve(t *testing.T) {
	app := newTestApp(t)

	code, env := app.call(t, http.MethodPost, "/api/v1/logs/text", map[string]any{
		"text":         "2024-02-17T10:00:00Z ERROR [payments] connection refused to db at 10.0.0.5:5432",
		"service_name": "payments",
	})
	require.Equal(t, http.StatusCreated, code, env)
	first := env["data"].(map[string]any)["id"].(string)

	code, env = app.call(t, http.MethodPost, "/api/v1/logs", map[string]any{
		"service_name":  "payments",
		"error_level":   "ERROR",
		"error_message": "connection refused to db at 10.0.0.9:5432",
	})
	require.Equal(t, http.StatusCreated, code, env)
	second := env["data"].(map[string]any)["id"].(string)

	code, env = app.call(t, http.MethodPost, "/api/v1/resolve", map[string]any{"log_id": second})
	require.Equal(t, http.StatusCreated, code, env)

	data := env["data"].(map[string]any)
	assert.Equal(t, "Simulated root cause from mock provider", data["root_cause"])
	assert.InDelta(t, 0.85, data["confidence"], 1e-9)
	assert.NotEmpty(t, data["resolution_id"])

	similar := data["similar_logs"].([]any)
	require.Len(t, similar, 1)
	assert.Equal(t, first, similar[0].(map[string]any)["log_id"])

	code, env = app.call(t, http.MethodGet, "/api/v1/logs/"+second+"/resolutions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, env["data"].([]any), 1)
}

func TestNewApp_AdHocResolveIsNotPersisted(t *testing.T) {
	app := newTestApp(t)

	code, env := app.call(t, http.MethodPost, "/api/v1/resolve", map[string]any{
		"log_text": "FATAL out of memory in worker pool",
	})
	require.Equal(t, http.StatusOK, code, env)
	_, persisted := env["data"].(map[string]any)["resolution_id"]
	assert.False(t, persisted)
}

func TestNewApp_ImportDisabledWithoutLoki(t *testing.T) {
	app := newTestApp(t)

	code, _ := app.call(t, http.MethodPost, "/api/v1/logs/import", map[string]any{"service": "payments"})
	assert.Equal(t, http.StatusNotImplemented, code)
}

func TestNewApp_DimensionMismatch(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := newApp(testConfig(), nil, vectorindex.NewMemoryIndex(768), nil, mock.NewMockProvider(), logger)
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
}
