package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/logresolver/internal/api"
	mw "github.com/kiranshivaraju/logresolver/internal/api/middleware"
	"github.com/kiranshivaraju/logresolver/internal/cache"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const resolveKey = "lr_0123456789abcdef0123456789abcdef01234567"

// --- stub key store holding a single resolve-scoped key ---

type stubKeys struct {
	keys []*models.APIKey
}

func newStubKeys(t *testing.T) *stubKeys {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(resolveKey), bcrypt.MinCost)
	require.NoError(t, err)
	return &stubKeys{keys: []*models.APIKey{{
		ID:        uuid.New(),
		Name:      "ci",
		KeyHash:   string(hash),
		KeyPrefix: resolveKey[:8],
		Scopes:    []string{models.ScopeResolve},
	}}}
}

func (s *stubKeys) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *stubKeys) UpdateAPIKeyLastUsed(context.Context, uuid.UUID) error { return nil }

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                          { return nil }
func (c *stubCache) Ping(_ context.Context) error                                      { return nil }
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*stubCache)(nil)

// --- router tests ---

func ok(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}

func newTestRouter(t *testing.T) http.Handler {
	return api.NewRouter(api.Dependencies{
		Auth:           mw.NewAuth(newStubKeys(t)),
		RateLimit:      mw.NewRateLimit(&stubCache{}, 60),
		CORSOrigins:    []string{"https://ui.example.com"},
		HealthHandler:  ok(`{"status":"ok"}`),
		MetricsHandler: ok("# metrics"),
		ResolveHandler: ok(`{"data":{}}`),
		ListLogs:       ok(`{"data":[` + strings.Repeat(`{"service_name":"payments"},`, 100) + `{}]}`),
	})
}

func do(router http.Handler, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestRouter_PublicEndpoints(t *testing.T) {
	router := newTestRouter(t)

	assert.Equal(t, http.StatusOK, do(router, "GET", "/api/v1/health", "").Code)
	assert.Equal(t, http.StatusOK, do(router, "GET", "/metrics", "").Code)
}

func TestRouter_SetsRequestID(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(newStubKeys(t)),
		RateLimit: mw.NewRateLimit(nil, 60),
		HealthHandler: func(w http.ResponseWriter, r *http.Request) {
			assert.NotEmpty(t, chimw.GetReqID(r.Context()))
			w.WriteHeader(http.StatusOK)
		},
	})
	assert.Equal(t, http.StatusOK, do(router, "GET", "/api/v1/health", "").Code)
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/resolve"},
		{"GET", "/api/v1/analysis/" + uuid.NewString() + "/similar"},
		{"GET", "/api/v1/logs"},
		{"POST", "/api/v1/logs"},
		{"POST", "/api/v1/logs/text"},
		{"POST", "/api/v1/logs/import"},
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := do(router, ep.method, ep.path, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "INVALID_TOKEN", errCode(t, w))
		})
	}
}

func TestRouter_ScopeEnforced(t *testing.T) {
	router := newTestRouter(t)

	assert.Equal(t, http.StatusOK, do(router, "POST", "/api/v1/resolve", resolveKey).Code)

	for _, path := range []string{"/api/v1/logs/text", "/api/v1/admin/keys"} {
		w := do(router, "POST", path, resolveKey)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
		assert.Equal(t, "FORBIDDEN", errCode(t, w))
	}
}

func TestRouter_MissingHandlerIsNotImplemented(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, "GET", "/api/v1/logs/"+uuid.NewString(), resolveKey)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, "NOT_IMPLEMENTED", errCode(t, w))
}

func TestRouter_NotFound(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, do(newTestRouter(t), "GET", "/api/v1/nonexistent", "").Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/resolve", nil)
	req.Header.Set("Origin", "https://ui.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "https://ui.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_GzipsLargeResponses(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	req.Header.Set("Authorization", "Bearer "+resolveKey)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}
