package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/logresolver/internal/api/middleware"
	"github.com/kiranshivaraju/logresolver/internal/api/response"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth        *mw.Auth
	RateLimit   *mw.RateLimit
	CORSOrigins []string

	HealthHandler   http.HandlerFunc
	MetricsHandler  http.Handler
	ResolveHandler  http.HandlerFunc
	SimilarHandler  http.HandlerFunc
	ListLogs        http.HandlerFunc
	GetLog          http.HandlerFunc
	ListResolutions http.HandlerFunc

	CreateLog      http.HandlerFunc
	IngestText     http.HandlerFunc
	ImportLogs     http.HandlerFunc
	ImportServices http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes. The
// result is wrapped in CORS, gzip and OpenTelemetry handlers.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeResolve))

			r.Post("/api/v1/resolve", orNotImplemented(deps.ResolveHandler))
			r.Get("/api/v1/analysis/{logID}/similar", orNotImplemented(deps.SimilarHandler))
			r.Get("/api/v1/logs", orNotImplemented(deps.ListLogs))
			r.Get("/api/v1/logs/{logID}", orNotImplemented(deps.GetLog))
			r.Get("/api/v1/logs/{logID}/resolutions", orNotImplemented(deps.ListResolutions))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeIngest))

			r.Post("/api/v1/logs", orNotImplemented(deps.CreateLog))
			r.Post("/api/v1/logs/text", orNotImplemented(deps.IngestText))
			r.Post("/api/v1/logs/import", orNotImplemented(deps.ImportLogs))
			r.Get("/api/v1/logs/import/services", orNotImplemented(deps.ImportServices))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	var h http.Handler = r
	if len(deps.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: deps.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		}).Handler(h)
	}
	h = gzhttp.GzipHandler(h)
	return otelhttp.NewHandler(h, "http.request",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		}),
	)
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
