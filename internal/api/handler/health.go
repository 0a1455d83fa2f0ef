package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiranshivaraju/logresolver/internal/api/response"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type counter interface {
	Count(ctx context.Context) (int, error)
}

// HealthDeps are the components the health endpoint reports on. Cache may be
// nil when Redis is not configured.
type HealthDeps struct {
	Store          pinger
	Cache          pinger
	Index          counter
	EmbeddingModel string
	EmbeddingDim   int
	Provider       string
	Model          string
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health. The
// database and vector index are required; an unreachable cache only marks
// the service degraded.
func NewHealthHandler(deps HealthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{"database": "ok", "vector_index": "ok", "cache": "disabled"}
		status := "ok"

		if err := deps.Store.Ping(ctx); err != nil {
			checks["database"] = "unavailable"
			status = "unavailable"
		}
		vectors, err := deps.Index.Count(ctx)
		if err != nil {
			checks["vector_index"] = "unavailable"
			status = "unavailable"
		}
		if deps.Cache != nil {
			checks["cache"] = "ok"
			if err := deps.Cache.Ping(ctx); err != nil {
				checks["cache"] = "degraded"
				if status == "ok" {
					status = "degraded"
				}
			}
		}

		if status == "unavailable" {
			response.Error(w, http.StatusServiceUnavailable, "UNAVAILABLE",
				"One or more required services are unavailable", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   status,
			"services": checks,
			"vectors":  vectors,
			"embedding": map[string]any{
				"model":     deps.EmbeddingModel,
				"dimension": deps.EmbeddingDim,
			},
			"ai": map[string]string{
				"provider": deps.Provider,
				"model":    deps.Model,
			},
		})
	}
}
