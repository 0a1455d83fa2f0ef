package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/logresolver/internal/ai"
	"github.com/kiranshivaraju/logresolver/internal/api/response"
	"github.com/kiranshivaraju/logresolver/internal/ingest"
	"github.com/kiranshivaraju/logresolver/internal/loki"
	"github.com/kiranshivaraju/logresolver/internal/resolver"
)

func badRequest(w http.ResponseWriter, message string) {
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", message, nil)
}

// writeResolveError maps pipeline failures to HTTP errors. The failing stage
// and state are returned as details.
func writeResolveError(w http.ResponseWriter, r *http.Request, err error) {
	var details map[string]string
	message := err.Error()
	var se *resolver.StageError
	if errors.As(err, &se) {
		details = map[string]string{"stage": se.Stage, "state": string(se.State)}
		message = se.Err.Error()
	}

	switch {
	case errors.Is(err, resolver.ErrValidation):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", message, details)
	case errors.Is(err, resolver.ErrNotFound):
		response.Error(w, http.StatusNotFound, "LOG_NOT_FOUND", "Log record not found", details)
	case errors.Is(err, resolver.ErrEmbedding):
		response.Error(w, http.StatusInternalServerError, "EMBEDDING_FAILED", "Embedding the log failed", details)
	case errors.Is(err, resolver.ErrRetrieval):
		response.Error(w, http.StatusInternalServerError, "RETRIEVAL_FAILED", "Similar log retrieval failed", details)
	case errors.Is(err, ai.ErrInferenceTimeout):
		response.Error(w, http.StatusGatewayTimeout, "AI_INFERENCE_TIMEOUT", "AI inference took too long and was cancelled", details)
	case errors.Is(err, ai.ErrRateLimited):
		w.Header().Set("Retry-After", "30")
		response.Error(w, http.StatusTooManyRequests, "AI_RATE_LIMITED", "The AI provider is rate limiting requests", details)
	case errors.Is(err, resolver.ErrGeneration):
		response.Error(w, http.StatusBadGateway, "AI_PROVIDER_UNAVAILABLE", "The AI provider is not available", details)
	case errors.Is(err, resolver.ErrPersistence):
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_FAILED", "Saving the resolution failed", details)
	default:
		internalError(w, r, err)
	}
}

// writeIngestError maps ingestion and import failures to HTTP errors.
func writeIngestError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ingest.ErrValidation):
		badRequest(w, err.Error())
	case errors.Is(err, loki.ErrLokiTimeout):
		response.Error(w, http.StatusGatewayTimeout, "LOKI_TIMEOUT", "Loki query timed out", nil)
	case errors.Is(err, loki.ErrLokiUnreachable):
		response.Error(w, http.StatusBadGateway, "LOKI_UNREACHABLE", "Loki is not reachable", nil)
	case errors.Is(err, loki.ErrLokiQueryError):
		response.Error(w, http.StatusBadGateway, "LOKI_QUERY_FAILED", "Loki rejected the query", nil)
	case errors.Is(err, ingest.ErrEmbedding):
		response.Error(w, http.StatusInternalServerError, "EMBEDDING_FAILED", "Embedding the log failed", nil)
	case errors.Is(err, ingest.ErrStorage):
		response.Error(w, http.StatusInternalServerError, "STORAGE_FAILED", "Storing the log failed", nil)
	default:
		internalError(w, r, err)
	}
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		slog.InfoContext(r.Context(), "request cancelled by client", "request_id", chimw.GetReqID(r.Context()))
	} else {
		slog.ErrorContext(r.Context(), "request failed", "request_id", chimw.GetReqID(r.Context()), "error", err)
	}
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}
