package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/logresolver/internal/api/response"
	"github.com/kiranshivaraju/logresolver/internal/resolver"
)

// Resolver is the pipeline the resolve and analysis endpoints call.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (*resolver.Outcome, error)
	Analyze(ctx context.Context, logID uuid.UUID, topK int) (*resolver.Analysis, error)
}

// NewResolveHandler returns an http.HandlerFunc for POST /api/v1/resolve.
func NewResolveHandler(svc Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			LogID       string `json:"log_id"`
			LogText     string `json:"log_text"`
			ServiceName string `json:"service_name"`
			TopK        int    `json:"top_k"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			badRequest(w, err.Error())
			return
		}

		req := resolver.Request{
			LogText:     body.LogText,
			ServiceName: body.ServiceName,
			TopK:        body.TopK,
		}
		if id := strings.TrimSpace(body.LogID); id != "" {
			parsed, err := uuid.Parse(id)
			if err != nil {
				badRequest(w, "log_id must be a valid UUID")
				return
			}
			req.LogID = parsed
		}

		out, err := svc.Resolve(r.Context(), req)
		if err != nil {
			writeResolveError(w, r, err)
			return
		}
		if out.ResolutionID != nil {
			response.Created(w, out)
			return
		}
		response.JSON(w, out)
	}
}

// NewSimilarHandler returns an http.HandlerFunc for
// GET /api/v1/analysis/{logID}/similar.
func NewSimilarHandler(svc Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logID, err := pathUUID(r, "logID")
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		topK, err := queryInt(r, "top_k", 0)
		if err != nil {
			badRequest(w, err.Error())
			return
		}

		a, err := svc.Analyze(r.Context(), logID, topK)
		if err != nil {
			writeResolveError(w, r, err)
			return
		}
		response.JSON(w, a)
	}
}
