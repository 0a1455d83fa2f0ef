package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/logresolver/internal/api/response"
	"github.com/kiranshivaraju/logresolver/internal/ingest"
)

// Importer pulls historical logs from Loki.
type Importer interface {
	Import(ctx context.Context, req ingest.ImportRequest) (*ingest.ImportResult, error)
	Services(ctx context.Context) ([]string, error)
}

// NewImportHandler returns an http.HandlerFunc for POST /api/v1/logs/import.
func NewImportHandler(im Importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingest.ImportRequest
		if err := decodeJSON(w, r, &req); err != nil {
			badRequest(w, err.Error())
			return
		}

		res, err := im.Import(r.Context(), req)
		if err != nil {
			writeIngestError(w, r, err)
			return
		}
		response.JSON(w, res)
	}
}

// NewImportServicesHandler returns an http.HandlerFunc for
// GET /api/v1/logs/import/services.
func NewImportServicesHandler(im Importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, err := im.Services(r.Context())
		if err != nil {
			writeIngestError(w, r, err)
			return
		}
		response.JSON(w, services)
	}
}
