package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/logresolver/internal/api/response"
	"github.com/kiranshivaraju/logresolver/internal/ingest"
	"github.com/kiranshivaraju/logresolver/internal/store"
	"github.com/kiranshivaraju/logresolver/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Ingester stores new log records.
type Ingester interface {
	IngestStructured(ctx context.Context, in ingest.StructuredLog) (*models.LogRecord, error)
	IngestText(ctx context.Context, text, service string, metadata map[string]any) (*models.LogRecord, error)
}

// LogReader reads stored log records and their resolutions.
type LogReader interface {
	GetLogRecord(ctx context.Context, id uuid.UUID) (*models.LogRecord, error)
	ListLogRecords(ctx context.Context, filter store.LogFilter) ([]*models.LogRecord, int, error)
	ListResolutions(ctx context.Context, logID uuid.UUID) ([]*models.Resolution, error)
}

// NewCreateLogHandler returns an http.HandlerFunc for POST /api/v1/logs.
func NewCreateLogHandler(svc Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in ingest.StructuredLog
		if err := decodeJSON(w, r, &in); err != nil {
			badRequest(w, err.Error())
			return
		}

		rec, err := svc.IngestStructured(r.Context(), in)
		if err != nil {
			writeIngestError(w, r, err)
			return
		}
		response.Created(w, rec)
	}
}

// NewIngestTextHandler returns an http.HandlerFunc for POST /api/v1/logs/text.
func NewIngestTextHandler(svc Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text        string         `json:"text"`
			ServiceName string         `json:"service_name"`
			Metadata    map[string]any `json:"metadata"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			badRequest(w, err.Error())
			return
		}

		rec, err := svc.IngestText(r.Context(), body.Text, body.ServiceName, body.Metadata)
		if err != nil {
			writeIngestError(w, r, err)
			return
		}
		response.Created(w, rec)
	}
}

// NewListLogsHandler returns an http.HandlerFunc for GET /api/v1/logs.
// Filters: service, level, since (RFC3339), page, limit.
func NewListLogsHandler(logs LogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.LogFilter{Service: q.Get("service")}

		if raw := q.Get("level"); raw != "" {
			lvl, ok := models.ParseErrorLevel(raw)
			if !ok {
				badRequest(w, "level must be one of DEBUG, INFO, WARN, ERROR, FATAL, UNKNOWN")
				return
			}
			filter.Level = lvl
		}
		if raw := q.Get("since"); raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				badRequest(w, "since must be a valid RFC3339 timestamp")
				return
			}
			filter.Since = since
		}

		page, err := queryInt(r, "page", 1)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		limit, err := queryInt(r, "limit", defaultPageLimit)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		if page < 1 || limit < 1 || limit > maxPageLimit {
			badRequest(w, "page must be >= 1 and limit between 1 and 100")
			return
		}
		filter.Page, filter.Limit = page, limit

		records, total, err := logs.ListLogRecords(r.Context(), filter)
		if err != nil {
			internalError(w, r, err)
			return
		}
		if records == nil {
			records = []*models.LogRecord{}
		}
		response.Collection(w, records, response.NewPaginationMeta(page, limit, total))
	}
}

// NewGetLogHandler returns an http.HandlerFunc for GET /api/v1/logs/{logID}.
func NewGetLogHandler(logs LogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "logID")
		if err != nil {
			badRequest(w, err.Error())
			return
		}

		rec, err := logs.GetLogRecord(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "LOG_NOT_FOUND", "Log record not found", nil)
			return
		}
		if err != nil {
			internalError(w, r, err)
			return
		}
		response.JSON(w, rec)
	}
}

// NewListResolutionsHandler returns an http.HandlerFunc for
// GET /api/v1/logs/{logID}/resolutions.
func NewListResolutionsHandler(logs LogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "logID")
		if err != nil {
			badRequest(w, err.Error())
			return
		}

		if _, err := logs.GetLogRecord(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "LOG_NOT_FOUND", "Log record not found", nil)
				return
			}
			internalError(w, r, err)
			return
		}

		resolutions, err := logs.ListResolutions(r.Context(), id)
		if err != nil {
			internalError(w, r, err)
			return
		}
		if resolutions == nil {
			resolutions = []*models.Resolution{}
		}
		response.JSON(w, resolutions)
	}
}
