// Package ingest turns incoming log entries into stored, indexed log records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/logresolver/internal/analysis"
	"github.com/kiranshivaraju/logresolver/internal/embedding"
	"github.com/kiranshivaraju/logresolver/internal/metrics"
	"github.com/kiranshivaraju/logresolver/internal/vectorindex"
	"github.com/kiranshivaraju/logresolver/pkg/models"
)

// MaxTextBytes bounds a single ingested log entry.
const MaxTextBytes = 64 * 1024

// Ingestion sources, used as the metrics label and the "source" metadata key.
const (
	SourceStructured = "structured"
	SourceText       = "text"
	SourceLoki       = "loki"
)

var (
	ErrValidation = errors.New("invalid log entry")
	ErrEmbedding  = errors.New("embedding log entry failed")
	ErrStorage    = errors.New("storing log entry failed")
)

// RecordCreator persists new log records.
type RecordCreator interface {
	CreateLogRecord(ctx context.Context, rec *models.LogRecord) error
}

// StructuredLog is a log entry whose fields were already parsed by the sender.
type StructuredLog struct {
	ServiceName  string         `json:"service_name"`
	ErrorLevel   string         `json:"error_level"`
	ErrorMessage string         `json:"error_message"`
	RawText      string         `json:"raw_text,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    *time.Time     `json:"timestamp,omitempty"`
}

// Service ingests log entries: it normalizes and embeds them, stores the
// record, and upserts the vector. It is safe for concurrent use.
type Service struct {
	records  RecordCreator
	embedder embedding.Embedder
	index    vectorindex.Index
	timeout  time.Duration
	logger   *slog.Logger
}

// NewService creates an ingestion Service. timeout bounds each external call.
func NewService(records RecordCreator, embedder embedding.Embedder, index vectorindex.Index, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Service{records: records, embedder: embedder, index: index, timeout: timeout, logger: logger}
}

// IngestStructured stores a pre-parsed log entry.
func (s *Service) IngestStructured(ctx context.Context, in StructuredLog) (*models.LogRecord, error) {
	service := strings.TrimSpace(in.ServiceName)
	if service == "" {
		return nil, fmt.Errorf("%w: service_name is required", ErrValidation)
	}
	message := strings.TrimSpace(in.ErrorMessage)
	if message == "" {
		return nil, fmt.Errorf("%w: error_message is required", ErrValidation)
	}

	raw := in.RawText
	if strings.TrimSpace(raw) == "" {
		raw = message
	}
	if len(raw) > MaxTextBytes {
		return nil, fmt.Errorf("%w: raw_text exceeds %d bytes", ErrValidation, MaxTextBytes)
	}

	level := analysis.ExtractLevel(raw)
	if in.ErrorLevel != "" {
		lvl, ok := models.ParseErrorLevel(in.ErrorLevel)
		if !ok {
			return nil, fmt.Errorf("%w: unknown error_level %q", ErrValidation, in.ErrorLevel)
		}
		level = lvl
	}

	rec := newRecord(service, level, analysis.Truncate(message, analysis.MaxMessageLength), raw, in.Metadata, in.Timestamp)
	if err := s.ingest(ctx, rec, SourceStructured); err != nil {
		return nil, err
	}
	return rec, nil
}

// IngestText parses an unstructured log entry and stores it. An empty
// service is extracted from the text.
func (s *Service) IngestText(ctx context.Context, text, service string, metadata map[string]any) (*models.LogRecord, error) {
	return s.ingestText(ctx, text, service, metadata, nil, SourceText)
}

func (s *Service) ingestText(ctx context.Context, text, service string, metadata map[string]any, at *time.Time, source string) (*models.LogRecord, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: log text is required", ErrValidation)
	}
	if len(text) > MaxTextBytes {
		return nil, fmt.Errorf("%w: log text exceeds %d bytes", ErrValidation, MaxTextBytes)
	}

	service = strings.TrimSpace(service)
	if service == "" {
		service = analysis.ExtractServiceName(text)
	}

	rec := newRecord(service, analysis.ExtractLevel(text), analysis.ExtractMessage(text), text, metadata, at)
	if err := s.ingest(ctx, rec, source); err != nil {
		return nil, err
	}
	return rec, nil
}

func newRecord(service string, level models.ErrorLevel, message, raw string, metadata map[string]any, at *time.Time) *models.LogRecord {
	id := uuid.New()
	created := time.Now().UTC()
	if at != nil && !at.IsZero() {
		created = at.UTC()
	}
	return &models.LogRecord{
		ID:             id,
		ServiceName:    service,
		ErrorLevel:     level,
		ErrorMessage:   message,
		RawText:        raw,
		NormalizedText: analysis.Normalize(raw),
		EmbeddingRef:   models.EmbeddingRefFor(id),
		Metadata:       metadata,
		CreatedAt:      created,
	}
}

// ingest embeds before storing so an embedding failure leaves nothing behind.
func (s *Service) ingest(ctx context.Context, rec *models.LogRecord, source string) error {
	embedCtx, cancel := context.WithTimeout(ctx, s.timeout)
	vec, err := s.embedder.Embed(embedCtx, rec.NormalizedText)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.records.CreateLogRecord(storeCtx, rec)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: saving record: %w", ErrStorage, err)
	}

	indexCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.index.Upsert(indexCtx, rec.EmbeddingRef, vec, IndexMetadata(rec))
	cancel()
	if err != nil {
		s.logger.ErrorContext(ctx, "log record stored without vector", "log_id", rec.ID, "error", err)
		return fmt.Errorf("%w: indexing record %s: %w", ErrStorage, rec.ID, err)
	}

	metrics.LogsIngestedTotal.WithLabelValues(source).Inc()
	s.logger.DebugContext(ctx, "ingested log", "log_id", rec.ID, "service", rec.ServiceName, "level", rec.ErrorLevel, "source", source)
	return nil
}

// IndexMetadata is the vector metadata stored alongside a record's embedding.
func IndexMetadata(rec *models.LogRecord) map[string]string {
	return map[string]string{
		vectorindex.MetaLogID:        rec.ID.String(),
		vectorindex.MetaServiceName:  rec.ServiceName,
		vectorindex.MetaErrorLevel:   string(rec.ErrorLevel),
		vectorindex.MetaErrorMessage: rec.ErrorMessage,
		vectorindex.MetaCreatedAt:    rec.CreatedAt.Format(time.RFC3339Nano),
	}
}
