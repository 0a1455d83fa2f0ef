package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrorLevel is the severity attached to a log record.
type ErrorLevel string

const (
	LevelDebug   ErrorLevel = "DEBUG"
	LevelInfo    ErrorLevel = "INFO"
	LevelWarn    ErrorLevel = "WARN"
	LevelError   ErrorLevel = "ERROR"
	LevelFatal   ErrorLevel = "FATAL"
	LevelUnknown ErrorLevel = "UNKNOWN"
)

// ParseErrorLevel maps a level string (case-insensitive, common aliases accepted)
// to an ErrorLevel. The bool is false when the string is not a recognised level.
func ParseErrorLevel(s string) (ErrorLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "TRACE":
		return LevelDebug, true
	case "INFO", "NOTICE":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR", "ERR":
		return LevelError, true
	case "FATAL", "CRITICAL", "PANIC", "EMERGENCY":
		return LevelFatal, true
	case "UNKNOWN":
		return LevelUnknown, true
	default:
		return LevelUnknown, false
	}
}

// Severity maps a level to a numeric rank for comparisons.
func (l ErrorLevel) Severity() int {
	switch l {
	case LevelFatal:
		return 4
	case LevelError:
		return 3
	case LevelWarn:
		return 2
	case LevelInfo:
		return 1
	default:
		return 0
	}
}

// LogRecord is an ingested log entry. Records are immutable once created.
type LogRecord struct {
	ID             uuid.UUID      `db:"id"              json:"id"`
	ServiceName    string         `db:"service_name"    json:"service_name"`
	ErrorLevel     ErrorLevel     `db:"error_level"     json:"error_level"`
	ErrorMessage   string         `db:"error_message"   json:"error_message"`
	RawText        string         `db:"raw_text"        json:"raw_text"`
	NormalizedText string         `db:"normalized_text" json:"normalized_text"`
	EmbeddingRef   string         `db:"embedding_ref"   json:"embedding_ref"`
	Metadata       map[string]any `db:"metadata"        json:"metadata,omitempty"`
	CreatedAt      time.Time      `db:"created_at"      json:"created_at"`
}

// LogLine is a single raw log entry pulled from Loki before ingestion.
type LogLine struct {
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Labels    map[string]string `json:"labels"`
	Level     string            `json:"level"`
}

// EmbeddingRefFor returns the vector index reference used for a log record id.
func EmbeddingRefFor(id uuid.UUID) string {
	return "log_" + id.String()
}
