package models

import (
	"time"

	"github.com/google/uuid"
)

// SimilarityMatch is a historical log record returned by similarity retrieval.
// Score is cosine similarity clamped to [0, 1]; higher is more similar.
type SimilarityMatch struct {
	LogID        uuid.UUID  `json:"log_id"`
	EmbeddingRef string     `json:"-"`
	ServiceName  string     `json:"service_name"`
	ErrorLevel   ErrorLevel `json:"error_level"`
	ErrorMessage string     `json:"error_message"`
	Score        float64    `json:"similarity_score"`
	CreatedAt    time.Time  `json:"created_at"`
}

// PatternSignal reports whether the retrieved set looks like a recurring error.
type PatternSignal struct {
	Detected  bool `json:"detected"`
	Frequency int  `json:"frequency"`
}

// ResolutionResult is the generated diagnosis for one resolve request.
type ResolutionResult struct {
	RootCause       string            `json:"root_cause"`
	RecommendedFix  string            `json:"recommended_fix"`
	FixSteps        []string          `json:"fix_steps"`
	ConfidenceScore float64           `json:"confidence"`
	Degraded        bool              `json:"degraded"`
	SimilarMatches  []SimilarityMatch `json:"similar_logs"`
	ResolvedAt      time.Time         `json:"resolved_at"`
}

// Resolution is a persisted ResolutionResult attached to a log record.
type Resolution struct {
	ID              uuid.UUID      `db:"id"               json:"id"`
	LogID           uuid.UUID      `db:"log_id"           json:"log_id"`
	RootCause       string         `db:"root_cause"       json:"root_cause"`
	RecommendedFix  string         `db:"recommended_fix"  json:"recommended_fix"`
	ConfidenceScore float64        `db:"confidence_score" json:"confidence"`
	Degraded        bool           `db:"degraded"         json:"degraded"`
	SimilarLogIDs   []uuid.UUID    `db:"similar_log_ids"  json:"similar_log_ids"`
	RAGContext      map[string]any `db:"rag_context"      json:"rag_context,omitempty"`
	CreatedAt       time.Time      `db:"created_at"       json:"created_at"`
}
