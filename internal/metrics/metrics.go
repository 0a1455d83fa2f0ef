package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolve pipeline metrics, served on /metrics.
var (
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logresolver_resolutions_total",
			Help: "Total number of resolve requests by mode and outcome",
		},
		[]string{"mode", "outcome"}, // mode: by_reference/ad_hoc; outcome: success/degraded/<failed state>
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logresolver_stage_duration_seconds",
			Help:    "Duration of each resolve pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		},
		[]string{"stage"},
	)

	DegradedParsesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logresolver_degraded_parses_total",
			Help: "Model responses that could not be parsed and fell back to the degraded result",
		},
	)

	PatternDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logresolver_pattern_detected_total",
			Help: "Resolve requests whose retrieval set crossed the pattern threshold",
		},
	)

	// LLM metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logresolver_llm_requests_total",
			Help: "Total number of completion API requests",
		},
		[]string{"provider", "model", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logresolver_llm_request_duration_seconds",
			Help:    "Completion request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"provider", "model"},
	)

	// Embedding metrics
	EmbeddingCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logresolver_embedding_cache_total",
			Help: "Embedding cache lookups by tier and result",
		},
		[]string{"tier", "result"}, // tier: memory/shared; result: hit/miss
	)

	EmbeddingModelLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logresolver_embedding_model_loads_total",
			Help: "Embedding model load attempts",
		},
		[]string{"model", "status"},
	)

	// Ingestion metrics
	LogsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logresolver_logs_ingested_total",
			Help: "Log records ingested by source",
		},
		[]string{"source"}, // structured/text/loki
	)
)
