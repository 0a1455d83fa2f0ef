// Package resolver runs the resolve pipeline: normalize, embed, retrieve,
// build context, generate, and (for stored records) persist.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/logresolver/internal/analysis"
	"github.com/kiranshivaraju/logresolver/internal/embedding"
	"github.com/kiranshivaraju/logresolver/internal/metrics"
	"github.com/kiranshivaraju/logresolver/internal/rag"
	"github.com/kiranshivaraju/logresolver/internal/retrieval"
	"github.com/kiranshivaraju/logresolver/internal/store"
	"github.com/kiranshivaraju/logresolver/internal/vectorindex"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LogLookup reads stored log records.
type LogLookup interface {
	GetLogRecord(ctx context.Context, id uuid.UUID) (*models.LogRecord, error)
}

// ResolutionSaver persists resolutions for stored log records.
type ResolutionSaver interface {
	CreateResolution(ctx context.Context, res *models.Resolution) error
}

// Dependencies holds the pipeline collaborators.
type Dependencies struct {
	Embedder  embedding.Embedder
	Index     vectorindex.Index
	Retriever *retrieval.Retriever
	Context   rag.ContextBuilder
	Generator *rag.Generator
	Logs      LogLookup
	Saver     ResolutionSaver
}

// Options tunes request defaults and timeouts.
type Options struct {
	DefaultTopK  int
	MaxTopK      int
	StageTimeout time.Duration
}

// Outcome is a successful resolution. LogID and ResolutionID are set only
// for by-reference requests.
type Outcome struct {
	models.ResolutionResult
	Pattern      models.PatternSignal `json:"pattern"`
	LogID        *uuid.UUID           `json:"log_id,omitempty"`
	ResolutionID *uuid.UUID           `json:"resolution_id,omitempty"`
	State        State                `json:"-"`
}

// Analysis is the retrieval-only view of a stored log record.
type Analysis struct {
	LogID       uuid.UUID                `json:"log_id"`
	SimilarLogs []models.SimilarityMatch `json:"similar_logs"`
	Pattern     models.PatternSignal     `json:"pattern"`
}

// Resolver orchestrates resolve requests. It holds no per-request state and
// is safe for concurrent use.
type Resolver struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a Resolver.
func New(deps Dependencies, opts Options, logger *slog.Logger) *Resolver {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 5
	}
	if opts.MaxTopK < opts.DefaultTopK {
		opts.MaxTopK = max(opts.DefaultTopK, 20)
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 60 * time.Second
	}
	if deps.Context.MaxChars <= 0 {
		deps.Context = rag.NewContextBuilder(0)
	}
	return &Resolver{
		deps:   deps,
		opts:   opts,
		logger: logger,
		tracer: otel.Tracer("github.com/kiranshivaraju/logresolver/internal/resolver"),
	}
}

// subject is the error being resolved, after lookup or parsing.
type subject struct {
	logID      uuid.UUID
	ref        string
	normalized string
	query      rag.Query
}

// Resolve runs the full pipeline for req. Stages run sequentially and the
// first failure aborts the request; the returned error is a *StageError.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	run := &pipelineRun{state: StateReceived}

	v, err := req.validate(r.opts.DefaultTopK, r.opts.MaxTopK)
	if err != nil {
		return nil, r.fail(ctx, run, StageValidate, err)
	}
	run.mode = v.mode

	subj, err := r.locate(ctx, run, v)
	if err != nil {
		return nil, err
	}
	run.advance(StateNormalized)

	vec, err := r.vectorFor(ctx, run, subj)
	if err != nil {
		return nil, err
	}
	run.advance(StateEmbedded)

	matches, signal, err := r.retrieve(ctx, run, vec, subj.ref, v.topK)
	if err != nil {
		return nil, err
	}
	run.advance(StateRetrieved)

	var contextBlock string
	r.measure(ctx, run, StageContext, func() {
		contextBlock = r.deps.Context.BuildContext(matches)
	})
	run.advance(StateContextBuilt)

	var result models.ResolutionResult
	err = r.stage(ctx, run, StageGenerate, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.opts.StageTimeout)
		defer cancel()
		var err error
		result, err = r.deps.Generator.Generate(ctx, subj.query, contextBlock, matches, signal)
		return err
	})
	if err != nil {
		return nil, r.fail(ctx, run, StageGenerate, fmt.Errorf("%w: %w", ErrGeneration, err))
	}
	run.advance(StateGenerated)

	out := &Outcome{ResolutionResult: result, Pattern: signal}
	if v.mode == ModeByReference {
		id, err := r.persist(ctx, run, subj, v.topK, result, signal)
		if err != nil {
			return nil, err
		}
		logID := subj.logID
		out.LogID = &logID
		out.ResolutionID = &id
	}
	run.advance(StateDone)
	out.State = run.state

	outcome := "success"
	if result.Degraded {
		outcome = "degraded"
	}
	if signal.Detected {
		metrics.PatternDetectedTotal.Inc()
	}
	metrics.ResolutionsTotal.WithLabelValues(string(v.mode), outcome).Inc()
	r.logger.InfoContext(ctx, "resolved log",
		"mode", v.mode,
		"log_id", subj.logID,
		"similar", len(matches),
		"pattern_frequency", signal.Frequency,
		"confidence", result.ConfidenceScore,
		"degraded", result.Degraded,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// Analyze runs lookup, embedding, and retrieval for a stored log record
// without generating a resolution.
func (r *Resolver) Analyze(ctx context.Context, logID uuid.UUID, topK int) (*Analysis, error) {
	run := &pipelineRun{state: StateReceived}

	v, err := Request{LogID: logID, TopK: topK}.validate(r.opts.DefaultTopK, r.opts.MaxTopK)
	if err != nil {
		return nil, r.fail(ctx, run, StageValidate, err)
	}
	run.mode = v.mode

	subj, err := r.locate(ctx, run, v)
	if err != nil {
		return nil, err
	}
	run.advance(StateNormalized)

	vec, err := r.vectorFor(ctx, run, subj)
	if err != nil {
		return nil, err
	}
	run.advance(StateEmbedded)

	matches, signal, err := r.retrieve(ctx, run, vec, subj.ref, v.topK)
	if err != nil {
		return nil, err
	}
	return &Analysis{LogID: subj.logID, SimilarLogs: matches, Pattern: signal}, nil
}

// locate produces the subject: a stored record for by-reference requests,
// parsed and normalized text for ad-hoc ones.
func (r *Resolver) locate(ctx context.Context, run *pipelineRun, v validRequest) (subject, error) {
	if v.mode == ModeAdHoc {
		var subj subject
		r.measure(ctx, run, StageNormalize, func() {
			service := v.service
			if service == "" {
				service = analysis.ExtractServiceName(v.text)
			}
			subj = subject{
				normalized: analysis.Normalize(v.text),
				query: rag.Query{
					ServiceName:  service,
					ErrorLevel:   analysis.ExtractLevel(v.text),
					ErrorMessage: analysis.ExtractMessage(v.text),
				},
			}
		})
		return subj, nil
	}

	if r.deps.Logs == nil {
		return subject{}, r.fail(ctx, run, StageValidate, validationError("lookup by log_id is not configured"))
	}

	var rec *models.LogRecord
	err := r.stage(ctx, run, StageLookup, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.opts.StageTimeout)
		defer cancel()
		var err error
		rec, err = r.deps.Logs.GetLogRecord(ctx, v.logID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return subject{}, r.fail(ctx, run, StageLookup, fmt.Errorf("%w: %s", ErrNotFound, v.logID))
	}
	if err != nil {
		return subject{}, r.fail(ctx, run, StageLookup, fmt.Errorf("%w: looking up %s: %w", ErrRetrieval, v.logID, err))
	}

	subj := subject{
		logID:      rec.ID,
		ref:        rec.EmbeddingRef,
		normalized: rec.NormalizedText,
		query: rag.Query{
			ServiceName:  rec.ServiceName,
			ErrorLevel:   rec.ErrorLevel,
			ErrorMessage: rec.ErrorMessage,
		},
	}
	if subj.normalized == "" {
		subj.normalized = analysis.Normalize(rec.RawText)
	}
	if subj.query.ErrorMessage == "" {
		subj.query.ErrorMessage = analysis.ExtractMessage(rec.RawText)
	}
	if subj.ref == "" {
		subj.ref = models.EmbeddingRefFor(rec.ID)
	}
	return subj, nil
}

// vectorFor reuses the stored vector of a by-reference subject when the
// index has it and embeds the normalized text otherwise.
func (r *Resolver) vectorFor(ctx context.Context, run *pipelineRun, subj subject) ([]float32, error) {
	var vec []float32
	err := r.stage(ctx, run, StageEmbed, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.opts.StageTimeout)
		defer cancel()

		if subj.ref != "" && r.deps.Index != nil {
			stored, ok, err := r.deps.Index.Get(ctx, subj.ref)
			if err != nil {
				return fmt.Errorf("%w: reading stored vector: %w", ErrRetrieval, err)
			}
			if ok {
				vec = stored
				return nil
			}
		}

		var err error
		vec, err = r.deps.Embedder.Embed(ctx, subj.normalized)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
		return nil
	})
	if err != nil {
		return nil, r.fail(ctx, run, StageEmbed, err)
	}
	return vec, nil
}

func (r *Resolver) retrieve(ctx context.Context, run *pipelineRun, vec []float32, excludeRef string, topK int) ([]models.SimilarityMatch, models.PatternSignal, error) {
	var (
		matches []models.SimilarityMatch
		signal  models.PatternSignal
	)
	err := r.stage(ctx, run, StageRetrieve, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.opts.StageTimeout)
		defer cancel()
		var err error
		matches, signal, err = r.deps.Retriever.Retrieve(ctx, vec, excludeRef, topK)
		return err
	})
	if err != nil {
		return nil, models.PatternSignal{}, r.fail(ctx, run, StageRetrieve, fmt.Errorf("%w: %w", ErrRetrieval, err))
	}
	return matches, signal, nil
}

func (r *Resolver) persist(ctx context.Context, run *pipelineRun, subj subject, topK int, result models.ResolutionResult, signal models.PatternSignal) (uuid.UUID, error) {
	similar := make([]uuid.UUID, 0, len(result.SimilarMatches))
	for _, m := range result.SimilarMatches {
		if m.LogID != uuid.Nil {
			similar = append(similar, m.LogID)
		}
	}
	res := &models.Resolution{
		ID:              uuid.New(),
		LogID:           subj.logID,
		RootCause:       result.RootCause,
		RecommendedFix:  result.RecommendedFix,
		ConfidenceScore: result.ConfidenceScore,
		Degraded:        result.Degraded,
		SimilarLogIDs:   similar,
		RAGContext: map[string]any{
			"similar_logs_count": len(result.SimilarMatches),
			"top_k":              topK,
			"pattern_detected":   signal.Detected,
			"pattern_frequency":  signal.Frequency,
			"provider":           r.deps.Generator.Provider(),
		},
		CreatedAt: result.ResolvedAt,
	}

	if r.deps.Saver == nil {
		return uuid.Nil, r.fail(ctx, run, StagePersist, fmt.Errorf("%w: no resolution store configured", ErrPersistence))
	}
	err := r.stage(ctx, run, StagePersist, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.opts.StageTimeout)
		defer cancel()
		return r.deps.Saver.CreateResolution(ctx, res)
	})
	if err != nil {
		return uuid.Nil, r.fail(ctx, run, StagePersist, fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	return res.ID, nil
}

// stage runs fn inside a span and records its duration.
func (r *Resolver) stage(ctx context.Context, run *pipelineRun, name string, fn func(ctx context.Context) error) error {
	ctx, span := r.startSpan(ctx, run, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// measure traces and times a step that cannot fail.
func (r *Resolver) measure(ctx context.Context, run *pipelineRun, name string, fn func()) {
	_, span := r.startSpan(ctx, run, name)
	defer span.End()

	start := time.Now()
	fn()
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func (r *Resolver) startSpan(ctx context.Context, run *pipelineRun, name string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "resolver."+name, trace.WithAttributes(
		attribute.String("resolver.mode", string(run.mode)),
		attribute.String("resolver.state", string(run.state)),
	))
}

// fail moves run to FAILED and wraps err with the failing stage.
func (r *Resolver) fail(ctx context.Context, run *pipelineRun, stage string, err error) error {
	se := &StageError{Stage: stage, State: run.state, Err: err}
	run.state = StateFailed

	mode := string(run.mode)
	if mode == "" {
		mode = "invalid"
	}
	metrics.ResolutionsTotal.WithLabelValues(mode, "failed_"+stage).Inc()

	level := slog.LevelError
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		level = slog.LevelInfo
	}
	r.logger.Log(ctx, level, "resolve failed",
		"stage", stage,
		"state", se.State,
		"mode", mode,
		"error", err,
	)
	return se
}
