package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/logresolver/internal/ai"
	"github.com/kiranshivaraju/logresolver/internal/metrics"
	"github.com/kiranshivaraju/logresolver/pkg/models"
)

// DefaultTemperature keeps completions close to deterministic.
const DefaultTemperature = 0.3

// GeneratorOptions tunes the completion call and the confidence fallbacks.
type GeneratorOptions struct {
	Temperature float64
	MaxTokens   int
	Policy      ConfidencePolicy
}

// Generator turns a query and its retrieved context into a ResolutionResult
// with exactly one completion call.
type Generator struct {
	completer models.Completer
	opts      GeneratorOptions
	logger    *slog.Logger
}

// NewGenerator creates a Generator around completer.
func NewGenerator(completer models.Completer, opts GeneratorOptions, logger *slog.Logger) *Generator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.Policy == (ConfidencePolicy{}) {
		opts.Policy = DefaultConfidencePolicy()
	}
	return &Generator{completer: completer, opts: opts, logger: logger}
}

// Provider returns the name of the completion provider.
func (g *Generator) Provider() string { return g.completer.Name() }

// Generate prompts the model and parses its answer. Completion failures are
// returned as errors and never retried; unparseable output yields a degraded
// result instead of an error.
func (g *Generator) Generate(ctx context.Context, q Query, contextBlock string, matches []models.SimilarityMatch, signal models.PatternSignal) (models.ResolutionResult, error) {
	req := models.CompletionRequest{
		System:      SystemPrompt,
		Prompt:      BuildPrompt(q, contextBlock, signal),
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
	}

	raw, err := g.completer.Complete(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ai.ErrInferenceTimeout) {
			err = fmt.Errorf("%w: %w", ai.ErrInferenceTimeout, err)
		}
		return models.ResolutionResult{}, fmt.Errorf("completion via %s: %w", g.completer.Name(), err)
	}

	result := ParseResponse(raw, signal, g.opts.Policy)
	if result.Degraded {
		metrics.DegradedParsesTotal.Inc()
		g.logger.Warn("model response could not be parsed, returning degraded resolution",
			"provider", g.completer.Name(),
			"model", g.completer.Model(),
			"response_bytes", len(raw),
		)
	}

	if matches == nil {
		matches = []models.SimilarityMatch{}
	}
	result.SimilarMatches = matches
	result.ResolvedAt = time.Now().UTC()
	return result, nil
}
