package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/logresolver/internal/metrics"
)

// Loader builds the backing embedder. It runs at most once per Lazy.
type Loader func(ctx context.Context) (Embedder, error)

var _ Embedder = (*Lazy)(nil)

// Lazy defers loading the backing model until the first Embed call.
// Concurrent first callers share a single load; later callers wait only until
// it finishes. A failed load is sticky: every call returns the same error.
type Lazy struct {
	load        Loader
	model       string
	dim         int
	loadTimeout time.Duration
	logger      *slog.Logger

	once  sync.Once
	ready chan struct{}
	inner Embedder
	err   error
}

// NewLazy wraps load behind a one-time gate. model and dim describe the
// embedder that load is expected to produce and are reported before loading.
func NewLazy(model string, dim int, loadTimeout time.Duration, logger *slog.Logger, load Loader) *Lazy {
	return &Lazy{
		load:        load,
		model:       model,
		dim:         dim,
		loadTimeout: loadTimeout,
		logger:      logger,
		ready:       make(chan struct{}),
	}
}

func (l *Lazy) Dimension() int { return l.dim }
func (l *Lazy) Model() string  { return l.model }

// Loaded reports whether the load has completed successfully.
func (l *Lazy) Loaded() bool {
	select {
	case <-l.ready:
		return l.err == nil
	default:
		return false
	}
}

// Embed loads the model on first use, then delegates.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	inner, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return inner.Embed(ctx, text)
}

func (l *Lazy) get(ctx context.Context) (Embedder, error) {
	// The load runs detached from the caller's context; an abandoned
	// request must not fail the shared load.
	l.once.Do(func() { go l.run() })

	select {
	case <-l.ready:
		return l.inner, l.err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for embedding model: %w", ctx.Err())
	}
}

func (l *Lazy) run() {
	defer close(l.ready)

	ctx, cancel := context.WithTimeout(context.Background(), l.loadTimeout)
	defer cancel()

	start := time.Now()
	inner, err := l.load(ctx)
	if err == nil && inner.Dimension() != l.dim {
		err = fmt.Errorf("%w: loaded model has dimension %d, configured %d", ErrModelUnavailable, inner.Dimension(), l.dim)
	}
	if err != nil {
		l.err = fmt.Errorf("%w: loading %s: %w", ErrModelUnavailable, l.model, err)
		metrics.EmbeddingModelLoads.WithLabelValues(l.model, "failed").Inc()
		l.logger.Error("embedding model load failed", "model", l.model, "error", err)
		return
	}

	l.inner = inner
	metrics.EmbeddingModelLoads.WithLabelValues(l.model, "loaded").Inc()
	l.logger.Info("embedding model loaded",
		"model", l.model,
		"dimension", l.dim,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
