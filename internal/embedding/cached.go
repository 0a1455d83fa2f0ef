package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kiranshivaraju/logresolver/internal/cache"
	"github.com/kiranshivaraju/logresolver/internal/metrics"
	"github.com/kiranshivaraju/logresolver/internal/vectorindex"
	"golang.org/x/sync/singleflight"
)

var _ Embedder = (*Cached)(nil)

// defaultCallTimeout bounds a collapsed backend call, which runs detached
// from any single caller.
const defaultCallTimeout = 2 * time.Minute

// Cached memoizes an Embedder in an in-process LRU and, when shared is
// non-nil, a second shared tier (Redis). Concurrent misses for the same text
// collapse into one backend call.
type Cached struct {
	next   Embedder
	local  *lru.Cache[string, []float32]
	shared cache.Cache
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger

	callTimeout time.Duration
}

// NewCached wraps next. shared may be nil.
func NewCached(next Embedder, size int, shared cache.Cache, ttl time.Duration, logger *slog.Logger) (*Cached, error) {
	local, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cached{
		next:   next,
		local:  local,
		shared: shared,
		ttl:    ttl,
		logger: logger,

		callTimeout: defaultCallTimeout,
	}, nil
}

func (c *Cached) Dimension() int { return c.next.Dimension() }
func (c *Cached) Model() string  { return c.next.Model() }

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	if vec, ok := c.local.Get(key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("memory", "hit").Inc()
		return clone(vec), nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("memory", "miss").Inc()

	// The collapsed call outlives any one caller: a cancelled request must
	// not fail the others waiting on the same text.
	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
		defer cancel()

		if vec, ok := c.fromShared(callCtx, key); ok {
			c.local.Add(key, vec)
			return vec, nil
		}

		vec, err := c.next.Embed(callCtx, text)
		if err != nil {
			return nil, err
		}
		c.local.Add(key, vec)
		c.toShared(callCtx, key, vec)
		return vec, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]float32)), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for embedding: %w", ctx.Err())
	}
}

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cache.EmbeddingKey(c.next.Model(), hex.EncodeToString(sum[:]))
}

func (c *Cached) fromShared(ctx context.Context, key string) ([]float32, bool) {
	if c.shared == nil {
		return nil, false
	}
	raw, found, err := c.shared.Get(ctx, key)
	if err != nil {
		c.logger.Warn("embedding cache read failed", "error", err)
		return nil, false
	}
	if !found {
		metrics.EmbeddingCacheTotal.WithLabelValues("shared", "miss").Inc()
		return nil, false
	}
	vec, err := vectorindex.DecodeVector(raw)
	if err != nil || len(vec) != c.next.Dimension() {
		c.logger.Warn("discarding malformed cached embedding", "key", key)
		return nil, false
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("shared", "hit").Inc()
	return vec, true
}

func (c *Cached) toShared(ctx context.Context, key string, vec []float32) {
	if c.shared == nil {
		return
	}
	if err := c.shared.Set(ctx, key, vectorindex.EncodeVector(vec), c.ttl); err != nil {
		c.logger.Warn("embedding cache write failed", "error", err)
	}
}

func clone(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
