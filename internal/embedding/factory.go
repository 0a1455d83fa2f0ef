package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/logresolver/internal/cache"
	"github.com/kiranshivaraju/logresolver/internal/config"
)

// New builds the configured embedder: the backend behind a lazy load gate,
// wrapped in the embedding cache. shared may be nil.
func New(cfg config.EmbeddingConfig, openAIKey string, shared cache.Cache, logger *slog.Logger) (Embedder, error) {
	var (
		model string
		build func() Embedder
	)

	switch cfg.Provider {
	case "hash":
		model = HashModel
		build = func() Embedder { return NewHashEmbedder(cfg.Dimension) }
	case "ollama":
		model = orDefault(cfg.Model, "nomic-embed-text")
		baseURL := orDefault(cfg.BaseURL, "http://localhost:11434")
		build = func() Embedder { return NewOllamaEmbedder(baseURL, model, cfg.Dimension, cfg.LoadTimeout) }
	case "openai":
		model = orDefault(cfg.Model, "text-embedding-3-small")
		baseURL := orDefault(cfg.BaseURL, "https://api.openai.com/v1")
		apiKey := orDefault(cfg.APIKey, openAIKey)
		build = func() Embedder { return NewOpenAIEmbedder(baseURL, apiKey, model, cfg.Dimension, cfg.LoadTimeout) }
	default:
		return nil, fmt.Errorf("unknown embedding provider %q: must be one of hash, ollama, openai", cfg.Provider)
	}

	lazy := NewLazy(model, cfg.Dimension, cfg.LoadTimeout, logger, func(ctx context.Context) (Embedder, error) {
		e := build()
		// Probe once so an unreachable backend or wrong dimension fails the
		// load instead of the first real request.
		if _, err := e.Embed(ctx, "probe"); err != nil {
			return nil, err
		}
		return e, nil
	})

	if cfg.CacheSize <= 0 {
		return lazy, nil
	}
	cached, err := NewCached(lazy, cfg.CacheSize, shared, cfg.CacheTTL, logger)
	if err != nil {
		return nil, err
	}
	if cfg.LoadTimeout > 0 {
		// The first collapsed call may include the model load.
		cached.callTimeout = cfg.LoadTimeout
	}
	return cached, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
