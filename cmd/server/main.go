// Package main is the entrypoint for the LogResolver API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/logresolver/internal/ai"
	"github.com/kiranshivaraju/logresolver/internal/api"
	"github.com/kiranshivaraju/logresolver/internal/api/handler"
	mw "github.com/kiranshivaraju/logresolver/internal/api/middleware"
	"github.com/kiranshivaraju/logresolver/internal/apikey"
	"github.com/kiranshivaraju/logresolver/internal/cache"
	"github.com/kiranshivaraju/logresolver/internal/config"
	"github.com/kiranshivaraju/logresolver/internal/embedding"
	"github.com/kiranshivaraju/logresolver/internal/ingest"
	"github.com/kiranshivaraju/logresolver/internal/logging"
	"github.com/kiranshivaraju/logresolver/internal/loki"
	"github.com/kiranshivaraju/logresolver/internal/rag"
	"github.com/kiranshivaraju/logresolver/internal/resolver"
	"github.com/kiranshivaraju/logresolver/internal/retrieval"
	"github.com/kiranshivaraju/logresolver/internal/store"
	"github.com/kiranshivaraju/logresolver/internal/telemetry"
	"github.com/kiranshivaraju/logresolver/internal/vectorindex"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.Init(os.Stdout, logging.JSON, cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("invalid LOG_LEVEL, using info", "error", err)
	}
	logger.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"embedding_provider", cfg.Embedding.Provider,
		"store", cfg.Database.Driver,
		"vector_backend", cfg.VectorIndex.Backend,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Tracing
	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	// 3. Optional Redis cache. The interface stays nil when Redis is off.
	var shared cache.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		shared = redisCache
		logger.Info("redis connected")
	}

	// 4. Store and vector index
	db, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.close()

	// 5. AI provider
	completer, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	logger.Info("AI provider initialized", "provider", completer.Name(), "model", completer.Model())

	// 6. Bootstrap admin key
	if cfg.Server.BootstrapAPIKey != "" {
		created, err := apikey.Bootstrap(ctx, db.store, cfg.Server.BootstrapAPIKey)
		if err != nil {
			return fmt.Errorf("bootstrap api key: %w", err)
		}
		if created {
			logger.Info("bootstrap admin API key created", "key_prefix", apikey.Lookup(cfg.Server.BootstrapAPIKey))
		}
	}

	// 7. Pipeline and router
	router, err := newApp(cfg, db.store, db.index, shared, completer, logger)
	if err != nil {
		return err
	}

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Pipeline.StageTimeout*3 + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// backend is the configured store plus vector index.
type backend struct {
	store store.Store
	index vectorindex.Index
	close func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	dim := cfg.Embedding.Dimension

	switch cfg.Database.Driver {
	case "sqlite":
		db, err := store.OpenSQLite(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("sqlite store opened", "path", cfg.Database.SQLitePath)

		b := &backend{store: store.NewSQLiteStore(db), close: func() { _ = db.Close() }}
		if cfg.VectorIndex.Backend == "sqlite" {
			idx, err := vectorindex.NewSQLiteIndex(ctx, db, cfg.VectorIndex.Table, dim)
			if err != nil {
				b.close()
				return nil, fmt.Errorf("open sqlite vector index: %w", err)
			}
			b.index = idx
		} else {
			b.index = vectorindex.NewMemoryIndex(dim)
		}
		return b, nil

	default:
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		logger.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations applied")

		b := &backend{store: store.NewPostgresStore(pool), close: pool.Close}
		if cfg.VectorIndex.Backend == "pgvector" {
			idx, err := vectorindex.NewPGVectorIndex(ctx, pool, cfg.VectorIndex.Table, dim)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("open pgvector index: %w", err)
			}
			b.index = idx
		} else {
			b.index = vectorindex.NewMemoryIndex(dim)
		}
		return b, nil
	}
}

// newApp wires the resolve pipeline, ingestion and HTTP handlers. shared may
// be nil.
func newApp(cfg *config.Config, s store.Store, index vectorindex.Index, shared cache.Cache, completer models.Completer, logger *slog.Logger) (http.Handler, error) {
	embedder, err := embedding.New(cfg.Embedding, cfg.AI.OpenAI.APIKey, shared, logger)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	if embedder.Dimension() != index.Dimension() {
		return nil, fmt.Errorf("%w: embedder produces %d, index stores %d",
			vectorindex.ErrDimensionMismatch, embedder.Dimension(), index.Dimension())
	}

	generator := rag.NewGenerator(completer, rag.GeneratorOptions{
		Temperature: cfg.Pipeline.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
	}, logger)

	pipeline := resolver.New(resolver.Dependencies{
		Embedder:  embedder,
		Index:     index,
		Retriever: retrieval.New(index, cfg.Pipeline.PatternThreshold),
		Context:   rag.NewContextBuilder(cfg.Pipeline.ContextMaxChars),
		Generator: generator,
		Logs:      s,
		Saver:     s,
	}, resolver.Options{
		DefaultTopK:  cfg.Pipeline.DefaultTopK,
		MaxTopK:      cfg.Pipeline.MaxTopK,
		StageTimeout: cfg.Pipeline.StageTimeout,
	}, logger)

	ingester := ingest.NewService(s, embedder, index, cfg.Pipeline.StageTimeout, logger)

	var healthCache interface{ Ping(context.Context) error }
	if shared != nil {
		healthCache = shared
	}

	deps := api.Dependencies{
		Auth:        mw.NewAuth(s),
		RateLimit:   mw.NewRateLimit(shared, cfg.Server.RateLimitPerMin),
		CORSOrigins: cfg.Server.CORSOrigins,

		HealthHandler: handler.NewHealthHandler(handler.HealthDeps{
			Store:          s,
			Cache:          healthCache,
			Index:          index,
			EmbeddingModel: embedder.Model(),
			EmbeddingDim:   embedder.Dimension(),
			Provider:       completer.Name(),
			Model:          completer.Model(),
		}),
		MetricsHandler:  promhttp.Handler(),
		ResolveHandler:  handler.NewResolveHandler(pipeline),
		SimilarHandler:  handler.NewSimilarHandler(pipeline),
		ListLogs:        handler.NewListLogsHandler(s),
		GetLog:          handler.NewGetLogHandler(s),
		ListResolutions: handler.NewListResolutionsHandler(s),

		CreateLog:  handler.NewCreateLogHandler(ingester),
		IngestText: handler.NewIngestTextHandler(ingester),

		CreateKeyHandler: handler.NewCreateKeyHandler(s),
		ListKeysHandler:  handler.NewListKeysHandler(s),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(s),
	}

	if cfg.Loki.BaseURL != "" {
		importer := ingest.NewImporter(loki.NewHTTPClient(cfg.Loki), ingester, shared, logger)
		deps.ImportLogs = handler.NewImportHandler(importer)
		deps.ImportServices = handler.NewImportServicesHandler(importer)
		logger.Info("loki import enabled", "base_url", cfg.Loki.BaseURL)
	}

	return api.NewRouter(deps), nil
}
