// Package sheria is the public API for embedding the Sheria legal answering server.
//
// Consumers import this package to construct and run the server without
// forking it:
//
//	app, err := sheria.New(
//	    sheria.WithVersion(version),
//	    sheria.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: sheria (root) imports
// internal/*, but internal/* never imports sheria (root).
package sheria

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/pgvector/pgvector-go"

	"github.com/sheria-ai/sheria/internal/cache"
	"github.com/sheria-ai/sheria/internal/config"
	"github.com/sheria-ai/sheria/internal/llm"
	"github.com/sheria-ai/sheria/internal/mcp"
	"github.com/sheria-ai/sheria/internal/retrieval"
	"github.com/sheria-ai/sheria/internal/server"
	"github.com/sheria-ai/sheria/internal/service/embedding"
	"github.com/sheria-ai/sheria/internal/service/query"
	"github.com/sheria-ai/sheria/internal/storage"
	"github.com/sheria-ai/sheria/internal/telemetry"
	"github.com/sheria-ai/sheria/migrations"
)

// EmbeddingProvider converts text into dense vectors for retrieval.
// Implementations provided via WithEmbeddingProvider replace the
// auto-detected backend.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// providerAdapter bridges the public EmbeddingProvider to the internal one.
type providerAdapter struct {
	p EmbeddingProvider
}

func (a *providerAdapter) Dimensions() int { return a.p.Dimensions() }

func (a *providerAdapter) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	v, err := a.p.Embed(ctx, text)
	if err != nil {
		return pgvector.Vector{}, err
	}
	return pgvector.NewVector(v), nil
}

func (a *providerAdapter) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vs, err := a.p.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]pgvector.Vector, len(vs))
	for i, v := range vs {
		out[i] = pgvector.NewVector(v)
	}
	return out, nil
}

// App is the Sheria server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	dispatcher   *llm.Dispatcher
	qdrant       *retrieval.QdrantRetriever // nil when Qdrant is not configured
	respCache    cache.Cache
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the Sheria server. It connects to the database, runs
// migrations, wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.redisURL != "" {
		cfg.RedisURL = o.redisURL
	}
	if o.qdrantURL != "" {
		cfg.QdrantURL = o.qdrantURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("sheria starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Connect to database.
	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	// Run embedded migrations, then any extra migration filesystems.
	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	// Create embedding provider — external override takes priority over auto-detect.
	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = &providerAdapter{p: o.embeddingProvider}
	} else {
		embedder, err = embedding.New(embedding.Config{
			Provider:     cfg.EmbeddingProvider,
			OpenAIAPIKey: cfg.OpenAIAPIKey,
			Model:        cfg.EmbeddingModel,
			Dimensions:   cfg.EmbeddingDimensions,
			OllamaURL:    cfg.OllamaURL,
			OllamaModel:  cfg.OllamaModel,
		})
		if err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("embedding: %w", err)
		}
	}

	// Initialize the retriever. Qdrant when configured, pgvector otherwise.
	var retriever retrieval.Retriever
	var qdrantRet *retrieval.QdrantRetriever
	if cfg.QdrantURL != "" {
		qdrantRet, err = retrieval.NewQdrantRetriever(retrieval.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, embedder, db, logger)
		if err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		if err := qdrantRet.EnsureCollection(context.Background()); err != nil {
			_ = qdrantRet.Close()
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant ensure collection: %w", err)
		}
		retriever = qdrantRet
		logger.Info("retrieval: qdrant", "collection", cfg.QdrantCollection)
	} else {
		retriever = retrieval.NewPgvectorRetriever(db, embedder, logger)
		logger.Info("retrieval: pgvector (no QDRANT_URL)")
	}

	// Build the model chain and dispatcher.
	modelChain := append([]string{cfg.DefaultModel}, cfg.FallbackModels...)
	clientCfg := llm.ClientConfig{
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OllamaURL:    cfg.OllamaURL,
	}
	clients := make([]llm.Client, 0, len(modelChain))
	for _, id := range modelChain {
		client, err := llm.NewClient(id, clientCfg)
		if err != nil {
			closeRetriever(qdrantRet)
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("model %q: %w", id, err)
		}
		clients = append(clients, client)
	}
	dispatcher, err := llm.NewDispatcher(clients, llm.Config{
		ModelTimeout:             cfg.ModelTimeout,
		MaxRetries:               cfg.MaxModelRetries,
		ErrorRateThreshold:       cfg.ErrorRateThreshold,
		LatencyThresholdMs:       cfg.LatencyThresholdMs,
		WindowSize:               cfg.HealthWindowSize,
		ConsecutiveFailureCutoff: cfg.ConsecutiveFailureCutoff,
		HealthCheckInterval:      cfg.HealthCheckInterval,
	}, logger)
	if err != nil {
		closeRetriever(qdrantRet)
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("dispatcher: %w", err)
	}

	// Response cache. Redis when configured, in-process LRU otherwise.
	var respCache cache.Cache
	if cfg.RedisURL != "" {
		respCache, err = cache.NewRedisCache(context.Background(), cfg.RedisURL)
		if err != nil {
			closeRetriever(qdrantRet)
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("redis: %w", err)
		}
		logger.Info("response cache: redis")
	} else {
		respCache = cache.NewMemoryCache(cfg.CacheMaxEntries, time.Minute)
		logger.Info("response cache: memory", "max_entries", cfg.CacheMaxEntries)
	}

	// Create the query service.
	querySvc := query.New(retriever, dispatcher, respCache, query.Config{
		TopK:             cfg.TopK,
		MaxContextTokens: cfg.MaxContextTokens,
		EnableCitations:  cfg.EnableCitations,
		SnippetLength:    cfg.SnippetLength,
		Stopwords:        cfg.Stopwords,
		RetrieverTimeout: cfg.RetrieverTimeout,
		QueryTimeout:     cfg.QueryTimeout,
		DefaultMaxTokens: cfg.DefaultMaxTokens,
		CacheTTL:         cfg.CacheTTL,
		ModelChain:       modelChain,
	}, logger)

	// MCP server.
	mcpSrv := mcp.New(querySvc, dispatcher, version, logger)

	// Create the HTTP server.
	handlers := server.NewHandlers(server.HandlersDeps{
		QuerySvc:            querySvc,
		Models:              dispatcher,
		Retriever:           retriever,
		Corpus:              db,
		Logger:              logger,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})
	srv := server.New(server.Config{
		Handlers:     handlers,
		Logger:       logger,
		MCPServer:    mcpSrv.MCPServer(),
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		dispatcher:   dispatcher,
		qdrant:       qdrantRet,
		respCache:    respCache,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the health probe loop and the HTTP server, then blocks until
// ctx is cancelled or a fatal server error occurs. On return, Shutdown is
// called automatically — callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	go a.dispatcher.RunHealthLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then closes the cache, retriever,
// OTEL providers, and database pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("sheria shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	cancel()

	if err := a.respCache.Close(); err != nil {
		a.logger.Warn("cache close error", "error", err)
	}
	closeRetriever(a.qdrant)
	_ = a.otelShutdown(context.Background())
	a.db.Close()

	a.logger.Info("sheria stopped")
	return nil
}

func closeRetriever(q *retrieval.QdrantRetriever) {
	if q != nil {
		_ = q.Close()
	}
}
