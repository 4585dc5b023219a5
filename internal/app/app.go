// Package app wires the core components from configuration. The server and
// the ingest CLI share it.
package app

import (
	"context"
	"fmt"

	"ragvault/internal/cache"
	"ragvault/internal/chunker"
	"ragvault/internal/embedding"
	"ragvault/internal/extractor"
	"ragvault/internal/llm"
	"ragvault/internal/repository"
	"ragvault/internal/repository/memory"
	"ragvault/internal/service"
	"ragvault/internal/vectorstore"
	"ragvault/pkg/auth"
	"ragvault/pkg/config"
	"ragvault/pkg/postgres"
	"ragvault/pkg/redisclient"
	"ragvault/pkg/sqlite"

	"go.uber.org/zap"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"

	memoryEmbeddingCacheEntries = 50000
	memoryResponseCacheEntries  = 5000
)

type App struct {
	Config    *config.Config
	Ingestion *service.IngestionService
	RAG       *service.RAGService
	JWT       *auth.JWTManager

	closers []func()
	logger  *zap.Logger
}

type storage struct {
	sources   service.SourceRepository
	chunks    service.ChunkRepository
	citations service.CitationRepository
	vectors   vectorstore.Store
}

// Build connects the configured backends and assembles the services. Close
// releases whatever Build opened, also after a partial failure.
func Build(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, logger: appLogger}

	store, err := a.openStorage(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	embeddingCache, responseCache, budget, err := a.openCaches(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	provider := embedding.NewOpenAIProvider(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	embedder := embedding.NewService(provider, embeddingCache, budget, embedding.Config{
		PricePer1K:    cfg.Embedding.PricePer1K,
		MaxTextLength: cfg.Embedding.MaxTextLength,
		BatchSize:     cfg.Embedding.BatchSize,
		CacheTTL:      cfg.Embedding.CacheTTL,
	}, appLogger.Named("embedding"))

	generator, err := llm.New(&cfg.LLM, &cfg.GigaChat, appLogger.Named("llm"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}
	if c, ok := generator.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}

	fetcher := extractor.NewURLFetcher(cfg.Extraction.FetchTimeout, cfg.Extraction.MaxFetchBytes)
	registry := extractor.NewDefaultRegistry(fetcher, appLogger.Named("extractor"))
	if cfg.GigaChat.APIKey != "" {
		registry.Register(extractor.NewImageExtractor(llm.NewGigaChatVision(&cfg.GigaChat, appLogger.Named("vision"))))
	}

	engine := chunker.NewEngine(appLogger.Named("chunker"),
		chunker.WithTokenizer(chunker.NewTokenizer(cfg.Chunking.TokenizerModel, appLogger)),
		chunker.WithQualityThreshold(cfg.Chunking.QualityThreshold),
	)

	vectors := vectorstore.WithRetry(store.vectors, cfg.RAG.RetryAttempts, appLogger.Named("vectorstore"))

	a.Ingestion = service.NewIngestionService(
		store.sources,
		store.chunks,
		registry,
		engine,
		embedder,
		vectors,
		ChunkOptions(&cfg.Chunking),
		cfg.RAG.NamespacePrefix,
		appLogger.Named("ingestion"),
	)
	a.RAG = service.NewRAGService(
		embedder,
		vectors,
		generator,
		responseCache,
		store.citations,
		llm.Pricing{PromptPer1K: cfg.LLM.PromptPricePer1K, CompletionPer1K: cfg.LLM.CompletionPricePer1K},
		&cfg.RAG,
		appLogger.Named("rag"),
	)
	a.JWT = auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration)

	appLogger.Info("Components initialized",
		zap.String("vector_backend", cfg.VectorStore.Backend),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("generation_model", generator.ModelName()),
		zap.String("embedding_model", embedder.ModelName()),
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.VectorStore.Backend {
	case BackendPostgres:
		pool, err := postgres.NewPool(ctx, &cfg.Database, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		if err := postgres.EnsureVectorExtension(ctx, pool); err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		vectors := vectorstore.NewPGVector(pool, a.logger.Named("pgvector"))
		if err := vectors.EnsureSchema(ctx, cfg.Embedding.Dimensions); err != nil {
			return nil, err
		}
		return &storage{
			sources:   repository.NewSourceRepository(pool, a.logger),
			chunks:    repository.NewChunkRepository(pool, a.logger),
			citations: repository.NewCitationRepository(pool, a.logger),
			vectors:   vectors,
		}, nil

	case BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.VectorStore.SQLitePath, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })

		vectors, err := vectorstore.NewSQLite(db, a.logger.Named("sqlite"))
		if err != nil {
			return nil, err
		}
		a.logger.Warn("Source and chunk records are kept in memory with the sqlite backend")
		return &storage{
			sources:   memory.NewSourceRepository(),
			chunks:    memory.NewChunkRepository(),
			citations: memory.NewCitationRepository(),
			vectors:   vectors,
		}, nil

	case BackendMemory:
		a.logger.Warn("Using in-memory storage, nothing survives a restart")
		return &storage{
			sources:   memory.NewSourceRepository(),
			chunks:    memory.NewChunkRepository(),
			citations: memory.NewCitationRepository(),
			vectors:   vectorstore.NewMemory(),
		}, nil
	}
	return nil, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
}

func (a *App) openCaches(ctx context.Context, cfg *config.Config) (cache.Cache, cache.Cache, embedding.Budget, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemory(memoryEmbeddingCacheEntries),
			cache.NewMemory(memoryResponseCacheEntries),
			embedding.NewMemoryBudget(cfg.Embedding.DailyBudgetUSD),
			nil
	}

	client, err := redisclient.New(ctx, &cfg.Redis, a.logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })

	shared := cache.NewRedis(client, cfg.Redis.KeyPrefix)
	return shared, shared, embedding.NewRedisBudget(client, cfg.Redis.KeyPrefix, cfg.Embedding.DailyBudgetUSD), nil
}

// ChunkOptions converts the chunking section of the config.
func ChunkOptions(cfg *config.ChunkingConfig) chunker.Options {
	return chunker.Options{
		Strategy:     chunker.Strategy(cfg.Strategy),
		ChunkSize:    cfg.Size,
		Overlap:      cfg.Overlap,
		MinChunkSize: cfg.MinSize,
		MaxChunkSize: cfg.MaxSize,
	}
}
