package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/caselens/caselens/internal/config"
	"github.com/caselens/caselens/internal/db"
	"github.com/caselens/caselens/internal/db/memory"
	"github.com/caselens/caselens/internal/db/postgres"
	dbRedis "github.com/caselens/caselens/internal/db/redis"
	"github.com/caselens/caselens/internal/domain"
	"github.com/caselens/caselens/internal/domain/similarity/request"
	logpkg "github.com/caselens/caselens/internal/logger"
	"github.com/caselens/caselens/internal/metrics"
	"github.com/caselens/caselens/internal/repository/embcache"
	"github.com/caselens/caselens/internal/retry"
	"github.com/caselens/caselens/internal/tracing"
	chiTransport "github.com/caselens/caselens/internal/transport/chi"
	openaiEmb "github.com/caselens/caselens/internal/transport/openai"
	embeddinguc "github.com/caselens/caselens/internal/usecase/embedding"
	healthuc "github.com/caselens/caselens/internal/usecase/health"
	ingestuc "github.com/caselens/caselens/internal/usecase/ingest"
	similarityuc "github.com/caselens/caselens/internal/usecase/similarity"
	"github.com/caselens/caselens/internal/version"
)

// vectorStore is what the server needs from a storage backend.
type vectorStore interface {
	similarityuc.VectorStore
	ingestuc.Repository
	db.Pinger
	Close()
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting caselens API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	ctx := context.Background()

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    "caselens",
		ServiceVersion: version.Version,
		Environment:    env,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		logger.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// Create vector store based on driver
	store, err := openStore(ctx, cfg.Database, cfg.Embedding.Dimensions)
	if err != nil {
		logger.Fatal("Failed to create vector store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	if err := db.WaitForReady(ctx, store, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to vector store")

	// Register embedding and lookup metrics explicitly (no init())
	metrics.Register()

	var cache *dbRedis.Store
	if cfg.Cache.Enabled() {
		cache, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create embedding cache", zap.Error(err))
		}
		defer cache.Close()
	}

	docEmbedder := buildEmbedder(cfg.Embedding, cfg.Cache, cache, logger)
	logger.Info("Embedder created",
		zap.String("base_url", cfg.Embedding.BaseURL),
		zap.Bool("cache", cache != nil),
		zap.Bool("query_instruction", cfg.Embedding.QueryInstruction != ""),
		zap.Uint("max_tries", cfg.Embedding.Retry.MaxTries),
	)

	// Store queries share the embedding retry budget.
	storeRetry := retry.Exponential(retryConfig(cfg.Embedding.Retry))

	similaritySvc := similarityuc.New(
		queryEmbedder(docEmbedder, cfg.Embedding.QueryInstruction),
		similarityuc.NewRetryingStore(store, storeRetry),
		similarityuc.Options{
			Limits: request.Limits{
				DefaultK: cfg.Similarity.DefaultK,
				MaxK:     cfg.Similarity.MaxK,
				Policy:   request.KPolicy(cfg.Similarity.KPolicy),
			},
			EmbedTimeout: cfg.Embedding.Timeout(),
			QueryTimeout: cfg.Database.QueryTimeout(),
		},
	)
	ingestSvc := ingestuc.New(store, docEmbedder)

	healthSvc := healthuc.New(store, docEmbedder)
	if cache != nil {
		healthSvc = healthSvc.WithCache(cache)
	}

	server := chiTransport.NewServer(similaritySvc, ingestSvc, healthSvc, logger)
	r := chiTransport.NewRouter(server, chiTransport.RouterOptions{
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Logger:      logger,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, dim int) (vectorStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.NewStore(ctx, postgres.Config{
			DSN:          cfg.DSN,
			MaxConns:     cfg.MaxConns,
			Dimensions:   dim,
			QueryTimeout: cfg.QueryTimeout(),
		})
	case config.DriverMemory:
		return memory.New(dim), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func retryConfig(rc config.RetryConfig) retry.Config {
	return retry.Config{
		MaxTries:        rc.MaxTries,
		InitialInterval: time.Duration(rc.InitialIntervalMs) * time.Millisecond,
		MaxInterval:     time.Duration(rc.MaxIntervalMs) * time.Millisecond,
	}
}

// fullEmbedder is the decorator chain's outer contract.
type fullEmbedder interface {
	domain.BatchEmbedder
	domain.Embedder
	domain.HealthChecker
}

// buildEmbedder assembles the document embedding chain:
// OpenAI -> Retrying -> Cached (optional) -> Instrumented.
func buildEmbedder(
	embCfg config.EmbeddingConfig,
	cacheCfg config.CacheConfig,
	cache *dbRedis.Store,
	logger *zap.Logger,
) fullEmbedder {
	// Base provider (with transport metrics built-in)
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     embCfg.APIKey,
		BaseURL:    embCfg.BaseURL,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		Timeout:    embCfg.Timeout(),
		Logger:     logger,
	})

	var embedder fullEmbedder = embeddinguc.NewRetryingEmbedder(base, retryConfig(embCfg.Retry), embCfg.Model, logger)

	if cache != nil {
		embedder = embcache.New(embedder, cache, embcache.Options{
			Model:      embCfg.Model,
			TTL:        time.Duration(cacheCfg.TTLSec) * time.Second,
			Dimensions: embCfg.Dimensions,
		}, metrics.EmbeddingCacheTotal, logger)
	}

	return embeddinguc.NewInstrumentedEmbedder(embedder, "openai", embCfg.Model, logger)
}

// queryEmbedder applies the query instruction on top of the document
// embedder. Only lookups use it; stored summaries are embedded without it.
func queryEmbedder(docs fullEmbedder, instruction string) fullEmbedder {
	if instruction == "" {
		return docs
	}
	return domain.NewInstructionEmbedder(docs, instruction)
}
