package caselens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/caselens/caselens/internal/db"
	"github.com/caselens/caselens/internal/db/memory"
	"github.com/caselens/caselens/internal/db/postgres"
	"github.com/caselens/caselens/internal/domain"
	domdoc "github.com/caselens/caselens/internal/domain/document"
	"github.com/caselens/caselens/internal/domain/similarity/request"
	"github.com/caselens/caselens/internal/retry"
	openaiEmb "github.com/caselens/caselens/internal/transport/openai"
	embeddinguc "github.com/caselens/caselens/internal/usecase/embedding"
	healthuc "github.com/caselens/caselens/internal/usecase/health"
	ingestuc "github.com/caselens/caselens/internal/usecase/ingest"
	similarityuc "github.com/caselens/caselens/internal/usecase/similarity"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces for substitution in tests.
type similarityUseCase interface {
	FindSimilar(ctx context.Context, query string, k int) ([]domdoc.Match, error)
}

type documentUseCase interface {
	Ingest(ctx context.Context, docs []domdoc.Document) ([]domdoc.Document, error)
	UpdateSummary(ctx context.Context, id int64, summary string) error
	List(ctx context.Context) ([]domdoc.Document, error)
}

type store interface {
	similarityuc.VectorStore
	ingestuc.Repository
	db.Pinger
	Close()
}

// Client is the caselens SDK entry point. It is safe for concurrent use.
type Client struct {
	store     store
	simSvc    similarityUseCase
	docSvc    documentUseCase
	healthSvc healthUseCase
	obs       *observer

	driver string
	dsn    string
	dim    int
}

// New creates a Client and, for Postgres, waits until the database answers.
// The provided context is used for migration and the readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		vectorDimensions: domain.DefaultVectorConfig().Dimensions,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.driver == "" {
		return nil, errors.New("caselens: store required (use WithPostgres or WithMemoryStore)")
	}
	if cfg.embedder == nil && cfg.openai == nil {
		return nil, errors.New("caselens: embedder required (use WithOpenAIEmbedder or WithEmbedder)")
	}
	if cfg.vectorDimensions <= 0 {
		return nil, fmt.Errorf("caselens: dimensions must be positive, got %d", cfg.vectorDimensions)
	}

	if cfg.migrate && cfg.driver == driverPostgres {
		if err := Migrate(ctx, cfg.dsn, cfg.vectorDimensions, cfg.migrateHNSW); err != nil {
			return nil, err
		}
	}

	s, err := createStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := db.WaitForReady(ctx, s, defaultReadinessTimeout); err != nil {
		s.Close()
		return nil, fmt.Errorf("caselens: database not ready: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		s.Close()
		return nil, err
	}
	return wireClient(s, cfg, obs), nil
}

func createStore(ctx context.Context, cfg *clientConfig) (store, error) {
	switch cfg.driver {
	case driverPostgres:
		s, err := postgres.NewStore(ctx, postgres.Config{
			DSN:          cfg.dsn,
			MaxConns:     cfg.maxConns,
			Dimensions:   cfg.vectorDimensions,
			QueryTimeout: cfg.queryTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("caselens: create postgres store: %w", err)
		}
		return s, nil
	case driverMemory:
		return memory.New(cfg.vectorDimensions), nil
	default:
		return nil, fmt.Errorf("caselens: unknown driver %q", cfg.driver)
	}
}

func wireClient(s store, cfg *clientConfig, obs *observer) *Client {
	log := zap.NewNop()

	var emb domain.Embedder
	model := "custom"
	if cfg.openai != nil {
		model = cfg.openai.model
		emb = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.openai.apiKey,
			BaseURL:    cfg.openai.baseURL,
			Model:      cfg.openai.model,
			Dimensions: cfg.vectorDimensions,
			Timeout:    cfg.embedTimeout,
			Logger:     log,
		})
	} else {
		emb = wrapEmbedder(cfg.embedder)
	}

	rc := retry.Config{
		MaxTries:        cfg.retry.MaxTries,
		InitialInterval: cfg.retry.InitialInterval,
		MaxInterval:     cfg.retry.MaxInterval,
	}
	var vs similarityuc.VectorStore = s
	if rc.MaxTries > 1 {
		emb = embeddinguc.NewRetryingEmbedder(emb, rc, model, log)
		vs = similarityuc.NewRetryingStore(s, retry.Exponential(rc))
	}

	simSvc := similarityuc.New(emb, vs, similarityuc.Options{
		Limits: request.Limits{
			DefaultK: cfg.defaultK,
			MaxK:     cfg.maxK,
			Policy:   request.KPolicy(cfg.kPolicy),
		},
		EmbedTimeout: cfg.embedTimeout,
		QueryTimeout: cfg.queryTimeout,
	})

	var checker healthuc.EmbeddingChecker
	if hc, ok := emb.(domain.HealthChecker); ok {
		checker = hc
	}

	return &Client{
		store:     s,
		simSvc:    simSvc,
		docSvc:    ingestuc.New(s, emb),
		healthSvc: healthuc.New(s, checker),
		obs:       obs,
		driver:    cfg.driver,
		dsn:       cfg.dsn,
		dim:       cfg.vectorDimensions,
	}
}

// Migrate creates the pgvector extension and the documents table at dsn.
// It is idempotent.
func Migrate(ctx context.Context, dsn string, dimensions int, hnsw bool) error {
	if err := postgres.Migrate(ctx, dsn, postgres.MigrateOptions{Dimensions: dimensions, HNSW: hnsw}); err != nil {
		return fmt.Errorf("caselens: migrate: %w", err)
	}
	return nil
}

// Migrate applies the schema to the client's database. It is a no-op for
// the memory store.
func (c *Client) Migrate(ctx context.Context, hnsw bool) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("migrate", start, err) }()

	if c.driver != driverPostgres {
		return nil
	}
	return Migrate(ctx, c.dsn, c.dim, hnsw)
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// FindSimilar returns up to k stored cases nearest to query, most similar
// first, ties broken by ascending ID. k == 0 selects the default.
// Failures after validation match ErrLookupFailed.
func (c *Client) FindSimilar(ctx context.Context, query string, k int) ([]Match, error) {
	start := time.Now()
	matches, err := c.simSvc.FindSimilar(ctx, query, k)
	c.obs.observeFind(start, k, len(matches), err)
	if err != nil {
		return nil, err
	}
	return fromDomainMatches(matches), nil
}

// Ingest embeds each summary and stores the documents in order, returning
// them with assigned IDs. On failure the documents stored so far are returned
// with the error.
func (c *Client) Ingest(ctx context.Context, docs []Document) (_ []Document, err error) {
	start := time.Now()
	defer func() { c.obs.observe("ingest", start, err) }()

	domDocs, err := toDomainDocuments(docs)
	if err != nil {
		return nil, err
	}
	stored, err := c.docSvc.Ingest(ctx, domDocs)
	return fromDomainDocuments(stored), err
}

// UpdateSummary replaces a document's summary and re-embeds it.
func (c *Client) UpdateSummary(ctx context.Context, id int64, summary string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("update_summary", start, err) }()

	return c.docSvc.UpdateSummary(ctx, id, summary)
}

// List returns every stored document ordered by ID.
func (c *Client) List(ctx context.Context) (_ []Document, err error) {
	start := time.Now()
	defer func() { c.obs.observe("list", start, err) }()

	docs, err := c.docSvc.List(ctx)
	if err != nil {
		return nil, err
	}
	return fromDomainDocuments(docs), nil
}
