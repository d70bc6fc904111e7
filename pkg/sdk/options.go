package caselens

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

const (
	driverPostgres = "postgres"
	driverMemory   = "memory"
)

type clientConfig struct {
	driver   string // "postgres" or "memory"
	dsn      string
	maxConns int32

	migrate     bool
	migrateHNSW bool

	embedder Embedder
	openai   *openAIConfig

	vectorDimensions int
	defaultK         int
	maxK             int
	kPolicy          KPolicy
	embedTimeout     time.Duration
	queryTimeout     time.Duration
	retry            RetryConfig

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

type openAIConfig struct {
	baseURL string
	apiKey  string
	model   string
}

// RetryConfig bounds retries of transient provider and store failures.
// MaxTries of 0 or 1 disables retries (default).
type RetryConfig struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// WithPostgres stores documents in PostgreSQL with the pgvector extension.
func WithPostgres(dsn string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverPostgres
		c.dsn = dsn
	})
}

// WithMaxConns caps the Postgres connection pool.
func WithMaxConns(n int32) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxConns = n
	})
}

// WithAutoMigrate creates the schema before connecting. hnsw adds an
// approximate index; without it every lookup is an exact scan.
func WithAutoMigrate(hnsw bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.migrate = true
		c.migrateHNSW = hnsw
	})
}

// WithMemoryStore keeps documents in process memory.
func WithMemoryStore() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverMemory
	})
}

// WithOpenAIEmbedder uses an OpenAI-compatible embeddings endpoint.
func WithOpenAIEmbedder(baseURL, apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openai = &openAIConfig{baseURL: baseURL, apiKey: apiKey, model: model}
		c.embedder = nil
	})
}

// WithEmbedder sets a custom text embedding provider.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
		c.openai = nil
	})
}

// WithDimensions sets the vector dimensionality. Defaults to 512.
func WithDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorDimensions = dim
	})
}

// WithDefaultK sets the result count used when FindSimilar gets k == 0. Default: 5.
func WithDefaultK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultK = k
	})
}

// WithMaxK caps the result count. Default: 50.
func WithMaxK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxK = k
	})
}

// WithKPolicy selects clamping (default) or rejection of k above the maximum.
func WithKPolicy(p KPolicy) Option {
	return optionFunc(func(c *clientConfig) {
		c.kPolicy = p
	})
}

// WithTimeouts overrides the embed and query deadlines (defaults 5s and 2s).
func WithTimeouts(embed, query time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedTimeout = embed
		c.queryTimeout = query
	})
}

// WithRetry retries transient embedding and store failures with exponential backoff.
func WithRetry(rc RetryConfig) Option {
	return optionFunc(func(c *clientConfig) {
		c.retry = rc
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
