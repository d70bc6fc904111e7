// Package similarity finds stored cases closest to a free-text summary.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/caselens/caselens/internal/domain"
	domdoc "github.com/caselens/caselens/internal/domain/document"
	"github.com/caselens/caselens/internal/domain/similarity/request"
	"github.com/caselens/caselens/internal/metrics"
)

var tracer = otel.Tracer("github.com/caselens/caselens/internal/usecase/similarity")

// Default per-stage timeouts.
const (
	DefaultEmbedTimeout = 5 * time.Second
	DefaultQueryTimeout = 2 * time.Second
)

// Options configures a Service. Zero values select defaults.
type Options struct {
	Limits       request.Limits
	EmbedTimeout time.Duration
	QueryTimeout time.Duration
}

// Service orchestrates validate, embed and query. It holds no mutable state
// and is safe for concurrent use.
type Service struct {
	embed        Embedder
	store        VectorStore
	limits       request.Limits
	embedTimeout time.Duration
	queryTimeout time.Duration
}

// New creates a similarity service.
func New(embed Embedder, store VectorStore, opts Options) *Service {
	defaults := domain.DefaultVectorConfig()
	lim := opts.Limits
	if lim.DefaultK <= 0 {
		lim.DefaultK = defaults.DefaultK
	}
	if lim.MaxK <= 0 {
		lim.MaxK = defaults.MaxK
	}
	if !lim.Policy.IsValid() {
		lim.Policy = request.KClamp
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultEmbedTimeout
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	return &Service{
		embed:        embed,
		store:        store,
		limits:       lim,
		embedTimeout: opts.EmbedTimeout,
		queryTimeout: opts.QueryTimeout,
	}
}

// Limits returns the effective k limits.
func (s *Service) Limits() request.Limits { return s.limits }

// FindSimilar returns up to k stored cases nearest to query, most similar
// first. k == 0 selects the default. Validation failures are returned as is;
// failures after validation are *domain.LookupError.
func (s *Service) FindSimilar(ctx context.Context, query string, k int) ([]domdoc.Match, error) {
	ctx, span := tracer.Start(ctx, "similarity.find")
	defer span.End()

	start := time.Now()
	matches, err := s.find(ctx, query, k)
	metrics.LookupDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
	metrics.LookupsTotal.WithLabelValues(Outcome(err)).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Outcome(err))
		return nil, err
	}

	metrics.LookupResults.Observe(float64(len(matches)))
	span.SetAttributes(attribute.Int("similarity.results", len(matches)))
	return matches, nil
}

func (s *Service) find(ctx context.Context, query string, k int) ([]domdoc.Match, error) {
	req, err := request.New(query, k, s.limits)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("similarity.k", req.K()))

	vector, err := s.embedQuery(ctx, req.Query())
	if err != nil {
		return nil, domain.NewLookupError(domain.StageEmbed, classify(err, domain.ErrProviderUnavailable))
	}

	if dim := s.store.Dimensions(); len(vector) != dim {
		return nil, domain.NewLookupError(domain.StageEmbed, domain.DimensionMismatch(dim, len(vector)))
	}

	if err := ctx.Err(); err != nil {
		return nil, domain.NewLookupError(domain.StageQuery, fmt.Errorf("canceled before query: %w", err))
	}

	matches, err := s.queryStore(ctx, vector, req.K())
	if err != nil {
		return nil, domain.NewLookupError(domain.StageQuery, classify(err, domain.ErrStoreUnavailable))
	}
	return matches, nil
}

func (s *Service) embedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "embedding.embed")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.embed.Embed(ctx, text)
	metrics.LookupDuration.WithLabelValues(domain.StageEmbed).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		return nil, fmt.Errorf("embed query: %w", err)
	}

	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)
	span.SetAttributes(attribute.Int("embedding.dimensions", len(res.Embedding)))
	return res.Embedding, nil
}

func (s *Service) queryStore(ctx context.Context, vector []float32, k int) ([]domdoc.Match, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.query")
	defer span.End()
	span.SetAttributes(attribute.Int("vectorstore.k", k))

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	matches, err := s.store.Query(ctx, vector, k)
	metrics.LookupDuration.WithLabelValues(domain.StageQuery).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("query store: %w", err)
	}
	if matches == nil {
		matches = []domdoc.Match{}
	}
	return matches, nil
}

// classify keeps typed errors and caller cancellation, and tags anything
// else with fallback.
func classify(err, fallback error) error {
	if domain.IsClassified(err) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", fallback, err)
}

// Outcome maps a FindSimilar result to a short label for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, domain.ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, domain.ErrLookupFailed):
		return "lookup_failed"
	default:
		return "error"
	}
}
