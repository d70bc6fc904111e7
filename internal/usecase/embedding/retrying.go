package embedding

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/caselens/caselens/internal/domain"
	"github.com/caselens/caselens/internal/metrics"
	"github.com/caselens/caselens/internal/retry"
)

// RetryingEmbedder re-runs transient provider failures under a retry policy.
// Rejected input is never retried.
type RetryingEmbedder struct {
	inner  domain.Embedder
	policy retry.Policy
	model  string
	logger *zap.Logger
}

// NewRetryingEmbedder builds an exponential policy from cfg. Retries are
// counted in metrics and logged at warn level.
func NewRetryingEmbedder(inner domain.Embedder, cfg retry.Config, model string, logger *zap.Logger) *RetryingEmbedder {
	r := &RetryingEmbedder{inner: inner, model: model, logger: logger}
	cfg.OnRetry = r.onRetry
	r.policy = retry.Exponential(cfg)
	return r
}

// Embed runs the inner Embed under the retry policy.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	var res domain.EmbeddingResult
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = r.inner.Embed(ctx, text)
		return err
	})
	if err != nil {
		return domain.EmbeddingResult{}, err //nolint:wrapcheck // transparent decorator
	}
	return res, nil
}

// BatchEmbed runs the whole batch under the retry policy.
func (r *RetryingEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	var res domain.BatchEmbeddingResult
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = domain.EmbedAll(ctx, r.inner, texts)
		return err
	})
	if err != nil {
		return domain.BatchEmbeddingResult{}, err //nolint:wrapcheck // transparent decorator
	}
	return res, nil
}

// HealthCheck forwards to the inner embedder without retrying.
func (r *RetryingEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := r.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func (r *RetryingEmbedder) onRetry(err error, wait time.Duration) {
	metrics.EmbeddingRetriesTotal.WithLabelValues(r.model).Inc()
	r.logger.Warn("Retrying embedding request",
		zap.String("model", r.model),
		zap.Duration("wait", wait),
		zap.Error(err),
	)
}
