// Package retry applies bounded retries to transient embedding and store failures.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/caselens/caselens/internal/domain"
)

// Policy runs op, retrying it while it fails with a transient error.
type Policy interface {
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

// Config bounds an exponential retry policy.
type Config struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	// OnRetry is called before each wait, if set.
	OnRetry func(err error, wait time.Duration)
}

type none struct{}

// None returns a policy that runs op exactly once.
func None() Policy { return none{} }

func (none) Do(ctx context.Context, op func(ctx context.Context) error) error {
	return op(ctx)
}

type exponential struct {
	cfg Config
}

// Exponential returns a policy with exponential backoff. MaxTries <= 1
// degrades to a single attempt.
func Exponential(cfg Config) Policy {
	if cfg.MaxTries <= 1 {
		return none{}
	}
	return &exponential{cfg: cfg}
}

func (p *exponential) Do(ctx context.Context, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	if p.cfg.InitialInterval > 0 {
		b.InitialInterval = p.cfg.InitialInterval
	}
	if p.cfg.MaxInterval > 0 {
		b.MaxInterval = p.cfg.MaxInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.cfg.MaxTries),
	}
	if p.cfg.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.cfg.MaxElapsed))
	}
	if p.cfg.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(p.cfg.OnRetry)))
	}

	var lastErr error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		lastErr = err
		if !domain.IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, opts...)
	if err == nil {
		return nil
	}
	// Cancellation between attempts surfaces the context error; the caller
	// needs the last classified failure when there was one.
	if lastErr != nil && ctx.Err() != nil {
		return lastErr
	}
	return err
}
