package similarity

import (
	"context"

	domdoc "github.com/caselens/caselens/internal/domain/document"
	"github.com/caselens/caselens/internal/retry"
)

// RetryingStore re-runs transient store failures under a retry policy.
// Argument and dimension errors are never retried.
type RetryingStore struct {
	inner  VectorStore
	policy retry.Policy
}

// NewRetryingStore wraps inner with policy.
func NewRetryingStore(inner VectorStore, policy retry.Policy) *RetryingStore {
	return &RetryingStore{inner: inner, policy: policy}
}

// Dimensions forwards to the inner store.
func (r *RetryingStore) Dimensions() int { return r.inner.Dimensions() }

// Query runs the inner Query under the retry policy.
func (r *RetryingStore) Query(ctx context.Context, vector []float32, k int) ([]domdoc.Match, error) {
	var matches []domdoc.Match
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		matches, err = r.inner.Query(ctx, vector, k)
		return err
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // transparent decorator
	}
	return matches, nil
}
