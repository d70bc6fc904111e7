// Package memory is an exact nearest-neighbour vector store held in process memory.
// It backs the "memory" database driver and serves as the reference store in tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/caselens/caselens/internal/domain"
	domdoc "github.com/caselens/caselens/internal/domain/document"
	"github.com/caselens/caselens/internal/metrics"
)

const backend = "memory"

// Store keeps documents in insertion order; IDs are assigned sequentially from 1.
type Store struct {
	mu     sync.RWMutex
	dim    int
	nextID int64
	docs   []domdoc.Document
}

// New creates an empty store for vectors of length dim.
func New(dim int) *Store {
	return &Store{dim: dim, nextID: 1}
}

// Dimensions returns the fixed vector length.
func (s *Store) Dimensions() int { return s.dim }

// Query returns up to k documents ordered by Euclidean distance, ties by ID.
func (s *Store) Query(_ context.Context, vector []float32, k int) ([]domdoc.Match, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidArgument, k)
	}
	if len(vector) != s.dim {
		return nil, domain.DimensionMismatch(s.dim, len(vector))
	}

	start := time.Now()

	s.mu.RLock()
	matches := make([]domdoc.Match, 0, len(s.docs))
	for i := range s.docs {
		if !s.docs[i].HasEmbedding() {
			continue
		}
		matches = append(matches, domdoc.Match{
			Document: s.docs[i].WithEmbedding(nil),
			Distance: l2(vector, s.docs[i].Embedding()),
		})
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matches, func(a, b domdoc.Match) int {
		switch {
		case domdoc.Less(&a, &b):
			return -1
		case domdoc.Less(&b, &a):
			return 1
		}
		return 0
	})
	if len(matches) > k {
		matches = matches[:k]
	}

	metrics.VectorQueryDuration.WithLabelValues(backend, "ok").Observe(time.Since(start).Seconds())
	return matches, nil
}

// Insert stores a copy of doc with a new ID. The embedding must match the store dimensionality.
func (s *Store) Insert(_ context.Context, doc domdoc.Document) (domdoc.Document, error) {
	if n := len(doc.Embedding()); n != s.dim {
		return domdoc.Document{}, domain.DimensionMismatch(s.dim, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := doc.WithID(s.nextID)
	s.nextID++
	s.docs = append(s.docs, stored.WithEmbedding(slices.Clone(stored.Embedding())))
	return stored, nil
}

// UpdateSummary replaces the summary and embedding of an existing document together.
func (s *Store) UpdateSummary(_ context.Context, id int64, summary string, embedding []float32) error {
	if len(embedding) != s.dim {
		return domain.DimensionMismatch(s.dim, len(embedding))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.docs {
		if s.docs[i].ID() == id {
			updated := s.docs[i].WithSummary(summary)
			s.docs[i] = updated.WithEmbedding(slices.Clone(embedding))
			return nil
		}
	}
	return fmt.Errorf("%w: id %d", domain.ErrDocumentNotFound, id)
}

// List returns all documents ordered by ID, without embeddings.
func (s *Store) List(_ context.Context) ([]domdoc.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domdoc.Document, len(s.docs))
	for i := range s.docs {
		out[i] = s.docs[i].WithEmbedding(nil)
	}
	return out, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
