// Package ingest stores case records together with the embedding of their summary.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/caselens/caselens/internal/domain"
	domdoc "github.com/caselens/caselens/internal/domain/document"
)

// Service handles case ingestion with automatic vectorization.
type Service struct {
	repo  Repository
	embed Embedder
}

// New creates an ingestion service.
func New(repo Repository, embed Embedder) *Service {
	return &Service{repo: repo, embed: embed}
}

// Ingest embeds every summary and stores the documents in order. It stops at
// the first failure; documents stored before it stay stored.
func (s *Service) Ingest(ctx context.Context, docs []domdoc.Document) ([]domdoc.Document, error) {
	if len(docs) == 0 {
		return []domdoc.Document{}, nil
	}

	summaries := make([]string, len(docs))
	for i := range docs {
		summaries[i] = docs[i].Summary()
	}

	res, err := domain.EmbedAll(ctx, s.embed, summaries)
	if err != nil {
		return nil, fmt.Errorf("vectorize summaries: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	dim := s.repo.Dimensions()
	stored := make([]domdoc.Document, 0, len(docs))
	for i := range docs {
		vector := res.Embeddings[i]
		if len(vector) != dim {
			return stored, fmt.Errorf("document [%d]: %w", i, domain.DimensionMismatch(dim, len(vector)))
		}
		doc, err := s.repo.Insert(ctx, docs[i].WithEmbedding(vector))
		if err != nil {
			return stored, fmt.Errorf("insert document [%d]: %w", i, err)
		}
		stored = append(stored, doc)
	}
	return stored, nil
}

// UpdateSummary re-embeds summary and replaces both fields of document id.
func (s *Service) UpdateSummary(ctx context.Context, id int64, summary string) error {
	if id <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", domain.ErrInvalidArgument, id)
	}
	if strings.TrimSpace(summary) == "" {
		return fmt.Errorf("%w: summary is required", domain.ErrInvalidArgument)
	}
	if len(summary) > domdoc.MaxSummarySize {
		return fmt.Errorf("%w: summary too large (max %d bytes)", domain.ErrInvalidArgument, domdoc.MaxSummarySize)
	}

	res, err := s.embed.Embed(ctx, summary)
	if err != nil {
		return fmt.Errorf("vectorize summary: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	if dim := s.repo.Dimensions(); len(res.Embedding) != dim {
		return domain.DimensionMismatch(dim, len(res.Embedding))
	}

	if err := s.repo.UpdateSummary(ctx, id, summary, res.Embedding); err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	return nil
}

// List returns all stored documents without embeddings, ordered by id.
func (s *Service) List(ctx context.Context) ([]domdoc.Document, error) {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}
