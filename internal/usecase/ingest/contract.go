package ingest

import (
	"context"

	"github.com/caselens/caselens/internal/domain"
	domdoc "github.com/caselens/caselens/internal/domain/document"
)

// Repository defines the storage contract for case records.
type Repository interface {
	Dimensions() int
	Insert(ctx context.Context, doc domdoc.Document) (domdoc.Document, error)
	UpdateSummary(ctx context.Context, id int64, summary string, embedding []float32) error
	List(ctx context.Context) ([]domdoc.Document, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
