package similarity

import (
	"context"

	"github.com/caselens/caselens/internal/domain"
	domdoc "github.com/caselens/caselens/internal/domain/document"
)

// VectorStore answers nearest-neighbour queries over stored case embeddings.
// Implementations validate arguments before any I/O and return matches
// ordered by distance, then id.
type VectorStore interface {
	Dimensions() int
	Query(ctx context.Context, vector []float32, k int) ([]domdoc.Match, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
