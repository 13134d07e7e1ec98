package vectorsearch

import (
	"context"

	"github.com/datacove/metaseek/internal/domain"
	"github.com/datacove/metaseek/internal/transport/qdrant"
)

// Index is the vector index contract consumed by this service.
type Index interface {
	Search(
		ctx context.Context, collection string,
		vector []float32, topK int, filters map[string]string,
	) ([]qdrant.ScoredPoint, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
