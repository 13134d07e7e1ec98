package embedding

import (
	"context"

	"github.com/datacove/metaseek/internal/domain"
	domcat "github.com/datacove/metaseek/internal/domain/catalog"
	"github.com/datacove/metaseek/internal/transport/qdrant"
)

// Cache is the persistent dual-embedding cache consumed by the generator.
type Cache interface {
	Get(ctx context.Context, documentID string) (domain.DualEmbeddingResult, error)
	Upsert(ctx context.Context, res domain.DualEmbeddingResult) error
	MarkStale(ctx context.Context, documentID string) error
	ListStale(ctx context.Context, limit int) ([]string, error)
}

// Catalog fetches entity attributes for regeneration.
type Catalog interface {
	GetBatch(ctx context.Context, documentIDs []string) ([]domcat.Entity, error)
}

// Index receives the generated vectors.
type Index interface {
	UpsertPoint(ctx context.Context, collection string, point qdrant.Point) error
}

// Embedder vectorizes text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
