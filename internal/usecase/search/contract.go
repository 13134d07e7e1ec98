package search

import (
	"context"

	domcat "github.com/datacove/metaseek/internal/domain/catalog"
	domgraph "github.com/datacove/metaseek/internal/domain/graph"
	domsearch "github.com/datacove/metaseek/internal/domain/search"
	"github.com/datacove/metaseek/internal/usecase/vectorsearch"
)

// Classifier decides the routing path for a query.
type Classifier interface {
	Classify(ctx context.Context, query string) domsearch.Classification
}

// VectorSearcher runs hybrid dual-embedding retrieval.
type VectorSearcher interface {
	SearchHybrid(ctx context.Context, query string, topK int, filters map[string]string) ([]vectorsearch.Ranked, error)
}

// Catalog reads metadata entities.
type Catalog interface {
	GetBatch(ctx context.Context, documentIDs []string) ([]domcat.Entity, error)
	SearchKeyword(ctx context.Context, term string, limit int) ([]domcat.Entity, error)
	SearchAttributes(ctx context.Context, filter domcat.AttributeFilter, limit int) ([]domcat.Entity, error)
}

// Graph exposes lineage reads.
type Graph interface {
	FindDependents(ctx context.Context, nodeID string, maxDepth int) ([]domgraph.TraversalHit, error)
	FindDependencies(ctx context.Context, nodeID string, maxDepth int) ([]domgraph.TraversalHit, error)
	TracePiiFlow(ctx context.Context, sourceID string) ([]domgraph.PiiFlowPath, error)
}

// QueryLog appends to the query log for later learning joins.
type QueryLog interface {
	LogQuery(ctx context.Context, queryID, userID, query, path string, resultCount int) error
}

// Reranker refines candidate ordering with a late-interaction model.
// Absence is a valid configuration; the rerank stage is skipped entirely.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domsearch.ResultItem, topN int) ([]domsearch.ResultItem, error)
}
