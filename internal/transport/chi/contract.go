package chi

import (
	"context"
	"time"

	domgraph "github.com/datacove/metaseek/internal/domain/graph"
	domlearn "github.com/datacove/metaseek/internal/domain/learning"
	domsearch "github.com/datacove/metaseek/internal/domain/search"
	"github.com/datacove/metaseek/internal/domain/search/request"
)

// SearchService runs the retrieval pipeline.
type SearchService interface {
	Search(ctx context.Context, req request.Request) (domsearch.Response, error)
}

// LearningService records interactions and serves learning operations.
type LearningService interface {
	RecordInteraction(ctx context.Context, in domlearn.Interaction) error
	TriggerLearningUpdate(ctx context.Context) (domlearn.UpdateResult, error)
	GenerateCategorySuggestions(ctx context.Context, max int, minConfidence float64) ([]domlearn.CategorySuggestion, error)
	GetAnalytics(ctx context.Context, since time.Time) (domlearn.Analytics, error)
	GetPendingInteractionCount(ctx context.Context) (int, error)
}

// GraphService exposes lineage admin and PII reads.
type GraphService interface {
	Rebuild(ctx context.Context) error
	NodeCount() int
	GetAllPiiFlows(ctx context.Context) ([]domgraph.PiiFlowPath, error)
	TracePiiFlow(ctx context.Context, sourceID string) ([]domgraph.PiiFlowPath, error)
}

// EmbeddingService maintains the dual-embedding cache.
type EmbeddingService interface {
	MarkStale(ctx context.Context, documentID string) error
	RefreshStale(ctx context.Context, batchSize int) (int, error)
}

// HealthChecker verifies a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
