package learning

import (
	"context"
	"time"

	domlearn "github.com/datacove/metaseek/internal/domain/learning"
)

// Log is the interaction log repository consumed by the learner.
type Log interface {
	Insert(ctx context.Context, in domlearn.Interaction) error
	PendingCount(ctx context.Context) (int, error)
	ListUnprocessed(ctx context.Context) ([]domlearn.Interaction, error)
	MarkProcessed(ctx context.Context, ids []int64) error
	Analytics(ctx context.Context, since time.Time) (domlearn.Analytics, error)
}
