// Package learning turns logged user interactions into batch learning
// updates, analytics and recategorization suggestions.
package learning

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/datacove/metaseek/internal/domain"
	domlearn "github.com/datacove/metaseek/internal/domain/learning"
	"github.com/datacove/metaseek/internal/metrics"
)

// updateTimeout bounds a background update triggered by a threshold
// crossing, which has no request context to inherit a deadline from.
const updateTimeout = 30 * time.Second

// Learner records interactions and runs threshold-triggered batch updates.
type Learner struct {
	log            Log
	batchThreshold int
	minClickCount  int

	// updating is a single-flight guard: two requests crossing the
	// threshold at the same time must not launch overlapping updates.
	updating atomic.Bool

	logger *zap.Logger
}

// New creates a learner.
func New(log Log, batchThreshold, minClickCount int, logger *zap.Logger) *Learner {
	return &Learner{
		log:            log,
		batchThreshold: batchThreshold,
		minClickCount:  minClickCount,
		logger:         logger,
	}
}

// RecordInteraction persists an interaction immediately. When the pending
// count crosses the batch threshold an update is launched in the
// background; the caller never waits for it.
func (l *Learner) RecordInteraction(ctx context.Context, in domlearn.Interaction) error {
	if !in.Type.IsValid() {
		return fmt.Errorf("interaction type %q: %w", in.Type, domain.ErrInvalidRequest)
	}
	if in.QueryID == "" {
		return fmt.Errorf("interaction missing query id: %w", domain.ErrInvalidRequest)
	}
	if err := l.log.Insert(ctx, in); err != nil {
		return err
	}
	metrics.LearningInteractionsTotal.WithLabelValues(string(in.Type)).Inc()

	pending, err := l.log.PendingCount(ctx)
	if err != nil {
		// The interaction is already persisted; a failed count check
		// only delays the next update trigger.
		l.logger.Warn("pending interaction count failed", zap.Error(err))
		return nil
	}
	if pending >= l.batchThreshold {
		l.triggerAsync()
	}
	return nil
}

// triggerAsync launches one background update unless one is already
// running.
func (l *Learner) triggerAsync() {
	if !l.updating.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer l.updating.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
		defer cancel()
		if _, err := l.runUpdate(ctx, "threshold"); err != nil {
			l.logger.Error("background learning update failed", zap.Error(err))
		}
	}()
}

// TriggerLearningUpdate runs an update synchronously. Used by the manual
// admin endpoint; it shares the single-flight guard with background runs.
func (l *Learner) TriggerLearningUpdate(ctx context.Context) (domlearn.UpdateResult, error) {
	if !l.updating.CompareAndSwap(false, true) {
		return domlearn.UpdateResult{}, domain.ErrUpdateInProgress
	}
	defer l.updating.Store(false)
	return l.runUpdate(ctx, "manual")
}

// runUpdate processes all unprocessed interactions in one batch: group
// clicks by document, count distinct queries, mark everything processed.
func (l *Learner) runUpdate(ctx context.Context, trigger string) (domlearn.UpdateResult, error) {
	pending, err := l.log.ListUnprocessed(ctx)
	if err != nil {
		metrics.LearningUpdatesTotal.WithLabelValues(trigger, "error").Inc()
		return domlearn.UpdateResult{}, err
	}
	if len(pending) == 0 {
		metrics.LearningUpdatesTotal.WithLabelValues(trigger, "empty").Inc()
		return domlearn.UpdateResult{CompletedAt: time.Now().UTC()}, nil
	}

	queries := make(map[string]struct{}, len(pending))
	clicksByDoc := make(map[string]int)
	ids := make([]int64, 0, len(pending))
	for _, in := range pending {
		ids = append(ids, in.ID)
		queries[in.QueryID] = struct{}{}
		if in.Type == domlearn.Click && in.DocumentID != "" {
			clicksByDoc[in.DocumentID]++
		}
	}
	suggestions := l.suggestFromClicks(clicksByDoc, 0, 0)

	if err := l.log.MarkProcessed(ctx, ids); err != nil {
		metrics.LearningUpdatesTotal.WithLabelValues(trigger, "error").Inc()
		return domlearn.UpdateResult{}, err
	}
	metrics.LearningUpdatesTotal.WithLabelValues(trigger, "ok").Inc()

	result := domlearn.UpdateResult{
		InteractionsProcessed: len(pending),
		QueriesAnalyzed:       len(queries),
		DocumentsReranked:     len(clicksByDoc),
		Suggestions:           suggestions,
		CompletedAt:           time.Now().UTC(),
	}
	l.logger.Info("learning update complete",
		zap.String("trigger", trigger),
		zap.Int("interactions", result.InteractionsProcessed),
		zap.Int("queries", result.QueriesAnalyzed),
		zap.Int("suggestions", len(result.Suggestions)))
	return result, nil
}

// GenerateCategorySuggestions proposes recategorizations for documents
// clicked repeatedly across the still-unprocessed interaction window.
func (l *Learner) GenerateCategorySuggestions(ctx context.Context, max int, minConfidence float64) ([]domlearn.CategorySuggestion, error) {
	pending, err := l.log.ListUnprocessed(ctx)
	if err != nil {
		return nil, err
	}
	clicksByDoc := make(map[string]int)
	for _, in := range pending {
		if in.Type == domlearn.Click && in.DocumentID != "" {
			clicksByDoc[in.DocumentID]++
		}
	}
	suggestions := l.suggestFromClicks(clicksByDoc, max, minConfidence)
	return suggestions, nil
}

// suggestFromClicks scores each repeatedly-clicked document. Confidence
// grows with click count and saturates at 0.95.
func (l *Learner) suggestFromClicks(clicksByDoc map[string]int, max int, minConfidence float64) []domlearn.CategorySuggestion {
	var out []domlearn.CategorySuggestion
	for doc, clicks := range clicksByDoc {
		if clicks < l.minClickCount {
			continue
		}
		confidence := float64(clicks) / float64(clicks+2)
		if confidence > 0.95 {
			confidence = 0.95
		}
		if confidence < minConfidence {
			continue
		}
		out = append(out, domlearn.CategorySuggestion{
			DocumentID:        doc,
			SuggestedCategory: "frequently-accessed",
			ClickCount:        clicks,
			Confidence:        confidence,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClickCount != out[j].ClickCount {
			return out[i].ClickCount > out[j].ClickCount
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// GetAnalytics returns point-in-time aggregates over the given window.
func (l *Learner) GetAnalytics(ctx context.Context, since time.Time) (domlearn.Analytics, error) {
	return l.log.Analytics(ctx, since)
}

// GetPendingInteractionCount returns how many interactions await the next
// batch update.
func (l *Learner) GetPendingInteractionCount(ctx context.Context) (int, error) {
	return l.log.PendingCount(ctx)
}
