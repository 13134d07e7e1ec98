// Package learning holds the interaction log model consumed by the
// continuous learner.
package learning

import "time"

// InteractionType is the kind of user feedback recorded against a query.
type InteractionType string

// Interaction type constants.
const (
	Click      InteractionType = "click"
	Dismiss    InteractionType = "dismiss"
	ThumbsUp   InteractionType = "thumbs_up"
	ThumbsDown InteractionType = "thumbs_down"
)

// IsValid checks if the interaction type is one of the supported values.
func (t InteractionType) IsValid() bool {
	return t == Click || t == Dismiss || t == ThumbsUp || t == ThumbsDown
}

// Interaction is one recorded user action, joined to the query log by
// QueryID.
type Interaction struct {
	ID         int64
	QueryID    string
	UserID     string
	Type       InteractionType
	DocumentID string
	Payload    map[string]string
	ResultRank int
	CreatedAt  time.Time
	Processed  bool
}

// CategorySuggestion proposes a recategorization for a repeatedly-clicked
// document.
type CategorySuggestion struct {
	DocumentID        string
	SuggestedCategory string
	ClickCount        int
	Confidence        float64
}

// UpdateResult summarizes one learning batch: a derived view over the
// interaction log, not an independently persisted entity.
type UpdateResult struct {
	InteractionsProcessed int
	QueriesAnalyzed       int
	DocumentsReranked     int
	Suggestions           []CategorySuggestion
	CompletedAt           time.Time
}

// Analytics is a point-in-time aggregate over a time window of the query
// and interaction logs.
type Analytics struct {
	Since             time.Time
	TotalQueries      int
	TotalInteractions int
	AvgClickRank      float64
	ClickThroughRate  float64
	PathDistribution  map[string]int
	TopSearchTerms    []TermCount
	LastProcessedAt   time.Time
}

// TermCount is one entry of the top-search-terms aggregate.
type TermCount struct {
	Term  string
	Count int
}
