// Package search holds the request/response model of the retrieval engine.
package search

import (
	"time"

	"github.com/datacove/metaseek/internal/domain/search/path"
)

// Complexity is the query complexity tier, derived from token count.
type Complexity string

// Complexity tiers.
const (
	Simple  Complexity = "simple"
	Medium  Complexity = "medium"
	Complex Complexity = "complex"
)

// Classification is the routing decision for one query. Immutable once
// produced for a request.
type Classification struct {
	Path       path.Path
	Complexity Complexity
	Confidence float64
	Reasoning  string
}

// RelevanceScore carries the per-stage score components of a result.
// Fused is the ordering key everywhere.
type RelevanceScore struct {
	Semantic        float64
	LateInteraction float64
	Fused           float64
}

// LineageInfo is attached to results found via graph traversal.
type LineageInfo struct {
	Depth    int
	ParentID string
}

// PIIInfo is attached to results carrying personally identifiable data.
type PIIInfo struct {
	PIIType   string
	FlowPaths [][]string
}

// ResultItem is a single ranked search hit.
type ResultItem struct {
	DocumentID      string
	ObjectType      string
	Name            string
	Schema          string
	Database        string
	BusinessPurpose string
	Category        string
	Classification  string
	Score           RelevanceScore
	MatchedTerms    []string
	Lineage         *LineageInfo
	PII             *PIIInfo
}

// StageTimings records per-stage wall-clock durations for response metadata.
type StageTimings struct {
	Classify time.Duration
	Retrieve time.Duration
	Rerank   time.Duration
	Filter   time.Duration
	Total    time.Duration
}

// Metadata is the diagnostic block of a response.
type Metadata struct {
	CandidateCount int
	FilteredCount  int
	Reasoning      string
	Timings        StageTimings
}

// Response is the ordered, filtered answer to one search request.
// QueryID is the correlation key joining the query log with later
// interaction data.
type Response struct {
	QueryID     string
	Query       string
	Path        path.Path
	Results     []ResultItem
	FollowUps   []string
	Meta        Metadata
	GeneratedAt time.Time
}
