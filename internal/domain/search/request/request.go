package request

import (
	"fmt"
	"strings"

	"github.com/datacove/metaseek/internal/domain/search/path"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength    = 2048
	DefaultMaxResults = 10
	MaxMaxResults     = 100
)

// Filters narrows results after retrieval. Empty sets match everything.
type Filters struct {
	Databases     []string
	ObjectTypes   []string
	Categories    []string
	MinConfidence float64
}

// Request is a validated search request.
type Request struct {
	query          string
	userID         string
	forcedPath     path.Path
	maxResults     int
	filters        Filters
	includePIIFlow bool
	enableRerank   bool
}

// New validates and normalizes search parameters.
// forcedPath may be empty, which leaves routing to the classifier.
// Defaults: maxResults=10, clamped to 100.
func New(
	query, userID string,
	forcedPath path.Path,
	maxResults int,
	filters Filters,
	includePIIFlow, enableRerank bool,
) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, fmt.Errorf("query is required")
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars)", MaxQueryLength)
	}
	if forcedPath != "" && !forcedPath.IsValid() {
		return Request{}, fmt.Errorf("invalid routing path: %q", forcedPath)
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if maxResults > MaxMaxResults {
		maxResults = MaxMaxResults
	}
	if filters.MinConfidence < 0 || filters.MinConfidence > 1 {
		return Request{}, fmt.Errorf("min_confidence must be between 0 and 1")
	}
	return Request{
		query:          query,
		userID:         userID,
		forcedPath:     forcedPath,
		maxResults:     maxResults,
		filters:        filters,
		includePIIFlow: includePIIFlow,
		enableRerank:   enableRerank,
	}, nil
}

// Query returns the trimmed query text.
func (r Request) Query() string { return r.query }

// UserID returns the requesting user.
func (r Request) UserID() string { return r.userID }

// ForcedPath returns the caller-forced routing path, or "" when routing is
// left to the classifier.
func (r Request) ForcedPath() path.Path { return r.forcedPath }

// MaxResults returns the result cap applied after filtering.
func (r Request) MaxResults() int { return r.maxResults }

// Filters returns the post-retrieval filter sets.
func (r Request) Filters() Filters { return r.filters }

// IncludePIIFlows reports whether relationship results should union in
// PII-flow data.
func (r Request) IncludePIIFlows() bool { return r.includePIIFlow }

// EnableRerank reports whether the optional reranker should run.
func (r Request) EnableRerank() bool { return r.enableRerank }
