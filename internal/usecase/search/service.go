// Package search orchestrates a retrieval request end to end: classify,
// dispatch to a path strategy, rerank, filter, truncate, suggest and log.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domsearch "github.com/datacove/metaseek/internal/domain/search"
	"github.com/datacove/metaseek/internal/domain/search/path"
	"github.com/datacove/metaseek/internal/domain/search/request"
	"github.com/datacove/metaseek/internal/metrics"
)

const (
	// candidateMultiplier oversamples retrieval so post-filter truncation
	// still fills the requested result count.
	candidateMultiplier = 3

	// defaultTraversalDepth bounds relationship traversals.
	defaultTraversalDepth = 3

	// agenticExpandDepth is how far the agentic strategy walks downstream
	// from the top semantic hit.
	agenticExpandDepth = 2
)

// Service is the search orchestrator.
type Service struct {
	classifier Classifier
	vector     VectorSearcher
	catalog    Catalog
	graph      Graph
	queryLog   QueryLog
	reranker   Reranker
	logger     *zap.Logger
}

// New creates the orchestrator. reranker may be nil; the rerank stage is
// then skipped.
func New(
	classifier Classifier, vector VectorSearcher, catalog Catalog,
	graph Graph, queryLog QueryLog, reranker Reranker, logger *zap.Logger,
) *Service {
	return &Service{
		classifier: classifier,
		vector:     vector,
		catalog:    catalog,
		graph:      graph,
		queryLog:   queryLog,
		reranker:   reranker,
		logger:     logger,
	}
}

// Search runs the full pipeline for one request. Failures during retrieval
// propagate to the caller after logging; the response is never partially
// inconsistent.
func (s *Service) Search(ctx context.Context, req request.Request) (domsearch.Response, error) {
	started := time.Now()
	queryID := uuid.NewString()
	var timings domsearch.StageTimings

	// Stage 1: resolve the routing path.
	classifyStart := time.Now()
	var classification domsearch.Classification
	if forced := req.ForcedPath(); forced != "" {
		classification = domsearch.Classification{
			Path:       forced,
			Confidence: 1,
			Reasoning:  "path forced by caller",
		}
	} else {
		classification = s.classifier.Classify(ctx, req.Query())
	}
	timings.Classify = time.Since(classifyStart)
	metrics.SearchStageDuration.WithLabelValues("classify").Observe(timings.Classify.Seconds())

	// Stage 2: dispatch to the path strategy.
	retrieveStart := time.Now()
	candidates, err := s.retrieve(ctx, req, classification.Path)
	timings.Retrieve = time.Since(retrieveStart)
	metrics.SearchStageDuration.WithLabelValues("retrieve").Observe(timings.Retrieve.Seconds())
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(string(classification.Path), "error").Inc()
		s.logger.Error("search retrieval failed",
			zap.String("query_id", queryID),
			zap.String("path", string(classification.Path)),
			zap.Error(err))
		return domsearch.Response{}, fmt.Errorf("search via %s: %w", classification.Path, err)
	}
	candidateCount := len(candidates)

	// Stage 3: optional rerank.
	rerankStart := time.Now()
	if req.EnableRerank() && s.reranker != nil && len(candidates) > 0 {
		candidates, err = s.rerank(ctx, req.Query(), candidates)
		if err != nil {
			metrics.SearchRequestsTotal.WithLabelValues(string(classification.Path), "error").Inc()
			return domsearch.Response{}, fmt.Errorf("rerank: %w", err)
		}
	}
	timings.Rerank = time.Since(rerankStart)
	metrics.SearchStageDuration.WithLabelValues("rerank").Observe(timings.Rerank.Seconds())

	// Stages 4 and 5: caller filters, then truncation.
	filterStart := time.Now()
	filtered := applyFilters(candidates, req.Filters())
	if len(filtered) > req.MaxResults() {
		filtered = filtered[:req.MaxResults()]
	}
	timings.Filter = time.Since(filterStart)
	metrics.SearchStageDuration.WithLabelValues("filter").Observe(timings.Filter.Seconds())

	timings.Total = time.Since(started)
	metrics.SearchRequestsTotal.WithLabelValues(string(classification.Path), "ok").Inc()

	// Stage 7: append to the query log. A log failure must not cost the
	// caller an otherwise complete response.
	if err := s.queryLog.LogQuery(ctx, queryID, req.UserID(), req.Query(),
		string(classification.Path), len(filtered)); err != nil {
		s.logger.Warn("query log append failed",
			zap.String("query_id", queryID), zap.Error(err))
	}

	return domsearch.Response{
		QueryID:   queryID,
		Query:     req.Query(),
		Path:      classification.Path,
		Results:   filtered,
		FollowUps: followUps(classification.Path, filtered),
		Meta: domsearch.Metadata{
			CandidateCount: candidateCount,
			FilteredCount:  candidateCount - len(filtered),
			Reasoning:      classification.Reasoning,
			Timings:        timings,
		},
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// retrieve dispatches on the routing path.
func (s *Service) retrieve(ctx context.Context, req request.Request, p path.Path) ([]domsearch.ResultItem, error) {
	limit := req.MaxResults() * candidateMultiplier
	switch p {
	case path.Keyword:
		return s.searchKeyword(ctx, req.Query(), limit)
	case path.Semantic:
		return s.searchSemantic(ctx, req.Query(), limit)
	case path.Relationship:
		return s.searchRelationship(ctx, req, limit)
	case path.Metadata:
		return s.searchMetadata(ctx, req.Query(), limit)
	case path.Agentic:
		return s.searchAgentic(ctx, req.Query(), limit)
	default:
		return s.searchSemantic(ctx, req.Query(), limit)
	}
}

// rerank re-scores candidates with the late-interaction model and rebuilds
// fused scores from its output.
func (s *Service) rerank(ctx context.Context, query string, candidates []domsearch.ResultItem) ([]domsearch.ResultItem, error) {
	reranked, err := s.reranker.Rerank(ctx, query, candidates, len(candidates))
	if err != nil {
		return nil, err
	}
	for i := range reranked {
		reranked[i].Score.Fused = reranked[i].Score.LateInteraction
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score.Fused > reranked[j].Score.Fused
	})
	return reranked, nil
}
