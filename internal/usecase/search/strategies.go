package search

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/datacove/metaseek/internal/domain"
	domcat "github.com/datacove/metaseek/internal/domain/catalog"
	domgraph "github.com/datacove/metaseek/internal/domain/graph"
	domsearch "github.com/datacove/metaseek/internal/domain/search"
	"github.com/datacove/metaseek/internal/domain/search/request"
	"github.com/datacove/metaseek/internal/usecase/vectorsearch"
)

// substringScoreFloor bounds the rank decay of substring matches; the
// candidate list can be larger than 90 entries, and a score must stay
// positive to survive min-confidence filtering.
const substringScoreFloor = 0.05

// searchKeyword matches object names exactly or by substring, exact
// matches first.
func (s *Service) searchKeyword(ctx context.Context, query string, limit int) ([]domsearch.ResultItem, error) {
	term := extractSearchTerm(query)
	entities, err := s.catalog.SearchKeyword(ctx, term, limit)
	if err != nil {
		return nil, err
	}

	items := make([]domsearch.ResultItem, len(entities))
	for i, e := range entities {
		item := entityToItem(e)
		item.MatchedTerms = []string{term}
		// Exact name matches score 1, substring matches decay with rank.
		if strings.EqualFold(e.Name, term) || strings.EqualFold(e.QualifiedName(), term) {
			item.Score.Fused = 1
		} else {
			score := 0.9 - float64(i)*0.01
			if score < substringScoreFloor {
				score = substringScoreFloor
			}
			item.Score.Fused = score
		}
		items[i] = item
	}
	return items, nil
}

// extractSearchTerm picks the object-name-like part of the query: the
// first dotted token, else the first token with a recognizable identifier
// shape, else the trimmed query itself.
func extractSearchTerm(query string) string {
	fields := strings.Fields(strings.TrimSpace(query))
	if len(fields) == 1 {
		return fields[0]
	}
	for _, f := range fields {
		if strings.Contains(f, ".") {
			return f
		}
	}
	for _, f := range fields {
		if strings.Contains(f, "_") {
			return f
		}
	}
	return strings.TrimSpace(query)
}

// searchSemantic runs hybrid vector retrieval, then resolves full entity
// metadata for the returned document ids in one batch.
func (s *Service) searchSemantic(ctx context.Context, query string, limit int) ([]domsearch.ResultItem, error) {
	ranked, err := s.vector.SearchHybrid(ctx, query, limit, nil)
	if err != nil {
		return nil, err
	}
	return s.resolveRanked(ctx, ranked)
}

// resolveRanked joins vector hits with catalog metadata, preserving fused
// order. Hits without a catalog row are dropped.
func (s *Service) resolveRanked(ctx context.Context, ranked []vectorsearch.Ranked) ([]domsearch.ResultItem, error) {
	if len(ranked) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		if id := r.Payload["document_id"]; id != "" {
			ids = append(ids, id)
		}
	}
	entities, err := s.catalog.GetBatch(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domcat.Entity, len(entities))
	for _, e := range entities {
		byID[e.DocumentID] = e
	}

	var items []domsearch.ResultItem
	for _, r := range ranked {
		e, ok := byID[r.Payload["document_id"]]
		if !ok {
			continue
		}
		item := entityToItem(e)
		item.Score.Semantic = r.Semantic
		item.Score.Fused = r.FusedScore
		items = append(items, item)
	}
	return items, nil
}

// searchRelationship resolves a candidate entity from the query text and
// traverses the lineage graph. An unresolvable candidate degrades to
// semantic search rather than failing.
func (s *Service) searchRelationship(ctx context.Context, req request.Request, limit int) ([]domsearch.ResultItem, error) {
	query := req.Query()
	candidate := extractSearchTerm(query)

	entities, err := s.catalog.SearchKeyword(ctx, candidate, 1)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		s.logger.Debug("relationship candidate not in catalog, degrading to semantic",
			zap.String("candidate", candidate))
		return s.searchSemantic(ctx, query, limit)
	}
	anchor := entities[0]

	hits, err := s.traverse(ctx, anchor.DocumentID, query)
	if err != nil {
		if errors.Is(err, domain.ErrNodeNotFound) {
			s.logger.Debug("relationship anchor missing from graph, degrading to semantic",
				zap.String("document_id", anchor.DocumentID))
			return s.searchSemantic(ctx, query, limit)
		}
		return nil, err
	}

	items := make([]domsearch.ResultItem, 0, len(hits)+1)
	anchorItem := entityToItem(anchor)
	anchorItem.Score.Fused = 1
	anchorItem.MatchedTerms = []string{candidate}
	items = append(items, anchorItem)

	for _, h := range hits {
		item := domsearch.ResultItem{
			DocumentID: h.Node.ID,
			ObjectType: h.Node.ObjectType,
			Name:       h.Node.Name,
			Schema:     h.Node.Schema,
			Database:   h.Node.Database,
			Score:      domsearch.RelevanceScore{Fused: 1 / float64(h.Depth+1)},
			Lineage:    &domsearch.LineageInfo{Depth: h.Depth, ParentID: h.ParentID},
		}
		if h.Node.IsPII {
			item.PII = &domsearch.PIIInfo{PIIType: h.Node.PIIType}
		}
		items = append(items, item)
	}

	if req.IncludePIIFlows() {
		if err := s.attachPiiFlows(ctx, items); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// traverse picks the direction from the query vocabulary. Words asking
// what something is built from walk upstream; impact-style words walk
// downstream. Ambiguous queries walk upstream, matching how dependency
// questions are usually phrased.
func (s *Service) traverse(ctx context.Context, nodeID, query string) ([]domgraph.TraversalHit, error) {
	lower := strings.ToLower(query)
	downstream := strings.Contains(lower, "dependent") ||
		strings.Contains(lower, "downstream") ||
		strings.Contains(lower, "impact") ||
		strings.Contains(lower, "child")
	if downstream {
		return s.graph.FindDependents(ctx, nodeID, defaultTraversalDepth)
	}
	return s.graph.FindDependencies(ctx, nodeID, defaultTraversalDepth)
}

// attachPiiFlows unions flow traces into the PII info of flagged results.
func (s *Service) attachPiiFlows(ctx context.Context, items []domsearch.ResultItem) error {
	for i := range items {
		if items[i].PII == nil {
			continue
		}
		flows, err := s.graph.TracePiiFlow(ctx, items[i].DocumentID)
		if err != nil {
			if errors.Is(err, domain.ErrNodeNotFound) {
				continue
			}
			return err
		}
		for _, f := range flows {
			items[i].PII.FlowPaths = append(items[i].PII.FlowPaths, f.Path)
		}
	}
	return nil
}

// searchMetadata parses key:value tokens from the query into an attribute
// filter against the catalog.
func (s *Service) searchMetadata(ctx context.Context, query string, limit int) ([]domsearch.ResultItem, error) {
	filter, matched := parseAttributeFilter(query)
	if filter.IsEmpty() {
		// No parseable constraint; meaning-based retrieval is the best
		// remaining interpretation.
		return s.searchSemantic(ctx, query, limit)
	}
	entities, err := s.catalog.SearchAttributes(ctx, filter, limit)
	if err != nil {
		return nil, err
	}

	items := make([]domsearch.ResultItem, len(entities))
	for i, e := range entities {
		item := entityToItem(e)
		item.Score.Fused = 1
		item.MatchedTerms = matched
		items[i] = item
	}
	return items, nil
}

// parseAttributeFilter reads key:value tokens like pii:true or
// category:claims. Unknown keys are ignored.
func parseAttributeFilter(query string) (domcat.AttributeFilter, []string) {
	var (
		filter  domcat.AttributeFilter
		matched []string
	)
	for _, field := range strings.Fields(strings.ToLower(query)) {
		key, value, ok := strings.Cut(field, ":")
		if !ok || value == "" {
			continue
		}
		switch key {
		case "database", "db":
			filter.Database = value
		case "schema":
			filter.Schema = value
		case "type", "object_type":
			filter.ObjectType = value
		case "category":
			filter.Category = value
		case "classification":
			filter.Classification = value
		case "domain":
			filter.Domain = value
		case "pii", "sensitive":
			if b, err := strconv.ParseBool(value); err == nil {
				filter.PII = &b
			}
		default:
			continue
		}
		matched = append(matched, field)
	}
	return filter, matched
}

// searchAgentic runs semantic retrieval, then expands two hops downstream
// from the top hit and merges, deduplicating by document id.
func (s *Service) searchAgentic(ctx context.Context, query string, limit int) ([]domsearch.ResultItem, error) {
	items, err := s.searchSemantic(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	hits, err := s.graph.FindDependents(ctx, items[0].DocumentID, agenticExpandDepth)
	if err != nil {
		if errors.Is(err, domain.ErrNodeNotFound) {
			return items, nil
		}
		return nil, err
	}

	seen := make(map[string]bool, len(items))
	for _, it := range items {
		seen[it.DocumentID] = true
	}
	for _, h := range hits {
		if seen[h.Node.ID] {
			continue
		}
		seen[h.Node.ID] = true
		items = append(items, domsearch.ResultItem{
			DocumentID: h.Node.ID,
			ObjectType: h.Node.ObjectType,
			Name:       h.Node.Name,
			Schema:     h.Node.Schema,
			Database:   h.Node.Database,
			Score:      domsearch.RelevanceScore{Fused: 1 / float64(h.Depth+2)},
			Lineage:    &domsearch.LineageInfo{Depth: h.Depth, ParentID: h.ParentID},
		})
	}
	return items, nil
}
