package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/datacove/metaseek/internal/domain"
	domcat "github.com/datacove/metaseek/internal/domain/catalog"
	domgraph "github.com/datacove/metaseek/internal/domain/graph"
	domsearch "github.com/datacove/metaseek/internal/domain/search"
	"github.com/datacove/metaseek/internal/domain/search/path"
	"github.com/datacove/metaseek/internal/domain/search/request"
	"github.com/datacove/metaseek/internal/usecase/classify"
	"github.com/datacove/metaseek/internal/usecase/vectorsearch"
)

type fakeCatalog struct {
	entities map[string]domcat.Entity
	lastTerm string
	lastAttr domcat.AttributeFilter
	err      error
}

func (f *fakeCatalog) GetBatch(_ context.Context, ids []string) ([]domcat.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domcat.Entity
	for _, id := range ids {
		if e, ok := f.entities[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeCatalog) SearchKeyword(_ context.Context, term string, limit int) ([]domcat.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastTerm = term
	var exact, partial []domcat.Entity
	for _, e := range f.entities {
		switch {
		case strings.EqualFold(e.Name, term) || strings.EqualFold(e.QualifiedName(), term):
			exact = append(exact, e)
		case strings.Contains(strings.ToLower(e.Name), strings.ToLower(term)):
			partial = append(partial, e)
		}
	}
	out := append(exact, partial...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCatalog) SearchAttributes(_ context.Context, filter domcat.AttributeFilter, limit int) ([]domcat.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastAttr = filter
	var out []domcat.Entity
	for _, e := range f.entities {
		if filter.Category != "" && !strings.EqualFold(e.Category, filter.Category) {
			continue
		}
		if filter.Database != "" && !strings.EqualFold(e.Database, filter.Database) {
			continue
		}
		if filter.PII != nil && e.IsPII != *filter.PII {
			continue
		}
		out = append(out, e)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeVector struct {
	ranked []vectorsearch.Ranked
	err    error
}

func (f *fakeVector) SearchHybrid(context.Context, string, int, map[string]string) ([]vectorsearch.Ranked, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ranked, nil
}

type fakeGraph struct {
	dependents   map[string][]domgraph.TraversalHit
	dependencies map[string][]domgraph.TraversalHit
	flows        map[string][]domgraph.PiiFlowPath
	upstreamFor  []string
}

func (f *fakeGraph) FindDependents(_ context.Context, id string, _ int) ([]domgraph.TraversalHit, error) {
	hits, ok := f.dependents[id]
	if !ok {
		return nil, domain.ErrNodeNotFound
	}
	return hits, nil
}

func (f *fakeGraph) FindDependencies(_ context.Context, id string, _ int) ([]domgraph.TraversalHit, error) {
	f.upstreamFor = append(f.upstreamFor, id)
	hits, ok := f.dependencies[id]
	if !ok {
		return nil, domain.ErrNodeNotFound
	}
	return hits, nil
}

func (f *fakeGraph) TracePiiFlow(_ context.Context, id string) ([]domgraph.PiiFlowPath, error) {
	return f.flows[id], nil
}

type fakeQueryLog struct {
	entries []string
	err     error
}

func (f *fakeQueryLog) LogQuery(_ context.Context, queryID, userID, query, path string, resultCount int) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, queryID+" "+path+" "+query)
	return nil
}

func entity(id, name, schema, db, category string, pii bool) domcat.Entity {
	return domcat.Entity{
		DocumentID: id,
		ObjectType: domcat.Table,
		Name:       name,
		Schema:     schema,
		Database:   db,
		Category:   category,
		IsPII:      pii,
	}
}

func newService(catalog *fakeCatalog, vector *fakeVector, graph *fakeGraph, log *fakeQueryLog) *Service {
	classifier := classify.New(nil, false, 0.75, zap.NewNop())
	return New(classifier, vector, catalog, graph, log, nil, zap.NewNop())
}

func mustRequest(t *testing.T, query string, forced path.Path, max int, f request.Filters) request.Request {
	t.Helper()
	req, err := request.New(query, "u1", forced, max, f, false, false)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return req
}

func TestSearch_KeywordScenario(t *testing.T) {
	catalog := &fakeCatalog{entities: map[string]domcat.Entity{
		"doc-1": entity("doc-1", "Customer", "dbo", "sales", "master-data", false),
		"doc-2": entity("doc-2", "CustomerHistory", "dbo", "sales", "master-data", false),
	}}
	log := &fakeQueryLog{}
	svc := newService(catalog, &fakeVector{}, &fakeGraph{}, log)

	resp, err := svc.Search(context.Background(), mustRequest(t, "dbo.Customer", "", 10, request.Filters{}))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Path != path.Keyword {
		t.Errorf("expected keyword path, got %s", resp.Path)
	}
	if len(resp.Results) == 0 || resp.Results[0].Name != "Customer" {
		t.Fatalf("expected exact match Customer first, got %+v", resp.Results)
	}
	if resp.QueryID == "" {
		t.Error("response missing query id")
	}
	if len(log.entries) != 1 {
		t.Errorf("expected the query logged once, got %v", log.entries)
	}
	if len(resp.FollowUps) == 0 {
		t.Error("expected follow-up suggestions")
	}
}

func TestSearch_KeywordSubstringScoreFloor(t *testing.T) {
	// With the maximum result count the substring candidate list exceeds
	// 90 entries; the rank decay must bottom out above zero.
	entities := map[string]domcat.Entity{}
	for i := 0; i < 120; i++ {
		id := fmt.Sprintf("doc-%03d", i)
		entities[id] = entity(id, fmt.Sprintf("customer_%03d", i), "dbo", "sales", "master-data", false)
	}
	catalog := &fakeCatalog{entities: entities}
	svc := newService(catalog, &fakeVector{}, &fakeGraph{}, &fakeQueryLog{})

	resp, err := svc.Search(context.Background(),
		mustRequest(t, "customer", path.Keyword, 100, request.Filters{}))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 100 {
		t.Fatalf("expected 100 results, got %d", len(resp.Results))
	}
	for i, r := range resp.Results {
		if r.Score.Fused <= 0 {
			t.Fatalf("result %d has non-positive fused score %v", i, r.Score.Fused)
		}
	}
	if last := resp.Results[len(resp.Results)-1]; last.Score.Fused != 0.05 {
		t.Errorf("deep substring matches should bottom out at the floor, got %v", last.Score.Fused)
	}
}

func TestSearch_RelationshipScenario(t *testing.T) {
	catalog := &fakeCatalog{entities: map[string]domcat.Entity{
		"doc-pol": entity("doc-pol", "irf_policy", "dbo", "ins", "policy", false),
		"doc-src": entity("doc-src", "staging_policy", "etl", "ins", "policy", false),
	}}
	graph := &fakeGraph{dependencies: map[string][]domgraph.TraversalHit{
		"doc-pol": {
			{Node: domgraph.Node{ID: "doc-src", Name: "staging_policy", Schema: "etl"}, Depth: 1, ParentID: "doc-pol"},
		},
	}}
	svc := newService(catalog, &fakeVector{}, graph, &fakeQueryLog{})

	resp, err := svc.Search(context.Background(), mustRequest(t, "show dependencies of irf_policy", "", 10, request.Filters{}))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Path != path.Relationship {
		t.Errorf("expected relationship path, got %s", resp.Path)
	}
	if len(graph.upstreamFor) != 1 || graph.upstreamFor[0] != "doc-pol" {
		t.Errorf("expected upstream traversal from doc-pol, got %v", graph.upstreamFor)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected anchor plus one upstream node, got %+v", resp.Results)
	}
	if resp.Results[0].Name != "irf_policy" {
		t.Errorf("anchor should rank first, got %s", resp.Results[0].Name)
	}
	if resp.Results[1].Lineage == nil || resp.Results[1].Lineage.Depth != 1 {
		t.Errorf("traversal result missing lineage info: %+v", resp.Results[1])
	}
}

func TestSearch_MetadataScenario(t *testing.T) {
	catalog := &fakeCatalog{entities: map[string]domcat.Entity{
		"doc-1": entity("doc-1", "ClaimParty", "dbo", "ins", "claims", true),
		"doc-2": entity("doc-2", "ClaimLine", "dbo", "ins", "claims", false),
		"doc-3": entity("doc-3", "Customer", "dbo", "sales", "master-data", true),
	}}
	svc := newService(catalog, &fakeVector{}, &fakeGraph{}, &fakeQueryLog{})

	resp, err := svc.Search(context.Background(), mustRequest(t, "pii:true category:claims", "", 10, request.Filters{}))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Path != path.Metadata {
		t.Errorf("expected metadata path, got %s", resp.Path)
	}
	if len(resp.Results) != 1 || resp.Results[0].DocumentID != "doc-1" {
		t.Fatalf("expected only the PII claims row, got %+v", resp.Results)
	}
	if catalog.lastAttr.PII == nil || !*catalog.lastAttr.PII || catalog.lastAttr.Category != "claims" {
		t.Errorf("filter not parsed: %+v", catalog.lastAttr)
	}
}

func TestSearch_SemanticResolvesMetadata(t *testing.T) {
	catalog := &fakeCatalog{entities: map[string]domcat.Entity{
		"doc-1": entity("doc-1", "RevenueByRegion", "rpt", "dwh", "finance", false),
	}}
	vector := &fakeVector{ranked: []vectorsearch.Ranked{
		{DocumentID: "p1", FusedScore: 0.03, Semantic: 0.9, Payload: map[string]string{"document_id": "doc-1"}},
		{DocumentID: "p2", FusedScore: 0.02, Semantic: 0.8, Payload: map[string]string{"document_id": "doc-unknown"}},
	}}
	svc := newService(catalog, vector, &fakeGraph{}, &fakeQueryLog{})

	resp, err := svc.Search(context.Background(),
		mustRequest(t, "where can i find information about revenue broken down by region", "", 10, request.Filters{}))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Path != path.Semantic {
		t.Errorf("expected semantic path, got %s", resp.Path)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("hits without catalog rows must be dropped, got %+v", resp.Results)
	}
	got := resp.Results[0]
	if got.Name != "RevenueByRegion" || got.Score.Fused != 0.03 || got.Score.Semantic != 0.9 {
		t.Errorf("metadata or scores not joined: %+v", got)
	}
}

func TestSearch_ForcedPathSkipsClassifier(t *testing.T) {
	catalog := &fakeCatalog{entities: map[string]domcat.Entity{
		"doc-1": entity("doc-1", "Customer", "dbo", "sales", "master-data", false),
	}}
	svc := newService(catalog, &fakeVector{}, &fakeGraph{}, &fakeQueryLog{})

	resp, err := svc.Search(context.Background(),
		mustRequest(t, "explain the customer data model", path.Keyword, 10, request.Filters{}))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Path != path.Keyword {
		t.Errorf("forced path ignored, got %s", resp.Path)
	}
	if resp.Meta.Reasoning != "path forced by caller" {
		t.Errorf("unexpected reasoning: %q", resp.Meta.Reasoning)
	}
}

func TestSearch_TruncationAndFilters(t *testing.T) {
	entities := map[string]domcat.Entity{}
	var ranked []vectorsearch.Ranked
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		db := "dwh"
		if id == "e" {
			db = "other"
		}
		entities["doc-"+id] = entity("doc-"+id, "tbl_"+id, "s", db, "finance", false)
		ranked = append(ranked, vectorsearch.Ranked{
			DocumentID: id, FusedScore: 0.5, Semantic: 0.5,
			Payload: map[string]string{"document_id": "doc-" + id},
		})
	}
	svc := newService(&fakeCatalog{entities: entities}, &fakeVector{ranked: ranked}, &fakeGraph{}, &fakeQueryLog{})

	req := mustRequest(t, "financial reporting tables in the warehouse", path.Semantic, 2,
		request.Filters{Databases: []string{"dwh"}})
	resp, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(resp.Results))
	}
	for _, r := range resp.Results {
		if r.Database != "dwh" {
			t.Errorf("database filter leaked %+v", r)
		}
	}
	if resp.Meta.CandidateCount != 5 {
		t.Errorf("expected 5 candidates, got %d", resp.Meta.CandidateCount)
	}
	if resp.Meta.FilteredCount != 3 {
		t.Errorf("expected 3 filtered out, got %d", resp.Meta.FilteredCount)
	}
}

func TestSearch_MinConfidenceFilter(t *testing.T) {
	catalog := &fakeCatalog{entities: map[string]domcat.Entity{
		"doc-1": entity("doc-1", "A", "s", "db", "c", false),
		"doc-2": entity("doc-2", "B", "s", "db", "c", false),
	}}
	vector := &fakeVector{ranked: []vectorsearch.Ranked{
		{DocumentID: "1", FusedScore: 0.9, Payload: map[string]string{"document_id": "doc-1"}},
		{DocumentID: "2", FusedScore: 0.1, Payload: map[string]string{"document_id": "doc-2"}},
	}}
	svc := newService(catalog, vector, &fakeGraph{}, &fakeQueryLog{})

	req := mustRequest(t, "anything at all really", path.Semantic, 10, request.Filters{MinConfidence: 0.5})
	resp, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].DocumentID != "doc-1" {
		t.Errorf("low-confidence result not filtered: %+v", resp.Results)
	}
}

func TestSearch_RelationshipDegradesToSemantic(t *testing.T) {
	catalog := &fakeCatalog{entities: map[string]domcat.Entity{
		"doc-1": entity("doc-1", "SomethingElse", "s", "db", "c", false),
	}}
	vector := &fakeVector{ranked: []vectorsearch.Ranked{
		{DocumentID: "1", FusedScore: 0.4, Payload: map[string]string{"document_id": "doc-1"}},
	}}
	// No graph entry for the anchor: traversal reports node-not-found.
	svc := newService(catalog, vector, &fakeGraph{}, &fakeQueryLog{})

	resp, err := svc.Search(context.Background(),
		mustRequest(t, "show dependencies of xyz_missing", "", 10, request.Filters{}))
	if err != nil {
		t.Fatalf("degraded search should not fail: %v", err)
	}
	if resp.Path != path.Relationship {
		t.Errorf("response should keep the classified path, got %s", resp.Path)
	}
	if len(resp.Results) != 1 || resp.Results[0].DocumentID != "doc-1" {
		t.Errorf("expected semantic fallback results, got %+v", resp.Results)
	}
}

func TestSearch_RetrievalErrorPropagates(t *testing.T) {
	vector := &fakeVector{err: domain.ErrVectorIndexError}
	svc := newService(&fakeCatalog{}, vector, &fakeGraph{}, &fakeQueryLog{})

	_, err := svc.Search(context.Background(),
		mustRequest(t, "something descriptive enough to go semantic", path.Semantic, 10, request.Filters{}))
	if !errors.Is(err, domain.ErrVectorIndexError) {
		t.Errorf("expected vector index error, got %v", err)
	}
}

func TestSearch_QueryLogFailureIsNonFatal(t *testing.T) {
	catalog := &fakeCatalog{entities: map[string]domcat.Entity{
		"doc-1": entity("doc-1", "Customer", "dbo", "sales", "c", false),
	}}
	log := &fakeQueryLog{err: errors.New("log table locked")}
	svc := newService(catalog, &fakeVector{}, &fakeGraph{}, log)

	resp, err := svc.Search(context.Background(), mustRequest(t, "dbo.Customer", "", 10, request.Filters{}))
	if err != nil {
		t.Fatalf("log failure must not fail the search: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Error("expected results despite log failure")
	}
}

type fakeReranker struct {
	calls int
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, candidates []domsearch.ResultItem, _ int) ([]domsearch.ResultItem, error) {
	f.calls++
	// Invert the ordering via late-interaction scores.
	out := make([]domsearch.ResultItem, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].Score.LateInteraction = float64(i)
	}
	return out, nil
}

func TestSearch_Rerank(t *testing.T) {
	catalog := &fakeCatalog{entities: map[string]domcat.Entity{
		"doc-1": entity("doc-1", "First", "s", "db", "c", false),
		"doc-2": entity("doc-2", "Second", "s", "db", "c", false),
	}}
	vector := &fakeVector{ranked: []vectorsearch.Ranked{
		{DocumentID: "1", FusedScore: 0.9, Payload: map[string]string{"document_id": "doc-1"}},
		{DocumentID: "2", FusedScore: 0.8, Payload: map[string]string{"document_id": "doc-2"}},
	}}
	reranker := &fakeReranker{}
	classifier := classify.New(nil, false, 0.75, zap.NewNop())
	svc := New(classifier, vector, catalog, &fakeGraph{}, &fakeQueryLog{}, reranker, zap.NewNop())

	req, err := request.New("descriptive query for semantic retrieval", "u1", path.Semantic, 10, request.Filters{}, false, true)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	resp, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if reranker.calls != 1 {
		t.Fatalf("expected one rerank call, got %d", reranker.calls)
	}
	if resp.Results[0].DocumentID != "doc-2" {
		t.Errorf("rerank scores not applied to ordering: %+v", resp.Results)
	}
	if resp.Results[0].Score.Fused != resp.Results[0].Score.LateInteraction {
		t.Errorf("fused score not recomputed from rerank output: %+v", resp.Results[0].Score)
	}
}
