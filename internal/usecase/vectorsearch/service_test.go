package vectorsearch

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/datacove/metaseek/internal/domain"
	"github.com/datacove/metaseek/internal/transport/qdrant"
)

type fakeIndex struct {
	byCollection map[string][]qdrant.ScoredPoint
	err          error
	calls        []string
	lastFilters  map[string]string
}

func (f *fakeIndex) Search(_ context.Context, collection string, _ []float32, _ int, filters map[string]string) ([]qdrant.ScoredPoint, error) {
	f.calls = append(f.calls, collection)
	f.lastFilters = filters
	if f.err != nil {
		return nil, f.err
	}
	return f.byCollection[collection], nil
}

type fakeEmbedder struct {
	embedCalls int
	err        error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	f.embedCalls++
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}, nil
}

func TestSearchHybrid(t *testing.T) {
	index := &fakeIndex{byCollection: map[string][]qdrant.ScoredPoint{
		"catalog_natural": {
			{ID: "a", Score: 0.9},
			{ID: "b", Score: 0.8},
		},
		"catalog_structured": {
			{ID: "b", Score: 0.95},
			{ID: "c", Score: 0.7},
		},
	}}
	emb := &fakeEmbedder{}
	svc := New(index, emb, "catalog_natural", "catalog_structured", zap.NewNop())

	results, err := svc.SearchHybrid(context.Background(), "customer tables", 10, nil)
	if err != nil {
		t.Fatalf("SearchHybrid: %v", err)
	}
	if emb.embedCalls != 1 {
		t.Errorf("expected the query embedded once, got %d calls", emb.embedCalls)
	}
	if len(index.calls) != 2 {
		t.Fatalf("expected both collections searched, got %v", index.calls)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(results))
	}
	// "b" appears in both lists so consensus puts it first.
	if results[0].DocumentID != "b" {
		t.Errorf("expected b ranked first, got %s", results[0].DocumentID)
	}
}

func TestSearchHybrid_EmbedError(t *testing.T) {
	index := &fakeIndex{}
	emb := &fakeEmbedder{err: domain.ErrEmbeddingProviderError}
	svc := New(index, emb, "catalog_natural", "catalog_structured", zap.NewNop())

	_, err := svc.SearchHybrid(context.Background(), "query", 10, nil)
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected embedding provider error, got %v", err)
	}
	if len(index.calls) != 0 {
		t.Errorf("index should not be queried when embedding fails, got %v", index.calls)
	}
}

func TestSearchHybrid_IndexError(t *testing.T) {
	index := &fakeIndex{err: domain.ErrVectorIndexError}
	svc := New(index, &fakeEmbedder{}, "catalog_natural", "catalog_structured", zap.NewNop())

	_, err := svc.SearchHybrid(context.Background(), "query", 10, nil)
	if !errors.Is(err, domain.ErrVectorIndexError) {
		t.Errorf("expected vector index error, got %v", err)
	}
}

func TestSearchNaturalLanguage(t *testing.T) {
	index := &fakeIndex{byCollection: map[string][]qdrant.ScoredPoint{
		"catalog_natural": {
			{ID: "x", Score: 0.88, Payload: map[string]string{"name": "Customer"}},
		},
	}}
	svc := New(index, &fakeEmbedder{}, "catalog_natural", "catalog_structured", zap.NewNop())

	filters := map[string]string{"database": "sales"}
	results, err := svc.SearchNaturalLanguage(context.Background(), "customer data", 5, filters)
	if err != nil {
		t.Fatalf("SearchNaturalLanguage: %v", err)
	}
	if len(index.calls) != 1 || index.calls[0] != "catalog_natural" {
		t.Fatalf("expected only the natural collection searched, got %v", index.calls)
	}
	if index.lastFilters["database"] != "sales" {
		t.Errorf("filters not forwarded: %v", index.lastFilters)
	}
	if len(results) != 1 || results[0].DocumentID != "x" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Semantic != 0.88 || results[0].FusedScore != 0.88 {
		t.Errorf("single-collection search should carry the raw similarity, got %+v", results[0])
	}
	if results[0].Payload["name"] != "Customer" {
		t.Errorf("payload not carried through: %+v", results[0].Payload)
	}
}

func TestSearchStructured(t *testing.T) {
	index := &fakeIndex{byCollection: map[string][]qdrant.ScoredPoint{
		"catalog_structured": {{ID: "y", Score: 0.6}},
	}}
	svc := New(index, &fakeEmbedder{}, "catalog_natural", "catalog_structured", zap.NewNop())

	results, err := svc.SearchStructured(context.Background(), "table sales customer", 5, nil)
	if err != nil {
		t.Fatalf("SearchStructured: %v", err)
	}
	if len(index.calls) != 1 || index.calls[0] != "catalog_structured" {
		t.Fatalf("expected only the structured collection searched, got %v", index.calls)
	}
	if len(results) != 1 || results[0].DocumentID != "y" {
		t.Fatalf("unexpected results: %+v", results)
	}
}
