package embedding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/datacove/metaseek/internal/domain"
	domcat "github.com/datacove/metaseek/internal/domain/catalog"
	"github.com/datacove/metaseek/internal/transport/qdrant"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string]domain.DualEmbeddingResult
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]domain.DualEmbeddingResult)}
}

func (c *memCache) Get(_ context.Context, documentID string) (domain.DualEmbeddingResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[documentID]
	if !ok {
		return domain.DualEmbeddingResult{}, domain.ErrNotFound
	}
	res.CacheHit = true
	return res, nil
}

func (c *memCache) Upsert(_ context.Context, res domain.DualEmbeddingResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	res.Stale = false
	c.entries[res.DocumentID] = res
	return nil
}

func (c *memCache) MarkStale(_ context.Context, documentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[documentID]
	if !ok {
		return domain.ErrNotFound
	}
	res.Stale = true
	c.entries[documentID] = res
	return nil
}

func (c *memCache) ListStale(_ context.Context, limit int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, res := range c.entries {
		if res.Stale && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type memCatalog struct {
	entities map[string]domcat.Entity
}

func (c *memCatalog) GetBatch(_ context.Context, documentIDs []string) ([]domcat.Entity, error) {
	var out []domcat.Entity
	for _, id := range documentIDs {
		if e, ok := c.entities[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

type memIndex struct {
	mu     sync.Mutex
	points map[string][]qdrant.Point
	err    error
}

func (m *memIndex) UpsertPoint(_ context.Context, collection string, p qdrant.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.points == nil {
		m.points = make(map[string][]qdrant.Point)
	}
	m.points[collection] = append(m.points[collection], p)
	return nil
}

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	texts []string
	err   error
}

func (e *countingEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	e.calls++
	e.texts = append(e.texts, text)
	// Derive a distinct deterministic vector per text.
	vec := []float32{float32(len(text)), float32(len(text) % 7), 0.5}
	return domain.EmbeddingResult{Embedding: vec, PromptTokens: len(text)}, nil
}

func testEntity(id string) domcat.Entity {
	return domcat.Entity{
		DocumentID:      id,
		ObjectType:      domcat.Table,
		Name:            "Customer",
		Schema:          "dbo",
		Database:        "sales",
		BusinessPurpose: "stores customer master records",
		Category:        "master-data",
		Domain:          "crm",
		IsPII:           true,
		PIIType:         "contact",
		DependencyCount: 4,
		Tags:            []string{"gdpr", "core"},
	}
}

func newTestGenerator(cache Cache, catalog Catalog, index Index, emb Embedder) *Generator {
	return New(cache, catalog, index, emb, "catalog_natural", "catalog_structured", 100, zap.NewNop())
}

func TestGenerateDualEmbeddings(t *testing.T) {
	cache := newMemCache()
	index := &memIndex{}
	emb := &countingEmbedder{}
	gen := newTestGenerator(cache, &memCatalog{}, index, emb)

	res, err := gen.GenerateDualEmbeddings(context.Background(), testEntity("doc-1"))
	if err != nil {
		t.Fatalf("GenerateDualEmbeddings: %v", err)
	}
	if res.CacheHit {
		t.Error("first generation should not report a cache hit")
	}
	if emb.calls != 2 {
		t.Errorf("expected 2 embedding calls, got %d", emb.calls)
	}
	if res.NaturalText == res.StructuredText {
		t.Error("natural and structured texts must differ")
	}
	if !strings.HasPrefix(res.NaturalText, "The table dbo.Customer in database sales") {
		t.Errorf("unexpected natural text: %q", res.NaturalText)
	}
	if !strings.HasPrefix(res.StructuredText, "{") {
		t.Errorf("structured text should be JSON, got %q", res.StructuredText)
	}
	if len(index.points["catalog_natural"]) != 1 || len(index.points["catalog_structured"]) != 1 {
		t.Errorf("expected one point per collection, got %d/%d",
			len(index.points["catalog_natural"]), len(index.points["catalog_structured"]))
	}
	if res.NaturalPointID == res.StructuredPointID {
		t.Error("point ids must differ between collections")
	}
}

func TestGenerateDualEmbeddings_CacheRoundTrip(t *testing.T) {
	cache := newMemCache()
	emb := &countingEmbedder{}
	gen := newTestGenerator(cache, &memCatalog{}, &memIndex{}, emb)

	first, err := gen.GenerateDualEmbeddings(context.Background(), testEntity("doc-1"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := gen.GenerateDualEmbeddings(context.Background(), testEntity("doc-1"))
	if err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if !second.CacheHit {
		t.Error("second fetch should hit the cache")
	}
	if emb.calls != 2 {
		t.Errorf("cached fetch must not call the provider, got %d calls", emb.calls)
	}
	if len(second.NaturalVector) != len(first.NaturalVector) {
		t.Fatal("vector length changed across the cache")
	}
	for i := range first.NaturalVector {
		if first.NaturalVector[i] != second.NaturalVector[i] {
			t.Fatalf("natural vector differs at %d", i)
		}
	}
	for i := range first.StructuredVector {
		if first.StructuredVector[i] != second.StructuredVector[i] {
			t.Fatalf("structured vector differs at %d", i)
		}
	}
}

func TestGenerateDualEmbeddings_StaleRegenerated(t *testing.T) {
	cache := newMemCache()
	emb := &countingEmbedder{}
	gen := newTestGenerator(cache, &memCatalog{}, &memIndex{}, emb)

	if _, err := gen.GenerateDualEmbeddings(context.Background(), testEntity("doc-1")); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := gen.MarkStale(context.Background(), "doc-1"); err != nil {
		t.Fatalf("mark stale: %v", err)
	}

	res, err := gen.GenerateDualEmbeddings(context.Background(), testEntity("doc-1"))
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if res.Stale {
		t.Error("regenerated result should not be stale")
	}
	if emb.calls != 4 {
		t.Errorf("stale entry must be regenerated, expected 4 provider calls, got %d", emb.calls)
	}
}

func TestGenerateDualEmbeddings_ProviderError(t *testing.T) {
	emb := &countingEmbedder{err: domain.ErrEmbeddingProviderError}
	gen := newTestGenerator(newMemCache(), &memCatalog{}, &memIndex{}, emb)

	_, err := gen.GenerateDualEmbeddings(context.Background(), testEntity("doc-1"))
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected provider error to propagate, got %v", err)
	}
}

func TestGenerateBatch(t *testing.T) {
	cache := newMemCache()
	emb := &countingEmbedder{}
	gen := newTestGenerator(cache, &memCatalog{}, &memIndex{}, emb)

	entities := []domcat.Entity{
		testEntity("doc-1"), testEntity("doc-2"), testEntity("doc-3"),
		testEntity("doc-4"), testEntity("doc-5"),
	}
	results, err := gen.GenerateBatch(context.Background(), entities, 2)
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	// Positional correspondence with the input must hold.
	for i, e := range entities {
		if results[i].DocumentID != e.DocumentID {
			t.Errorf("result %d: expected %s, got %s", i, e.DocumentID, results[i].DocumentID)
		}
	}
	if emb.calls != 10 {
		t.Errorf("expected 10 provider calls, got %d", emb.calls)
	}
}

func TestRefreshStale(t *testing.T) {
	cache := newMemCache()
	catalog := &memCatalog{entities: map[string]domcat.Entity{
		"doc-1": testEntity("doc-1"),
		"doc-2": testEntity("doc-2"),
	}}
	emb := &countingEmbedder{}
	gen := newTestGenerator(cache, catalog, &memIndex{}, emb)

	for _, id := range []string{"doc-1", "doc-2"} {
		if _, err := gen.GenerateDualEmbeddings(context.Background(), catalog.entities[id]); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
		if err := gen.MarkStale(context.Background(), id); err != nil {
			t.Fatalf("stale %s: %v", id, err)
		}
	}

	n, err := gen.RefreshStale(context.Background(), 8)
	if err != nil {
		t.Fatalf("RefreshStale: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 refreshed entries, got %d", n)
	}
	if ids, _ := cache.ListStale(context.Background(), 10); len(ids) != 0 {
		t.Errorf("entries still stale after refresh: %v", ids)
	}
}

func TestRefreshStale_NothingToDo(t *testing.T) {
	gen := newTestGenerator(newMemCache(), &memCatalog{}, &memIndex{}, &countingEmbedder{})
	n, err := gen.RefreshStale(context.Background(), 8)
	if err != nil {
		t.Fatalf("RefreshStale: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
}

func TestBuildStructuredText_OmitsEmptyFields(t *testing.T) {
	e := domcat.Entity{
		DocumentID: "doc-min",
		ObjectType: domcat.View,
		Name:       "vw_orders",
	}
	text, err := buildStructuredText(e)
	if err != nil {
		t.Fatalf("buildStructuredText: %v", err)
	}
	for _, absent := range []string{"schema", "database", "purpose", "category", "pii_type", "tags"} {
		if strings.Contains(text, `"`+absent+`"`) {
			t.Errorf("empty field %q should be omitted, got %s", absent, text)
		}
	}
	if !strings.Contains(text, `"name":"vw_orders"`) {
		t.Errorf("name missing from projection: %s", text)
	}
}
