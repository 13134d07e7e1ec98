// Package embedding generates and caches the dual embeddings (natural
// language plus structured JSON) for catalog entities.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/datacove/metaseek/internal/domain"
	domcat "github.com/datacove/metaseek/internal/domain/catalog"
	"github.com/datacove/metaseek/internal/metrics"
	"github.com/datacove/metaseek/internal/transport/qdrant"
)

// Generator builds, caches and refreshes dual embeddings.
type Generator struct {
	cache                Cache
	catalog              Catalog
	index                Index
	embedder             Embedder
	naturalCollection    string
	structuredCollection string
	staleBatchLimit      int
	logger               *zap.Logger
}

// New creates an embedding generator.
func New(
	cache Cache, catalog Catalog, index Index, embedder Embedder,
	naturalCollection, structuredCollection string,
	staleBatchLimit int, logger *zap.Logger,
) *Generator {
	return &Generator{
		cache:                cache,
		catalog:              catalog,
		index:                index,
		embedder:             embedder,
		naturalCollection:    naturalCollection,
		structuredCollection: structuredCollection,
		staleBatchLimit:      staleBatchLimit,
		logger:               logger,
	}
}

// GenerateDualEmbeddings returns the cached dual embedding for an entity,
// or generates both vectors, indexes them and writes them to the cache.
// Stale cache entries are regenerated, never served as authoritative.
func (g *Generator) GenerateDualEmbeddings(ctx context.Context, entity domcat.Entity) (domain.DualEmbeddingResult, error) {
	cached, err := g.cache.Get(ctx, entity.DocumentID)
	if err == nil && !cached.Stale {
		metrics.EmbeddingCacheTotal.WithLabelValues("dual", "hit").Inc()
		return cached, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.DualEmbeddingResult{}, err
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("dual", "miss").Inc()

	naturalText := buildNaturalText(entity)
	structuredText, err := buildStructuredText(entity)
	if err != nil {
		return domain.DualEmbeddingResult{}, err
	}

	naturalEmb, err := g.embedder.Embed(ctx, naturalText)
	if err != nil {
		g.logger.Error("embed natural text failed",
			zap.String("document_id", entity.DocumentID), zap.Error(err))
		return domain.DualEmbeddingResult{}, fmt.Errorf("embed natural text for %s: %w", entity.DocumentID, err)
	}
	structuredEmb, err := g.embedder.Embed(ctx, structuredText)
	if err != nil {
		g.logger.Error("embed structured text failed",
			zap.String("document_id", entity.DocumentID), zap.Error(err))
		return domain.DualEmbeddingResult{}, fmt.Errorf("embed structured text for %s: %w", entity.DocumentID, err)
	}

	res := domain.DualEmbeddingResult{
		DocumentID:        entity.DocumentID,
		NaturalText:       naturalText,
		NaturalVector:     naturalEmb.Embedding,
		NaturalPointID:    pointID(entity.DocumentID, "natural"),
		StructuredText:    structuredText,
		StructuredVector:  structuredEmb.Embedding,
		StructuredPointID: pointID(entity.DocumentID, "structured"),
	}

	payload := indexPayload(entity)
	if err := g.index.UpsertPoint(ctx, g.naturalCollection, qdrant.Point{
		ID: res.NaturalPointID, Vector: res.NaturalVector, Payload: payload,
	}); err != nil {
		return domain.DualEmbeddingResult{}, fmt.Errorf("index natural vector for %s: %w", entity.DocumentID, err)
	}
	if err := g.index.UpsertPoint(ctx, g.structuredCollection, qdrant.Point{
		ID: res.StructuredPointID, Vector: res.StructuredVector, Payload: payload,
	}); err != nil {
		return domain.DualEmbeddingResult{}, fmt.Errorf("index structured vector for %s: %w", entity.DocumentID, err)
	}

	if err := g.cache.Upsert(ctx, res); err != nil {
		return domain.DualEmbeddingResult{}, err
	}
	return res, nil
}

// GenerateBatch processes entities chunk by chunk. Chunks run sequentially
// to bound provider concurrency; entities within a chunk run concurrently.
// The first failure aborts the batch.
func (g *Generator) GenerateBatch(ctx context.Context, entities []domcat.Entity, batchSize int) ([]domain.DualEmbeddingResult, error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	results := make([]domain.DualEmbeddingResult, len(entities))

	for start := 0; start < len(entities); start += batchSize {
		end := start + batchSize
		if end > len(entities) {
			end = len(entities)
		}

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			firstErr error
		)
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := g.GenerateDualEmbeddings(ctx, entities[i])
				mu.Lock()
				defer mu.Unlock()
				if err != nil && firstErr == nil {
					firstErr = err
					return
				}
				results[i] = res
			}(i)
		}
		wg.Wait()
		if firstErr != nil {
			return nil, firstErr
		}
	}
	return results, nil
}

// GenerateQueryEmbedding vectorizes ad-hoc query text. Query-level caching
// is handled by the embedder decorator, not here.
func (g *Generator) GenerateQueryEmbedding(ctx context.Context, text string) ([]float32, error) {
	res, err := g.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return res.Embedding, nil
}

// MarkStale flags a cached embedding for regeneration after the source
// entity changed.
func (g *Generator) MarkStale(ctx context.Context, documentID string) error {
	return g.cache.MarkStale(ctx, documentID)
}

// RefreshStale regenerates a bounded number of stale cache entries from
// their current catalog attributes and returns how many were refreshed.
func (g *Generator) RefreshStale(ctx context.Context, batchSize int) (int, error) {
	ids, err := g.cache.ListStale(ctx, g.staleBatchLimit)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	entities, err := g.catalog.GetBatch(ctx, ids)
	if err != nil {
		return 0, err
	}
	results, err := g.GenerateBatch(ctx, entities, batchSize)
	if err != nil {
		return 0, err
	}
	g.logger.Info("refreshed stale embeddings",
		zap.Int("stale", len(ids)), zap.Int("refreshed", len(results)))
	return len(results), nil
}

// pointID derives a stable index point id from the document id so upserts
// replace rather than duplicate.
func pointID(documentID, kind string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(documentID+":"+kind)).String()
}

func indexPayload(e domcat.Entity) map[string]string {
	payload := map[string]string{
		"document_id": e.DocumentID,
		"object_type": string(e.ObjectType),
		"name":        e.Name,
	}
	if e.Schema != "" {
		payload["schema"] = e.Schema
	}
	if e.Database != "" {
		payload["database"] = e.Database
	}
	if e.Category != "" {
		payload["category"] = e.Category
	}
	if e.IsPII {
		payload["pii"] = "true"
	}
	return payload
}
