// Package vectorsearch issues nearest-neighbor queries against the two
// embedding collections and fuses the lists with reciprocal rank fusion.
package vectorsearch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/datacove/metaseek/internal/transport/qdrant"
)

// Service handles vector search across the natural-language and structured
// collections.
type Service struct {
	index                Index
	embedder             Embedder
	naturalCollection    string
	structuredCollection string
	logger               *zap.Logger
}

// New creates a vector search service.
func New(index Index, embedder Embedder, naturalCollection, structuredCollection string, logger *zap.Logger) *Service {
	return &Service{
		index:                index,
		embedder:             embedder,
		naturalCollection:    naturalCollection,
		structuredCollection: structuredCollection,
		logger:               logger,
	}
}

// SearchNaturalLanguage queries the natural-language collection only.
func (s *Service) SearchNaturalLanguage(ctx context.Context, query string, topK int, filters map[string]string) ([]Ranked, error) {
	return s.searchSingle(ctx, s.naturalCollection, query, topK, filters)
}

// SearchStructured queries the structured collection only.
func (s *Service) SearchStructured(ctx context.Context, query string, topK int, filters map[string]string) ([]Ranked, error) {
	return s.searchSingle(ctx, s.structuredCollection, query, topK, filters)
}

func (s *Service) searchSingle(ctx context.Context, collection, query string, topK int, filters map[string]string) ([]Ranked, error) {
	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	hits, err := s.index.Search(ctx, collection, emb.Embedding, topK, filters)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	ranked := make([]Ranked, len(hits))
	for i, h := range hits {
		ranked[i] = Ranked{
			DocumentID: h.ID,
			FusedScore: h.Score,
			Semantic:   h.Score,
			Payload:    h.Payload,
		}
	}
	return ranked, nil
}

// SearchHybrid embeds the query once, runs the two collection searches
// concurrently, joins them and fuses via RRF.
func (s *Service) SearchHybrid(ctx context.Context, query string, topK int, filters map[string]string) ([]Ranked, error) {
	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	naturalCh := make(chan searchOutcome, 1)
	structuredCh := make(chan searchOutcome, 1)
	go s.searchInto(ctx, s.naturalCollection, emb.Embedding, topK, filters, naturalCh)
	go s.searchInto(ctx, s.structuredCollection, emb.Embedding, topK, filters, structuredCh)

	natural := <-naturalCh
	structured := <-structuredCh
	if natural.err != nil {
		return nil, natural.err
	}
	if structured.err != nil {
		return nil, structured.err
	}

	fused := fuseRRF(natural.hits, structured.hits, topK)
	s.logger.Debug("hybrid search fused",
		zap.Int("natural_hits", len(natural.hits)),
		zap.Int("structured_hits", len(structured.hits)),
		zap.Int("fused", len(fused)))
	return fused, nil
}

type searchOutcome struct {
	hits []qdrant.ScoredPoint
	err  error
}

func (s *Service) searchInto(
	ctx context.Context, collection string,
	vector []float32, topK int, filters map[string]string,
	out chan<- searchOutcome,
) {
	hits, err := s.index.Search(ctx, collection, vector, topK, filters)
	if err != nil {
		out <- searchOutcome{err: fmt.Errorf("search %s: %w", collection, err)}
		return
	}
	out <- searchOutcome{hits: hits}
}
