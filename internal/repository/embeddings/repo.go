// Package embeddings persists the dual-embedding cache in the relational
// store. Entries are invalidated with a stale flag, never deleted.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/datacove/metaseek/internal/domain"
)

// Repo is the dual-embedding cache repository.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates an embedding cache repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Get returns the cached dual embedding for a document id.
// Returns domain.ErrNotFound on a cache miss.
func (r *Repo) Get(ctx context.Context, documentID string) (domain.DualEmbeddingResult, error) {
	var (
		res        domain.DualEmbeddingResult
		naturalVec pgvector.Vector
		structVec  pgvector.Vector
	)
	err := r.pool.QueryRow(ctx, `
		SELECT document_id, natural_text, natural_vector, natural_point_id,
		       structured_text, structured_vector, structured_point_id, stale
		FROM embedding_cache WHERE document_id = $1`, documentID,
	).Scan(
		&res.DocumentID, &res.NaturalText, &naturalVec, &res.NaturalPointID,
		&res.StructuredText, &structVec, &res.StructuredPointID, &res.Stale,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DualEmbeddingResult{}, fmt.Errorf("embedding cache %s: %w", documentID, domain.ErrNotFound)
		}
		return domain.DualEmbeddingResult{}, fmt.Errorf("get cached embedding %s: %w", documentID, err)
	}
	res.NaturalVector = naturalVec.Slice()
	res.StructuredVector = structVec.Slice()
	res.CacheHit = true
	return res, nil
}

// Upsert writes both vectors plus source texts, keyed by document id
// (last-writer-wins) and clears staleness.
func (r *Repo) Upsert(ctx context.Context, res domain.DualEmbeddingResult) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO embedding_cache (
			document_id, natural_text, natural_vector, natural_point_id,
			structured_text, structured_vector, structured_point_id, stale, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NOW())
		ON CONFLICT (document_id) DO UPDATE SET
			natural_text = EXCLUDED.natural_text,
			natural_vector = EXCLUDED.natural_vector,
			natural_point_id = EXCLUDED.natural_point_id,
			structured_text = EXCLUDED.structured_text,
			structured_vector = EXCLUDED.structured_vector,
			structured_point_id = EXCLUDED.structured_point_id,
			stale = FALSE,
			updated_at = NOW()`,
		res.DocumentID, res.NaturalText, pgvector.NewVector(res.NaturalVector), res.NaturalPointID,
		res.StructuredText, pgvector.NewVector(res.StructuredVector), res.StructuredPointID,
	)
	if err != nil {
		return fmt.Errorf("upsert cached embedding %s: %w", res.DocumentID, err)
	}
	return nil
}

// MarkStale flags a cache entry for regeneration after a catalog change.
func (r *Repo) MarkStale(ctx context.Context, documentID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE embedding_cache SET stale = TRUE WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("mark embedding stale %s: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("embedding cache %s: %w", documentID, domain.ErrNotFound)
	}
	return nil
}

// ListStale returns up to limit document ids flagged stale, oldest first.
func (r *Repo) ListStale(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT document_id FROM embedding_cache
		WHERE stale ORDER BY updated_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale embeddings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale ids: %w", err)
	}
	return ids, nil
}
