// Package postgres owns the connection pool to the relational catalog store
// and the schema the engine's repositories consume.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Connect opens a pgx pool and verifies connectivity. pgvector types are
// registered on every connection so vector columns scan natively.
func Connect(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables the engine consumes if they do not exist.
// The catalog itself is owned by the ingestion pipeline; this covers local
// and test environments.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, vectorSize int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS catalog_objects (
			document_id TEXT PRIMARY KEY,
			object_type TEXT NOT NULL,
			name TEXT NOT NULL,
			schema_name TEXT NOT NULL DEFAULT '',
			database_name TEXT NOT NULL DEFAULT '',
			business_purpose TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			classification TEXT NOT NULL DEFAULT '',
			domain TEXT NOT NULL DEFAULT '',
			is_pii BOOLEAN NOT NULL DEFAULT FALSE,
			pii_type TEXT NOT NULL DEFAULT '',
			tags TEXT[] NOT NULL DEFAULT '{}'::TEXT[],
			dependency_count INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_catalog_objects_name ON catalog_objects(name)`,
		`CREATE INDEX IF NOT EXISTS idx_catalog_objects_category ON catalog_objects(category)`,
		`CREATE TABLE IF NOT EXISTS graph_nodes (
			id TEXT PRIMARY KEY,
			object_type TEXT NOT NULL,
			name TEXT NOT NULL,
			schema_name TEXT NOT NULL DEFAULT '',
			database_name TEXT NOT NULL DEFAULT '',
			is_pii BOOLEAN NOT NULL DEFAULT FALSE,
			pii_type TEXT NOT NULL DEFAULT '',
			properties JSONB NOT NULL DEFAULT '{}'::jsonb
		)`,
		`CREATE TABLE IF NOT EXISTS graph_edges (
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			edge_type TEXT NOT NULL DEFAULT '',
			weight DOUBLE PRECISION NOT NULL DEFAULT 1,
			PRIMARY KEY (source_id, target_id, edge_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON graph_edges(target_id)`,
		`CREATE TABLE IF NOT EXISTS search_queries (
			query_id UUID PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			query TEXT NOT NULL,
			path TEXT NOT NULL,
			result_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS search_interactions (
			id BIGSERIAL PRIMARY KEY,
			query_id UUID NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			interaction_type TEXT NOT NULL,
			document_id TEXT NOT NULL DEFAULT '',
			payload JSONB NOT NULL DEFAULT '{}'::jsonb,
			result_rank INT NOT NULL DEFAULT -1,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_interactions_processed
			ON search_interactions(processed) WHERE NOT processed`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embedding_cache (
			document_id TEXT PRIMARY KEY,
			natural_text TEXT NOT NULL DEFAULT '',
			natural_vector vector(%d),
			natural_point_id TEXT NOT NULL DEFAULT '',
			structured_text TEXT NOT NULL DEFAULT '',
			structured_vector vector(%d),
			structured_point_id TEXT NOT NULL DEFAULT '',
			stale BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, vectorSize, vectorSize),
		`CREATE INDEX IF NOT EXISTS idx_embedding_cache_stale
			ON embedding_cache(stale) WHERE stale`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
