// Package graphstore loads lineage graph nodes and edges from the
// relational store for in-memory rebuilds.
package graphstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	domgraph "github.com/datacove/metaseek/internal/domain/graph"
)

// Repo is the graph table read repository.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a graph store repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// LoadNodes returns every graph node.
func (r *Repo) LoadNodes(ctx context.Context) ([]domgraph.Node, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, object_type, name, schema_name, database_name, is_pii, pii_type, properties
		FROM graph_nodes`)
	if err != nil {
		return nil, fmt.Errorf("load graph nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domgraph.Node
	for rows.Next() {
		var n domgraph.Node
		if err := rows.Scan(&n.ID, &n.ObjectType, &n.Name, &n.Schema, &n.Database,
			&n.IsPII, &n.PIIType, &n.Properties); err != nil {
			return nil, fmt.Errorf("scan graph node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate graph nodes: %w", err)
	}
	return nodes, nil
}

// LoadEdges returns every graph edge.
func (r *Repo) LoadEdges(ctx context.Context) ([]domgraph.Edge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT source_id, target_id, edge_type, weight FROM graph_edges`)
	if err != nil {
		return nil, fmt.Errorf("load graph edges: %w", err)
	}
	defer rows.Close()

	var edges []domgraph.Edge
	for rows.Next() {
		var e domgraph.Edge
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Type, &e.Weight); err != nil {
			return nil, fmt.Errorf("scan graph edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate graph edges: %w", err)
	}
	return edges, nil
}
