// Package catalog reads metadata objects from the relational catalog store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datacove/metaseek/internal/domain"
	domcat "github.com/datacove/metaseek/internal/domain/catalog"
)

const entityColumns = `document_id, object_type, name, schema_name, database_name,
	business_purpose, category, classification, domain, is_pii, pii_type, tags, dependency_count`

// Repo is the catalog read repository.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a catalog repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Get returns one entity by document id.
func (r *Repo) Get(ctx context.Context, documentID string) (domcat.Entity, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM catalog_objects WHERE document_id = $1`, documentID)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domcat.Entity{}, fmt.Errorf("entity %s: %w", documentID, domain.ErrNotFound)
		}
		return domcat.Entity{}, fmt.Errorf("get entity %s: %w", documentID, err)
	}
	return e, nil
}

// GetBatch returns entities for the given document ids, preserving input
// order. Missing ids are silently skipped.
func (r *Repo) GetBatch(ctx context.Context, documentIDs []string) ([]domcat.Entity, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+entityColumns+` FROM catalog_objects WHERE document_id = ANY($1)`, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("get entity batch: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domcat.Entity, len(documentIDs))
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		byID[e.DocumentID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	ordered := make([]domcat.Entity, 0, len(byID))
	for _, id := range documentIDs {
		if e, ok := byID[id]; ok {
			ordered = append(ordered, e)
		}
	}
	return ordered, nil
}

// SearchKeyword matches object names exactly or by substring, exact hits
// first, then alphabetical.
func (r *Repo) SearchKeyword(ctx context.Context, term string, limit int) ([]domcat.Entity, error) {
	term = strings.TrimSpace(term)
	if term == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+entityColumns+`
		FROM catalog_objects
		WHERE name ILIKE '%' || $1 || '%'
		   OR schema_name || '.' || name ILIKE '%' || $1 || '%'
		ORDER BY (LOWER(name) = LOWER($1)) DESC, name ASC
		LIMIT $2`, term, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search %q: %w", term, err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

// SearchAttributes runs an exact-match conjunction over catalog attributes.
func (r *Repo) SearchAttributes(ctx context.Context, filter domcat.AttributeFilter, limit int) ([]domcat.Entity, error) {
	if limit <= 0 {
		return nil, nil
	}

	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("LOWER(%s) = LOWER($%d)", column, len(args)))
	}
	add("database_name", filter.Database)
	add("schema_name", filter.Schema)
	add("object_type", filter.ObjectType)
	add("category", filter.Category)
	add("classification", filter.Classification)
	add("domain", filter.Domain)
	if filter.PII != nil {
		args = append(args, *filter.PII)
		conds = append(conds, fmt.Sprintf("is_pii = $%d", len(args)))
	}

	query := `SELECT ` + entityColumns + ` FROM catalog_objects`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY name ASC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("attribute search: %w", err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

func collectEntities(rows pgx.Rows) ([]domcat.Entity, error) {
	var out []domcat.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

func scanEntity(row pgx.Row) (domcat.Entity, error) {
	var e domcat.Entity
	err := row.Scan(
		&e.DocumentID, &e.ObjectType, &e.Name, &e.Schema, &e.Database,
		&e.BusinessPurpose, &e.Category, &e.Classification, &e.Domain,
		&e.IsPII, &e.PIIType, &e.Tags, &e.DependencyCount,
	)
	return e, err
}
