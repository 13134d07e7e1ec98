// Package interactions appends to the query and interaction logs and reads
// the aggregates the continuous learner derives from them.
package interactions

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	domlearn "github.com/datacove/metaseek/internal/domain/learning"
)

// Repo is the interaction and query log repository.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates an interaction log repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// LogQuery appends one entry to the query log.
func (r *Repo) LogQuery(ctx context.Context, queryID, userID, query, path string, resultCount int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO search_queries (query_id, user_id, query, path, result_count)
		VALUES ($1, $2, $3, $4, $5)`,
		queryID, userID, query, path, resultCount)
	if err != nil {
		return fmt.Errorf("log query %s: %w", queryID, err)
	}
	return nil
}

// Insert appends one interaction. The log is append-only.
func (r *Repo) Insert(ctx context.Context, in domlearn.Interaction) error {
	payload := in.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO search_interactions (query_id, user_id, interaction_type, document_id, payload, result_rank)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		in.QueryID, in.UserID, string(in.Type), in.DocumentID, payload, in.ResultRank)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// PendingCount returns the number of unprocessed interactions.
func (r *Repo) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM search_interactions WHERE NOT processed`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending interactions: %w", err)
	}
	return n, nil
}

// ListUnprocessed returns all unprocessed interactions, oldest first.
func (r *Repo) ListUnprocessed(ctx context.Context) ([]domlearn.Interaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, query_id, user_id, interaction_type, document_id, payload, result_rank, created_at
		FROM search_interactions WHERE NOT processed ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed interactions: %w", err)
	}
	defer rows.Close()

	var out []domlearn.Interaction
	for rows.Next() {
		var (
			in    domlearn.Interaction
			itype string
		)
		if err := rows.Scan(&in.ID, &in.QueryID, &in.UserID, &itype,
			&in.DocumentID, &in.Payload, &in.ResultRank, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		in.Type = domlearn.InteractionType(itype)
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return out, nil
}

// MarkProcessed flags the given interactions complete in one batch.
func (r *Repo) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE search_interactions SET processed = TRUE WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark %d interactions processed: %w", len(ids), err)
	}
	return nil
}

// Analytics computes point-in-time aggregates over the logs since the given
// time.
func (r *Repo) Analytics(ctx context.Context, since time.Time) (domlearn.Analytics, error) {
	a := domlearn.Analytics{
		Since:            since,
		PathDistribution: map[string]int{},
	}

	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM search_queries WHERE created_at >= $1),
			(SELECT COUNT(*) FROM search_interactions WHERE created_at >= $1),
			COALESCE((SELECT AVG(result_rank) FROM search_interactions
				WHERE created_at >= $1 AND interaction_type = 'click' AND result_rank >= 0), 0),
			COALESCE((SELECT MAX(created_at) FROM search_interactions
				WHERE processed), 'epoch'::timestamptz)`,
		since,
	).Scan(&a.TotalQueries, &a.TotalInteractions, &a.AvgClickRank, &a.LastProcessedAt)
	if err != nil {
		return domlearn.Analytics{}, fmt.Errorf("analytics totals: %w", err)
	}

	if a.TotalQueries > 0 {
		var clickedQueries int
		err = r.pool.QueryRow(ctx, `
			SELECT COUNT(DISTINCT query_id) FROM search_interactions
			WHERE created_at >= $1 AND interaction_type = 'click'`, since,
		).Scan(&clickedQueries)
		if err != nil {
			return domlearn.Analytics{}, fmt.Errorf("analytics ctr: %w", err)
		}
		a.ClickThroughRate = float64(clickedQueries) / float64(a.TotalQueries)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT path, COUNT(*) FROM search_queries
		WHERE created_at >= $1 GROUP BY path`, since)
	if err != nil {
		return domlearn.Analytics{}, fmt.Errorf("analytics path distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p string
			n int
		)
		if err := rows.Scan(&p, &n); err != nil {
			return domlearn.Analytics{}, fmt.Errorf("scan path distribution: %w", err)
		}
		a.PathDistribution[p] = n
	}
	if err := rows.Err(); err != nil {
		return domlearn.Analytics{}, fmt.Errorf("iterate path distribution: %w", err)
	}

	terms, err := r.topTerms(ctx, since, 10)
	if err != nil {
		return domlearn.Analytics{}, err
	}
	a.TopSearchTerms = terms
	return a, nil
}

// topTerms tokenizes logged query text in SQL and counts term frequency.
// Terms shorter than 3 runes are noise and skipped.
func (r *Repo) topTerms(ctx context.Context, since time.Time, limit int) ([]domlearn.TermCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT term, COUNT(*) AS freq FROM (
			SELECT LOWER(UNNEST(STRING_TO_ARRAY(query, ' '))) AS term
			FROM search_queries WHERE created_at >= $1
		) t
		WHERE LENGTH(term) >= 3
		GROUP BY term ORDER BY freq DESC, term ASC LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("analytics top terms: %w", err)
	}
	defer rows.Close()

	var out []domlearn.TermCount
	for rows.Next() {
		var tc domlearn.TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan top term: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top terms: %w", err)
	}
	return out, nil
}
