package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// It searches the latest edition of each guide.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over each guide's latest edition, ranked with
// ts_rank and snippeted with ts_headline.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const tsQuery = "plainto_tsquery('english', $1)"
	args := []any{q.Text}

	where := "e.fts @@ " + tsQuery
	if q.FilterState != "" {
		args = append(args, q.FilterState)
		where += fmt.Sprintf(" AND e.state = $%d", len(args))
	}

	base := fmt.Sprintf(`
		SELECT g.id, g.slug, e.title,
			ts_headline('english', coalesce(e.description, e.body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			e.state, COALESCE(a.display_name, '') AS author,
			ts_rank(e.fts, %s) AS rank
		FROM guides g
		JOIN LATERAL (
			SELECT * FROM editions
			WHERE guide_id = g.id
			ORDER BY version DESC, created_at DESC
			LIMIT 1
		) e ON TRUE
		LEFT JOIN users a ON a.id = e.author_id
		WHERE %s`, tsQuery, tsQuery, where)

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", base)
	dataSQL := fmt.Sprintf(`SELECT id, slug, title, snippet, state, author
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, base, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.GuideID, &r.Slug, &r.Title, &r.Snippet, &r.State, &r.Author); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every guide's latest edition for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]GuideRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT g.id, g.slug, e.title, COALESCE(e.description, ''), e.body, e.state, COALESCE(a.display_name, '')
		FROM guides g
		JOIN LATERAL (
			SELECT * FROM editions
			WHERE guide_id = g.id
			ORDER BY version DESC, created_at DESC
			LIMIT 1
		) e ON TRUE
		LEFT JOIN users a ON a.id = e.author_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load guides: %w", err)
	}
	defer rows.Close()

	guides := make([]GuideRecord, 0)
	for rows.Next() {
		var g GuideRecord
		if err := rows.Scan(&g.ID, &g.Slug, &g.Title, &g.Description, &g.Body, &g.State, &g.Author); err != nil {
			return nil, fmt.Errorf("scan guide record: %w", err)
		}
		guides = append(guides, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guide records: %w", err)
	}
	return guides, nil
}
