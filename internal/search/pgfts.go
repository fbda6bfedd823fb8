package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across guidelines and initiatives using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
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

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultGuideline {
		where := "g.fts @@ " + tsQuery
		if q.FilterCycleID != "" {
			where += fmt.Sprintf(" AND g.cycle_id = $%d", argN)
			args = append(args, q.FilterCycleID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'guideline'::text AS type, g.id, g.title,
				ts_headline('english', coalesce(g.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				g.cycle_id, g.status,
				ts_rank(g.fts, %s) AS rank
			FROM guidelines g
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if q.FilterType == "" || q.FilterType == ResultInitiative {
		where := "i.fts @@ " + tsQuery
		if q.FilterCycleID != "" {
			where += fmt.Sprintf(" AND i.cycle_id = $%d", argN)
			args = append(args, q.FilterCycleID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'initiative'::text AS type, i.id, i.title,
				ts_headline('english', coalesce(i.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				i.cycle_id, i.status,
				ts_rank(i.fts, %s) AS rank
			FROM initiatives i
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, cycle_id, status
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

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
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.CycleID, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]GuidelineRecord, []InitiativeRecord, error) {
	glRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, cycle_id, status, relation_type
		FROM guidelines
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load guidelines: %w", err)
	}
	defer glRows.Close()

	guidelines := make([]GuidelineRecord, 0)
	for glRows.Next() {
		var g GuidelineRecord
		if err := glRows.Scan(&g.ID, &g.Title, &g.Description, &g.CycleID, &g.Status, &g.RelationType); err != nil {
			return nil, nil, fmt.Errorf("scan guideline: %w", err)
		}
		guidelines = append(guidelines, g)
	}
	if err := glRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate guidelines: %w", err)
	}

	initRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, cycle_id, status
		FROM initiatives
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load initiatives: %w", err)
	}
	defer initRows.Close()

	initiatives := make([]InitiativeRecord, 0)
	for initRows.Next() {
		var i InitiativeRecord
		if err := initRows.Scan(&i.ID, &i.Title, &i.Description, &i.CycleID, &i.Status); err != nil {
			return nil, nil, fmt.Errorf("scan initiative: %w", err)
		}
		initiatives = append(initiatives, i)
	}
	if err := initRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate initiatives: %w", err)
	}

	return guidelines, initiatives, nil
}
