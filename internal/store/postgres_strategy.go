package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *PostgresStore) ListGuidelines(ctx context.Context, cycleID string) ([]Guideline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cycle_id, title, description, status, relation_type, parent_guideline_id,
			map_x, map_y, line_side, created_at, updated_at
		FROM guidelines WHERE cycle_id=$1
		ORDER BY created_at
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list guidelines: %w", err)
	}
	defer rows.Close()

	var items []Guideline
	for rows.Next() {
		var item Guideline
		if err := rows.Scan(&item.ID, &item.CycleID, &item.Title, &item.Description, &item.Status, &item.RelationType,
			&item.ParentGuidelineID, &item.MapX, &item.MapY, &item.LineSide, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan guideline: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetGuideline(ctx context.Context, id string) (Guideline, error) {
	var item Guideline
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cycle_id, title, description, status, relation_type, parent_guideline_id,
			map_x, map_y, line_side, created_at, updated_at
		FROM guidelines WHERE id=$1
	`, id).Scan(&item.ID, &item.CycleID, &item.Title, &item.Description, &item.Status, &item.RelationType,
		&item.ParentGuidelineID, &item.MapX, &item.MapY, &item.LineSide, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Guideline{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertGuideline(ctx context.Context, item Guideline) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guidelines (id, cycle_id, title, description, status, relation_type, parent_guideline_id, line_side)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.CycleID, item.Title, item.Description, item.Status, item.RelationType, item.ParentGuidelineID, item.LineSide)
	if err != nil {
		return fmt.Errorf("insert guideline: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateGuideline(ctx context.Context, item Guideline) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE guidelines
		SET title=$2, description=$3, status=$4, relation_type=$5, parent_guideline_id=$6, line_side=$7, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Title, item.Description, item.Status, item.RelationType, item.ParentGuidelineID, item.LineSide)
	if err != nil {
		return fmt.Errorf("update guideline: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update guideline rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteGuideline removes a guideline and resets its children to orphans in
// the same transaction, so a dangling parent reference can never be observed.
func (s *PostgresStore) DeleteGuideline(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete guideline: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE guidelines
		SET relation_type='orphan', parent_guideline_id=NULL, updated_at=NOW()
		WHERE parent_guideline_id=$1
	`, id); err != nil {
		return fmt.Errorf("orphan children: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE target_kind='guideline' AND target_id=$1`, id); err != nil {
		return fmt.Errorf("delete guideline votes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE target_kind='guideline' AND target_id=$1`, id); err != nil {
		return fmt.Errorf("delete guideline comments: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM guidelines WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete guideline: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete guideline rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

func (s *PostgresStore) ChildCount(ctx context.Context, guidelineID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM guidelines WHERE parent_guideline_id=$1
	`, guidelineID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count children: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) UpdateGuidelinePosition(ctx context.Context, id, cycleID string, x, y int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE guidelines SET map_x=$3, map_y=$4, updated_at=NOW() WHERE id=$1 AND cycle_id=$2
	`, id, cycleID, x, y)
	if err != nil {
		return false, fmt.Errorf("update guideline position: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update guideline position rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListInitiatives(ctx context.Context, cycleID string) ([]Initiative, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.cycle_id, i.title, i.description, i.status, i.map_x, i.map_y, i.line_side,
			COALESCE(ARRAY_AGG(ig.guideline_id) FILTER (WHERE ig.guideline_id IS NOT NULL), '{}'),
			i.created_at, i.updated_at
		FROM initiatives i
		LEFT JOIN initiative_guidelines ig ON ig.initiative_id = i.id
		WHERE i.cycle_id=$1
		GROUP BY i.id
		ORDER BY i.created_at
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list initiatives: %w", err)
	}
	defer rows.Close()

	var items []Initiative
	for rows.Next() {
		var item Initiative
		var linked []byte
		if err := rows.Scan(&item.ID, &item.CycleID, &item.Title, &item.Description, &item.Status,
			&item.MapX, &item.MapY, &item.LineSide, &linked, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan initiative: %w", err)
		}
		item.GuidelineIDs = parseTextArray(linked)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetInitiative(ctx context.Context, id string) (Initiative, error) {
	var item Initiative
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cycle_id, title, description, status, map_x, map_y, line_side, created_at, updated_at
		FROM initiatives WHERE id=$1
	`, id).Scan(&item.ID, &item.CycleID, &item.Title, &item.Description, &item.Status, &item.MapX, &item.MapY,
		&item.LineSide, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Initiative{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT guideline_id FROM initiative_guidelines WHERE initiative_id=$1 ORDER BY guideline_id
	`, id)
	if err != nil {
		return Initiative{}, fmt.Errorf("list initiative links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var guidelineID string
		if err := rows.Scan(&guidelineID); err != nil {
			return Initiative{}, fmt.Errorf("scan initiative link: %w", err)
		}
		item.GuidelineIDs = append(item.GuidelineIDs, guidelineID)
	}
	return item, rows.Err()
}

func (s *PostgresStore) InsertInitiative(ctx context.Context, item Initiative) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert initiative: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO initiatives (id, cycle_id, title, description, status, line_side) VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.CycleID, item.Title, item.Description, item.Status, item.LineSide); err != nil {
		return fmt.Errorf("insert initiative: %w", err)
	}
	for _, guidelineID := range item.GuidelineIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO initiative_guidelines (initiative_id, guideline_id) VALUES ($1, $2)
		`, item.ID, guidelineID); err != nil {
			return fmt.Errorf("insert initiative link: %w", err)
		}
	}
	return tx.Commit()
}

// UpdateInitiative replaces the initiative row and its guideline link set
// atomically.
func (s *PostgresStore) UpdateInitiative(ctx context.Context, item Initiative) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update initiative: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE initiatives SET title=$2, description=$3, status=$4, line_side=$5, updated_at=NOW() WHERE id=$1
	`, item.ID, item.Title, item.Description, item.Status, item.LineSide)
	if err != nil {
		return fmt.Errorf("update initiative: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update initiative rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM initiative_guidelines WHERE initiative_id=$1`, item.ID); err != nil {
		return fmt.Errorf("clear initiative links: %w", err)
	}
	for _, guidelineID := range item.GuidelineIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO initiative_guidelines (initiative_id, guideline_id) VALUES ($1, $2)
		`, item.ID, guidelineID); err != nil {
			return fmt.Errorf("insert initiative link: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) UpdateInitiativePosition(ctx context.Context, id, cycleID string, x, y int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE initiatives SET map_x=$3, map_y=$4, updated_at=NOW() WHERE id=$1 AND cycle_id=$2
	`, id, cycleID, x, y)
	if err != nil {
		return false, fmt.Errorf("update initiative position: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update initiative position rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, target_kind, target_id, author, body) VALUES ($1, $2, $3, $4, $5)
	`, comment.ID, comment.TargetKind, comment.TargetID, comment.Author, comment.Body)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, targetKind, targetID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_kind, target_id, author, body, created_at
		FROM comments WHERE target_kind=$1 AND target_id=$2
		ORDER BY created_at
	`, targetKind, targetID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var items []Comment
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.TargetKind, &item.TargetID, &item.Author, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListCommentCounts tallies comments for every votable target in a cycle.
func (s *PostgresStore) ListCommentCounts(ctx context.Context, cycleID string) ([]CommentCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.target_kind, c.target_id, count(*)
		FROM comments c
		WHERE (c.target_kind = 'guideline' AND c.target_id IN (SELECT id FROM guidelines WHERE cycle_id=$1))
			OR (c.target_kind = 'initiative' AND c.target_id IN (SELECT id FROM initiatives WHERE cycle_id=$1))
		GROUP BY c.target_kind, c.target_id
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list comment counts: %w", err)
	}
	defer rows.Close()

	var items []CommentCount
	for rows.Next() {
		var item CommentCount
		if err := rows.Scan(&item.TargetKind, &item.TargetID, &item.Count); err != nil {
			return nil, fmt.Errorf("scan comment count: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// parseTextArray decodes a one-dimensional postgres text array literal like
// {a,b,c}. Element values here are generated ids, so quoting never appears.
func parseTextArray(raw []byte) []string {
	trimmed := string(raw)
	if len(trimmed) < 2 || trimmed == "{}" {
		return nil
	}
	trimmed = trimmed[1 : len(trimmed)-1]
	if trimmed == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(trimmed); i++ {
		if i == len(trimmed) || trimmed[i] == ',' {
			out = append(out, trimmed[start:i])
			start = i + 1
		}
	}
	return out
}
