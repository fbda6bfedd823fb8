package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"compass/api/internal/ledger"
)

// GetEntityContext resolves a guideline or initiative to its status, owning
// cycle, cycle state, and institution. Returns sql.ErrNoRows for unknown ids
// or kinds.
func (s *PostgresStore) GetEntityContext(ctx context.Context, targetKind, targetID string) (EntityContext, error) {
	var table string
	switch targetKind {
	case KindGuideline:
		table = "guidelines"
	case KindInitiative:
		table = "initiatives"
	default:
		return EntityContext{}, sql.ErrNoRows
	}

	query := fmt.Sprintf(`
		SELECT e.status, c.id, c.state, c.institution_id
		FROM %s e
		JOIN cycles c ON c.id = e.cycle_id
		WHERE e.id = $1
	`, table)

	var ec EntityContext
	err := s.db.QueryRowContext(ctx, query, targetID).Scan(&ec.Status, &ec.CycleID, &ec.CycleState, &ec.InstitutionID)
	if err != nil {
		return EntityContext{}, err
	}
	return ec, nil
}

// sqlVoteTx adapts one *sql.Tx to the ledger's transactional view. The
// current-score read locks the vote row so two casts by the same voter on the
// same target serialize even below the serializable isolation level.
type sqlVoteTx struct {
	tx *sql.Tx
}

func (t sqlVoteTx) CurrentScore(ctx context.Context, voterID, targetKind, targetID string) (int, bool, error) {
	var score int
	err := t.tx.QueryRowContext(ctx, `
		SELECT score FROM votes
		WHERE voter_id=$1 AND target_kind=$2 AND target_id=$3
		FOR UPDATE
	`, voterID, targetKind, targetID).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read current score: %w", err)
	}
	return score, true, nil
}

func (t sqlVoteTx) TotalSpend(ctx context.Context, voterID, cycleID string) (int, error) {
	var total int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(score), 0) FROM votes WHERE voter_id=$1 AND cycle_id=$2
	`, voterID, cycleID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum cycle spend: %w", err)
	}
	return total, nil
}

func (t sqlVoteTx) UpsertScore(ctx context.Context, voterID, targetKind, targetID, cycleID string, score int) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO votes (voter_id, target_kind, target_id, cycle_id, score)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (voter_id, target_kind, target_id)
		DO UPDATE SET score=EXCLUDED.score, updated_at=NOW()
	`, voterID, targetKind, targetID, cycleID, score)
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}
	return nil
}

// CastVote runs the ledger's read-modify-write inside one serializable
// transaction, so the budget check and the upsert are atomic.
func (s *PostgresStore) CastVote(ctx context.Context, voterID, targetKind, targetID, cycleID string, score, budget int) (VoteReceipt, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return VoteReceipt{}, fmt.Errorf("begin cast vote: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	receipt, err := ledger.Ledger{Budget: budget}.Cast(ctx, sqlVoteTx{tx: tx}, voterID, targetKind, targetID, cycleID, score)
	if err != nil {
		return VoteReceipt{}, err
	}
	if err := tx.Commit(); err != nil {
		return VoteReceipt{}, fmt.Errorf("commit cast vote: %w", err)
	}
	return VoteReceipt{Score: receipt.Score, TotalUsed: receipt.TotalUsed}, nil
}

// ListVotes returns one voter's votes across both kinds for a cycle.
func (s *PostgresStore) ListVotes(ctx context.Context, voterID, cycleID string) ([]Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT voter_id, target_kind, target_id, cycle_id, score, updated_at
		FROM votes WHERE voter_id=$1 AND cycle_id=$2
		ORDER BY target_kind, target_id
	`, voterID, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var items []Vote
	for rows.Next() {
		var item Vote
		if err := rows.Scan(&item.VoterID, &item.TargetKind, &item.TargetID, &item.CycleID, &item.Score, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListVoteTotals aggregates scores per target for the whole cycle, feeding
// node sizing on the map.
func (s *PostgresStore) ListVoteTotals(ctx context.Context, cycleID string) ([]VoteTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_kind, target_id, COALESCE(SUM(score), 0)
		FROM votes WHERE cycle_id=$1
		GROUP BY target_kind, target_id
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list vote totals: %w", err)
	}
	defer rows.Close()

	var items []VoteTotal
	for rows.Next() {
		var item VoteTotal
		if err := rows.Scan(&item.TargetKind, &item.TargetID, &item.Total); err != nil {
			return nil, fmt.Errorf("scan vote total: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
