// Package ledger enforces the per-voter, per-cycle vote budget.
//
// The rule is a read-modify-write over two aggregates: the voter's current
// score on the target and the voter's total spend across both target kinds in
// the owning cycle. Callers must run Cast inside a single serializable
// transaction (or equivalent atomic conditional update) so concurrent casts
// by the same voter cannot both pass the check against a stale total.
package ledger

import (
	"context"
	"errors"
)

// MaxScore is the largest score a single vote may carry.
const MaxScore = 5

var (
	ErrBudgetExceeded = errors.New("vote budget exceeded")
	ErrInvalidScore   = errors.New("score must be between 0 and 5")
)

// Tx is the transactional view the ledger operates on. Implementations must
// make CurrentScore/TotalSpend/UpsertScore atomic with respect to other casts
// by the same voter.
type Tx interface {
	// CurrentScore returns the voter's existing score for the target, and
	// whether a vote row exists at all.
	CurrentScore(ctx context.Context, voterID, targetKind, targetID string) (int, bool, error)
	// TotalSpend returns the voter's summed score across both guideline and
	// initiative votes in the cycle.
	TotalSpend(ctx context.Context, voterID, cycleID string) (int, error)
	// UpsertScore inserts or updates the vote row with the new score.
	UpsertScore(ctx context.Context, voterID, targetKind, targetID, cycleID string, score int) error
}

// Receipt reports the outcome of a successful cast.
type Receipt struct {
	Score     int
	TotalUsed int
}

type Ledger struct {
	Budget int
}

// Cast applies one vote under the budget. A cast to the voter's current score
// is a no-op on total spend; a first-time zero vote writes nothing at all.
func (l Ledger) Cast(ctx context.Context, tx Tx, voterID, targetKind, targetID, cycleID string, score int) (Receipt, error) {
	if score < 0 || score > MaxScore {
		return Receipt{}, ErrInvalidScore
	}

	current, exists, err := tx.CurrentScore(ctx, voterID, targetKind, targetID)
	if err != nil {
		return Receipt{}, err
	}
	total, err := tx.TotalSpend(ctx, voterID, cycleID)
	if err != nil {
		return Receipt{}, err
	}

	nextTotal := total - current + score
	if nextTotal > l.Budget {
		return Receipt{}, ErrBudgetExceeded
	}

	// Vote rows are created on the first non-zero vote only.
	if !exists && score == 0 {
		return Receipt{Score: 0, TotalUsed: total}, nil
	}

	if err := tx.UpsertScore(ctx, voterID, targetKind, targetID, cycleID, score); err != nil {
		return Receipt{}, err
	}
	return Receipt{Score: score, TotalUsed: nextTotal}, nil
}
