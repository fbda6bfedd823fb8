package ledger

import (
	"context"
	"errors"
	"math/rand"
	"testing"
)

// memTx is an in-memory Tx for exercising the budget rule without a database.
type memTx struct {
	scores map[string]int // key: kind/target
	cycles map[string]string
}

func newMemTx() *memTx {
	return &memTx{scores: map[string]int{}, cycles: map[string]string{}}
}

func key(kind, target string) string { return kind + "/" + target }

func (m *memTx) CurrentScore(_ context.Context, _, kind, target string) (int, bool, error) {
	score, ok := m.scores[key(kind, target)]
	return score, ok, nil
}

func (m *memTx) TotalSpend(_ context.Context, _, cycleID string) (int, error) {
	total := 0
	for k, score := range m.scores {
		if m.cycles[k] == cycleID {
			total += score
		}
	}
	return total, nil
}

func (m *memTx) UpsertScore(_ context.Context, _, kind, target, cycleID string, score int) error {
	m.scores[key(kind, target)] = score
	m.cycles[key(kind, target)] = cycleID
	return nil
}

func TestCastBudgetScenario(t *testing.T) {
	l := Ledger{Budget: 20}
	tx := newMemTx()
	ctx := context.Background()

	receipt, err := l.Cast(ctx, tx, "voter", "guideline", "a", "cycle", 5)
	if err != nil {
		t.Fatalf("cast guideline=5: %v", err)
	}
	if receipt.TotalUsed != 5 {
		t.Fatalf("totalUsed = %d, want 5", receipt.TotalUsed)
	}

	receipt, err = l.Cast(ctx, tx, "voter", "initiative", "b", "cycle", 5)
	if err != nil {
		t.Fatalf("cast initiative=5: %v", err)
	}
	if receipt.TotalUsed != 10 {
		t.Fatalf("totalUsed = %d, want 10", receipt.TotalUsed)
	}

	// Raising A to 12 would make nextTotal 17... but 12 exceeds the per-vote
	// cap first.
	if _, err := l.Cast(ctx, tx, "voter", "guideline", "a", "cycle", 12); !errors.Is(err, ErrInvalidScore) {
		t.Fatalf("cast guideline=12: err = %v, want ErrInvalidScore", err)
	}

	// Fill to the cap, then verify the 5→5 re-cast is a spend no-op.
	for _, target := range []string{"c", "d"} {
		if _, err := l.Cast(ctx, tx, "voter", "guideline", target, "cycle", 5); err != nil {
			t.Fatalf("cast guideline %s=5: %v", target, err)
		}
	}
	receipt, err = l.Cast(ctx, tx, "voter", "guideline", "a", "cycle", 5)
	if err != nil {
		t.Fatalf("idempotent re-cast: %v", err)
	}
	if receipt.TotalUsed != 20 {
		t.Fatalf("totalUsed after re-cast = %d, want 20", receipt.TotalUsed)
	}

	// Any raise now overspends.
	if _, err := l.Cast(ctx, tx, "voter", "initiative", "e", "cycle", 1); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("overspend: err = %v, want ErrBudgetExceeded", err)
	}
}

func TestCastCrossTypeBudget(t *testing.T) {
	l := Ledger{Budget: 20}
	tx := newMemTx()
	ctx := context.Background()

	if _, err := l.Cast(ctx, tx, "voter", "guideline", "a", "cycle", 5); err != nil {
		t.Fatalf("cast a=5: %v", err)
	}
	if _, err := l.Cast(ctx, tx, "voter", "initiative", "b", "cycle", 5); err != nil {
		t.Fatalf("cast b=5: %v", err)
	}
	if _, err := l.Cast(ctx, tx, "voter", "guideline", "c", "cycle", 5); err != nil {
		t.Fatalf("cast c=5: %v", err)
	}
	// 15 spent; raising a from 5 to 5+... a jump to MaxScore is fine, an
	// overspend via another target is not.
	receipt, err := l.Cast(ctx, tx, "voter", "initiative", "d", "cycle", 5)
	if err != nil {
		t.Fatalf("cast d=5: %v", err)
	}
	if receipt.TotalUsed != 20 {
		t.Fatalf("totalUsed = %d, want 20", receipt.TotalUsed)
	}
	if _, err := l.Cast(ctx, tx, "voter", "guideline", "e", "cycle", 1); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("cross-type overspend: err = %v, want ErrBudgetExceeded", err)
	}
}

func TestCastLoweringFreesBudget(t *testing.T) {
	l := Ledger{Budget: 10}
	tx := newMemTx()
	ctx := context.Background()

	if _, err := l.Cast(ctx, tx, "voter", "guideline", "a", "cycle", 5); err != nil {
		t.Fatalf("cast a=5: %v", err)
	}
	if _, err := l.Cast(ctx, tx, "voter", "guideline", "b", "cycle", 5); err != nil {
		t.Fatalf("cast b=5: %v", err)
	}
	if _, err := l.Cast(ctx, tx, "voter", "guideline", "c", "cycle", 1); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected budget exceeded, got %v", err)
	}

	receipt, err := l.Cast(ctx, tx, "voter", "guideline", "a", "cycle", 2)
	if err != nil {
		t.Fatalf("lower a to 2: %v", err)
	}
	if receipt.TotalUsed != 7 {
		t.Fatalf("totalUsed = %d, want 7", receipt.TotalUsed)
	}
	if _, err := l.Cast(ctx, tx, "voter", "guideline", "c", "cycle", 3); err != nil {
		t.Fatalf("cast c=3 after freeing budget: %v", err)
	}
}

func TestCastZeroFirstVoteWritesNothing(t *testing.T) {
	l := Ledger{Budget: 20}
	tx := newMemTx()

	receipt, err := l.Cast(context.Background(), tx, "voter", "guideline", "a", "cycle", 0)
	if err != nil {
		t.Fatalf("cast a=0: %v", err)
	}
	if receipt.TotalUsed != 0 {
		t.Fatalf("totalUsed = %d, want 0", receipt.TotalUsed)
	}
	if len(tx.scores) != 0 {
		t.Fatalf("expected no vote rows, got %d", len(tx.scores))
	}
}

func TestCastRejectsOutOfRangeScores(t *testing.T) {
	l := Ledger{Budget: 20}
	tx := newMemTx()
	for _, score := range []int{-1, 6, 100} {
		if _, err := l.Cast(context.Background(), tx, "voter", "guideline", "a", "cycle", score); !errors.Is(err, ErrInvalidScore) {
			t.Fatalf("score %d: err = %v, want ErrInvalidScore", score, err)
		}
	}
}

// The budget invariant must hold after any sequence of casts, whatever the
// interleaving of targets, kinds, and scores.
func TestCastBudgetInvariantRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	targets := []string{"a", "b", "c", "d", "e", "f"}
	kinds := []string{"guideline", "initiative"}

	for run := 0; run < 200; run++ {
		l := Ledger{Budget: 20}
		tx := newMemTx()
		for i := 0; i < 50; i++ {
			kind := kinds[rng.Intn(len(kinds))]
			target := targets[rng.Intn(len(targets))]
			score := rng.Intn(8) - 1 // includes invalid values
			_, _ = l.Cast(context.Background(), tx, "voter", kind, target, "cycle", score)

			total := 0
			for _, s := range tx.scores {
				total += s
			}
			if total > l.Budget {
				t.Fatalf("run %d step %d: total spend %d exceeds budget %d", run, i, total, l.Budget)
			}
		}
	}
}
