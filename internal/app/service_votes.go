package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"compass/api/internal/ledger"
	"compass/api/internal/store"
)

// entityContext resolves a votable target and enforces tenancy plus cycle
// writability. Reads may pass write=false to inspect closed cycles.
func (s *Service) entityContext(ctx context.Context, session Session, targetKind, targetID string, write bool) (store.EntityContext, error) {
	if targetKind != store.KindGuideline && targetKind != store.KindInitiative {
		return store.EntityContext{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown target kind", map[string]any{"targetKind": targetKind})
	}
	ec, err := s.store.GetEntityContext(ctx, targetKind, targetID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.EntityContext{}, domainError(http.StatusNotFound, "NOT_FOUND", "target not found", nil)
	}
	if err != nil {
		return store.EntityContext{}, err
	}
	if session.InstitutionID != "" && ec.InstitutionID != session.InstitutionID {
		return store.EntityContext{}, domainError(http.StatusForbidden, "FORBIDDEN", "target belongs to another institution", nil)
	}
	if write && ec.CycleState != store.CycleOpen {
		return store.EntityContext{}, domainError(http.StatusConflict, "CONFLICT", "cycle not writable", nil)
	}
	return ec, nil
}

func (s *Service) CastVote(ctx context.Context, session Session, targetKind, targetID string, score int) (map[string]any, error) {
	ec, err := s.entityContext(ctx, session, targetKind, targetID, true)
	if err != nil {
		return nil, err
	}
	if ec.Status != store.StatusActive {
		return nil, domainError(http.StatusConflict, "CONFLICT", "voting disabled", map[string]any{"status": ec.Status})
	}

	receipt, err := s.store.CastVote(ctx, session.UserID, targetKind, targetID, ec.CycleID, score, s.cfg.VoteBudget)
	if errors.Is(err, ledger.ErrInvalidScore) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", ledger.ErrInvalidScore.Error(), nil)
	}
	if errors.Is(err, ledger.ErrBudgetExceeded) {
		return nil, domainError(http.StatusConflict, "BUDGET_EXCEEDED", "vote exceeds remaining budget", map[string]any{"budget": s.cfg.VoteBudget})
	}
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"ok":        true,
		"score":     receipt.Score,
		"totalUsed": receipt.TotalUsed,
		"budget":    s.cfg.VoteBudget,
	}, nil
}

func (s *Service) MyVotes(ctx context.Context, session Session, cycleID string) (map[string]any, error) {
	if cycleID == "" {
		cycle, err := s.store.GetCurrentCycle(ctx, session.InstitutionID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "no cycle for institution", nil)
		}
		if err != nil {
			return nil, err
		}
		cycleID = cycle.ID
	}

	votes, err := s.store.ListVotes(ctx, session.UserID, cycleID)
	if err != nil {
		return nil, err
	}

	totalUsed := 0
	guidelineVotes := []map[string]any{}
	initiativeVotes := []map[string]any{}
	for _, v := range votes {
		totalUsed += v.Score
		switch v.TargetKind {
		case store.KindGuideline:
			guidelineVotes = append(guidelineVotes, map[string]any{"guidelineId": v.TargetID, "score": v.Score})
		case store.KindInitiative:
			initiativeVotes = append(initiativeVotes, map[string]any{"initiativeId": v.TargetID, "score": v.Score})
		}
	}

	return map[string]any{
		"budget":          s.cfg.VoteBudget,
		"totalUsed":       totalUsed,
		"remaining":       s.cfg.VoteBudget - totalUsed,
		"guidelineVotes":  guidelineVotes,
		"initiativeVotes": initiativeVotes,
	}, nil
}
