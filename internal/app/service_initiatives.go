package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"compass/api/internal/search"
	"compass/api/internal/store"
	"compass/api/internal/util"
)

type InitiativeInput struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Status       string   `json:"status"`
	GuidelineIDs []string `json:"guidelineIds"`
	LineSide     string   `json:"lineSide"`
}

var assignableStatuses = map[string]struct{}{
	store.StatusActive:   {},
	store.StatusDisabled: {},
	store.StatusMerged:   {},
}

// validateInitiativeAssignments resolves the linked guideline ids against the
// cycle. The whole set is rejected if any id fails, so a partial assignment
// never reaches the store.
func (s *Service) validateInitiativeAssignments(ctx context.Context, cycleID string, guidelineIDs []string) ([]string, error) {
	deduped := make([]string, 0, len(guidelineIDs))
	seen := map[string]struct{}{}
	for _, id := range guidelineIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}
	if len(deduped) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "at least one guideline required", nil)
	}

	for _, id := range deduped {
		guideline, err := s.store.GetGuideline(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "guideline not in cycle", map[string]any{"guidelineId": id})
		}
		if err != nil {
			return nil, err
		}
		if guideline.CycleID != cycleID {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "guideline not in cycle", map[string]any{"guidelineId": id})
		}
		if _, ok := assignableStatuses[guideline.Status]; !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "guideline not assignable", map[string]any{"guidelineId": id, "status": guideline.Status})
		}
	}
	return deduped, nil
}

func (s *Service) CreateInitiative(ctx context.Context, session Session, input InitiativeInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	cycle, err := s.writableCycle(ctx, session)
	if err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = store.StatusActive
	}
	if _, ok := allowedStatuses[status]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown status", map[string]any{"status": status})
	}
	guidelineIDs, err := s.validateInitiativeAssignments(ctx, cycle.ID, input.GuidelineIDs)
	if err != nil {
		return nil, err
	}
	lineSide, err := normalizeLineSide(input.LineSide)
	if err != nil {
		return nil, err
	}

	initiative := store.Initiative{
		ID:           util.NewID("ini"),
		CycleID:      cycle.ID,
		Title:        title,
		Description:  input.Description,
		Status:       status,
		GuidelineIDs: guidelineIDs,
		LineSide:     lineSide,
	}
	if err := s.store.InsertInitiative(ctx, initiative); err != nil {
		return nil, err
	}
	s.indexInitiative(initiative)
	return initiativeJSON(initiative, 0, 0), nil
}

func (s *Service) UpdateInitiative(ctx context.Context, session Session, id string, input InitiativeInput) (map[string]any, error) {
	if _, err := s.entityContext(ctx, session, store.KindInitiative, id, true); err != nil {
		return nil, err
	}
	existing, err := s.store.GetInitiative(ctx, id)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	status := input.Status
	if status == "" {
		status = existing.Status
	}
	if _, ok := allowedStatuses[status]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown status", map[string]any{"status": status})
	}
	guidelineIDs, err := s.validateInitiativeAssignments(ctx, existing.CycleID, input.GuidelineIDs)
	if err != nil {
		return nil, err
	}

	existing.Title = title
	existing.Description = input.Description
	existing.Status = status
	existing.GuidelineIDs = guidelineIDs
	if input.LineSide != "" {
		lineSide, err := normalizeLineSide(input.LineSide)
		if err != nil {
			return nil, err
		}
		existing.LineSide = lineSide
	}
	if err := s.store.UpdateInitiative(ctx, existing); err != nil {
		return nil, err
	}
	s.indexInitiative(existing)
	return initiativeJSON(existing, 0, 0), nil
}

func (s *Service) indexInitiative(i store.Initiative) {
	if s.search == nil {
		return
	}
	s.search.IndexInitiative(search.InitiativeRecord{
		ID:          i.ID,
		Title:       i.Title,
		Description: i.Description,
		CycleID:     i.CycleID,
		Status:      i.Status,
	})
}

func initiativeJSON(i store.Initiative, score, comments int) map[string]any {
	out := map[string]any{
		"id":           i.ID,
		"cycleId":      i.CycleID,
		"title":        i.Title,
		"description":  i.Description,
		"status":       i.Status,
		"guidelineIds": i.GuidelineIDs,
		"lineSide":     i.LineSide,
		"totalScore":   score,
		"comments":     comments,
	}
	if i.MapX != nil && i.MapY != nil {
		out["mapX"] = *i.MapX
		out["mapY"] = *i.MapY
	}
	return out
}
