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

type GuidelineInput struct {
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	Status            string  `json:"status"`
	RelationType      string  `json:"relationType"`
	ParentGuidelineID *string `json:"parentGuidelineId"`
	LineSide          string  `json:"lineSide"`
}

var allowedStatuses = map[string]struct{}{
	store.StatusActive:   {},
	store.StatusDisabled: {},
	store.StatusMerged:   {},
	store.StatusHidden:   {},
}

var allowedRelationTypes = map[string]struct{}{
	store.RelationOrphan: {},
	store.RelationParent: {},
	store.RelationChild:  {},
}

var allowedLineSides = map[string]struct{}{
	store.SideAuto:   {},
	store.SideLeft:   {},
	store.SideRight:  {},
	store.SideTop:    {},
	store.SideBottom: {},
}

// normalizeLineSide defaults an omitted side to auto; the schema CHECK only
// admits the five anchor values, so anything else is rejected here.
func normalizeLineSide(v string) (string, error) {
	if v == "" {
		return store.SideAuto, nil
	}
	if _, ok := allowedLineSides[v]; !ok {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown line side", map[string]any{"lineSide": v})
	}
	return v, nil
}

// validateGuidelineRelation checks the parent/child rules for one guideline.
// A child's parent must itself be a parent guideline in the same cycle, which
// keeps the hierarchy one level deep and makes reference cycles unrepresentable.
func (s *Service) validateGuidelineRelation(ctx context.Context, guidelineID, cycleID, relationType string, parentID *string) error {
	if _, ok := allowedRelationTypes[relationType]; !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown relation type", map[string]any{"relationType": relationType})
	}
	if relationType != store.RelationChild {
		if parentID != nil && *parentID != "" {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "parent only allowed for child guidelines", nil)
		}
		return nil
	}

	if parentID == nil || *parentID == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "parent guideline required", nil)
	}
	if guidelineID != "" && *parentID == guidelineID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "child cannot be parent of itself", nil)
	}

	parent, err := s.store.GetGuideline(ctx, *parentID)
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "parent guideline not found", nil)
	}
	if err != nil {
		return err
	}
	if parent.CycleID != cycleID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "parent must be in same cycle", nil)
	}
	if parent.RelationType != store.RelationParent {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "parent guideline must be parent", nil)
	}
	return nil
}

func (s *Service) CreateGuideline(ctx context.Context, session Session, input GuidelineInput) (map[string]any, error) {
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
	relationType := input.RelationType
	if relationType == "" {
		relationType = store.RelationOrphan
	}
	if err := s.validateGuidelineRelation(ctx, "", cycle.ID, relationType, input.ParentGuidelineID); err != nil {
		return nil, err
	}
	lineSide, err := normalizeLineSide(input.LineSide)
	if err != nil {
		return nil, err
	}

	guideline := store.Guideline{
		ID:                util.NewID("gdl"),
		CycleID:           cycle.ID,
		Title:             title,
		Description:       input.Description,
		Status:            status,
		RelationType:      relationType,
		ParentGuidelineID: input.ParentGuidelineID,
		LineSide:          lineSide,
	}
	if err := s.store.InsertGuideline(ctx, guideline); err != nil {
		return nil, err
	}
	s.indexGuideline(guideline)
	return guidelineJSON(guideline, 0, 0), nil
}

func (s *Service) UpdateGuideline(ctx context.Context, session Session, id string, input GuidelineInput) (map[string]any, error) {
	if _, err := s.entityContext(ctx, session, store.KindGuideline, id, true); err != nil {
		return nil, err
	}
	existing, err := s.store.GetGuideline(ctx, id)
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
	relationType := input.RelationType
	if relationType == "" {
		relationType = existing.RelationType
	}
	if err := s.validateGuidelineRelation(ctx, id, existing.CycleID, relationType, input.ParentGuidelineID); err != nil {
		return nil, err
	}
	if existing.RelationType == store.RelationParent && relationType != store.RelationParent {
		children, err := s.store.ChildCount(ctx, id)
		if err != nil {
			return nil, err
		}
		if children > 0 {
			return nil, domainError(http.StatusConflict, "CONFLICT", "parent has children", map[string]any{"children": children})
		}
	}

	existing.Title = title
	existing.Description = input.Description
	existing.Status = status
	existing.RelationType = relationType
	existing.ParentGuidelineID = input.ParentGuidelineID
	if relationType != store.RelationChild {
		existing.ParentGuidelineID = nil
	}
	if input.LineSide != "" {
		lineSide, err := normalizeLineSide(input.LineSide)
		if err != nil {
			return nil, err
		}
		existing.LineSide = lineSide
	}
	if err := s.store.UpdateGuideline(ctx, existing); err != nil {
		return nil, err
	}
	s.indexGuideline(existing)
	return guidelineJSON(existing, 0, 0), nil
}

// DeleteGuideline removes the guideline; the store resets its children to
// orphan in the same transaction.
func (s *Service) DeleteGuideline(ctx context.Context, session Session, id string) error {
	if _, err := s.entityContext(ctx, session, store.KindGuideline, id, true); err != nil {
		return err
	}
	if err := s.store.DeleteGuideline(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteGuideline(id)
	}
	return nil
}

// writableCycle resolves the caller's current cycle and rejects closed ones.
func (s *Service) writableCycle(ctx context.Context, session Session) (store.Cycle, error) {
	cycle, err := s.store.GetCurrentCycle(ctx, session.InstitutionID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Cycle{}, domainError(http.StatusNotFound, "NOT_FOUND", "no cycle for institution", nil)
	}
	if err != nil {
		return store.Cycle{}, err
	}
	if cycle.State != store.CycleOpen {
		return store.Cycle{}, domainError(http.StatusConflict, "CONFLICT", "cycle not writable", nil)
	}
	return cycle, nil
}

func (s *Service) indexGuideline(g store.Guideline) {
	if s.search == nil {
		return
	}
	s.search.IndexGuideline(search.GuidelineRecord{
		ID:           g.ID,
		Title:        g.Title,
		Description:  g.Description,
		CycleID:      g.CycleID,
		Status:       g.Status,
		RelationType: g.RelationType,
	})
}

func guidelineJSON(g store.Guideline, score, comments int) map[string]any {
	out := map[string]any{
		"id":           g.ID,
		"cycleId":      g.CycleID,
		"title":        g.Title,
		"description":  g.Description,
		"status":       g.Status,
		"relationType": g.RelationType,
		"lineSide":     g.LineSide,
		"totalScore":   score,
		"comments":     comments,
	}
	if g.ParentGuidelineID != nil {
		out["parentGuidelineId"] = *g.ParentGuidelineID
	}
	if g.MapX != nil && g.MapY != nil {
		out["mapX"] = *g.MapX
		out["mapY"] = *g.MapY
	}
	return out
}
