package app

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"net/http"

	"compass/api/internal/store"
	"compass/api/internal/strategymap"
)

type MapPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type MapLayoutInput struct {
	InstitutionPosition *MapPosition           `json:"institutionPosition"`
	GuidelinePositions  map[string]MapPosition `json:"guidelinePositions"`
	InitiativePositions map[string]MapPosition `json:"initiativePositions"`
}

// StrategyMap assembles the full read model for the caller's institution:
// entities with vote totals and comment counts, plus computed node rects and
// routed edge paths for anything that was never dragged.
func (s *Service) StrategyMap(ctx context.Context) (map[string]any, error) {
	institutions, err := s.store.ListInstitutions(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(institutions))
	for _, institution := range institutions {
		entry, err := s.institutionMap(ctx, institution)
		if errors.Is(err, sql.ErrNoRows) {
			// No cycle yet; the institution still appears, just empty.
			out = append(out, map[string]any{
				"id":   institution.ID,
				"name": institution.Name,
				"slug": institution.Slug,
			})
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}

	return map[string]any{"institutions": out}, nil
}

func (s *Service) institutionMap(ctx context.Context, institution store.Institution) (map[string]any, error) {
	cycle, err := s.store.GetCurrentCycle(ctx, institution.ID)
	if err != nil {
		return nil, err
	}
	guidelines, err := s.store.ListGuidelines(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	initiatives, err := s.store.ListInitiatives(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	totals, err := s.store.ListVoteTotals(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	commentCounts, err := s.store.ListCommentCounts(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}

	graph := strategymap.Build(strategymap.Input{
		Institution:   institution,
		Cycle:         cycle,
		Guidelines:    guidelines,
		Initiatives:   initiatives,
		Totals:        totals,
		CommentCounts: commentCounts,
	})
	layout := strategymap.Compute(graph)

	scores := map[string]int{}
	comments := map[string]int{}
	for _, t := range totals {
		scores[t.TargetKind+":"+t.TargetID] = t.Total
	}
	for _, c := range commentCounts {
		comments[c.TargetKind+":"+c.TargetID] = c.Count
	}

	guidelineItems := make([]map[string]any, 0, len(guidelines))
	for _, g := range guidelines {
		key := store.KindGuideline + ":" + g.ID
		guidelineItems = append(guidelineItems, guidelineJSON(g, scores[key], comments[key]))
	}
	initiativeItems := make([]map[string]any, 0, len(initiatives))
	for _, i := range initiatives {
		key := store.KindInitiative + ":" + i.ID
		initiativeItems = append(initiativeItems, initiativeJSON(i, scores[key], comments[key]))
	}

	nodes := make([]map[string]any, 0, len(layout.Nodes))
	for _, n := range layout.Nodes {
		nodes = append(nodes, map[string]any{
			"id":   n.ID,
			"kind": n.Kind,
			"rect": n.Rect,
		})
	}
	edges := make([]map[string]any, 0, len(layout.Edges))
	for _, e := range layout.Edges {
		edges = append(edges, map[string]any{
			"from": e.From,
			"to":   e.To,
			"type": e.Type,
			"path": e.Path.SVG(),
		})
	}

	cycleJSON := map[string]any{
		"id":    cycle.ID,
		"title": cycle.Title,
		"state": cycle.State,
	}
	if cycle.MapX != nil && cycle.MapY != nil {
		cycleJSON["mapX"] = *cycle.MapX
		cycleJSON["mapY"] = *cycle.MapY
	}

	return map[string]any{
		"id":          institution.ID,
		"name":        institution.Name,
		"slug":        institution.Slug,
		"cycle":       cycleJSON,
		"guidelines":  guidelineItems,
		"initiatives": initiativeItems,
		"nodes":       nodes,
		"edges":       edges,
	}, nil
}

// UpdateMapLayout persists dragged coordinates, rounded to integers. Ids that
// do not belong to the caller's current cycle are rejected; a failed write
// surfaces as an error instead of silently reverting on the client.
func (s *Service) UpdateMapLayout(ctx context.Context, session Session, input MapLayoutInput) (map[string]any, error) {
	cycle, err := s.writableCycle(ctx, session)
	if err != nil {
		return nil, err
	}

	updatedInstitution := false
	if input.InstitutionPosition != nil {
		p := *input.InstitutionPosition
		ok, err := s.store.UpdateCyclePosition(ctx, cycle.ID, roundCoord(p.X), roundCoord(p.Y))
		if err != nil {
			return nil, err
		}
		updatedInstitution = ok
	}

	updatedGuidelines := make([]string, 0, len(input.GuidelinePositions))
	for id, p := range input.GuidelinePositions {
		ok, err := s.store.UpdateGuidelinePosition(ctx, id, cycle.ID, roundCoord(p.X), roundCoord(p.Y))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "guideline not in cycle", map[string]any{"guidelineId": id})
		}
		updatedGuidelines = append(updatedGuidelines, id)
	}

	updatedInitiatives := make([]string, 0, len(input.InitiativePositions))
	for id, p := range input.InitiativePositions {
		ok, err := s.store.UpdateInitiativePosition(ctx, id, cycle.ID, roundCoord(p.X), roundCoord(p.Y))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "initiative not in cycle", map[string]any{"initiativeId": id})
		}
		updatedInitiatives = append(updatedInitiatives, id)
	}

	return map[string]any{
		"ok":                 true,
		"updatedInstitution": updatedInstitution,
		"updatedGuidelines":  updatedGuidelines,
		"updatedInitiatives": updatedInitiatives,
	}, nil
}

func (s *Service) CloseCycle(ctx context.Context, session Session, cycleID string) (map[string]any, error) {
	cycle, err := s.store.GetCycle(ctx, cycleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "cycle not found", nil)
	}
	if err != nil {
		return nil, err
	}
	if session.InstitutionID != "" && cycle.InstitutionID != session.InstitutionID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "cycle belongs to another institution", nil)
	}

	closed, err := s.store.CloseCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, domainError(http.StatusConflict, "CONFLICT", "cycle already closed", nil)
	}
	return map[string]any{"ok": true, "id": cycleID, "state": store.CycleClosed}, nil
}

func roundCoord(v float64) int {
	return int(math.Round(v))
}
