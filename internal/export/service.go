package export

import (
	"context"
	"fmt"

	"compass/api/internal/store"
	"compass/api/internal/strategymap"
)

// MapSource defines the data access the exporter needs to assemble a map.
type MapSource interface {
	GetInstitution(ctx context.Context, id string) (store.Institution, error)
	GetCurrentCycle(ctx context.Context, institutionID string) (store.Cycle, error)
	GetCycle(ctx context.Context, id string) (store.Cycle, error)
	ListGuidelines(ctx context.Context, cycleID string) ([]store.Guideline, error)
	ListInitiatives(ctx context.Context, cycleID string) ([]store.Initiative, error)
	ListVoteTotals(ctx context.Context, cycleID string) ([]store.VoteTotal, error)
	ListCommentCounts(ctx context.Context, cycleID string) ([]store.CommentCount, error)
}

// Service provides strategy map export functionality. archive may be nil when
// no object storage is configured.
type Service struct {
	store   MapSource
	archive *Archive
}

// NewService creates a new export service
func NewService(store MapSource, archive *Archive) *Service {
	return &Service{store: store, archive: archive}
}

// Export renders the institution's map in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	layout, title, _, err := s.buildLayout(ctx, req)
	if err != nil {
		return nil, err
	}

	svg, err := RenderSVG(layout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	switch req.Format {
	case FormatSVG:
		return &Result{
			Data:     svg,
			Filename: sanitizeFilename(title) + ".svg",
			MimeType: "image/svg+xml",
		}, nil
	case FormatPDF:
		return exportPDF(wrapSVGHTML(svg, title), title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

// Snapshot renders the current map as SVG and archives it, returning the
// stored object name.
func (s *Service) Snapshot(ctx context.Context, req Request) (string, error) {
	if s.archive == nil {
		return "", ErrArchiveUnavailable
	}

	req.Format = FormatSVG
	layout, title, cycleID, err := s.buildLayout(ctx, req)
	if err != nil {
		return "", err
	}
	svg, err := RenderSVG(layout)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	return s.archive.SaveSnapshot(ctx, cycleID, &Result{
		Data:     svg,
		Filename: sanitizeFilename(title) + ".svg",
		MimeType: "image/svg+xml",
	})
}

// Snapshots lists archived snapshot object names for a cycle.
func (s *Service) Snapshots(ctx context.Context, cycleID string) ([]string, error) {
	if s.archive == nil {
		return nil, ErrArchiveUnavailable
	}
	return s.archive.ListSnapshots(ctx, cycleID)
}

func (s *Service) buildLayout(ctx context.Context, req Request) (*strategymap.Layout, string, string, error) {
	institution, err := s.store.GetInstitution(ctx, req.InstitutionID)
	if err != nil {
		return nil, "", "", fmt.Errorf("get institution: %w", err)
	}

	var cycle store.Cycle
	if req.CycleID != "" {
		cycle, err = s.store.GetCycle(ctx, req.CycleID)
	} else {
		cycle, err = s.store.GetCurrentCycle(ctx, institution.ID)
	}
	if err != nil {
		return nil, "", "", fmt.Errorf("get cycle: %w", err)
	}

	guidelines, err := s.store.ListGuidelines(ctx, cycle.ID)
	if err != nil {
		return nil, "", "", fmt.Errorf("list guidelines: %w", err)
	}
	initiatives, err := s.store.ListInitiatives(ctx, cycle.ID)
	if err != nil {
		return nil, "", "", fmt.Errorf("list initiatives: %w", err)
	}
	totals, err := s.store.ListVoteTotals(ctx, cycle.ID)
	if err != nil {
		return nil, "", "", fmt.Errorf("list vote totals: %w", err)
	}
	comments, err := s.store.ListCommentCounts(ctx, cycle.ID)
	if err != nil {
		return nil, "", "", fmt.Errorf("list comment counts: %w", err)
	}

	graph := strategymap.Build(strategymap.Input{
		Institution:   institution,
		Cycle:         cycle,
		Guidelines:    guidelines,
		Initiatives:   initiatives,
		Totals:        totals,
		CommentCounts: comments,
	})

	title := institution.Name + " strategy map"
	return strategymap.Compute(graph), title, cycle.ID, nil
}
