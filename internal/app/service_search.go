package app

import (
	"context"
	"errors"
	"net/http"

	"compass/api/internal/export"
	"compass/api/internal/search"
)

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) ExportMap(ctx context.Context, session Session, cycleID string, format export.Format) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SERVER_ERROR", "export not configured", nil)
	}
	result, err := s.export.Export(ctx, export.Request{
		InstitutionID: session.InstitutionID,
		CycleID:       cycleID,
		Format:        format,
	})
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return nil, domainError(http.StatusServiceUnavailable, "SERVER_ERROR", "pdf renderer unavailable", nil)
	}
	if errors.Is(err, export.ErrContentUnavailable) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "nothing to export", nil)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) SnapshotMap(ctx context.Context, session Session, cycleID string) (map[string]any, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SERVER_ERROR", "export not configured", nil)
	}
	object, err := s.export.Snapshot(ctx, export.Request{
		InstitutionID: session.InstitutionID,
		CycleID:       cycleID,
	})
	if errors.Is(err, export.ErrArchiveUnavailable) {
		return nil, domainError(http.StatusServiceUnavailable, "SERVER_ERROR", "snapshot archive not configured", nil)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "object": object}, nil
}

func (s *Service) ListSnapshots(ctx context.Context, cycleID string) (map[string]any, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SERVER_ERROR", "export not configured", nil)
	}
	objects, err := s.export.Snapshots(ctx, cycleID)
	if errors.Is(err, export.ErrArchiveUnavailable) {
		return nil, domainError(http.StatusServiceUnavailable, "SERVER_ERROR", "snapshot archive not configured", nil)
	}
	if err != nil {
		return nil, err
	}
	if objects == nil {
		objects = []string{}
	}
	return map[string]any{"snapshots": objects}, nil
}
