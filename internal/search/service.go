package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexGuideline indexes a guideline (fire-and-forget to Meilisearch).
func (s *Service) IndexGuideline(g GuidelineRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexGuideline(g); err != nil {
			log.Printf("search: index guideline %s: %v", g.ID, err)
		}
	}()
}

// IndexInitiative indexes an initiative (fire-and-forget to Meilisearch).
func (s *Service) IndexInitiative(i InitiativeRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexInitiative(i); err != nil {
			log.Printf("search: index initiative %s: %v", i.ID, err)
		}
	}()
}

// DeleteGuideline removes a guideline from the search index (fire-and-forget).
func (s *Service) DeleteGuideline(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteGuideline(id); err != nil {
			log.Printf("search: delete guideline %s: %v", id, err)
		}
	}()
}

// DeleteInitiative removes an initiative from the search index (fire-and-forget).
func (s *Service) DeleteInitiative(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteInitiative(id); err != nil {
			log.Printf("search: delete initiative %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes full record sets to Meilisearch.
func (s *Service) ReindexAll(guidelines []GuidelineRecord, initiatives []InitiativeRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	if len(guidelines) > 0 {
		if err := s.meili.IndexGuidelines(guidelines); err != nil {
			log.Printf("search: reindex guidelines: %v", err)
		}
	}
	if len(initiatives) > 0 {
		if err := s.meili.IndexInitiatives(initiatives); err != nil {
			log.Printf("search: reindex initiatives: %v", err)
		}
	}
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	guidelines, initiatives, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(guidelines, initiatives)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
