package search

import (
	"context"
	"log"
)

// Service fronts Meilisearch with a Postgres full-text fallback. Indexing is
// fire-and-forget: a failed index write is logged and never surfaces to the
// caller, so a publish cannot be rolled back by the search tier.
type Service struct {
	meili *Meili
	pg    *PgFTS
}

// NewService builds the search facade. meili may be nil when Meilisearch is
// not configured, in which case all searches go through Postgres.
func NewService(meili *Meili, pg *PgFTS) *Service {
	return &Service{meili: meili, pg: pg}
}

// Search tries Meilisearch first and falls back to Postgres FTS when the
// engine is unconfigured, unhealthy, or erroring.
func (s *Service) Search(q Query) ([]Result, int, error) {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return results, total, nil
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}
	return s.pg.Search(q)
}

// IndexGuide pushes a guide's latest edition into Meilisearch in the
// background. Errors are logged and suppressed.
func (s *Service) IndexGuide(g GuideRecord) {
	if s.meili == nil {
		return
	}
	go func() {
		if err := s.meili.IndexGuide(g); err != nil {
			log.Printf("search: index guide %s: %v", g.ID, err)
		}
	}()
}

// DeleteGuide removes a guide from Meilisearch in the background.
func (s *Service) DeleteGuide(id string) {
	if s.meili == nil {
		return
	}
	go func() {
		if err := s.meili.DeleteGuide(id); err != nil {
			log.Printf("search: delete guide %s: %v", id, err)
		}
	}()
}

// ReindexAll reloads every guide's latest edition from Postgres and bulk
// pushes it into Meilisearch. Used at startup and after recovery.
func (s *Service) ReindexAll(ctx context.Context) error {
	if s.meili == nil {
		return nil
	}
	guides, err := s.pg.LoadAllRecords(ctx)
	if err != nil {
		return err
	}
	if err := s.meili.IndexGuides(guides); err != nil {
		return err
	}
	log.Printf("search: reindexed %d guides", len(guides))
	return nil
}

// Close stops background monitors.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}
