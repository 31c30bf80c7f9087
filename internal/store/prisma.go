// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import "github.com/pdiddy/review-engine/pkg/types"

// Counts returns the exact per-stage population. It is recomputed from the
// records on every call, so it can never drift from the store:
// Counts()[S] == |{r : r.Stage == S}| for every stage S.
func (s *Store) Counts() types.PrismaCounts {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c types.PrismaCounts
	for _, fp := range s.order {
		switch s.records[fp].Stage {
		case types.StageIdentified:
			c.Identified++
		case types.StagePreFiltered:
			c.PreFiltered++
		case types.StageTriaged:
			c.Triaged++
		case types.StageFullTextFetched:
			c.FullText++
		case types.StageExcluded:
			c.Excluded++
		}
	}
	return c
}

// Funnel returns the cumulative PRISMA view: how many records reached each
// stage. Excluded records count toward every stage up to and including the
// one they were excluded from, so the funnel is non-increasing and the
// per-step differences are the exclusion counts the diagram reports.
func (s *Store) Funnel() types.PrismaFunnel {
	s.mu.Lock()
	defer s.mu.Unlock()

	var f types.PrismaFunnel
	for _, fp := range s.order {
		rec := s.records[fp]
		rank := rec.Stage.Rank()
		if rec.Stage == types.StageExcluded {
			rank = rec.ExcludedFrom.Rank()
		}
		if rank >= types.StageIdentified.Rank() {
			f.Identified++
		}
		if rank >= types.StagePreFiltered.Rank() {
			f.PreFiltered++
		}
		if rank >= types.StageTriaged.Rank() {
			f.Triaged++
		}
		if rank >= types.StageFullTextFetched.Rank() {
			f.FullText++
		}
	}
	return f
}
