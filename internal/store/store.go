// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store owns the canonical deduplicated record set and the PRISMA
// stage machine. Implements: prd010-records (R1-R5);
//
//	docs/ARCHITECTURE § Record Store.
package store

import (
	"fmt"
	"sync"

	"github.com/pdiddy/review-engine/pkg/types"
)

// Store is the canonical table of literature records keyed by fingerprint.
// Records are created only here (via AddOrMerge); other components mutate
// stage and decision reason through Advance and SetReason. All methods are
// safe under concurrent invocation: a single mutex serializes the cheap
// in-memory mutations, which trivially serializes per-fingerprint access.
type Store struct {
	mu      sync.Mutex
	records map[string]*types.Record // canonical fingerprint → record
	keys    map[string]string        // doi and content keys → canonical fingerprint
	order   []string                 // canonical fingerprints in first-seen order
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		records: make(map[string]*types.Record),
		keys:    make(map[string]string),
	}
}

// AddOrMerge inserts raw as a new Identified record or merges it into an
// existing one, and returns the canonical fingerprint. Merging unions the
// source set and fills only empty metadata fields (first-source-wins), so
// a lower-quality duplicate never overwrites curated data. Merge is
// commutative and idempotent for the same fingerprint.
//
// Both the DOI key and the content key are indexed, so the same work
// reported by one source with a DOI and by another without one still
// collapses to a single record.
func (s *Store) AddOrMerge(raw types.RawRecord) string {
	canonical := Fingerprint(raw)
	content := "rec:" + contentKey(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	fp, ok := s.keys[canonical]
	if !ok {
		fp, ok = s.keys[content]
	}
	if ok {
		s.mergeLocked(s.records[fp], raw)
		// Register any key the duplicate carried that the original lacked.
		s.keys[canonical] = fp
		s.keys[content] = fp
		return fp
	}

	rec := &types.Record{
		Fingerprint: canonical,
		Title:       raw.Title,
		Authors:     append([]string(nil), raw.Authors...),
		Abstract:    raw.Abstract,
		Date:        raw.Date,
		DOI:         normalizeDOI(raw.DOI),
		DownloadURL: raw.DownloadURL,
		Sources:     []string{raw.Source},
		Stage:       types.StageIdentified,
	}
	s.records[canonical] = rec
	s.keys[canonical] = canonical
	s.keys[content] = canonical
	s.order = append(s.order, canonical)
	return canonical
}

// mergeLocked fills empty fields of dst from raw and unions source sets.
func (s *Store) mergeLocked(dst *types.Record, raw types.RawRecord) {
	if dst.Title == "" && raw.Title != "" {
		dst.Title = raw.Title
	}
	if len(dst.Authors) == 0 && len(raw.Authors) > 0 {
		dst.Authors = append([]string(nil), raw.Authors...)
	}
	if dst.Abstract == "" && raw.Abstract != "" {
		dst.Abstract = raw.Abstract
	}
	if dst.Date.IsZero() && !raw.Date.IsZero() {
		dst.Date = raw.Date
	}
	if dst.DOI == "" && raw.DOI != "" {
		dst.DOI = normalizeDOI(raw.DOI)
	}
	if dst.DownloadURL == "" && raw.DownloadURL != "" {
		dst.DownloadURL = raw.DownloadURL
	}
	if raw.Source != "" && !dst.HasSource(raw.Source) {
		dst.Sources = append(dst.Sources, raw.Source)
	}
}

// Get returns a copy of the record with the given canonical fingerprint.
func (s *Store) Get(fp string) (types.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[fp]
	if !ok {
		return types.Record{}, false
	}
	return copyRecord(rec), true
}

// All returns copies of every record in first-seen insertion order,
// regardless of the arrival order of parallel workers.
func (s *Store) All() []types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Record, 0, len(s.order))
	for _, fp := range s.order {
		out = append(out, copyRecord(s.records[fp]))
	}
	return out
}

// Len returns the number of canonical records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Advance moves a record to stage, attaching reason when non-empty.
// Transitions must be monotonic forward; Excluded is absorbing and
// reachable from any non-terminal stage. Re-advancing to the current
// stage is a no-op. Any other backward move, or any move out of a
// terminal stage, returns ErrInvalidTransition; the error is fatal to
// that mutation, never to the run.
func (s *Store) Advance(fp string, stage types.Stage, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[fp]
	if !ok {
		return fmt.Errorf("advance %s: unknown fingerprint", fp)
	}

	if stage == rec.Stage {
		if reason != "" {
			rec.DecisionReason = reason
		}
		return nil
	}

	if rec.Stage == types.StageExcluded {
		return fmt.Errorf("advance %s: record is excluded: %w", fp, types.ErrInvalidTransition)
	}

	if stage == types.StageExcluded {
		if rec.Stage == types.StageFullTextFetched {
			return fmt.Errorf("advance %s: record is terminal at %s: %w", fp, rec.Stage, types.ErrInvalidTransition)
		}
		rec.ExcludedFrom = rec.Stage
		rec.Stage = types.StageExcluded
		rec.DecisionReason = reason
		return nil
	}

	if stage.Rank() < 0 {
		return fmt.Errorf("advance %s: unknown stage %q: %w", fp, stage, types.ErrInvalidTransition)
	}
	if stage.Rank() < rec.Stage.Rank() {
		return fmt.Errorf("advance %s: %s → %s moves backward: %w", fp, rec.Stage, stage, types.ErrInvalidTransition)
	}

	rec.Stage = stage
	if reason != "" {
		rec.DecisionReason = reason
	}
	return nil
}

// SetReason annotates a record without changing its stage, e.g. when a
// full-text fetch fails and the record stays Triaged.
func (s *Store) SetReason(fp, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[fp]
	if !ok {
		return fmt.Errorf("set reason %s: unknown fingerprint", fp)
	}
	rec.DecisionReason = reason
	return nil
}

// restore re-inserts a previously persisted record, preserving its stage
// and insertion position. Only the persistence layer calls it.
func (s *Store) restore(rec types.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyRecord(&rec)
	s.records[rec.Fingerprint] = &cp
	s.keys[rec.Fingerprint] = rec.Fingerprint
	s.keys["rec:"+contentKey(types.RawRecord{
		Title:   rec.Title,
		Authors: rec.Authors,
		Date:    rec.Date,
	})] = rec.Fingerprint
	s.order = append(s.order, rec.Fingerprint)
}

func copyRecord(rec *types.Record) types.Record {
	cp := *rec
	cp.Authors = append([]string(nil), rec.Authors...)
	cp.Sources = append([]string(nil), rec.Sources...)
	return cp
}
