// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the review-engine pipeline.
// Implements: prd010-records (Record, Stage);
//
//	prd011-aggregation (RawRecord, Query);
//	prd012-triage (TriageCriteria);
//	prd013-reporting (PrismaCounts, PrismaFunnel).
//
// See docs/ARCHITECTURE.md § Pipeline Interface, § Data Structures.
package types

import "time"

// Stage is a record's current position in the PRISMA funnel.
// Transitions are monotonic forward; Excluded is absorbing and reachable
// from every non-terminal stage. FullTextFetched and Excluded are terminal.
type Stage string

const (
	StageIdentified      Stage = "identified"
	StagePreFiltered     Stage = "prefiltered"
	StageTriaged         Stage = "triaged"
	StageFullTextFetched Stage = "fulltext"
	StageExcluded        Stage = "excluded"
)

// Rank returns the forward order of a stage, or -1 for Excluded and
// unknown stages. Used to validate that advances never move backward.
func (s Stage) Rank() int {
	switch s {
	case StageIdentified:
		return 0
	case StagePreFiltered:
		return 1
	case StageTriaged:
		return 2
	case StageFullTextFetched:
		return 3
	}
	return -1
}

// RawRecord is one hit as normalized at the source-adapter boundary.
// Every source client converts its own response schema into this shape;
// nothing upstream of the RecordStore sees provider-specific fields.
type RawRecord struct {
	// Title is the only mandatory metadata field.
	Title string `json:"title" yaml:"title"`

	// Authors lists the authors in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Abstract is the abstract or summary, possibly empty.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Date is the publication or preprint date.
	Date time.Time `json:"date,omitempty" yaml:"date,omitempty"`

	// DOI is the bare DOI without a resolver prefix (e.g. "10.1000/xyz").
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// DownloadURL points at an open-access PDF or XML full text if the
	// source exposes one.
	DownloadURL string `json:"download_url,omitempty" yaml:"download_url,omitempty"`

	// Source identifies the client that produced this hit (e.g. "arxiv").
	Source string `json:"source" yaml:"source"`
}

// Record is one deduplicated literature item owned by the RecordStore.
// Components other than the store mutate only Stage and DecisionReason,
// and only through store methods.
type Record struct {
	// Fingerprint is the dedup key: the DOI when the first sighting carried
	// one, otherwise a hash of the normalized title, first author, and year.
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`

	Title       string    `json:"title" yaml:"title"`
	Authors     []string  `json:"authors,omitempty" yaml:"authors,omitempty"`
	Abstract    string    `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Date        time.Time `json:"date,omitempty" yaml:"date,omitempty"`
	DOI         string    `json:"doi,omitempty" yaml:"doi,omitempty"`
	DownloadURL string    `json:"download_url,omitempty" yaml:"download_url,omitempty"`

	// Sources lists every source that reported this item, in first-seen order.
	Sources []string `json:"sources" yaml:"sources"`

	// Stage is the record's current funnel stage.
	Stage Stage `json:"stage" yaml:"stage"`

	// ExcludedFrom is the stage the record held when it was excluded.
	// Empty for non-excluded records. Reporting uses it to attribute
	// exclusions to the funnel step that dropped them.
	ExcludedFrom Stage `json:"excluded_from,omitempty" yaml:"excluded_from,omitempty"`

	// DecisionReason is the audit justification attached on exclusion or
	// on a triage/full-text decision.
	DecisionReason string `json:"decision_reason,omitempty" yaml:"decision_reason,omitempty"`
}

// HasSource reports whether name already appears in the record's source set.
func (r *Record) HasSource(name string) bool {
	for _, s := range r.Sources {
		if s == name {
			return true
		}
	}
	return false
}

// PrismaCounts is the exact per-stage population at query time. It is a
// pure projection over current record stages, never cached or mutated
// independently.
type PrismaCounts struct {
	Identified  int `json:"identified" yaml:"identified"`
	PreFiltered int `json:"prefiltered" yaml:"prefiltered"`
	Triaged     int `json:"triaged" yaml:"triaged"`
	FullText    int `json:"fulltext" yaml:"fulltext"`
	Excluded    int `json:"excluded" yaml:"excluded"`
}

// PrismaFunnel is the cumulative view consumed by the report and diagram:
// how many records reached each stage, counting excluded records toward
// the stages they passed before exclusion.
type PrismaFunnel struct {
	Identified  int `json:"identified" yaml:"identified"`
	PreFiltered int `json:"prefiltered" yaml:"prefiltered"`
	Triaged     int `json:"triaged" yaml:"triaged"`
	FullText    int `json:"fulltext" yaml:"fulltext"`
}
