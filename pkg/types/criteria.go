// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// TriageCriteria is the immutable screening input for one run: the review
// question, the keyword lists, and the similarity thresholds used by the
// pre-filter's embedding band.
type TriageCriteria struct {
	// Question is the research question triage decisions are made against.
	Question string `json:"question" yaml:"question"`

	// InclusionKeys must all appear in title+abstract for a lexical
	// include. A partial match (some but not all) is the lexically
	// ambiguous case and yields Uncertain.
	InclusionKeys []string `json:"inclusion_keys" yaml:"inclusion_keys"`

	// ExclusionKeys exclude on any match, with priority over inclusion.
	ExclusionKeys []string `json:"exclusion_keys,omitempty" yaml:"exclusion_keys,omitempty"`

	// LowThreshold excludes records whose similarity to the question
	// embedding falls below it. HighThreshold includes records above it;
	// the band in between is Uncertain. Ignored without an embedder.
	LowThreshold  float64 `json:"low_threshold" yaml:"low_threshold"`
	HighThreshold float64 `json:"high_threshold" yaml:"high_threshold"`
}

// Validate reports whether the criteria are usable for a run.
func (c TriageCriteria) Validate() error {
	if c.Question == "" {
		return ErrConfiguration("triage criteria: question is required")
	}
	if len(c.InclusionKeys) == 0 {
		return ErrConfiguration("triage criteria: at least one inclusion key is required")
	}
	if c.LowThreshold > c.HighThreshold {
		return ErrConfiguration("triage criteria: low threshold exceeds high threshold")
	}
	return nil
}
