// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Query holds the search parameters for one aggregation run. It is
// immutable once the run starts; clients receive it by value.
type Query struct {
	// Text is the free-text boolean query string.
	Text string `json:"text" yaml:"text"`

	// Sources names the source clients to query (e.g. "arxiv", "crossref",
	// "openalex"). Empty means all configured sources.
	Sources []string `json:"sources,omitempty" yaml:"sources,omitempty"`

	// DateFrom and DateTo bound the publication date range; zero values
	// leave the corresponding end open.
	DateFrom time.Time `json:"date_from,omitempty" yaml:"date_from,omitempty"`
	DateTo   time.Time `json:"date_to,omitempty" yaml:"date_to,omitempty"`

	// MaxRecords caps the number of records requested per source.
	MaxRecords int `json:"max_records" yaml:"max_records"`
}

// IsEmpty reports whether the query contains no searchable terms.
func (q Query) IsEmpty() bool {
	return q.Text == ""
}
