// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pdiddy/review-engine/pkg/types"
)

// csvHeader is the stable column set of the tabular export. Downstream
// stages and reporting parse by these names; do not reorder.
var csvHeader = []string{
	"fingerprint", "title", "authors", "abstract", "date", "doi",
	"download_url", "sources", "stage", "excluded_from", "decision_reason",
}

const listSep = "; "

// WriteCSV writes one row per record, in insertion order, to w.
func (s *Store) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, rec := range s.All() {
		dateStr := ""
		if !rec.Date.IsZero() {
			dateStr = rec.Date.Format("2006-01-02")
		}
		row := []string{
			rec.Fingerprint,
			rec.Title,
			strings.Join(rec.Authors, listSep),
			rec.Abstract,
			dateStr,
			rec.DOI,
			rec.DownloadURL,
			strings.Join(rec.Sources, listSep),
			string(rec.Stage),
			string(rec.ExcludedFrom),
			rec.DecisionReason,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing record %s: %w", rec.Fingerprint, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV loads a previously exported table into a fresh Store, preserving
// row order as insertion order.
func ReadCSV(r io.Reader) (*Store, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range csvHeader {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	s := New()
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		rec := types.Record{
			Fingerprint:    row[col["fingerprint"]],
			Title:          row[col["title"]],
			Abstract:       row[col["abstract"]],
			DOI:            row[col["doi"]],
			DownloadURL:    row[col["download_url"]],
			Stage:          types.Stage(row[col["stage"]]),
			ExcludedFrom:   types.Stage(row[col["excluded_from"]]),
			DecisionReason: row[col["decision_reason"]],
		}
		if v := row[col["authors"]]; v != "" {
			rec.Authors = strings.Split(v, listSep)
		}
		if v := row[col["sources"]]; v != "" {
			rec.Sources = strings.Split(v, listSep)
		}
		if v := row[col["date"]]; v != "" {
			if t, parseErr := time.Parse("2006-01-02", v); parseErr == nil {
				rec.Date = t
			}
		}
		s.restore(rec)
	}
	return s, nil
}
