// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/review-engine/internal/httputil"
	"github.com/pdiddy/review-engine/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// Arxiv queries the arXiv API.
type Arxiv struct {
	Client *http.Client
}

// Name returns the source identifier.
func (s *Arxiv) Name() string { return "arxiv" }

// Search queries the arXiv API and returns raw records.
func (s *Arxiv) Search(ctx context.Context, query types.Query, cfg types.SearchConfig) ([]types.RawRecord, error) {
	q := buildArxivQuery(query)
	if q == "" {
		return nil, fmt.Errorf("empty arXiv query")
	}

	url := fmt.Sprintf("%s?search_query=%s&start=0&max_results=%d&sortBy=relevance&sortOrder=descending",
		arxivAPIBase, q, maxRecords(query, cfg))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, s.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("arXiv", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	var records []types.RawRecord
	for _, entry := range feed.Entries {
		r := types.RawRecord{
			Title:    strings.TrimSpace(entry.Title),
			Abstract: strings.TrimSpace(entry.Summary),
			DOI:      entry.DOI,
			Source:   "arxiv",
		}

		for _, a := range entry.Authors {
			r.Authors = append(r.Authors, strings.TrimSpace(a.Name))
		}

		if t, parseErr := time.Parse(time.RFC3339, entry.Published); parseErr == nil {
			r.Date = t
		}

		for _, l := range entry.Links {
			if l.Title == "pdf" || l.Type == "application/pdf" {
				r.DownloadURL = l.Href
				break
			}
		}

		records = append(records, r)
	}
	return records, nil
}

// buildArxivQuery constructs the search_query parameter from the question text.
func buildArxivQuery(q types.Query) string {
	terms := strings.Fields(q.Text)
	if len(terms) == 0 {
		return ""
	}
	return "all:" + strings.Join(terms, "+")
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	DOI       string        `xml:"doi"`
	Authors   []arxivAuthor `xml:"author"`
	Links     []arxivLink   `xml:"link"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

// maxRecords resolves the per-source result cap: the query overrides the
// configuration, and a sane default applies when neither is set.
func maxRecords(query types.Query, cfg types.SearchConfig) int {
	if query.MaxRecords > 0 {
		return query.MaxRecords
	}
	if cfg.MaxRecords > 0 {
		return cfg.MaxRecords
	}
	return 20
}
