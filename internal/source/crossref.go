// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/review-engine/internal/httputil"
	"github.com/pdiddy/review-engine/pkg/types"
)

// crossrefAPIBase is the Crossref Works endpoint. Declared as a var so
// tests can substitute an httptest server.
var crossrefAPIBase = "https://api.crossref.org/works"

// Crossref queries the Crossref REST API.
type Crossref struct {
	Client *http.Client
	// Email is sent as mailto parameter for polite pool access.
	Email string
}

// Name returns the source identifier.
func (s *Crossref) Name() string { return "crossref" }

// Search queries the Crossref API and returns raw records.
func (s *Crossref) Search(ctx context.Context, query types.Query, cfg types.SearchConfig) ([]types.RawRecord, error) {
	if strings.TrimSpace(query.Text) == "" {
		return nil, fmt.Errorf("empty Crossref query")
	}

	params := url.Values{
		"query": {query.Text},
		"rows":  {fmt.Sprintf("%d", maxRecords(query, cfg))},
	}

	var filters []string
	if !query.DateFrom.IsZero() {
		filters = append(filters, "from-pub-date:"+query.DateFrom.Format("2006-01-02"))
	}
	if !query.DateTo.IsZero() {
		filters = append(filters, "until-pub-date:"+query.DateTo.Format("2006-01-02"))
	}
	if len(filters) > 0 {
		params.Set("filter", strings.Join(filters, ","))
	}

	if s.Email != "" {
		params.Set("mailto", s.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, crossrefAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, s.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("Crossref API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("Crossref", resp.StatusCode)
	}

	var cr crossrefResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("parsing Crossref response: %w", err)
	}

	var records []types.RawRecord
	for _, item := range cr.Message.Items {
		if len(item.Title) == 0 || item.Title[0] == "" {
			continue
		}

		r := types.RawRecord{
			Title:    strings.TrimSpace(item.Title[0]),
			Abstract: stripJATS(item.Abstract),
			DOI:      item.DOI,
			Source:   "crossref",
		}

		for _, a := range item.Author {
			name := strings.TrimSpace(a.Given + " " + a.Family)
			if name != "" {
				r.Authors = append(r.Authors, name)
			}
		}

		r.Date = crossrefDate(item)

		for _, l := range item.Link {
			if l.ContentType == "application/pdf" {
				r.DownloadURL = l.URL
				break
			}
		}

		records = append(records, r)
	}
	return records, nil
}

// crossrefDate picks the best available publication date: print, then
// online, then the deposit timestamp.
func crossrefDate(item crossrefItem) time.Time {
	for _, dp := range []crossrefDateParts{item.PublishedPrint, item.PublishedOnline, item.Created} {
		if len(dp.DateParts) == 0 || len(dp.DateParts[0]) == 0 {
			continue
		}
		parts := dp.DateParts[0]
		year, month, day := parts[0], 1, 1
		if len(parts) > 1 {
			month = parts[1]
		}
		if len(parts) > 2 {
			day = parts[2]
		}
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

var jatsTags = regexp.MustCompile(`<[^>]*>`)

// stripJATS flattens Crossref's JATS-flavored abstract markup to plain text.
func stripJATS(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(jatsTags.ReplaceAllString(s, " ")), " ")
}

// Crossref API JSON structures.
type crossrefResponse struct {
	Message crossrefMessage `json:"message"`
}

type crossrefMessage struct {
	Items []crossrefItem `json:"items"`
}

type crossrefItem struct {
	DOI             string            `json:"DOI"`
	Title           []string          `json:"title"`
	Abstract        string            `json:"abstract"`
	Author          []crossrefAuthor  `json:"author"`
	PublishedPrint  crossrefDateParts `json:"published-print"`
	PublishedOnline crossrefDateParts `json:"published-online"`
	Created         crossrefDateParts `json:"created"`
	Link            []crossrefLink    `json:"link"`
}

type crossrefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type crossrefDateParts struct {
	DateParts [][]int `json:"date-parts"`
}

type crossrefLink struct {
	URL         string `json:"URL"`
	ContentType string `json:"content-type"`
}
