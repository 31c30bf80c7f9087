// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/review-engine/pkg/types"
)

const sampleOpenAlexJSON = `{
  "meta": {"count": 2, "per_page": 20, "page": 1},
  "results": [
    {
      "id": "https://openalex.org/W2741809807",
      "title": "Attention Is All You Need",
      "doi": "https://doi.org/10.5555/3295222.3295349",
      "publication_date": "2017-06-12",
      "publication_year": 2017,
      "authorships": [
        {"author": {"id": "A1", "display_name": "Ashish Vaswani"}},
        {"author": {"id": "A2", "display_name": "Noam Shazeer"}}
      ],
      "abstract_inverted_index": {
        "We": [0],
        "propose": [1],
        "a": [2, 5],
        "new": [3],
        "architecture": [4],
        "based": [6],
        "on": [7],
        "attention": [8]
      },
      "open_access": {"is_oa": true, "oa_status": "green", "oa_url": "https://arxiv.org/pdf/1706.03762"}
    },
    {
      "id": "https://openalex.org/W3210812345",
      "title": "BERT: Pre-training of Deep Bidirectional Transformers",
      "doi": "",
      "publication_date": "",
      "publication_year": 2018,
      "authorships": [
        {"author": {"id": "A3", "display_name": "Jacob Devlin"}}
      ],
      "abstract_inverted_index": {},
      "open_access": {"is_oa": false, "oa_status": "closed", "oa_url": ""}
    }
  ]
}`

func TestOpenAlexSearch(t *testing.T) {
	ts := jsonTestServer(http.StatusOK, sampleOpenAlexJSON)
	defer ts.Close()

	old := openAlexAPIBase
	openAlexAPIBase = ts.URL
	defer func() { openAlexAPIBase = old }()

	s := &OpenAlex{Client: ts.Client(), Email: "test@example.com"}
	records, err := s.Search(context.Background(), types.Query{Text: "attention"}, testCfg())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	r0 := records[0]
	// DOI should be stripped of https://doi.org/ prefix.
	if r0.DOI != "10.5555/3295222.3295349" {
		t.Errorf("DOI = %q, want bare DOI", r0.DOI)
	}
	if r0.Title != "Attention Is All You Need" {
		t.Errorf("Title = %q", r0.Title)
	}
	if r0.Source != "openalex" {
		t.Errorf("Source = %q, want openalex", r0.Source)
	}
	if len(r0.Authors) != 2 || r0.Authors[0] != "Ashish Vaswani" {
		t.Errorf("Authors = %v", r0.Authors)
	}
	if r0.Date.Year() != 2017 || r0.Date.Month() != 6 || r0.Date.Day() != 12 {
		t.Errorf("Date = %v, want 2017-06-12", r0.Date)
	}
	// Abstract should be reconstructed from the inverted index.
	if r0.Abstract != "We propose a new architecture a based on attention" {
		t.Errorf("Abstract = %q", r0.Abstract)
	}
	// Open-access URL becomes the download target.
	if r0.DownloadURL != "https://arxiv.org/pdf/1706.03762" {
		t.Errorf("DownloadURL = %q", r0.DownloadURL)
	}

	// Second result: no DOI, no date, closed access.
	r1 := records[1]
	if r1.DOI != "" {
		t.Errorf("DOI = %q, want empty", r1.DOI)
	}
	if r1.Date.Year() != 2018 || r1.Date.Month() != 1 || r1.Date.Day() != 1 {
		t.Errorf("Date = %v, want 2018-01-01 from publication_year", r1.Date)
	}
	if r1.DownloadURL != "" {
		t.Errorf("DownloadURL = %q, want empty for closed access", r1.DownloadURL)
	}
	if r1.Abstract != "" {
		t.Errorf("Abstract = %q, want empty for empty inverted index", r1.Abstract)
	}
}

// --- reconstructAbstract ---

func TestReconstructAbstract(t *testing.T) {
	tests := []struct {
		name  string
		index map[string][]int
		want  string
	}{
		{"nil map", nil, ""},
		{"single word", map[string][]int{"hello": {0}}, "hello"},
		{
			"repeated word",
			map[string][]int{
				"the": {0, 4},
				"cat": {1},
				"sat": {2},
				"on":  {3},
				"mat": {5},
			},
			"the cat sat on the mat",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reconstructAbstract(tt.index); got != tt.want {
				t.Errorf("reconstructAbstract() = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- Date range filtering ---

func TestOpenAlexSearchDateFilter(t *testing.T) {
	var receivedFilter string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedFilter = r.URL.Query().Get("filter")
		fmt.Fprint(w, `{"meta":{"count":0,"per_page":20,"page":1},"results":[]}`)
	}))
	defer ts.Close()

	old := openAlexAPIBase
	openAlexAPIBase = ts.URL
	defer func() { openAlexAPIBase = old }()

	s := &OpenAlex{Client: ts.Client()}
	query := types.Query{
		Text:     "test",
		DateFrom: time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	if _, err := s.Search(context.Background(), query, testCfg()); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !strings.Contains(receivedFilter, "from_publication_date:2020-01-15") {
		t.Errorf("filter = %q, should contain from_publication_date", receivedFilter)
	}
	if !strings.Contains(receivedFilter, "to_publication_date:2023-12-31") {
		t.Errorf("filter = %q, should contain to_publication_date", receivedFilter)
	}

	// No dates → no filter param.
	receivedFilter = "unset"
	_, _ = s.Search(context.Background(), types.Query{Text: "test"}, testCfg())
	if receivedFilter != "" {
		t.Errorf("filter = %q, should be empty when no dates set", receivedFilter)
	}
}

func TestOpenAlexSearchAuthError(t *testing.T) {
	ts := jsonTestServer(http.StatusForbidden, "")
	defer ts.Close()

	old := openAlexAPIBase
	openAlexAPIBase = ts.URL
	defer func() { openAlexAPIBase = old }()

	s := &OpenAlex{Client: ts.Client()}
	_, err := s.Search(context.Background(), types.Query{Text: "test"}, testCfg())
	if err == nil || !strings.Contains(err.Error(), "HTTP 403") {
		t.Errorf("error = %v, want HTTP 403", err)
	}
}

func TestOpenAlexSearchMalformedJSON(t *testing.T) {
	ts := jsonTestServer(http.StatusOK, `{not valid json`)
	defer ts.Close()

	old := openAlexAPIBase
	openAlexAPIBase = ts.URL
	defer func() { openAlexAPIBase = old }()

	s := &OpenAlex{Client: ts.Client()}
	_, err := s.Search(context.Background(), types.Query{Text: "test"}, testCfg())
	if err == nil || !strings.Contains(err.Error(), "parsing") {
		t.Errorf("error = %v, want parse failure", err)
	}
}
