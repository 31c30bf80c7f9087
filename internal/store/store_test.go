// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/pdiddy/review-engine/pkg/types"
)

func rawA() types.RawRecord {
	return types.RawRecord{
		Title:    "Deep Learning for Lung Nodule Detection",
		Authors:  []string{"Silva JA", "Souza MR"},
		Abstract: "We study deep learning for lung nodule detection.",
		Date:     time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC),
		Source:   "arxiv",
	}
}

// --- Normalization and fingerprinting ---

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Deep Learning", "deep learning"},
		{"punctuation", "Attention Is All You Need!", "attention is all you need"},
		{"whitespace", "  deep\t\nlearning  ", "deep learning"},
		{"empty", "", ""},
		{"digits kept", "GPT-4 in 2023", "gpt4 in 2023"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFingerprintIdempotent(t *testing.T) {
	a := rawA()
	b := rawA()
	b.Title = "  deep LEARNING for lung,   nodule Detection "
	if Fingerprint(a) != Fingerprint(b) {
		t.Errorf("fingerprints differ under whitespace/case reordering: %q vs %q",
			Fingerprint(a), Fingerprint(b))
	}
}

func TestFingerprintPrefersDOI(t *testing.T) {
	a := rawA()
	a.DOI = "https://doi.org/10.1000/ABC"
	if got := Fingerprint(a); got != "doi:10.1000/abc" {
		t.Errorf("Fingerprint = %q, want doi:10.1000/abc", got)
	}
}

// --- Dedup and merge ---

func TestAddOrMergeUnionsSources(t *testing.T) {
	s := New()
	fp1 := s.AddOrMerge(rawA())

	dup := rawA()
	dup.Source = "openalex"
	dup.DOI = "10.1000/abc" // same work, DOI present this time
	fp2 := s.AddOrMerge(dup)

	if fp1 != fp2 {
		t.Fatalf("duplicate got distinct fingerprint: %q vs %q", fp1, fp2)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	rec, _ := s.Get(fp1)
	if len(rec.Sources) != 2 {
		t.Errorf("Sources = %v, want 2 entries", rec.Sources)
	}
	if rec.DOI != "10.1000/abc" {
		t.Errorf("DOI = %q, want filled from duplicate", rec.DOI)
	}
}

func TestAddOrMergeDOIFirstThenContent(t *testing.T) {
	s := New()
	withDOI := rawA()
	withDOI.DOI = "10.1000/abc"
	fp1 := s.AddOrMerge(withDOI)

	noDOI := rawA()
	noDOI.Source = "crossref"
	fp2 := s.AddOrMerge(noDOI)

	if fp1 != fp2 {
		t.Fatalf("reversed arrival order broke dedup: %q vs %q", fp1, fp2)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestMergeFirstSourceWins(t *testing.T) {
	s := New()
	fp := s.AddOrMerge(rawA())

	dup := rawA()
	dup.Abstract = "A different, lower-quality abstract."
	dup.Source = "crossref"
	s.AddOrMerge(dup)

	rec, _ := s.Get(fp)
	if rec.Abstract != rawA().Abstract {
		t.Errorf("populated abstract was overwritten: %q", rec.Abstract)
	}
}

func TestMergeCommutative(t *testing.T) {
	a := rawA()
	b := rawA()
	b.Source = "openalex"
	b.Abstract = ""
	b.DownloadURL = "https://example.org/paper.pdf"

	s1 := New()
	s1.AddOrMerge(a)
	s1.AddOrMerge(b)

	s2 := New()
	s2.AddOrMerge(b)
	s2.AddOrMerge(a)

	r1 := s1.All()[0]
	r2 := s2.All()[0]

	// Source order differs by arrival; the set must match.
	if len(r1.Sources) != 2 || len(r2.Sources) != 2 {
		t.Fatalf("source sets = %v / %v, want 2 entries each", r1.Sources, r2.Sources)
	}
	r1.Sources, r2.Sources = nil, nil
	if diff := cmp.Diff(r1, r2); diff != "" {
		t.Errorf("merge order changed stored record (-ab +ba):\n%s", diff)
	}
}

func TestMergeIdempotent(t *testing.T) {
	s := New()
	fp := s.AddOrMerge(rawA())
	before, _ := s.Get(fp)
	s.AddOrMerge(rawA())
	after, _ := s.Get(fp)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("self-merge changed record:\n%s", diff)
	}
}

func TestAllPreservesInsertionOrder(t *testing.T) {
	s := New()
	titles := []string{"First Paper", "Second Paper", "Third Paper"}
	for _, title := range titles {
		r := rawA()
		r.Title = title
		s.AddOrMerge(r)
	}
	all := s.All()
	for i, title := range titles {
		if all[i].Title != title {
			t.Errorf("All()[%d].Title = %q, want %q", i, all[i].Title, title)
		}
	}
}

// --- Stage machine ---

func TestAdvanceForward(t *testing.T) {
	s := New()
	fp := s.AddOrMerge(rawA())
	for _, stage := range []types.Stage{
		types.StagePreFiltered, types.StageTriaged, types.StageFullTextFetched,
	} {
		if err := s.Advance(fp, stage, ""); err != nil {
			t.Fatalf("Advance(%s) = %v", stage, err)
		}
	}
	rec, _ := s.Get(fp)
	if rec.Stage != types.StageFullTextFetched {
		t.Errorf("Stage = %s, want fulltext", rec.Stage)
	}
}

func TestAdvanceBackwardRejected(t *testing.T) {
	s := New()
	fp := s.AddOrMerge(rawA())
	if err := s.Advance(fp, types.StageTriaged, ""); err != nil {
		t.Fatal(err)
	}
	err := s.Advance(fp, types.StagePreFiltered, "")
	if !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("backward advance = %v, want ErrInvalidTransition", err)
	}
}

func TestAdvanceSameStageIsNoop(t *testing.T) {
	s := New()
	fp := s.AddOrMerge(rawA())
	if err := s.Advance(fp, types.StagePreFiltered, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Advance(fp, types.StagePreFiltered, ""); err != nil {
		t.Errorf("re-advance to current stage = %v, want nil", err)
	}
}

func TestExcludedIsAbsorbing(t *testing.T) {
	s := New()
	fp := s.AddOrMerge(rawA())
	if err := s.Advance(fp, types.StageExcluded, "off topic"); err != nil {
		t.Fatal(err)
	}
	rec, _ := s.Get(fp)
	if rec.DecisionReason != "off topic" {
		t.Errorf("DecisionReason = %q, want justification preserved", rec.DecisionReason)
	}
	if rec.ExcludedFrom != types.StageIdentified {
		t.Errorf("ExcludedFrom = %s, want identified", rec.ExcludedFrom)
	}
	err := s.Advance(fp, types.StageTriaged, "")
	if !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("advance out of Excluded = %v, want ErrInvalidTransition", err)
	}
}

func TestExcludeFromTerminalRejected(t *testing.T) {
	s := New()
	fp := s.AddOrMerge(rawA())
	for _, stage := range []types.Stage{
		types.StagePreFiltered, types.StageTriaged, types.StageFullTextFetched,
	} {
		if err := s.Advance(fp, stage, ""); err != nil {
			t.Fatal(err)
		}
	}
	err := s.Advance(fp, types.StageExcluded, "")
	if !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("exclude from fulltext = %v, want ErrInvalidTransition", err)
	}
}

// --- Counts ---

// seed populates a store so that each stage holds exactly the given number
// of records.
func seed(t *testing.T, s *Store, identified, prefiltered, triaged, fulltext int) {
	t.Helper()
	total := identified + prefiltered + triaged + fulltext
	for i := 0; i < total; i++ {
		r := rawA()
		r.Title = r.Title + " " + string(rune('a'+i%26)) + string(rune('a'+(i/26)%26)) + string(rune('a'+i/676))
		fp := s.AddOrMerge(r)
		switch {
		case i < identified:
		case i < identified+prefiltered:
			if err := s.Advance(fp, types.StagePreFiltered, ""); err != nil {
				t.Fatal(err)
			}
		case i < identified+prefiltered+triaged:
			if err := s.Advance(fp, types.StageTriaged, ""); err != nil {
				t.Fatal(err)
			}
		default:
			if err := s.Advance(fp, types.StageFullTextFetched, ""); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func TestCountsMatchStagePopulations(t *testing.T) {
	s := New()
	seed(t, s, 200, 150, 100, 80)

	got := s.Counts()
	want := types.PrismaCounts{Identified: 200, PreFiltered: 150, Triaged: 100, FullText: 80}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Counts() mismatch (-want +got):\n%s", diff)
	}
}

func TestCountsTrackEveryMutation(t *testing.T) {
	s := New()
	fp := s.AddOrMerge(rawA())
	if c := s.Counts(); c.Identified != 1 {
		t.Fatalf("Identified = %d, want 1", c.Identified)
	}
	if err := s.Advance(fp, types.StageExcluded, "x"); err != nil {
		t.Fatal(err)
	}
	c := s.Counts()
	if c.Identified != 0 || c.Excluded != 1 {
		t.Errorf("Counts after exclusion = %+v", c)
	}
}

func TestFunnelAttributesExclusions(t *testing.T) {
	s := New()

	// One record excluded at pre-filter, one fetched end to end.
	r1 := rawA()
	r1.Title = "Record One"
	fp1 := s.AddOrMerge(r1)
	if err := s.Advance(fp1, types.StagePreFiltered, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Advance(fp1, types.StageExcluded, "keyword"); err != nil {
		t.Fatal(err)
	}

	r2 := rawA()
	r2.Title = "Record Two"
	fp2 := s.AddOrMerge(r2)
	for _, stage := range []types.Stage{
		types.StagePreFiltered, types.StageTriaged, types.StageFullTextFetched,
	} {
		if err := s.Advance(fp2, stage, ""); err != nil {
			t.Fatal(err)
		}
	}

	got := s.Funnel()
	want := types.PrismaFunnel{Identified: 2, PreFiltered: 2, Triaged: 1, FullText: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Funnel() mismatch (-want +got):\n%s", diff)
	}
}
