// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prefilter scores records against review criteria before any
// LLM is consulted. Implements: prd012-pretriage (R1-R3);
//
//	docs/ARCHITECTURE § Pre-Filter.
package prefilter

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pdiddy/review-engine/internal/store"
	"github.com/pdiddy/review-engine/pkg/types"
)

// Verdict is the pre-filter outcome for one record. The ordering matters:
// when the lexical and embedding signals disagree, the stricter (lower)
// verdict wins.
type Verdict int

const (
	VerdictExclude Verdict = iota
	VerdictUncertain
	VerdictInclude
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictExclude:
		return "exclude"
	case VerdictUncertain:
		return "uncertain"
	case VerdictInclude:
		return "include"
	default:
		return "unknown"
	}
}

// Embedder produces a fixed-length vector for a text. A nil Embedder is a
// valid configuration: verdicts are then lexical-only and fully
// deterministic.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Filter scores records against one immutable set of criteria.
type Filter struct {
	Criteria types.TriageCriteria
	Embedder Embedder
	Log      zerolog.Logger

	// The review-question embedding is computed once per run.
	questionOnce sync.Once
	questionVec  []float64
	questionErr  error
}

// New returns a Filter for the given criteria. embedder may be nil.
func New(criteria types.TriageCriteria, embedder Embedder) *Filter {
	return &Filter{Criteria: criteria, Embedder: embedder, Log: zerolog.Nop()}
}

// Score evaluates one record and returns a verdict plus a human-readable
// reason. An embedding failure is logged and degrades to the lexical
// verdict; it never fails the record.
func (f *Filter) Score(ctx context.Context, rec types.Record) (Verdict, string) {
	lexical, reason := f.lexical(rec)

	if f.Embedder == nil || lexical == VerdictExclude {
		// Exclusion priority: no similarity score overrides a keyword
		// exclusion.
		return lexical, reason
	}

	emb, embReason, err := f.embedding(ctx, rec)
	if err != nil {
		f.Log.Warn().Str("fingerprint", rec.Fingerprint).Err(err).
			Msg("embedding unavailable, using lexical verdict")
		return lexical, reason
	}

	// The stricter signal wins.
	if emb < lexical {
		return emb, embReason
	}
	return lexical, reason
}

// lexical applies the keyword rules: any exclusion keyword forces Exclude;
// all inclusion keywords present means Include; a partial match is
// ambiguous and defers to triage.
func (f *Filter) lexical(rec types.Record) (Verdict, string) {
	text := store.Normalize(rec.Title + " " + rec.Abstract)

	for _, kw := range f.Criteria.ExclusionKeys {
		if containsKeyword(text, kw) {
			return VerdictExclude, fmt.Sprintf("matched exclusion keyword %q", kw)
		}
	}

	if len(f.Criteria.InclusionKeys) == 0 {
		return VerdictUncertain, "no inclusion keywords configured"
	}

	matched := 0
	for _, kw := range f.Criteria.InclusionKeys {
		if containsKeyword(text, kw) {
			matched++
		}
	}
	switch matched {
	case len(f.Criteria.InclusionKeys):
		return VerdictInclude, "all inclusion keywords matched"
	case 0:
		return VerdictExclude, "no inclusion keywords matched"
	default:
		return VerdictUncertain, fmt.Sprintf("%d of %d inclusion keywords matched",
			matched, len(f.Criteria.InclusionKeys))
	}
}

// embedding compares the record against the review question by cosine
// similarity and maps the score onto the verdict bands.
func (f *Filter) embedding(ctx context.Context, rec types.Record) (Verdict, string, error) {
	f.questionOnce.Do(func() {
		f.questionVec, f.questionErr = f.Embedder.Embed(ctx, f.Criteria.Question)
	})
	if f.questionErr != nil {
		return 0, "", fmt.Errorf("embedding question: %w", f.questionErr)
	}

	recVec, err := f.Embedder.Embed(ctx, rec.Title+" "+rec.Abstract)
	if err != nil {
		return 0, "", fmt.Errorf("embedding record: %w", err)
	}

	sim, err := cosine(f.questionVec, recVec)
	if err != nil {
		return 0, "", err
	}

	switch {
	case sim < f.Criteria.LowThreshold:
		return VerdictExclude, fmt.Sprintf("similarity %.3f below threshold %.3f", sim, f.Criteria.LowThreshold), nil
	case sim >= f.Criteria.HighThreshold:
		return VerdictInclude, fmt.Sprintf("similarity %.3f above threshold %.3f", sim, f.Criteria.HighThreshold), nil
	default:
		return VerdictUncertain, fmt.Sprintf("similarity %.3f in uncertain band", sim), nil
	}
}

// containsKeyword matches a normalized keyword as a substring of the
// normalized record text, so multi-word keys like "deep learning" work.
func containsKeyword(normalizedText, keyword string) bool {
	kw := store.Normalize(keyword)
	if kw == "" {
		return false
	}
	return strings.Contains(normalizedText, kw)
}

// cosine returns the cosine similarity of two equal-length vectors.
func cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero-magnitude vector")
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
