// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package triage resolves uncertain records against the review question,
// via an LLM when one is configured and a deterministic heuristic
// otherwise. Implements: prd013-triage (R1-R4);
//
//	docs/ARCHITECTURE § Triage Decider.
package triage

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/review-engine/internal/store"
	"github.com/pdiddy/review-engine/pkg/types"
)

// Decision is the triage outcome for one record.
type Decision struct {
	Include       bool   `json:"include"`
	Justification string `json:"justification"`
}

// Backend abstracts the LLM API so tests can supply a mock.
type Backend interface {
	Decide(ctx context.Context, question string, rec types.Record) (Decision, error)
}

// fallbackPrefix tags decision reasons produced without the LLM, so audit
// output distinguishes the two paths.
const fallbackPrefix = "fallback heuristic: "

// Decider classifies records as relevant or not. A nil Backend is a valid
// configuration: every decision then comes from the deterministic keyword
// heuristic.
type Decider struct {
	Backend  Backend
	Criteria types.TriageCriteria
	Log      zerolog.Logger

	// MaxRetries bounds additional attempts after the first failed LLM
	// call. Defaults to 1 (one retry).
	MaxRetries int
}

// Decide classifies one record. It never returns an error: LLM failures
// are retried with backoff and then resolved by the heuristic, so a single
// provider outage cannot stall the run.
func (d *Decider) Decide(ctx context.Context, rec types.Record) Decision {
	if d.Backend == nil {
		return d.fallback(rec)
	}

	dec, err := d.callWithRetry(ctx, rec)
	if err != nil {
		d.Log.Warn().Str("fingerprint", rec.Fingerprint).Err(err).
			Msg("LLM triage failed, using fallback heuristic")
		return d.fallback(rec)
	}
	return dec
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

func (d *Decider) callWithRetry(ctx context.Context, rec types.Record) (Decision, error) {
	maxRetries := d.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return Decision{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		dec, err := d.Backend.Decide(ctx, d.Criteria.Question, rec)
		if err == nil {
			return dec, nil
		}
		lastErr = err
	}
	return Decision{}, fmt.Errorf("after %d attempts: %w", maxRetries+1, lastErr)
}

// fallback is the deterministic no-LLM rule: include when at least as many
// inclusion keywords as exclusion keywords match the record text. Ties
// include, favoring recall over precision.
func (d *Decider) fallback(rec types.Record) Decision {
	text := store.Normalize(rec.Title + " " + rec.Abstract)

	incl := countMatches(text, d.Criteria.InclusionKeys)
	excl := countMatches(text, d.Criteria.ExclusionKeys)

	return Decision{
		Include: incl >= excl,
		Justification: fmt.Sprintf("%s%d inclusion vs %d exclusion keyword matches",
			fallbackPrefix, incl, excl),
	}
}

// IsFallback reports whether a decision reason came from the heuristic
// path rather than the LLM.
func IsFallback(reason string) bool {
	return strings.HasPrefix(reason, fallbackPrefix)
}

func countMatches(normalizedText string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		k := store.Normalize(kw)
		if k != "" && strings.Contains(normalizedText, k) {
			n++
		}
	}
	return n
}
