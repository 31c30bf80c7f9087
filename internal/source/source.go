// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source queries scholarly APIs and feeds the results into the
// record store. Implements: prd011-identification (R1-R4);
//
//	docs/ARCHITECTURE § Source Aggregator.
package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/review-engine/internal/store"
	"github.com/pdiddy/review-engine/pkg/types"
)

// Source searches a single scholarly API. Each provider (arXiv, Crossref,
// OpenAlex) implements this interface per the Strategy pattern.
type Source interface {
	Name() string
	Search(ctx context.Context, query types.Query, cfg types.SearchConfig) ([]types.RawRecord, error)
}

// Failure records one source that could not deliver results. The batch
// carries on without it.
type Failure struct {
	Source string `json:"source"`
	Err    error  `json:"-"`
}

// Result summarizes one identification batch.
type Result struct {
	Fetched    int       `json:"fetched"`    // raw records across all sources
	Added      int       `json:"added"`      // new canonical records
	Duplicates int       `json:"duplicates"` // raw records merged into existing ones
	Failures   []Failure `json:"failures,omitempty"`
}

// HasFailures reports whether any source failed during the batch.
func (r Result) HasFailures() bool { return len(r.Failures) > 0 }

// Aggregator fans a query out to every configured source and merges the
// answers into a single deduplicated store.
type Aggregator struct {
	Sources []Source
	Store   *store.Store
	Log     zerolog.Logger
}

// Run queries the sources concurrently and merges their results. A
// non-empty query.Sources narrows the fan-out to those names. A failing
// source is reported in Result.Failures and skipped; Run returns an error
// only when the query is unusable, no sources are configured, or every
// source failed. Records are merged source by source in configuration
// order, so store insertion order does not depend on network timing.
func (a *Aggregator) Run(ctx context.Context, query types.Query, cfg types.SearchConfig) (Result, error) {
	if query.IsEmpty() {
		return Result{}, types.ErrConfiguration("query is empty: provide a research question")
	}
	sources := selectSources(a.Sources, query.Sources)
	if len(sources) == 0 {
		return Result{}, types.ErrConfiguration("no sources configured")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = len(sources)
	}

	fetched := make([][]types.RawRecord, len(sources))
	errs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range sources {
		g.Go(func() error {
			sctx := gctx
			if cfg.Timeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(gctx, cfg.Timeout)
				defer cancel()
			}
			records, err := src.Search(sctx, query, cfg)
			if err != nil {
				errs[i] = err
				return nil // one slow or broken API must not sink the batch
			}
			fetched[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var res Result
	for i, src := range sources {
		if errs[i] != nil {
			a.Log.Warn().Str("source", src.Name()).Err(errs[i]).Msg("source failed")
			res.Failures = append(res.Failures, Failure{Source: src.Name(), Err: errs[i]})
			continue
		}
		for _, raw := range fetched[i] {
			if !inDateRange(raw, query) {
				continue
			}
			res.Fetched++
			before := a.Store.Len()
			a.Store.AddOrMerge(raw)
			if a.Store.Len() > before {
				res.Added++
			} else {
				res.Duplicates++
			}
		}
		a.Log.Debug().Str("source", src.Name()).Int("records", len(fetched[i])).Msg("source done")
	}

	if len(res.Failures) == len(sources) {
		return res, fmt.Errorf("all %d sources failed (first: %s: %w)",
			len(sources), res.Failures[0].Source, res.Failures[0].Err)
	}
	return res, nil
}

// selectSources narrows the configured sources to the names the query asks
// for. An empty name list means all of them.
func selectSources(configured []Source, names []string) []Source {
	if len(names) == 0 {
		return configured
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []Source
	for _, src := range configured {
		if wanted[src.Name()] {
			out = append(out, src)
		}
	}
	return out
}

// inDateRange enforces the query window client-side. Sources that support
// server-side date filters still pass them along; this is the uniform
// backstop for the ones that do not.
func inDateRange(raw types.RawRecord, query types.Query) bool {
	if raw.Date.IsZero() {
		return true // never drop a record just because its date is unknown
	}
	if !query.DateFrom.IsZero() && raw.Date.Before(query.DateFrom) {
		return false
	}
	if !query.DateTo.IsZero() && raw.Date.After(query.DateTo) {
		return false
	}
	return true
}

// statusError classifies a non-200 response. Auth and rate-limit statuses
// map to ErrSourceAuth so callers can distinguish a misconfigured key from
// a transient outage.
func statusError(source string, code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s returned HTTP %d: %w", source, code, types.ErrSourceAuth)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s rate limited (HTTP %d): %w", source, code, types.ErrSourceAuth)
	default:
		return fmt.Errorf("%s returned HTTP %d: %w", source, code, types.ErrSourceUnavailable)
	}
}
