// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline sequences identification, pre-filtering, triage, and
// full-text resolution over one record store, with a strict barrier
// between stages. Implements: prd015-pipeline (R1-R5);
//
//	docs/ARCHITECTURE § Orchestrator.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/review-engine/internal/fulltext"
	"github.com/pdiddy/review-engine/internal/prefilter"
	"github.com/pdiddy/review-engine/internal/source"
	"github.com/pdiddy/review-engine/internal/store"
	"github.com/pdiddy/review-engine/internal/triage"
	"github.com/pdiddy/review-engine/pkg/types"
)

// Orchestrator drives the review pipeline. Each stage runs to completion
// over the whole record set before the next begins, so stage counts are
// stable at every boundary.
type Orchestrator struct {
	Store      *store.Store
	Aggregator *source.Aggregator
	Filter     *prefilter.Filter
	Decider    *triage.Decider
	Resolver   *fulltext.Resolver

	Cfg types.PipelineConfig
	Log zerolog.Logger
}

// RunSummary is the end-of-run report. It is produced even when stages
// partially fail, so no failure is ever silent.
type RunSummary struct {
	Counts          types.PrismaCounts `json:"counts"`
	SourceFailures  []source.Failure   `json:"source_failures,omitempty"`
	TriageFallbacks int                `json:"triage_fallbacks"`
	Unresolved      []UnresolvedItem   `json:"unresolved,omitempty"`
}

// UnresolvedItem is a triaged record whose full text could not be fetched.
type UnresolvedItem struct {
	Fingerprint string `json:"fingerprint"`
	Title       string `json:"title"`
	Reason      string `json:"reason"`
}

// Run executes the full pipeline for one query. The returned summary is
// valid even when err is non-nil: completed stage advancements are kept,
// in-flight records stay at their prior stage.
func (o *Orchestrator) Run(ctx context.Context, query types.Query, w io.Writer) (summary RunSummary, err error) {
	defer func() {
		summary.Counts = o.Store.Counts()
		printSummary(w, summary)
	}()

	if o.Decider != nil {
		if err := o.Decider.Criteria.Validate(); err != nil {
			return summary, err
		}
	}

	res, err := o.Identify(ctx, query)
	summary.SourceFailures = res.Failures
	if err != nil {
		return summary, err
	}
	fmt.Fprintf(w, "identified: %d records (%d duplicates merged, %d source failures)\n",
		res.Added, res.Duplicates, len(res.Failures))

	fallbacks, err := o.Triage(ctx)
	summary.TriageFallbacks = fallbacks
	if err != nil {
		return summary, err
	}
	c := o.Store.Counts()
	fmt.Fprintf(w, "triaged: %d included, %d excluded so far\n", c.Triaged, c.Excluded)

	if o.Resolver != nil {
		unresolved, err := o.ResolveFullTexts(ctx)
		summary.Unresolved = unresolved
		if err != nil {
			return summary, err
		}
		fmt.Fprintf(w, "full text: %d fetched, %d unresolved\n",
			o.Store.Counts().FullText, len(unresolved))
	}

	return summary, nil
}

// Identify fans the query out to the sources and merges results into the
// store.
func (o *Orchestrator) Identify(ctx context.Context, query types.Query) (source.Result, error) {
	if o.Aggregator == nil {
		return source.Result{}, types.ErrConfiguration("no source aggregator configured")
	}
	return o.Aggregator.Run(ctx, query, o.Cfg.Search)
}

// Triage pre-filters every identified record and resolves the uncertain
// ones through the decider. It returns the number of fallback decisions
// taken. Pre-filtering and triage run as two barriers: all verdicts are
// known before the first LLM call.
func (o *Orchestrator) Triage(ctx context.Context) (int, error) {
	if o.Filter == nil || o.Decider == nil {
		return 0, types.ErrConfiguration("triage criteria not configured")
	}

	workers := o.Cfg.Triage.Workers
	if workers <= 0 {
		workers = 4
	}

	// Stage one: verdict every identified record.
	verdicts := make(map[string]prefilter.Verdict)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rec := range o.Store.All() {
		if rec.Stage != types.StageIdentified {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			verdict, reason := o.Filter.Score(gctx, rec)
			if verdict == prefilter.VerdictExclude {
				return o.Store.Advance(rec.Fingerprint, types.StageExcluded, reason)
			}
			if err := o.Store.Advance(rec.Fingerprint, types.StagePreFiltered, reason); err != nil {
				return err
			}
			mu.Lock()
			verdicts[rec.Fingerprint] = verdict
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	// Stage two: decide the survivors.
	var fallbacks int
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rec := range o.Store.All() {
		if rec.Stage != types.StagePreFiltered {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if verdicts[rec.Fingerprint] == prefilter.VerdictInclude {
				return o.Store.Advance(rec.Fingerprint, types.StageTriaged, rec.DecisionReason)
			}

			dec := o.Decider.Decide(gctx, rec)
			if triage.IsFallback(dec.Justification) {
				mu.Lock()
				fallbacks++
				mu.Unlock()
			}
			if dec.Include {
				return o.Store.Advance(rec.Fingerprint, types.StageTriaged, dec.Justification)
			}
			return o.Store.Advance(rec.Fingerprint, types.StageExcluded, dec.Justification)
		})
	}
	if err := g.Wait(); err != nil {
		return fallbacks, err
	}
	return fallbacks, nil
}

// ResolveFullTexts fetches the full text of every triaged record. Records
// whose text cannot be fetched stay Triaged with a reason attached and are
// returned for the summary; they are never excluded by a fetch failure.
func (o *Orchestrator) ResolveFullTexts(ctx context.Context) ([]UnresolvedItem, error) {
	if o.Resolver == nil {
		return nil, types.ErrConfiguration("no full-text resolver configured")
	}

	workers := o.Cfg.FullText.Workers
	if workers <= 0 {
		workers = 4
	}

	var mu sync.Mutex
	var unresolved []UnresolvedItem

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rec := range o.Store.All() {
		if rec.Stage != types.StageTriaged {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := o.Resolver.Fetch(gctx, rec)
			if res.Status == fulltext.StatusFetched {
				return o.Store.Advance(rec.Fingerprint, types.StageFullTextFetched, "")
			}

			o.Log.Debug().Str("fingerprint", rec.Fingerprint).
				Str("status", string(res.Status)).Msg("full text unresolved")
			if err := o.Store.SetReason(rec.Fingerprint, res.Reason); err != nil {
				return err
			}
			mu.Lock()
			unresolved = append(unresolved, UnresolvedItem{
				Fingerprint: rec.Fingerprint,
				Title:       rec.Title,
				Reason:      res.Reason,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return unresolved, err
	}
	return unresolved, nil
}

// printSummary writes the stage counts and failure listings. Called on
// every run exit path.
func printSummary(w io.Writer, s RunSummary) {
	fmt.Fprintf(w, "\nRun summary: %d identified, %d prefiltered, %d triaged, %d full-text, %d excluded\n",
		s.Counts.Identified+s.Counts.PreFiltered+s.Counts.Triaged+s.Counts.FullText+s.Counts.Excluded,
		s.Counts.PreFiltered, s.Counts.Triaged, s.Counts.FullText, s.Counts.Excluded)
	if s.TriageFallbacks > 0 {
		fmt.Fprintf(w, "  %d records decided by the fallback heuristic\n", s.TriageFallbacks)
	}
	for _, f := range s.SourceFailures {
		fmt.Fprintf(w, "  source failed: %s: %v\n", f.Source, f.Err)
	}
	for _, u := range s.Unresolved {
		fmt.Fprintf(w, "  full text unresolved: %s (%s)\n", u.Title, u.Reason)
	}
}
