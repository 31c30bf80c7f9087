// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/pipeline"
)

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Pre-filter identified records and triage the uncertain ones",
	Long: `Triage runs the two screening stages over the persisted record set:
the deterministic keyword/embedding pre-filter first, then LLM-assisted
decisions for records the pre-filter could not settle. Without an Anthropic
API key the uncertain records are decided by a keyword-count heuristic and
the decision reason says so.`,
	RunE: runTriage,
}

func init() {
	triageCmd.Flags().String("criteria", "criteria.yaml", "triage criteria YAML file")
	rootCmd.AddCommand(triageCmd)
}

func runTriage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := buildConfig()

	criteriaPath, _ := cmd.Flags().GetString("criteria")
	criteria, err := loadCriteria(criteriaPath)
	if err != nil {
		return err
	}

	s, db, err := loadState(ctx, cfg.StatePath)
	if err != nil {
		return err
	}
	if s.Len() == 0 {
		db.Close()
		return fmt.Errorf("no records in %s; run search first", cfg.StatePath)
	}

	client := newHTTPClient(cfg, cfg.Search.Timeout)
	o := &pipeline.Orchestrator{
		Store:   s,
		Filter:  buildFilter(cfg, criteria, client),
		Decider: buildDecider(cfg, criteria),
		Cfg:     cfg,
		Log:     logger,
	}

	fallbacks, err := o.Triage(ctx)
	if err != nil {
		db.Close()
		return err
	}
	if err := saveState(ctx, db, s); err != nil {
		return err
	}

	if fallbacks > 0 {
		fmt.Fprintf(os.Stderr, "note: %d records decided by the fallback heuristic\n", fallbacks)
	}

	c := s.Counts()
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Identified", "Pre-Filtered", "Triaged", "Excluded"})
	t.AppendRow(table.Row{c.Identified, c.PreFiltered, c.Triaged, c.Excluded})
	t.Render()
	return nil
}
