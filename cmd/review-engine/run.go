// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/pipeline"
	"github.com/pdiddy/review-engine/internal/source"
	"github.com/pdiddy/review-engine/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Execute the full pipeline: search, triage, and full text",
	Long: `Run executes every pipeline stage in sequence for one query. Each
stage completes over the whole record set before the next begins. The run
summary is printed even when a stage fails partway, so the PRISMA counts
for the completed work are never lost.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().String("criteria", "criteria.yaml", "triage criteria YAML file")
	runCmd.Flags().String("from", "", "earliest publication date (YYYY-MM-DD)")
	runCmd.Flags().String("to", "", "latest publication date (YYYY-MM-DD)")
	runCmd.Flags().Bool("skip-fulltext", false, "stop after triage")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := buildConfig()

	criteriaPath, _ := cmd.Flags().GetString("criteria")
	criteria, err := loadCriteria(criteriaPath)
	if err != nil {
		return err
	}

	query := types.Query{Text: strings.Join(args, " ")}
	if query.DateFrom, err = parseDateFlag(cmd, "from"); err != nil {
		return err
	}
	if query.DateTo, err = parseDateFlag(cmd, "to"); err != nil {
		return err
	}

	s, db, err := loadState(ctx, cfg.StatePath)
	if err != nil {
		return err
	}

	searchClient := newHTTPClient(cfg, cfg.Search.Timeout)
	o := &pipeline.Orchestrator{
		Store: s,
		Aggregator: &source.Aggregator{
			Sources: buildSources(cfg, searchClient),
			Store:   s,
			Log:     logger,
		},
		Filter:  buildFilter(cfg, criteria, searchClient),
		Decider: buildDecider(cfg, criteria),
		Cfg:     cfg,
		Log:     logger,
	}
	if skip, _ := cmd.Flags().GetBool("skip-fulltext"); !skip {
		o.Resolver = buildResolver(cfg, newHTTPClient(cfg, cfg.FullText.Timeout))
	}

	_, runErr := o.Run(ctx, query, os.Stdout)

	// Persist whatever the run accomplished, even on failure.
	if err := saveState(ctx, db, s); err != nil {
		if runErr != nil {
			return runErr
		}
		return err
	}
	return runErr
}
