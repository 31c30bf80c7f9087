// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/pipeline"
)

var fulltextCmd = &cobra.Command{
	Use:   "fulltext",
	Short: "Fetch the full text of triaged records",
	Long: `Fulltext downloads the complete text of every record that passed
triage, using the record's download URL or an Unpaywall open-access lookup
by DOI. Records whose text cannot be fetched stay triaged with the failure
reason recorded; they are never excluded by a fetch failure.`,
	RunE: runFulltext,
}

func init() {
	fulltextCmd.Flags().Bool("unpaywall", true, "look up open-access copies by DOI via Unpaywall")
	fulltextCmd.Flags().String("output-dir", "", "artifact directory (overrides config)")
	rootCmd.AddCommand(fulltextCmd)
}

func runFulltext(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := buildConfig()

	if use, _ := cmd.Flags().GetBool("unpaywall"); !use {
		cfg.FullText.UseUnpaywall = false
	}
	if dir, _ := cmd.Flags().GetString("output-dir"); dir != "" {
		cfg.FullText.OutputDir = dir
	}

	s, db, err := loadState(ctx, cfg.StatePath)
	if err != nil {
		return err
	}
	if s.Counts().Triaged == 0 {
		db.Close()
		return fmt.Errorf("no triaged records in %s; run triage first", cfg.StatePath)
	}

	client := newHTTPClient(cfg, cfg.FullText.Timeout)
	o := &pipeline.Orchestrator{
		Store:    s,
		Resolver: buildResolver(cfg, client),
		Cfg:      cfg,
		Log:      logger,
	}

	unresolved, err := o.ResolveFullTexts(ctx)
	if err != nil {
		db.Close()
		return err
	}
	if err := saveState(ctx, db, s); err != nil {
		return err
	}

	for _, u := range unresolved {
		fmt.Fprintf(os.Stderr, "unresolved: %s (%s)\n", u.Title, u.Reason)
	}

	c := s.Counts()
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Fetched", "Unresolved", "Output Dir"})
	t.AppendRow(table.Row{c.FullText, len(unresolved), cfg.FullText.OutputDir})
	t.Render()
	return nil
}
