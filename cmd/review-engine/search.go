// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/source"
	"github.com/pdiddy/review-engine/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Identify records across the configured scholarly sources",
	Long: `Search queries the enabled sources (arXiv, Crossref, OpenAlex) in
parallel, deduplicates the results against the existing run state, and
persists the merged record set. Re-running with a different query adds to
the same review; duplicates across queries are merged, not repeated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("from", "", "earliest publication date (YYYY-MM-DD)")
	searchCmd.Flags().String("to", "", "latest publication date (YYYY-MM-DD)")
	searchCmd.Flags().Int("max-records", 0, "per-source record cap (overrides config)")
	searchCmd.Flags().StringSlice("sources", nil, "restrict the query to these sources (arxiv, crossref, openalex)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := buildConfig()

	query := types.Query{Text: strings.Join(args, " ")}
	query.MaxRecords, _ = cmd.Flags().GetInt("max-records")
	query.Sources, _ = cmd.Flags().GetStringSlice("sources")

	var err error
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

	client := newHTTPClient(cfg, cfg.Search.Timeout)
	agg := &source.Aggregator{
		Sources: buildSources(cfg, client),
		Store:   s,
		Log:     logger,
	}

	res, err := agg.Run(ctx, query, cfg.Search)
	if err != nil {
		db.Close()
		return err
	}
	if err := saveState(ctx, db, s); err != nil {
		return err
	}

	for _, f := range res.Failures {
		fmt.Fprintf(os.Stderr, "warning: source %s failed: %v\n", f.Source, f.Err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Fetched", "Added", "Duplicates", "Failed Sources", "Total Records"})
	t.AppendRow(table.Row{res.Fetched, res.Added, res.Duplicates, len(res.Failures), s.Len()})
	t.Render()
	return nil
}

// parseDateFlag parses an optional YYYY-MM-DD flag value.
func parseDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date %q: expected YYYY-MM-DD", name, v)
	}
	return t, nil
}
