// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <records.csv>",
	Short: "Replace the run state with an exported record table",
	Long: `Import loads a CSV previously produced by "report --csv" into the
run-state database, replacing its contents. The round trip supports manual
curation: export the table, adjust stages or decision reasons by hand, and
import the result before continuing the pipeline.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := buildConfig()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening CSV file: %w", err)
	}
	defer f.Close()

	s, err := store.ReadCSV(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	db, err := store.OpenDB(cfg.StatePath)
	if err != nil {
		return err
	}
	if err := db.Reset(ctx); err != nil {
		db.Close()
		return err
	}
	if err := saveState(ctx, db, s); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "imported %d records into %s\n", s.Len(), cfg.StatePath)
	return nil
}
