// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/store"
	"github.com/pdiddy/review-engine/pkg/types"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the PRISMA funnel for the current run state",
	Long: `Report summarizes the persisted record set as a PRISMA flow: how
many records reached each stage and how many were excluded at each stage
boundary. The funnel counts are cumulative, so each stage's count includes
everything that advanced past it.

With --csv the full record table is exported for external analysis. With
--dot a Graphviz flow diagram is written, ready for "dot -Tsvg".`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().String("csv", "", "export the record table to this CSV file")
	reportCmd.Flags().String("dot", "", "write a Graphviz PRISMA diagram to this file")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := buildConfig()

	s, db, err := loadState(ctx, cfg.StatePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if csvPath, _ := cmd.Flags().GetString("csv"); csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return fmt.Errorf("creating CSV file: %w", err)
		}
		if err := s.WriteCSV(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %d records to %s\n", s.Len(), csvPath)
	}

	if dotPath, _ := cmd.Flags().GetString("dot"); dotPath != "" {
		if err := os.WriteFile(dotPath, []byte(prismaDot(s)), 0o644); err != nil {
			return fmt.Errorf("writing DOT file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "wrote PRISMA diagram to %s\n", dotPath)
	}

	funnel := s.Funnel()
	excluded := excludedByStage(s)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Stage", "Reached", "Excluded At Stage"})
	t.AppendRow(table.Row{"Identified", funnel.Identified, excluded[types.StageIdentified]})
	t.AppendRow(table.Row{"Pre-Filtered", funnel.PreFiltered, excluded[types.StagePreFiltered]})
	t.AppendRow(table.Row{"Triaged", funnel.Triaged, excluded[types.StageTriaged]})
	t.AppendRow(table.Row{"Full Text", funnel.FullText, "-"})
	t.Render()
	return nil
}

// excludedByStage attributes each excluded record to the stage it was
// excluded from.
func excludedByStage(s *store.Store) map[types.Stage]int {
	out := make(map[types.Stage]int)
	for _, rec := range s.All() {
		if rec.Stage == types.StageExcluded {
			out[rec.ExcludedFrom]++
		}
	}
	return out
}

// prismaDot renders the funnel as a Graphviz digraph: the main flow down
// the middle, exclusion boxes branching off at each stage boundary.
func prismaDot(s *store.Store) string {
	funnel := s.Funnel()
	excluded := excludedByStage(s)

	stages := []struct {
		id    string
		label string
		count int
		from  types.Stage
	}{
		{"identified", "Records identified", funnel.Identified, types.StageIdentified},
		{"prefiltered", "Passed pre-filter", funnel.PreFiltered, types.StagePreFiltered},
		{"triaged", "Included after triage", funnel.Triaged, types.StageTriaged},
		{"fulltext", "Full text retrieved", funnel.FullText, ""},
	}

	var b []byte
	b = append(b, "digraph prisma {\n"...)
	b = append(b, "\trankdir=TB;\n\tnode [shape=box, fontname=\"Helvetica\"];\n\n"...)

	for _, st := range stages {
		b = append(b, fmt.Sprintf("\t%s [label=\"%s\\n(n = %d)\"];\n", st.id, st.label, st.count)...)
	}
	b = append(b, '\n')

	for i := 0; i < len(stages)-1; i++ {
		b = append(b, fmt.Sprintf("\t%s -> %s;\n", stages[i].id, stages[i+1].id)...)
		if n := excluded[stages[i].from]; n > 0 {
			exclID := "excluded_" + stages[i].id
			b = append(b, fmt.Sprintf("\t%s [label=\"Excluded\\n(n = %d)\", style=dashed];\n", exclID, n)...)
			b = append(b, fmt.Sprintf("\t%s -> %s;\n", stages[i].id, exclID)...)
		}
	}

	b = append(b, "}\n"...)
	return string(b)
}
