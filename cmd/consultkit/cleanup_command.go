package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joelkehle/consultkit/internal/cleanup"
	"github.com/joelkehle/consultkit/internal/tabular"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var (
		opts      cleanup.Options
		threshold float64
		out       string
		column    string
	)
	cmd := &cobra.Command{
		Use:   "cleanup <points.csv|points.xlsx>",
		Short: "Propose merges and rewrites for a pain-point list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensure()
			if err != nil {
				return err
			}
			t, err := readTableFile(args[0])
			if err != nil {
				return err
			}
			candidates := []string{"pain point", "pain points", "text", "statement", "issue", "description"}
			if column != "" {
				candidates = []string{column}
			}
			textCol, err := t.Column("pain point text", candidates...)
			if err != nil {
				return err
			}
			idCol := t.OptionalColumn("id", "pain point id", "#")
			points := make([]cleanup.RawPoint, 0, len(t.Rows))
			for _, row := range t.Rows {
				points = append(points, cleanup.RawPoint{ID: tabular.Cell(row, idCol), Text: tabular.Cell(row, textCol)})
			}

			var canon cleanup.Canonicalizer
			if opts.UseLLM {
				caller, err := ctx.caller(cfg, logger)
				if err != nil {
					return err
				}
				if caller == nil {
					return fmt.Errorf("--llm requires a configured language model")
				}
				canon = cleanup.NewLLMCanonicalizer(caller)
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Cleanup.Threshold
			}
			opts.Threshold = &threshold
			if opts.MaxCanonicalWords == 0 {
				opts.MaxCanonicalWords = cfg.Cleanup.MaxCanonicalWords
			}
			if opts.Concurrency == 0 {
				opts.Concurrency = cfg.Cleanup.Concurrency
			}

			res, err := cleanup.NewBuilder(canon, logger).Build(cmd.Context(), points, opts)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(res.Proposal))
			for _, p := range res.Proposal {
				rows = append(rows, []string{p.ID, p.GroupID, p.Action, p.Original, p.Proposed})
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, renderTable([]string{"ID", "Group", "Action", "Original", "Proposed"}, rows))
			s := res.Summary
			fmt.Fprintf(w, "%d statements, %d groups (%d with duplicates), %d exact and %d near duplicates, %d dropped [%s]\n",
				s.TotalRaw, s.GroupsDetected, s.DuplicateGroups, s.ExactDuplicates, s.NearDuplicates, s.Dropped, s.AnalysisQuality)

			if out == "" {
				return nil
			}
			wb := &tabular.Workbook{}
			xrows := make([][]any, 0, len(res.Proposal))
			for _, p := range res.Proposal {
				xrows = append(xrows, []any{p.ID, p.Original, p.GroupID, p.Proposed, p.Action, p.Rationale, joinIDs(p.MergedIDs)})
			}
			wb.AddSheet("Proposal", []string{"ID", "Original", "Group ID", "Proposed", "Action", "Rationale", "Merged IDs"}, xrows)
			if err := writeWorkbook(out, wb); err != nil {
				return err
			}
			fmt.Fprintf(w, "Wrote %s\n", out)
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&threshold, "threshold", 0, "Similarity threshold for grouping (default from config)")
	f.IntVar(&opts.MaxWords, "max-words", 0, "Truncate normalized statements to this many words")
	f.BoolVar(&opts.Rules.RemoveProperNouns, "remove-proper-nouns", false, "Remove proper nouns")
	f.BoolVar(&opts.Rules.RemoveMetrics, "remove-metrics", false, "Remove numbers and percentages")
	f.BoolVar(&opts.Rules.PresentTense, "present-tense", false, "Rewrite simple past tense to present")
	f.BoolVar(&opts.UseLLM, "llm", false, "Use the language model to word canonical statements")
	f.StringVar(&column, "column", "", "Header of the statement column")
	f.StringVarP(&out, "out", "o", "", "Also write the proposal to this .xlsx file")
	return cmd
}
