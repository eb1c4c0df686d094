package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joelkehle/consultkit/internal/appmap"
	"github.com/joelkehle/consultkit/internal/tabular"
)

func newMapAppsCommand(ctx *commandContext) *cobra.Command {
	var (
		physicalPath string
		logicalPath  string
		out          string
		offline      bool
	)
	cmd := &cobra.Command{
		Use:   "map-apps",
		Short: "Map physical applications onto a logical catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensure()
			if err != nil {
				return err
			}
			items, err := loadPhysical(physicalPath)
			if err != nil {
				return err
			}
			entries, err := loadLogical(logicalPath)
			if err != nil {
				return err
			}
			cat, err := appmap.NewCatalogue(entries)
			if err != nil {
				return fmt.Errorf("%s: %w", logicalPath, err)
			}

			rec := appmap.NewReconciler(nil, cat, appmap.Options{MaxAttempts: cfg.Mapping.MaxAttempts, Logger: logger})
			if !offline {
				caller, err := ctx.caller(cfg, logger)
				if err != nil {
					return err
				}
				if caller == nil {
					logger.Warn("consultkit llm_disabled", "reason", "mapping by similarity only")
				}
				rec = appmap.NewReconciler(caller, cat, appmap.Options{MaxAttempts: cfg.Mapping.MaxAttempts, Logger: logger})
			}
			records, err := rec.MapAll(cmd.Context(), items, cfg.Mapping.Concurrency)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(records))
			xrows := make([][]any, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{r.PhysicalID, r.LogicalID, r.LogicalName, r.State,
					strconv.FormatFloat(r.Similarity, 'f', 2, 64), yesNo(r.Uncertainty)})
				xrows = append(xrows, []any{r.PhysicalID, r.PhysicalName, r.LogicalID, r.LogicalName, r.Similarity,
					r.Rationale, r.Uncertainty, r.ModelLogicalID, r.AutoSubstituted, r.MismatchReason, r.Attempts, r.State})
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, renderTable([]string{"Physical", "Logical", "Name", "State", "Similarity", "Uncertain"}, rows))
			if out == "" {
				return nil
			}
			wb := &tabular.Workbook{}
			wb.AddSheet("Mapping", []string{"Physical ID", "Physical Name", "Logical ID", "Logical Name", "Similarity",
				"Rationale", "Uncertainty", "Model Logical ID", "Auto Substituted", "Mismatch Reason", "Attempts", "State"}, xrows)
			if err := writeWorkbook(out, wb); err != nil {
				return err
			}
			fmt.Fprintf(w, "Wrote %s\n", out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&physicalPath, "physical", "", "CSV/XLSX of physical applications")
	f.StringVar(&logicalPath, "logical", "", "CSV/XLSX logical catalogue")
	f.BoolVar(&offline, "offline", false, "Skip the language model and map by similarity")
	f.StringVarP(&out, "out", "o", "", "Also write the mapping to this .xlsx file")
	_ = cmd.MarkFlagRequired("physical")
	_ = cmd.MarkFlagRequired("logical")
	return cmd
}

func loadPhysical(path string) ([]appmap.PhysicalItem, error) {
	t, err := readTableFile(path)
	if err != nil {
		return nil, err
	}
	idCol, err := t.Column("physical id", "physical id", "app id", "application id", "id")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	nameCol := t.OptionalColumn("physical name", "application name", "app name", "name")
	descCol := t.OptionalColumn("description", "details", "purpose")
	items := make([]appmap.PhysicalItem, 0, len(t.Rows))
	for _, row := range t.Rows {
		items = append(items, appmap.PhysicalItem{
			ID:          tabular.Cell(row, idCol),
			Name:        tabular.Cell(row, nameCol),
			Description: tabular.Cell(row, descCol),
		})
	}
	return items, nil
}

func loadLogical(path string) ([]appmap.LogicalApp, error) {
	t, err := readTableFile(path)
	if err != nil {
		return nil, err
	}
	idCol, err := t.Column("logical id", "logical id", "id", "app id", "application id")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	nameCol := t.OptionalColumn("logical name", "name", "application name", "app name")
	descCol := t.OptionalColumn("description", "details", "purpose")
	entries := make([]appmap.LogicalApp, 0, len(t.Rows))
	for _, row := range t.Rows {
		entries = append(entries, appmap.LogicalApp{
			ID:          tabular.Cell(row, idCol),
			Name:        tabular.Cell(row, nameCol),
			Description: tabular.Cell(row, descCol),
		})
	}
	return entries, nil
}
