package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/joelkehle/consultkit/internal/tabular"
)

const maxCellWidth = 60

func renderTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	header := make(table.Row, len(headers))
	configs := make([]table.ColumnConfig, len(headers))
	for i, h := range headers {
		header[i] = h
		configs[i] = table.ColumnConfig{Number: i + 1, WidthMax: maxCellWidth, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func readTableFile(path string) (tabular.Table, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return tabular.Table{}, err
	}
	t, err := tabular.Read(path, blob)
	if err != nil {
		return tabular.Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func writeWorkbook(path string, wb *tabular.Workbook) error {
	blob, err := wb.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o644)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func joinIDs(ids []string) string { return strings.Join(ids, ", ") }
