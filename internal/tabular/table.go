// Package tabular reads uploaded CSV and Excel sheets into header-keyed
// tables and writes results back out as xlsx workbooks.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
)

const headerScanRows = 20

var ErrEmpty = errors.New("table has no rows")

// MissingColumnError names a required field that no header resolved to.
type MissingColumnError struct {
	Field      string
	Candidates []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column %q (accepted headers: %s)", e.Field, strings.Join(e.Candidates, ", "))
}

// Table is a header row plus data rows; short rows are padded.
type Table struct {
	Header []string
	Rows   [][]string
}

// Read parses .csv, .xlsx and .xlsm uploads. The header row is detected in
// the first rows of the first sheet.
func Read(filename string, blob []byte) (Table, error) {
	var records [][]string
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		records, err = readCSV(blob)
	case ".xlsx", ".xlsm":
		records, err = readXLSX(blob)
	default:
		return Table{}, fmt.Errorf("unsupported spreadsheet type %q", filepath.Ext(filename))
	}
	if err != nil {
		return Table{}, fmt.Errorf("read %s: %w", filename, err)
	}
	return fromRecords(records)
}

func readCSV(blob []byte) ([][]string, error) {
	blob = bytes.TrimPrefix(blob, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(blob))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

func readXLSX(blob []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}
	return f.GetRows(sheets[0])
}

func fromRecords(records [][]string) (Table, error) {
	var rows [][]string
	for _, r := range records {
		if !blankRow(r) {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return Table{}, ErrEmpty
	}
	h := detectHeader(rows)
	header := make([]string, len(rows[h]))
	for i, c := range rows[h] {
		header[i] = strings.TrimSpace(c)
	}
	t := Table{Header: header}
	for _, r := range rows[h+1:] {
		row := make([]string, len(header))
		for i := range row {
			if i < len(r) {
				row[i] = strings.TrimSpace(r[i])
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func blankRow(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// detectHeader picks the row among the first few whose cells look most like
// column titles. Earlier rows win ties.
func detectHeader(rows [][]string) int {
	best, bestScore := 0, -1.0
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		if s := headerScore(rows[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

func headerScore(row []string) float64 {
	var filled, good float64
	for _, c := range row {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		filled++
		if headerLike(c) {
			good++
		}
	}
	if filled == 0 {
		return 0
	}
	return good + good/filled
}

func headerLike(cell string) bool {
	if len(cell) > 40 || strings.ContainsAny(cell, "\n•") || strings.Count(cell, " ") > 4 {
		return false
	}
	var letters, others int
	for _, r := range cell {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsSpace(r):
		default:
			others++
		}
	}
	return letters > 0 && letters >= 2*others
}

func normHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Column returns the index of the first header matching any candidate,
// ignoring case, whitespace and punctuation. field names the requirement in
// the error.
func (t Table) Column(field string, candidates ...string) (int, error) {
	idx := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		n := normHeader(h)
		if _, ok := idx[n]; !ok {
			idx[n] = i
		}
	}
	for _, c := range candidates {
		if i, ok := idx[normHeader(c)]; ok {
			return i, nil
		}
	}
	return -1, &MissingColumnError{Field: field, Candidates: candidates}
}

// OptionalColumn is Column returning -1 instead of an error.
func (t Table) OptionalColumn(candidates ...string) int {
	i, err := t.Column("", candidates...)
	if err != nil {
		return -1
	}
	return i
}

// Cell returns row[col], or "" for a missing column.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}
