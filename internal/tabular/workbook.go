package tabular

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Workbook collects sheets in order and renders them as one xlsx file.
type Workbook struct {
	sheets []Sheet
}

func (w *Workbook) AddSheet(name string, header []string, rows [][]any) {
	w.sheets = append(w.sheets, Sheet{Name: name, Header: header, Rows: rows})
}

func (w *Workbook) Bytes() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if len(w.sheets) == 0 {
		w.AddSheet("Sheet1", nil, nil)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	for i, s := range w.sheets {
		name := s.Name
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("sheet %q: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		if len(s.Header) > 0 {
			hdr := make([]any, len(s.Header))
			for j, h := range s.Header {
				hdr[j] = h
			}
			if err := f.SetSheetRow(name, "A1", &hdr); err != nil {
				return nil, err
			}
			end, _ := excelize.CoordinatesToCellName(len(hdr), 1)
			if err := f.SetCellStyle(name, "A1", end, bold); err != nil {
				return nil, err
			}
		}
		for r, row := range s.Rows {
			cell, _ := excelize.CoordinatesToCellName(1, r+2)
			row := row
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				return nil, err
			}
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
