package httpapi

import (
	"net/http"
	"strings"

	"github.com/joelkehle/consultkit/internal/painpoints"
	"github.com/joelkehle/consultkit/internal/tabular"
)

var (
	pointTextColumns = []string{"pain point", "pain points", "pain point text", "text", "statement", "issue", "description"}
	pointIDColumns   = []string{"id", "pain point id", "#", "no", "number", "ref"}
)

// readTable parses the uploaded spreadsheet in field.
func readTable(r *http.Request, field string) (tabular.Table, error) {
	name, blob, err := readUpload(r, field)
	if err != nil {
		return tabular.Table{}, err
	}
	t, err := tabular.Read(name, blob)
	if err != nil {
		return tabular.Table{}, validationf("%s: %v", field, err)
	}
	return t, nil
}

func pointsFromTable(t tabular.Table) ([]painpoints.Point, error) {
	textCol, err := t.Column("pain point text", pointTextColumns...)
	if err != nil {
		return nil, err
	}
	idCol := t.OptionalColumn(pointIDColumns...)
	points := make([]painpoints.Point, 0, len(t.Rows))
	for _, row := range t.Rows {
		points = append(points, painpoints.Point{ID: tabular.Cell(row, idCol), Text: tabular.Cell(row, textCol)})
	}
	return points, nil
}

type pointsRequest struct {
	Points []painpoints.Point `json:"points"`
}

// readPoints accepts {"points":[...]} or a multipart spreadsheet in "file".
func readPoints(r *http.Request) ([]painpoints.Point, error) {
	if isMultipart(r) {
		if err := parseForm(r); err != nil {
			return nil, err
		}
		t, err := readTable(r, "file")
		if err != nil {
			return nil, err
		}
		return pointsFromTable(t)
	}
	var req pointsRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	return req.Points, nil
}

// splitIDs parses a "1, 4; 7" style cell.
func splitIDs(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
