package httpapi

import (
	"net/http"
	"strings"

	"github.com/joelkehle/consultkit/internal/painpoints"
	"github.com/joelkehle/consultkit/internal/tabular"
)

type extractRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	PainPoints []painpoints.Point `json:"pain_points"`
	Count      int                `json:"count"`
	Source     string             `json:"source"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var text string
	if isMultipart(r) {
		if err := parseForm(r); err != nil {
			s.fail(w, r, err)
			return
		}
		name, blob, err := readUpload(r, "file")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		res, err := s.deps.Extractor.Extract(r.Context(), name, blob)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		text = res.Text()
	} else {
		var req extractRequest
		if err := decodeJSON(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			s.fail(w, r, validationf("text is required"))
			return
		}
		text = req.Text
	}
	points, source, err := s.deps.PainPoints.Extract(r.Context(), text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, extractResponse{PainPoints: points, Count: len(points), Source: source})
}

type evaluateResponse struct {
	Scores []painpoints.Score `json:"scores"`
}

func (s *Server) evaluate(r *http.Request) (any, *tabular.Workbook, error) {
	points, err := readPoints(r)
	if err != nil {
		return nil, nil, err
	}
	scores, err := s.deps.PainPoints.Evaluate(r.Context(), points, s.cfg.Mapping.Concurrency)
	if err != nil {
		return nil, nil, err
	}
	rows := make([][]any, 0, len(scores))
	for _, sc := range scores {
		rows = append(rows, []any{sc.ID, sc.Text, sc.Impact, sc.Urgency, sc.Effort, sc.Priority, sc.Rationale, sc.Source})
	}
	wb := &tabular.Workbook{}
	wb.AddSheet("Evaluation", []string{"ID", "Pain Point", "Impact", "Urgency", "Effort", "Priority", "Rationale", "Source"}, rows)
	return evaluateResponse{Scores: scores}, wb, nil
}

var (
	capabilityIDColumns   = []string{"capability id", "id", "code", "ref"}
	capabilityNameColumns = []string{"capability", "capability name", "name", "title"}
	capabilityDescColumns = []string{"description", "details", "definition"}
)

type capabilitiesRequest struct {
	Points       []painpoints.Point      `json:"points"`
	Capabilities []painpoints.Capability `json:"capabilities"`
}

type capabilitiesResponse struct {
	Matches []painpoints.CapabilityMatch `json:"matches"`
}

func (s *Server) readCapabilityRequest(r *http.Request) (capabilitiesRequest, error) {
	var req capabilitiesRequest
	if !isMultipart(r) {
		err := decodeJSON(r, &req)
		return req, err
	}
	if err := parseForm(r); err != nil {
		return req, err
	}
	pt, err := readTable(r, "pain_points")
	if err != nil {
		return req, err
	}
	if req.Points, err = pointsFromTable(pt); err != nil {
		return req, err
	}
	ct, err := readTable(r, "capabilities")
	if err != nil {
		return req, err
	}
	idCol, err := ct.Column("capability id", capabilityIDColumns...)
	if err != nil {
		return req, err
	}
	nameCol, err := ct.Column("capability name", capabilityNameColumns...)
	if err != nil {
		return req, err
	}
	descCol := ct.OptionalColumn(capabilityDescColumns...)
	for _, row := range ct.Rows {
		req.Capabilities = append(req.Capabilities, painpoints.Capability{
			ID:          tabular.Cell(row, idCol),
			Name:        tabular.Cell(row, nameCol),
			Description: tabular.Cell(row, descCol),
		})
	}
	return req, nil
}

func (s *Server) mapCapabilities(r *http.Request) (any, *tabular.Workbook, error) {
	req, err := s.readCapabilityRequest(r)
	if err != nil {
		return nil, nil, err
	}
	for i, c := range req.Capabilities {
		if strings.TrimSpace(c.ID) == "" {
			return nil, nil, validationf("capabilities[%d].id is required", i)
		}
	}
	matches, err := s.deps.PainPoints.MapCapabilities(r.Context(), req.Points, req.Capabilities, s.cfg.Mapping.Concurrency)
	if err != nil {
		return nil, nil, err
	}
	rows := make([][]any, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []any{m.PointID, m.PointText, strings.Join(m.CapabilityIDs, ", "),
			strings.Join(m.CapabilityNames, ", "), m.Similarity, m.Rationale, m.Source})
	}
	wb := &tabular.Workbook{}
	wb.AddSheet("Capability Mapping", []string{"Pain Point ID", "Pain Point", "Capability IDs", "Capabilities", "Similarity", "Rationale", "Source"}, rows)
	return capabilitiesResponse{Matches: matches}, wb, nil
}

type useCasesResponse struct {
	UseCases []painpoints.UseCase `json:"use_cases"`
	Source   string               `json:"source"`
}

func (s *Server) generateUseCases(r *http.Request) (any, *tabular.Workbook, error) {
	points, err := readPoints(r)
	if err != nil {
		return nil, nil, err
	}
	cases, source, err := s.deps.PainPoints.GenerateUseCases(r.Context(), points)
	if err != nil {
		return nil, nil, err
	}
	rows := make([][]any, 0, len(cases))
	for _, uc := range cases {
		rows = append(rows, []any{uc.ID, uc.Title, uc.Description, strings.Join(uc.PainPointIDs, ", "), uc.Source})
	}
	wb := &tabular.Workbook{}
	wb.AddSheet("Use Cases", []string{"ID", "Title", "Description", "Pain Point IDs", "Source"}, rows)
	return useCasesResponse{UseCases: cases, Source: source}, wb, nil
}
