package httpapi

import (
	"net/http"
	"strings"

	"github.com/joelkehle/consultkit/internal/cleanup"
	"github.com/joelkehle/consultkit/internal/llm"
	"github.com/joelkehle/consultkit/internal/tabular"
)

type proposalsRequest struct {
	Points  []cleanup.RawPoint `json:"points"`
	Options cleanup.Options    `json:"options"`
}

// cleanupDefaults fills unset request options from configuration.
func (s *Server) cleanupDefaults(o cleanup.Options) cleanup.Options {
	if o.Threshold == nil {
		t := s.cfg.Cleanup.Threshold
		o.Threshold = &t
	}
	if o.MaxCanonicalWords == 0 {
		o.MaxCanonicalWords = s.cfg.Cleanup.MaxCanonicalWords
	}
	if o.Concurrency == 0 {
		o.Concurrency = s.cfg.Cleanup.Concurrency
	}
	return o
}

func (s *Server) readProposalsRequest(r *http.Request) (proposalsRequest, error) {
	var req proposalsRequest
	if !isMultipart(r) {
		err := decodeJSON(r, &req)
		return req, err
	}
	if err := parseForm(r); err != nil {
		return req, err
	}
	if err := formOptions(r, &req.Options); err != nil {
		return req, err
	}
	t, err := readTable(r, "file")
	if err != nil {
		return req, err
	}
	points, err := pointsFromTable(t)
	if err != nil {
		return req, err
	}
	for _, p := range points {
		req.Points = append(req.Points, cleanup.RawPoint{ID: p.ID, Text: p.Text})
	}
	return req, nil
}

func (s *Server) cleanupProposals(r *http.Request) (any, *tabular.Workbook, error) {
	req, err := s.readProposalsRequest(r)
	if err != nil {
		return nil, nil, err
	}
	if len(req.Points) == 0 {
		return nil, nil, validationf("points must not be empty")
	}
	if req.Options.UseLLM && s.deps.LLM == nil {
		return nil, nil, llm.ErrNotConfigured
	}
	res, err := s.deps.Cleanup.Build(r.Context(), req.Points, s.cleanupDefaults(req.Options))
	if err != nil {
		return nil, nil, err
	}
	return res, proposalWorkbook(res), nil
}

func proposalWorkbook(res cleanup.Result) *tabular.Workbook {
	rows := make([][]any, 0, len(res.Proposal))
	for _, p := range res.Proposal {
		rows = append(rows, []any{p.ID, p.Original, p.GroupID, p.Proposed, p.Action, p.Rationale, strings.Join(p.MergedIDs, ", ")})
	}
	sum := res.Summary
	wb := &tabular.Workbook{}
	wb.AddSheet("Proposal", []string{"ID", "Original", "Group ID", "Proposed", "Action", "Rationale", "Merged IDs"}, rows)
	wb.AddSheet("Summary", []string{"Metric", "Value"}, [][]any{
		{"Total raw", sum.TotalRaw},
		{"Exact duplicates", sum.ExactDuplicates},
		{"Near duplicates", sum.NearDuplicates},
		{"Groups detected", sum.GroupsDetected},
		{"Duplicate groups", sum.DuplicateGroups},
		{"Dropped", sum.Dropped},
		{"Analysis quality", sum.AnalysisQuality},
		{"LLM failures", sum.LLMFailures},
	})
	return wb
}

type applyRequest struct {
	Rows []cleanup.ProposalRow `json:"rows"`
}

func readApplyRows(r *http.Request) ([]cleanup.ProposalRow, error) {
	if !isMultipart(r) {
		var req applyRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		return req.Rows, nil
	}
	if err := parseForm(r); err != nil {
		return nil, err
	}
	t, err := readTable(r, "file")
	if err != nil {
		return nil, err
	}
	idCol, err := t.Column("id", "id", "pain point id")
	if err != nil {
		return nil, err
	}
	actionCol, err := t.Column("action", "action", "decision")
	if err != nil {
		return nil, err
	}
	origCol := t.OptionalColumn("original", "original text", "pain point", "text")
	propCol := t.OptionalColumn("proposed", "proposed text", "canonical", "rewrite")
	mergedCol := t.OptionalColumn("merged ids", "merged")
	rows := make([]cleanup.ProposalRow, 0, len(t.Rows))
	for _, row := range t.Rows {
		rows = append(rows, cleanup.ProposalRow{
			ID:        tabular.Cell(row, idCol),
			Original:  tabular.Cell(row, origCol),
			Proposed:  tabular.Cell(row, propCol),
			Action:    tabular.Cell(row, actionCol),
			MergedIDs: splitIDs(tabular.Cell(row, mergedCol)),
		})
	}
	return rows, nil
}

func (s *Server) cleanupApply(r *http.Request) (any, *tabular.Workbook, error) {
	rows, err := readApplyRows(r)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, validationf("rows must not be empty")
	}
	for i, row := range rows {
		if strings.TrimSpace(row.ID) == "" {
			return nil, nil, validationf("rows[%d].id is required", i)
		}
	}
	applied := cleanup.ApplyActions(rows)
	out := make([][]any, 0, len(applied.Points))
	for _, p := range applied.Points {
		out = append(out, []any{p.ID, p.Text, strings.Join(p.MergedIDs, ", ")})
	}
	wb := &tabular.Workbook{}
	wb.AddSheet("Cleaned", []string{"ID", "Pain Point", "Merged IDs"}, out)
	return applied, wb, nil
}
