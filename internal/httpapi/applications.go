package httpapi

import (
	"net/http"

	"github.com/joelkehle/consultkit/internal/appmap"
	"github.com/joelkehle/consultkit/internal/tabular"
)

var (
	physicalIDColumns   = []string{"physical id", "physical app id", "app id", "application id", "id"}
	physicalNameColumns = []string{"physical name", "physical app name", "application name", "app name", "name"}
	logicalIDColumns    = []string{"logical id", "logical app id", "id", "app id", "application id"}
	logicalNameColumns  = []string{"logical name", "logical app name", "name", "application name", "app name"}
	descColumns         = []string{"description", "details", "purpose"}
)

type mappingRequest struct {
	Physical []appmap.PhysicalItem `json:"physical"`
	Logical  []appmap.LogicalApp   `json:"logical"`
}

type mappingSummary struct {
	Total       int `json:"total"`
	Validated   int `json:"validated"`
	Exhausted   int `json:"exhausted"`
	Substituted int `json:"substituted"`
	Uncertain   int `json:"uncertain"`
}

type mappingResponse struct {
	Records []appmap.Record `json:"records"`
	Summary mappingSummary  `json:"summary"`
}

func readMappingRequest(r *http.Request) (mappingRequest, error) {
	var req mappingRequest
	if !isMultipart(r) {
		err := decodeJSON(r, &req)
		return req, err
	}
	if err := parseForm(r); err != nil {
		return req, err
	}
	pt, err := readTable(r, "physical")
	if err != nil {
		return req, err
	}
	pid, err := pt.Column("physical id", physicalIDColumns...)
	if err != nil {
		return req, err
	}
	pname := pt.OptionalColumn(physicalNameColumns...)
	pdesc := pt.OptionalColumn(descColumns...)
	for _, row := range pt.Rows {
		req.Physical = append(req.Physical, appmap.PhysicalItem{
			ID:          tabular.Cell(row, pid),
			Name:        tabular.Cell(row, pname),
			Description: tabular.Cell(row, pdesc),
		})
	}
	lt, err := readTable(r, "logical")
	if err != nil {
		return req, err
	}
	lid, err := lt.Column("logical id", logicalIDColumns...)
	if err != nil {
		return req, err
	}
	lname := lt.OptionalColumn(logicalNameColumns...)
	ldesc := lt.OptionalColumn(descColumns...)
	for _, row := range lt.Rows {
		req.Logical = append(req.Logical, appmap.LogicalApp{
			ID:          tabular.Cell(row, lid),
			Name:        tabular.Cell(row, lname),
			Description: tabular.Cell(row, ldesc),
		})
	}
	return req, nil
}

func (s *Server) mapApplications(r *http.Request) (any, *tabular.Workbook, error) {
	req, err := readMappingRequest(r)
	if err != nil {
		return nil, nil, err
	}
	if len(req.Physical) == 0 {
		return nil, nil, validationf("physical must not be empty")
	}
	cat, err := appmap.NewCatalogue(req.Logical)
	if err != nil {
		return nil, nil, validationf("logical: %v", err)
	}
	rec := appmap.NewReconciler(s.deps.LLM, cat, appmap.Options{
		MaxAttempts: s.cfg.Mapping.MaxAttempts,
		Logger:      s.logger,
	})
	records, err := rec.MapAll(r.Context(), req.Physical, s.cfg.Mapping.Concurrency)
	if err != nil {
		return nil, nil, err
	}
	sum := mappingSummary{Total: len(records)}
	rows := make([][]any, 0, len(records))
	for _, rc := range records {
		switch rc.State {
		case appmap.StateValidated:
			sum.Validated++
		case appmap.StateExhausted:
			sum.Exhausted++
		case appmap.StateSubstituted:
			sum.Substituted++
		}
		if rc.Uncertainty {
			sum.Uncertain++
		}
		rows = append(rows, []any{rc.PhysicalID, rc.PhysicalName, rc.LogicalID, rc.LogicalName, rc.Similarity,
			rc.Rationale, rc.Uncertainty, rc.ModelLogicalID, rc.AutoSubstituted, rc.MismatchReason, rc.Attempts, rc.State})
	}
	wb := &tabular.Workbook{}
	wb.AddSheet("Mapping", []string{"Physical ID", "Physical Name", "Logical ID", "Logical Name", "Similarity",
		"Rationale", "Uncertainty", "Model Logical ID", "Auto Substituted", "Mismatch Reason", "Attempts", "State"}, rows)
	return mappingResponse{Records: records, Summary: sum}, wb, nil
}
