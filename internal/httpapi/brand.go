package httpapi

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/joelkehle/consultkit/internal/brand"
	"github.com/joelkehle/consultkit/internal/tabular"
)

// readPDF parses the multipart form and returns the display name and the
// uploaded PDF from the "file" field.
func readPDF(r *http.Request) (string, []byte, error) {
	if !isMultipart(r) {
		return "", nil, validationf("multipart upload with a PDF in field %q is required", "file")
	}
	if err := parseForm(r); err != nil {
		return "", nil, err
	}
	filename, blob, err := readUpload(r, "file")
	if err != nil {
		return "", nil, err
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return "", nil, validationf("file must be a .pdf, got %q", filename)
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return name, blob, nil
}

func (s *Server) handleIngestStyleGuide(w http.ResponseWriter, r *http.Request) {
	name, blob, err := readPDF(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	guide, err := s.deps.Brand.IngestStyleGuide(r.Context(), name, blob)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, guide)
}

func (s *Server) handleListStyleGuides(w http.ResponseWriter, r *http.Request) {
	guides, err := s.deps.Brand.StyleGuides(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"style_guides": guides})
}

func (s *Server) handleGetStyleGuide(w http.ResponseWriter, r *http.Request) {
	guide, err := s.deps.Brand.StyleGuide(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, guide)
}

func (s *Server) handleIngestDeck(w http.ResponseWriter, r *http.Request) {
	name, blob, err := readPDF(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	deck, err := s.deps.Brand.IngestDeck(r.Context(), name, blob)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, deck)
}

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := s.deps.Brand.Decks(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decks": decks})
}

func (s *Server) handleGetDeck(w http.ResponseWriter, r *http.Request) {
	deck, err := s.deps.Brand.Deck(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deck)
}

type checkRequest struct {
	StyleGuideID string `json:"style_guide_id"`
}

func (s *Server) runCheck(r *http.Request) (brand.Report, error) {
	var req checkRequest
	if isMultipart(r) || r.Header.Get("Content-Type") == "application/x-www-form-urlencoded" {
		req.StyleGuideID = r.FormValue("style_guide_id")
	} else if err := decodeJSON(r, &req); err != nil {
		return brand.Report{}, err
	}
	if strings.TrimSpace(req.StyleGuideID) == "" {
		return brand.Report{}, validationf("style_guide_id is required")
	}
	return s.deps.Brand.Check(r.Context(), chi.URLParam(r, "id"), req.StyleGuideID, s.cfg.Brand.Concurrency)
}

func (s *Server) checkDeck(r *http.Request) (any, *tabular.Workbook, error) {
	report, err := s.runCheck(r)
	if err != nil {
		return nil, nil, err
	}
	return report, reportWorkbook(report), nil
}

func reportWorkbook(rep brand.Report) *tabular.Workbook {
	rows := make([][]any, 0, len(rep.Findings))
	for _, f := range rep.Findings {
		rows = append(rows, []any{f.Page, f.RuleID, f.Category, f.Severity, f.Issue, f.Suggestion, f.Source})
	}
	counts := rep.SeverityCounts()
	wb := &tabular.Workbook{}
	wb.AddSheet("Findings", []string{"Page", "Rule ID", "Category", "Severity", "Issue", "Suggestion", "Source"}, rows)
	wb.AddSheet("Summary", []string{"Metric", "Value"}, [][]any{
		{"Report ID", rep.ID},
		{"Deck", rep.DeckName},
		{"Style guide", rep.GuideName},
		{"Pages checked", rep.PagesChecked},
		{"Findings", len(rep.Findings)},
		{"Errors", counts[brand.SeverityError]},
		{"Warnings", counts[brand.SeverityWarning]},
		{"Info", counts[brand.SeverityInfo]},
		{"Source", rep.Source},
	})
	return wb
}

func (s *Server) handleCheckPDF(w http.ResponseWriter, r *http.Request) {
	if s.deps.PDF == nil {
		s.fail(w, r, newError(CodeUnavailable, "pdf rendering is not configured"))
		return
	}
	report, err := s.runCheck(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	blob, err := s.deps.PDF.Render(r.Context(), brand.Markdown(report))
	if err != nil {
		s.fail(w, r, fmt.Errorf("render report pdf: %w", err))
		return
	}
	writeAttachment(w, "application/pdf", "brand-check-"+report.ID+".pdf", blob)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Brand.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
