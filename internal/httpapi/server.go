// Package httpapi exposes the consulting workflows over HTTP. Every
// tabular endpoint has an .xlsx twin returning the same result as a
// workbook.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/joelkehle/consultkit/internal/brand"
	"github.com/joelkehle/consultkit/internal/cleanup"
	"github.com/joelkehle/consultkit/internal/config"
	"github.com/joelkehle/consultkit/internal/docextract"
	"github.com/joelkehle/consultkit/internal/llm"
	"github.com/joelkehle/consultkit/internal/painpoints"
	"github.com/joelkehle/consultkit/internal/tabular"
)

const maxMultipartMemory = 32 << 20

// TextExtractor reads text out of an uploaded document.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, blob []byte) (docextract.Result, error)
}

// Deps are the collaborators behind the handlers. LLM is nil when no
// provider is configured; PDF is nil when reports cannot be rendered.
type Deps struct {
	LLM        llm.Caller
	Cleanup    *cleanup.Builder
	PainPoints *painpoints.Service
	Brand      *brand.Service
	PDF        brand.PDFRenderer
	Extractor  TextExtractor
	Logger     *slog.Logger
}

type Server struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger
	router chi.Router
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{cfg: cfg, deps: deps, logger: deps.Logger, router: chi.NewRouter()}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Use(
		requestID,
		s.recoverer,
		tracing,
		s.accessLog,
		cors(s.cfg.Server.CORSOrigins),
		apiKeys(s.cfg.Server.APIKeys),
		newRateLimiter(s.cfg.Server.RateLimitPerSecond, s.cfg.Server.RateLimitBurst).middleware,
		bodyLimit(s.cfg.Server.MaxBodyBytes),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, newError(CodeNotFound, "no route for "+r.Method+" "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": map[string]any{"code": "method_not_allowed", "message": r.Method + " not allowed"}})
	})

	r.Get("/health", s.handleHealth)

	r.Route("/ai", func(r chi.Router) {
		r.Post("/pain-points/extract", s.handleExtract)
		s.tabularRoute(r, "/pain-points/cleanup/proposals", "cleanup-proposals", s.cleanupProposals)
		s.tabularRoute(r, "/pain-points/cleanup/apply", "cleanup-applied", s.cleanupApply)
		s.tabularRoute(r, "/pain-points/evaluate", "pain-point-evaluation", s.evaluate)
		s.tabularRoute(r, "/pain-points/map-capabilities", "capability-mapping", s.mapCapabilities)
		s.tabularRoute(r, "/applications/map-physical-logical", "physical-logical-mapping", s.mapApplications)
		s.tabularRoute(r, "/use-cases/generate", "use-cases", s.generateUseCases)

		r.Route("/brand", func(r chi.Router) {
			r.Post("/style-guides", s.handleIngestStyleGuide)
			r.Get("/style-guides", s.handleListStyleGuides)
			r.Get("/style-guides/{id}", s.handleGetStyleGuide)
			r.Post("/decks", s.handleIngestDeck)
			r.Get("/decks", s.handleListDecks)
			r.Get("/decks/{id}", s.handleGetDeck)
			s.tabularRoute(r, "/decks/{id}/check", "brand-check", s.checkDeck)
			r.Post("/decks/{id}/check.pdf", s.handleCheckPDF)
			r.Get("/reports/{id}", s.handleGetReport)
		})
	})
}

// tabularOp computes a JSON payload and its workbook rendering.
type tabularOp func(r *http.Request) (any, *tabular.Workbook, error)

// tabularRoute registers path for JSON and path+".xlsx" for the workbook.
func (s *Server) tabularRoute(r chi.Router, path, filename string, op tabularOp) {
	r.Post(path, func(w http.ResponseWriter, r *http.Request) {
		payload, _, err := op(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	})
	r.Post(path+".xlsx", func(w http.ResponseWriter, r *http.Request) {
		_, wb, err := op(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		blob, err := wb.Bytes()
		if err != nil {
			s.fail(w, r, fmt.Errorf("build workbook: %w", err))
			return
		}
		writeAttachment(w, tabular.ContentTypeXLSX, filename+".xlsx", blob)
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.Status >= 500 {
		s.logger.Error("httpapi request_failed", "path", r.URL.Path, "request_id", RequestIDFrom(r.Context()), "err", err)
	}
	writeError(w, e)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	model := ""
	if s.deps.LLM != nil {
		model = s.deps.LLM.ModelName()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"llm_configured": s.deps.LLM != nil,
		"model":          model,
		"pdf_reports":    s.deps.PDF != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, blob []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// decodeJSON reads a JSON request body into dst. Unknown fields are
// rejected so misspelled options surface as validation errors.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return validationf("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return validationf("request body is required")
		}
		return validationf("invalid json: %v", err)
	}
	return nil
}

func parseForm(r *http.Request) error {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return validationf("invalid multipart form: %v", err)
	}
	return nil
}

// readUpload returns the named multipart file. parseForm must run first.
func readUpload(r *http.Request, field string) (string, []byte, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return "", nil, validationf("multipart field %q is required", field)
	}
	defer f.Close()
	blob, err := io.ReadAll(f)
	if err != nil {
		return "", nil, err
	}
	if len(blob) == 0 {
		return "", nil, validationf("uploaded file %q is empty", field)
	}
	return hdr.Filename, blob, nil
}

// formOptions decodes an optional JSON "options" form value into dst.
func formOptions(r *http.Request, dst any) error {
	raw := strings.TrimSpace(r.FormValue("options"))
	if raw == "" {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return validationf("invalid options: %v", err)
	}
	return nil
}
