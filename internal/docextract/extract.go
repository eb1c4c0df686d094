// Package docextract pulls text and page images out of uploaded documents
// using poppler's command-line tools, with a byte-level fallback.
package docextract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxPDFBytes = 20 * 1024 * 1024
	maxPageText = 24000
	minTextRun  = 24

	MethodPDFToText    = "pdftotext"
	MethodByteFallback = "byte-fallback"
	MethodPlain        = "plain"
)

var (
	ErrNoText      = errors.New("no extractable text found")
	ErrUnsupported = errors.New("unsupported document type")
)

// Page is one page of extracted text; Number starts at 1.
type Page struct {
	Number    int    `json:"number"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated,omitempty"`
}

type Result struct {
	Pages  []Page `json:"pages"`
	Method string `json:"method"`
}

// Text joins all pages with blank lines.
func (r Result) Text() string {
	parts := make([]string, 0, len(r.Pages))
	for _, p := range r.Pages {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Runner executes an external command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

type Extractor struct {
	run       Runner
	pdftotext string
	pdftoppm  string
}

// New returns an Extractor. Tool paths come from PDFTOTEXT_PATH and
// PDFTOPPM_PATH when set.
func New(run Runner) *Extractor {
	if run == nil {
		run = execRunner
	}
	return &Extractor{
		run:       run,
		pdftotext: envOr("PDFTOTEXT_PATH", "pdftotext"),
		pdftoppm:  envOr("PDFTOPPM_PATH", "pdftoppm"),
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Extract dispatches on the file extension: PDFs go through ExtractPDF,
// .txt and .md are returned as a single page.
func (e *Extractor) Extract(ctx context.Context, filename string, blob []byte) (Result, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return e.ExtractPDF(ctx, blob)
	case ".txt", ".md", "":
		if !utf8.Valid(blob) {
			return Result{}, fmt.Errorf("%s: not valid UTF-8 text", filename)
		}
		text := strings.TrimSpace(string(blob))
		if text == "" {
			return Result{}, ErrNoText
		}
		return Result{Pages: []Page{truncatePage(1, text)}, Method: MethodPlain}, nil
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupported, filename)
	}
}

// ExtractPDF runs pdftotext -layout and splits its output on form feeds.
// When the tool is missing or yields nothing, printable byte runs from the
// raw file become a single page.
func (e *Extractor) ExtractPDF(ctx context.Context, blob []byte) (Result, error) {
	if len(blob) > MaxPDFBytes {
		return Result{}, fmt.Errorf("pdf too large: %d bytes", len(blob))
	}
	path, cleanup, err := writeTemp(blob, "*.pdf")
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	if out, err := e.run(ctx, e.pdftotext, "-layout", path, "-"); err == nil {
		if pages := splitPages(string(out)); len(pages) > 0 {
			return Result{Pages: pages, Method: MethodPDFToText}, nil
		}
	} else if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	fallback := extractPrintableText(blob)
	if fallback == "" {
		return Result{}, ErrNoText
	}
	return Result{Pages: []Page{truncatePage(1, fallback)}, Method: MethodByteFallback}, nil
}

// RenderPages rasterizes every page to PNG at the given DPI.
func (e *Extractor) RenderPages(ctx context.Context, blob []byte, dpi int) ([][]byte, error) {
	if dpi <= 0 {
		dpi = 72
	}
	path, cleanup, err := writeTemp(blob, "*.pdf")
	if err != nil {
		return nil, err
	}
	defer cleanup()
	outDir := filepath.Dir(path)
	prefix := filepath.Join(outDir, "page")
	if _, err := e.run(ctx, e.pdftoppm, "-png", "-r", fmt.Sprint(dpi), path, prefix); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w", err)
	}
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	// pdftoppm zero-pads page numbers to a common width, so lexical order is page order.
	sort.Strings(matches)
	images := make([][]byte, 0, len(matches))
	for _, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		images = append(images, b)
	}
	return images, nil
}

func writeTemp(blob []byte, pattern string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "docextract-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(dir) }
	path := filepath.Join(dir, strings.Replace(pattern, "*", "input", 1))
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

func splitPages(out string) []Page {
	raw := strings.Split(out, "\f")
	// pdftotext terminates the last page with a form feed too.
	if n := len(raw); n > 1 && strings.TrimSpace(raw[n-1]) == "" {
		raw = raw[:n-1]
	}
	var pages []Page
	nonEmpty := false
	for i, r := range raw {
		p := truncatePage(i+1, r)
		if p.Text != "" {
			nonEmpty = true
		}
		pages = append(pages, p)
	}
	if !nonEmpty {
		return nil
	}
	return pages
}

func extractPrintableText(blob []byte) string {
	var runs []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		if len(s) >= minTextRun {
			runs = append(runs, s)
		}
		b.Reset()
	}
	for _, c := range blob {
		r := rune(c)
		if r < utf8.RuneSelf && (unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r') {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return strings.TrimSpace(strings.Join(runs, "\n"))
}

func truncatePage(number int, text string) Page {
	text = strings.TrimSpace(text)
	if len(text) <= maxPageText {
		return Page{Number: number, Text: text}
	}
	cut := maxPageText
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return Page{Number: number, Text: text[:cut] + "\n\n[TRUNCATED]", Truncated: true}
}
