package brand

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Markdown renders a check report as a GFM document.
func Markdown(r Report) string {
	var b strings.Builder
	b.WriteString("# Brand Consistency Report\n\n")
	fmt.Fprintf(&b, "**Deck:** %s  \n**Style guide:** %s  \n**Checked:** %s  \n**Analysis:** %s\n\n",
		mdEscape(orDash(r.DeckName)), mdEscape(orDash(r.GuideName)), r.CreatedAt.Format("January 2, 2006 15:04 MST"), r.Source)
	counts := r.SeverityCounts()
	fmt.Fprintf(&b, "## Summary\n\n%d pages checked, %d findings (%d errors, %d warnings, %d info).\n\n",
		r.PagesChecked, len(r.Findings), counts[SeverityError], counts[SeverityWarning], counts[SeverityInfo])
	if len(r.Findings) == 0 {
		b.WriteString("No violations found.\n")
		return b.String()
	}
	b.WriteString("## Findings\n\n| Page | Rule | Severity | Issue | Suggestion |\n|---|---|---|---|---|\n")
	for _, f := range r.Findings {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", f.Page, mdEscape(f.RuleID), f.Severity, mdEscape(f.Issue), mdEscape(f.Suggestion))
	}
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

var mdSpecialRe = regexp.MustCompile(`([|*_\x60<>\[\]])`)

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return mdSpecialRe.ReplaceAllString(s, `\$1`)
}

// PDFRenderer turns a markdown report into a PDF.
type PDFRenderer interface {
	Render(ctx context.Context, markdown string) ([]byte, error)
}

const reportCSS = `html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;}
body{font-family:"Helvetica Neue",Arial,sans-serif;color:#1c1917;background:#fff;padding:0.6rem;font-size:11pt;}
h1{font-size:1.5rem;border-bottom:3px solid #1e3a8a;padding-bottom:0.3rem;}
h2{font-size:1.15rem;margin-top:1.2rem;}
table{width:100%;border-collapse:collapse;border:1px solid #a8a29e;font-size:0.8rem;}
th,td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}
thead th{background:#f1f5f9;font-weight:700;}
td[data-severity="error"]{color:#b91c1c;font-weight:700;}
td[data-severity="warning"]{color:#b45309;}
@media print{@page{size:auto;margin:12mm;} body{padding:0;}}`

// ChromiumPDFRenderer prints HTML through headless Chromium.
type ChromiumPDFRenderer struct {
	chromePath string
	timeout    time.Duration
}

func NewChromiumPDFRenderer(chromePath string) *ChromiumPDFRenderer {
	if chromePath == "" {
		chromePath = detectChromePath()
	}
	return &ChromiumPDFRenderer{chromePath: chromePath, timeout: 30 * time.Second}
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, markdown string) ([]byte, error) {
	htmlDoc, err := buildHTML(markdown)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return pdf, nil
}

var severityCellRe = regexp.MustCompile(`<td>(error|warning|info)</td>`)

func buildHTML(markdown string) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	body := severityCellRe.ReplaceAllString(content.String(), `<td data-severity="$1">$1</td>`)
	return "<!doctype html><html><head><meta charset='utf-8'><title>Brand Consistency Report</title>" +
		"<style>" + reportCSS + "</style></head><body>" + body + "</body></html>", nil
}

func detectChromePath() string {
	for _, p := range []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
