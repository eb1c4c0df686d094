package brand

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joelkehle/consultkit/internal/docextract"
	"github.com/joelkehle/consultkit/internal/llm"
	"github.com/joelkehle/consultkit/internal/store"
)

// fakeExtractor treats the blob as pages separated by form feeds.
type fakeExtractor struct {
	images [][]byte
}

func (f fakeExtractor) ExtractPDF(_ context.Context, blob []byte) (docextract.Result, error) {
	var res docextract.Result
	for i, t := range strings.Split(string(blob), "\f") {
		res.Pages = append(res.Pages, docextract.Page{Number: i + 1, Text: strings.TrimSpace(t)})
	}
	return res, nil
}

func (f fakeExtractor) RenderPages(context.Context, []byte, int) ([][]byte, error) {
	return f.images, nil
}

type fakeLLMCaller struct {
	mu      sync.Mutex
	respond func(system, user string) (string, error)
	calls   int
}

func (f *fakeLLMCaller) Invoke(_ context.Context, msgs []llm.Message) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.respond(msgs[0].Content, msgs[len(msgs)-1].Content)
}

func (f *fakeLLMCaller) ModelName() string { return "fake" }

const guideText = "Always use Navy Blue for headings.\nNever use \"Comic Sans\".\nOur history began in 1920."

var fixedClock = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

func newTestService(caller llm.Caller, opts Options) *Service {
	opts.Clock = fixedClock
	return NewService(store.NewMemory(fixedClock), fakeExtractor{images: [][]byte{[]byte("png1")}}, caller, opts)
}

func TestIngestStyleGuideHeuristicRules(t *testing.T) {
	s := newTestService(nil, Options{})
	g, err := s.IngestStyleGuide(context.Background(), "Acme", []byte(guideText))
	if err != nil {
		t.Fatalf("IngestStyleGuide: %v", err)
	}
	if g.RulesSource != SourceHeuristic || len(g.Rules) != 2 {
		t.Fatalf("rules: %s %+v", g.RulesSource, g.Rules)
	}
	if g.Rules[0].Category != "typography" || g.Rules[0].Severity != SeverityWarning {
		t.Fatalf("rule 1: %+v", g.Rules[0])
	}
	if g.Rules[1].ID != "R2" || g.Rules[1].Severity != SeverityError {
		t.Fatalf("rule 2: %+v", g.Rules[1])
	}
	got, err := s.StyleGuide(context.Background(), g.ID)
	if err != nil || got.Name != "Acme" || len(got.Pages) != 1 {
		t.Fatalf("stored guide: %+v %v", got, err)
	}
}

func TestIngestRendersPageImages(t *testing.T) {
	s := newTestService(nil, Options{RenderImages: true})
	d, err := s.IngestDeck(context.Background(), "Q3", []byte("Slide one\fSlide two"))
	if err != nil {
		t.Fatalf("IngestDeck: %v", err)
	}
	if d.Pages[0].ImagePNG != "cG5nMQ==" || d.Pages[1].ImagePNG != "" {
		t.Fatalf("images: %+v", d.Pages)
	}
}

func TestIngestRejectsEmptyDocument(t *testing.T) {
	s := newTestService(nil, Options{})
	if _, err := s.IngestDeck(context.Background(), "blank", []byte(" \f ")); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestCheckHeuristicFlagsBannedTerms(t *testing.T) {
	ctx := context.Background()
	s := newTestService(nil, Options{})
	g, _ := s.IngestStyleGuide(ctx, "Acme", []byte(guideText))
	d, _ := s.IngestDeck(ctx, "Q3", []byte("Quarterly results\fTitle set in comic sans for fun"))
	rep, err := s.Check(ctx, d.ID, g.ID, 2)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if rep.Source != SourceHeuristic || rep.PagesChecked != 2 || len(rep.Findings) != 1 {
		t.Fatalf("report: %+v", rep)
	}
	f := rep.Findings[0]
	if f.Page != 2 || f.RuleID != "R2" || f.Severity != SeverityError {
		t.Fatalf("finding: %+v", f)
	}
	stored, err := s.Report(ctx, rep.ID)
	if err != nil || len(stored.Findings) != 1 {
		t.Fatalf("stored report: %+v %v", stored, err)
	}
}

func TestCheckUsesModelAndFallsBackPerPage(t *testing.T) {
	ctx := context.Background()
	f := &fakeLLMCaller{respond: func(system, user string) (string, error) {
		switch {
		case system == rulesSystemPrompt:
			return `[{"category":"color","text":"Headings must be navy","severity":"high"},
			         {"category":"","text":"Never use \"Comic Sans\"","severity":""}]`, nil
		case strings.Contains(user, "Slide 1 text"):
			return `[{"rule_id":"r1","issue":"Heading is red"},{"rule_id":"R99","issue":"invented"}]`, nil
		default:
			return "", errors.New("status code: 500")
		}
	}}
	s := newTestService(f, Options{})
	g, err := s.IngestStyleGuide(ctx, "Acme", []byte(guideText))
	if err != nil || g.RulesSource != SourceLLM || g.Rules[0].Severity != SeverityError || g.Rules[1].Category != "general" {
		t.Fatalf("guide: %+v %v", g, err)
	}
	d, _ := s.IngestDeck(ctx, "Q3", []byte("Red heading\fComic Sans everywhere"))
	rep, err := s.Check(ctx, d.ID, g.ID, 4)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if rep.Source != SourceLLMPartial || rep.LLMFailures != 1 || len(rep.Findings) != 2 {
		t.Fatalf("report: %+v", rep)
	}
	if rep.Findings[0].RuleID != "R1" || rep.Findings[0].Source != SourceLLM || rep.Findings[0].Severity != SeverityError {
		t.Fatalf("llm finding: %+v", rep.Findings[0])
	}
	if rep.Findings[1].RuleID != "R2" || rep.Findings[1].Source != SourceHeuristic {
		t.Fatalf("fallback finding: %+v", rep.Findings[1])
	}
}

func TestCheckUnknownIDs(t *testing.T) {
	s := newTestService(nil, Options{})
	if _, err := s.Check(context.Background(), "nope", "nope", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkdownAndHTML(t *testing.T) {
	rep := Report{
		DeckName: "Q3", GuideName: "Acme", PagesChecked: 1, Source: SourceHeuristic, CreatedAt: fixedClock(),
		Findings: []Finding{{Page: 1, RuleID: "R2", Severity: SeverityError, Issue: "Uses a|b", Suggestion: "Remove it"}},
	}
	md := Markdown(rep)
	if !strings.Contains(md, `Uses a\|b`) || !strings.Contains(md, "1 findings (1 errors") {
		t.Fatalf("markdown: %s", md)
	}
	html, err := buildHTML(md)
	if err != nil {
		t.Fatalf("buildHTML: %v", err)
	}
	if !strings.Contains(html, "<table>") || !strings.Contains(html, `<td data-severity="error">error</td>`) {
		t.Fatalf("html: %s", html)
	}
}

func TestBannedTermsSkipsLongObjects(t *testing.T) {
	terms := bannedTerms([]Rule{
		{ID: "R1", Text: "Avoid jargon"},
		{ID: "R2", Text: "Do not use the old logo or any of its many historic variants anywhere"},
		{ID: "R3", Text: "Use sentence case"},
	})
	if len(terms) != 1 || terms[0].term != "jargon" {
		t.Fatalf("terms: %+v", terms)
	}
}
