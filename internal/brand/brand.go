// Package brand ingests corporate style guides and slide decks and checks
// decks against the rules derived from a guide.
package brand

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joelkehle/consultkit/internal/docextract"
	"github.com/joelkehle/consultkit/internal/llm"
	"github.com/joelkehle/consultkit/internal/store"
)

const (
	kindStyleGuide = "style_guide"
	kindDeck       = "deck"
	kindReport     = "check_report"

	SourceLLM        = "llm"
	SourceHeuristic  = "heuristic"
	SourceLLMPartial = "llm_partial"
)

var ErrEmptyDocument = errors.New("document has no extractable text")

type Page struct {
	Number   int    `json:"number"`
	Text     string `json:"text"`
	ImagePNG string `json:"image_png,omitempty"`
}

type Rule struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Text     string `json:"text"`
	Severity string `json:"severity"`
}

type StyleGuide struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Pages       []Page    `json:"pages"`
	Rules       []Rule    `json:"rules"`
	RulesSource string    `json:"rules_source"`
	CreatedAt   time.Time `json:"created_at"`
}

type Deck struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Pages     []Page    `json:"pages"`
	CreatedAt time.Time `json:"created_at"`
}

// Extractor turns an uploaded PDF into page text and optional page images.
type Extractor interface {
	ExtractPDF(ctx context.Context, blob []byte) (docextract.Result, error)
	RenderPages(ctx context.Context, blob []byte, dpi int) ([][]byte, error)
}

type Options struct {
	// RenderImages stores a PNG per page alongside its text.
	RenderImages bool
	DPI          int
	Logger       *slog.Logger
	Clock        func() time.Time
}

type Service struct {
	guides    *store.Collection[StyleGuide]
	decks     *store.Collection[Deck]
	reports   *store.Collection[Report]
	extractor Extractor
	caller    llm.Caller
	opts      Options
	logger    *slog.Logger
}

// NewService wires the brand workflows. caller may be nil, in which case
// rules and findings come from heuristics.
func NewService(st store.Store, ex Extractor, caller llm.Caller, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.DPI <= 0 {
		opts.DPI = 72
	}
	return &Service{
		guides:    store.NewCollection[StyleGuide](st, kindStyleGuide),
		decks:     store.NewCollection[Deck](st, kindDeck),
		reports:   store.NewCollection[Report](st, kindReport),
		extractor: ex,
		caller:    caller,
		opts:      opts,
		logger:    opts.Logger,
	}
}

func (s *Service) pages(ctx context.Context, blob []byte) ([]Page, error) {
	res, err := s.extractor.ExtractPDF(ctx, blob)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(res.Text()) == "" {
		return nil, ErrEmptyDocument
	}
	pages := make([]Page, len(res.Pages))
	for i, p := range res.Pages {
		pages[i] = Page{Number: p.Number, Text: p.Text}
	}
	if s.opts.RenderImages {
		imgs, err := s.extractor.RenderPages(ctx, blob, s.opts.DPI)
		if err != nil {
			s.logger.Warn("brand render_pages_failed", "err", err)
		}
		for i := range pages {
			if i < len(imgs) {
				pages[i].ImagePNG = base64.StdEncoding.EncodeToString(imgs[i])
			}
		}
	}
	return pages, nil
}

// IngestStyleGuide extracts the guide's pages, derives its rules and stores
// it under a new ID.
func (s *Service) IngestStyleGuide(ctx context.Context, name string, blob []byte) (StyleGuide, error) {
	pages, err := s.pages(ctx, blob)
	if err != nil {
		return StyleGuide{}, fmt.Errorf("style guide: %w", err)
	}
	g := StyleGuide{
		ID:        store.NewID(),
		Name:      strings.TrimSpace(name),
		Pages:     pages,
		CreatedAt: s.opts.Clock().UTC(),
	}
	g.Rules, g.RulesSource = s.deriveRules(ctx, pages)
	if err := s.guides.Put(ctx, g.ID, g); err != nil {
		return StyleGuide{}, err
	}
	s.logger.Info("brand style_guide_ingested", "id", g.ID, "pages", len(pages), "rules", len(g.Rules), "source", g.RulesSource)
	return g, nil
}

func (s *Service) StyleGuide(ctx context.Context, id string) (StyleGuide, error) {
	g, err := s.guides.Get(ctx, id)
	if err != nil {
		return StyleGuide{}, fmt.Errorf("style guide %s: %w", id, err)
	}
	return g, nil
}

func (s *Service) StyleGuides(ctx context.Context) ([]StyleGuide, error) {
	return s.guides.List(ctx)
}

func (s *Service) IngestDeck(ctx context.Context, name string, blob []byte) (Deck, error) {
	pages, err := s.pages(ctx, blob)
	if err != nil {
		return Deck{}, fmt.Errorf("deck: %w", err)
	}
	d := Deck{
		ID:        store.NewID(),
		Name:      strings.TrimSpace(name),
		Pages:     pages,
		CreatedAt: s.opts.Clock().UTC(),
	}
	if err := s.decks.Put(ctx, d.ID, d); err != nil {
		return Deck{}, err
	}
	s.logger.Info("brand deck_ingested", "id", d.ID, "pages", len(pages))
	return d, nil
}

func (s *Service) Deck(ctx context.Context, id string) (Deck, error) {
	d, err := s.decks.Get(ctx, id)
	if err != nil {
		return Deck{}, fmt.Errorf("deck %s: %w", id, err)
	}
	return d, nil
}

func (s *Service) Decks(ctx context.Context) ([]Deck, error) {
	return s.decks.List(ctx)
}

func (s *Service) Report(ctx context.Context, id string) (Report, error) {
	r, err := s.reports.Get(ctx, id)
	if err != nil {
		return Report{}, fmt.Errorf("report %s: %w", id, err)
	}
	return r, nil
}
