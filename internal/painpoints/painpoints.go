// Package painpoints extracts, scores and maps client pain points. Every
// operation asks the language model first and falls back to a deterministic
// heuristic when the model is absent or its answer is unusable.
package painpoints

import (
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/joelkehle/consultkit/internal/llm"
	"github.com/joelkehle/consultkit/internal/textsim"
)

const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
)

var (
	ErrEmptyText         = errors.New("text is empty")
	ErrNoPoints          = errors.New("no pain points supplied")
	ErrNoCapabilities    = errors.New("capability catalogue is empty")
	ErrInvalidCapability = errors.New("invalid capability")
)

type Point struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Service bundles the model used by all operations. A nil caller selects
// heuristics everywhere.
type Service struct {
	caller llm.Caller
	logger *slog.Logger
}

func NewService(caller llm.Caller, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{caller: caller, logger: logger}
}

// Normalize fills missing IDs with 1-based positions and collapses
// whitespace. Points with no text are removed.
func Normalize(points []Point) []Point {
	out := make([]Point, 0, len(points))
	for i, p := range points {
		p.Text = textsim.CollapseSpace(p.Text)
		if p.Text == "" {
			continue
		}
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			p.ID = strconv.Itoa(i + 1)
		}
		out = append(out, p)
	}
	return out
}

var (
	sentenceEndRe = regexp.MustCompile(`[.!?;]+\s+|\n+`)
	bulletRe      = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s*`)
)

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceEndRe.Split(text, -1) {
		s = bulletRe.ReplaceAllString(textsim.CollapseSpace(s), "")
		s = strings.TrimRight(s, ".!?; ")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lowerWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '\''
	})
}

func countCues(s string, cues map[string]bool) int {
	n := 0
	for _, w := range lowerWords(s) {
		if cues[w] {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
