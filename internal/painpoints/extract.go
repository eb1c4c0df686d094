package painpoints

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/joelkehle/consultkit/internal/llm"
	"github.com/joelkehle/consultkit/internal/textsim"
)

const maxExtractChars = 60000

var problemCues = map[string]bool{
	"slow": true, "manual": true, "manually": true, "delay": true, "delays": true, "delayed": true,
	"lack": true, "lacks": true, "missing": true, "difficult": true, "hard": true, "error": true,
	"errors": true, "inconsistent": true, "duplicate": true, "duplicated": true, "cannot": true,
	"can't": true, "unable": true, "issue": true, "issues": true, "problem": true, "problems": true,
	"late": true, "poor": true, "limited": true, "inefficient": true, "struggle": true,
	"struggles": true, "unclear": true, "complex": true, "fragmented": true, "outdated": true,
	"bottleneck": true, "rework": true, "no": true, "not": true, "never": true, "frustrating": true,
}

const extractSystemPrompt = "You are a management consultant. Extract the distinct client pain points " +
	"from workshop notes or interview transcripts. Each pain point is one short sentence describing a " +
	"problem, not a solution."

// Extract pulls pain-point statements out of free text.
func (s *Service) Extract(ctx context.Context, text string) ([]Point, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "", ErrEmptyText
	}
	if s.caller != nil {
		if pts, ok := s.extractLLM(ctx, text); ok {
			return pts, SourceLLM, nil
		}
	}
	return heuristicExtract(text), SourceHeuristic, nil
}

func (s *Service) extractLLM(ctx context.Context, text string) ([]Point, bool) {
	if len(text) > maxExtractChars {
		text = text[:maxExtractChars]
	}
	prompt := fmt.Sprintf("Notes:\n%s\n\nReturn a JSON array of strings, one pain point per element.", text)
	raw, err := s.caller.Invoke(ctx, []llm.Message{llm.System(extractSystemPrompt), llm.User(prompt)})
	if err != nil {
		s.logger.Warn("painpoints extract_failed", "err", err)
		return nil, false
	}
	items, ok := llm.ParseArray[[]string](raw).Ok()
	if !ok {
		s.logger.Warn("painpoints extract_malformed", "raw_len", len(raw))
		return nil, false
	}
	pts := dedupe(items)
	return pts, len(pts) > 0
}

func heuristicExtract(text string) []Point {
	var keep []string
	for _, sentence := range splitSentences(text) {
		if countCues(sentence, problemCues) > 0 {
			keep = append(keep, sentence)
		}
	}
	return dedupe(keep)
}

func dedupe(texts []string) []Point {
	seen := map[string]bool{}
	var out []Point
	for _, t := range texts {
		t = textsim.CollapseSpace(t)
		k := strings.ToLower(t)
		if t == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, Point{ID: strconv.Itoa(len(out) + 1), Text: t})
	}
	return out
}
