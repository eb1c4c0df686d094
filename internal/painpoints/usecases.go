package painpoints

import (
	"context"
	"fmt"
	"strings"

	"github.com/joelkehle/consultkit/internal/llm"
)

type UseCase struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	PainPointIDs []string `json:"pain_point_ids"`
	Source       string   `json:"source"`
}

type useCaseAnswer struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	PainPointIDs []string `json:"pain_point_ids"`
}

const useCaseSystemPrompt = "You are a consultant proposing technology or process use cases that address " +
	"client pain points. Every use case must cite the IDs of the pain points it addresses. Reply with JSON only."

// GenerateUseCases proposes use cases that each cite at least one supplied
// pain point.
func (s *Service) GenerateUseCases(ctx context.Context, points []Point) ([]UseCase, string, error) {
	points = Normalize(points)
	if len(points) == 0 {
		return nil, "", ErrNoPoints
	}
	if s.caller != nil {
		if ucs, ok := s.useCasesLLM(ctx, points); ok {
			return ucs, SourceLLM, nil
		}
	}
	return templateUseCases(points), SourceHeuristic, nil
}

func (s *Service) useCasesLLM(ctx context.Context, points []Point) ([]UseCase, bool) {
	var b strings.Builder
	b.WriteString("Pain points:\n")
	known := make(map[string]bool, len(points))
	for _, p := range points {
		known[p.ID] = true
		fmt.Fprintf(&b, "- [%s] %s\n", p.ID, p.Text)
	}
	b.WriteString("\nReturn a JSON array: [{\"title\": \"...\", \"description\": \"...\", \"pain_point_ids\": [\"<ID>\"]}]")
	raw, err := s.caller.Invoke(ctx, []llm.Message{llm.System(useCaseSystemPrompt), llm.User(b.String())})
	if err != nil {
		s.logger.Warn("painpoints usecases_failed", "err", err)
		return nil, false
	}
	answers, ok := llm.ParseArray[[]useCaseAnswer](raw).Ok()
	if !ok {
		return nil, false
	}
	var out []UseCase
	for _, a := range answers {
		title := strings.TrimSpace(a.Title)
		var ids []string
		for _, id := range a.PainPointIDs {
			id = strings.TrimSpace(id)
			if known[id] {
				ids = append(ids, id)
			}
		}
		if title == "" || len(ids) == 0 {
			continue
		}
		out = append(out, UseCase{
			ID:           fmt.Sprintf("UC-%d", len(out)+1),
			Title:        title,
			Description:  strings.TrimSpace(a.Description),
			PainPointIDs: ids,
			Source:       SourceLLM,
		})
	}
	return out, len(out) > 0
}

func templateUseCases(points []Point) []UseCase {
	out := make([]UseCase, len(points))
	for i, p := range points {
		out[i] = UseCase{
			ID:           fmt.Sprintf("UC-%d", i+1),
			Title:        "Address pain point " + p.ID,
			Description:  "Reduce or remove the underlying cause of: " + p.Text,
			PainPointIDs: []string{p.ID},
			Source:       SourceHeuristic,
		}
	}
	return out
}
