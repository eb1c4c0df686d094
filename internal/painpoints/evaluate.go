package painpoints

import (
	"context"
	"fmt"
	"math"

	"github.com/joelkehle/consultkit/internal/llm"
	"github.com/joelkehle/consultkit/internal/workpool"
)

// Score rates a pain point 1-5 on each axis. Priority favours high impact
// and urgency at low effort.
type Score struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Impact    int     `json:"impact"`
	Urgency   int     `json:"urgency"`
	Effort    int     `json:"effort"`
	Priority  float64 `json:"priority"`
	Rationale string  `json:"rationale"`
	Source    string  `json:"source"`
}

func priority(impact, urgency, effort int) float64 {
	return math.Round(float64(impact*urgency)/float64(effort)*100) / 100
}

var (
	impactCues = map[string]bool{
		"revenue": true, "customer": true, "customers": true, "compliance": true, "regulatory": true,
		"risk": true, "cost": true, "costs": true, "error": true, "errors": true, "audit": true, "margin": true,
	}
	urgencyCues = map[string]bool{
		"urgent": true, "delay": true, "delays": true, "late": true, "outage": true, "blocked": true,
		"immediately": true, "deadline": true, "daily": true, "every": true, "failing": true,
	}
	heavyEffortCues = map[string]bool{
		"system": true, "systems": true, "integration": true, "platform": true, "migration": true,
		"legacy": true, "erp": true, "data": true,
	}
	lightEffortCues = map[string]bool{
		"manual": true, "manually": true, "template": true, "process": true, "email": true,
		"spreadsheet": true, "spreadsheets": true,
	}
)

func heuristicScore(p Point) Score {
	impact := clamp(2+countCues(p.Text, impactCues), 1, 5)
	urgency := clamp(2+countCues(p.Text, urgencyCues), 1, 5)
	effort := clamp(3+countCues(p.Text, heavyEffortCues)-countCues(p.Text, lightEffortCues), 1, 5)
	return Score{
		ID: p.ID, Text: p.Text,
		Impact: impact, Urgency: urgency, Effort: effort,
		Priority:  priority(impact, urgency, effort),
		Rationale: "Keyword heuristic.",
		Source:    SourceHeuristic,
	}
}

type scoreAnswer struct {
	Impact    int    `json:"impact"`
	Urgency   int    `json:"urgency"`
	Effort    int    `json:"effort"`
	Rationale string `json:"rationale"`
}

const evaluateSystemPrompt = "You are a management consultant prioritising client pain points. " +
	"Score impact, urgency and effort-to-fix from 1 (low) to 5 (high). Reply with JSON only."

// Evaluate scores every point, calling the model concurrently.
func (s *Service) Evaluate(ctx context.Context, points []Point, concurrency int) ([]Score, error) {
	points = Normalize(points)
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	return workpool.Map(ctx, points, concurrency, func(ctx context.Context, _ int, p Point) (Score, error) {
		if s.caller == nil {
			return heuristicScore(p), nil
		}
		prompt := fmt.Sprintf("Pain point: %s\n\nReturn JSON: {\"impact\": 1-5, \"urgency\": 1-5, \"effort\": 1-5, \"rationale\": \"<one sentence>\"}", p.Text)
		raw, err := s.caller.Invoke(ctx, []llm.Message{llm.System(evaluateSystemPrompt), llm.User(prompt)})
		if err != nil {
			s.logger.Warn("painpoints evaluate_failed", "id", p.ID, "err", err)
			return heuristicScore(p), nil
		}
		ans, ok := llm.ParseObject[scoreAnswer](raw).Ok()
		if !ok || !inRange(ans.Impact) || !inRange(ans.Urgency) || !inRange(ans.Effort) {
			return heuristicScore(p), nil
		}
		return Score{
			ID: p.ID, Text: p.Text,
			Impact: ans.Impact, Urgency: ans.Urgency, Effort: ans.Effort,
			Priority:  priority(ans.Impact, ans.Urgency, ans.Effort),
			Rationale: ans.Rationale,
			Source:    SourceLLM,
		}, nil
	})
}

func inRange(v int) bool { return v >= 1 && v <= 5 }
