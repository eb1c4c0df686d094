package brand

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/joelkehle/consultkit/internal/llm"
	"github.com/joelkehle/consultkit/internal/textsim"
)

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"

	maxRules        = 200
	maxRulePrompt   = 40000
	maxRuleLineSize = 300
)

var (
	imperativeRe = regexp.MustCompile(`(?i)\b(must|should|always|never|do not|don't|avoid|only use|required)\b`)
	strictRe     = regexp.MustCompile(`(?i)\b(must|never|do not|don't|required|only use)\b`)
	ruleSplitRe  = regexp.MustCompile(`\n+|[.!;]\s+`)
)

var categoryCues = []struct {
	category string
	words    []string
}{
	{"color", []string{"color", "colour", "palette", "rgb", "hex", "pantone"}},
	{"typography", []string{"font", "typeface", "typography", "heading", "bold", "italic", "point size"}},
	{"logo", []string{"logo", "wordmark", "brandmark"}},
	{"imagery", []string{"image", "photo", "photograph", "icon", "illustration"}},
	{"voice", []string{"tone", "voice", "wording", "phrase", "language", "abbreviation", "spell"}},
	{"layout", []string{"margin", "layout", "grid", "alignment", "spacing", "slide"}},
}

func categorize(text string) string {
	lower := strings.ToLower(text)
	for _, c := range categoryCues {
		for _, w := range c.words {
			if strings.Contains(lower, w) {
				return c.category
			}
		}
	}
	return "general"
}

func normalizeSeverity(s, text string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "critical", "high", "must":
		return SeverityError
	case "warning", "medium", "should":
		return SeverityWarning
	case "info", "low", "minor":
		return SeverityInfo
	}
	if strictRe.MatchString(text) {
		return SeverityError
	}
	return SeverityWarning
}

// heuristicRules keeps imperative statements from the guide text.
func heuristicRules(pages []Page) []Rule {
	var rules []Rule
	seen := map[string]bool{}
	for _, p := range pages {
		for _, line := range ruleSplitRe.Split(p.Text, -1) {
			line = strings.Trim(textsim.CollapseSpace(line), "-*• ")
			if line == "" || len(line) > maxRuleLineSize || !imperativeRe.MatchString(line) {
				continue
			}
			k := strings.ToLower(line)
			if seen[k] {
				continue
			}
			seen[k] = true
			rules = append(rules, Rule{
				ID:       fmt.Sprintf("R%d", len(rules)+1),
				Category: categorize(line),
				Text:     line,
				Severity: normalizeSeverity("", line),
			})
			if len(rules) == maxRules {
				return rules
			}
		}
	}
	return rules
}

type ruleAnswer struct {
	Category string `json:"category"`
	Text     string `json:"text"`
	Severity string `json:"severity"`
}

const rulesSystemPrompt = "You turn corporate brand style guides into a checklist of concrete, checkable rules " +
	"for slide decks (colours, typography, logo usage, imagery, voice, layout). Reply with JSON only."

func (s *Service) deriveRules(ctx context.Context, pages []Page) ([]Rule, string) {
	if s.caller != nil {
		if rules, ok := s.rulesLLM(ctx, pages); ok {
			return rules, SourceLLM
		}
	}
	return heuristicRules(pages), SourceHeuristic
}

func (s *Service) rulesLLM(ctx context.Context, pages []Page) ([]Rule, bool) {
	var b strings.Builder
	for _, p := range pages {
		if b.Len() > maxRulePrompt {
			break
		}
		fmt.Fprintf(&b, "--- Page %d ---\n%s\n", p.Number, p.Text)
	}
	prompt := "Style guide:\n" + b.String() +
		"\nReturn a JSON array: [{\"category\": \"color|typography|logo|imagery|voice|layout|general\", \"text\": \"<rule>\", \"severity\": \"error|warning|info\"}]"
	raw, err := s.caller.Invoke(ctx, []llm.Message{llm.System(rulesSystemPrompt), llm.User(prompt)})
	if err != nil {
		s.logger.Warn("brand rules_failed", "err", err)
		return nil, false
	}
	answers, ok := llm.ParseArray[[]ruleAnswer](raw).Ok()
	if !ok {
		s.logger.Warn("brand rules_malformed", "raw_len", len(raw))
		return nil, false
	}
	var rules []Rule
	for _, a := range answers {
		text := textsim.CollapseSpace(a.Text)
		if text == "" {
			continue
		}
		category := strings.ToLower(strings.TrimSpace(a.Category))
		if category == "" {
			category = categorize(text)
		}
		rules = append(rules, Rule{
			ID:       fmt.Sprintf("R%d", len(rules)+1),
			Category: category,
			Text:     text,
			Severity: normalizeSeverity(a.Severity, text),
		})
		if len(rules) == maxRules {
			break
		}
	}
	return rules, len(rules) > 0
}
