package brand

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/joelkehle/consultkit/internal/llm"
	"github.com/joelkehle/consultkit/internal/store"
	"github.com/joelkehle/consultkit/internal/workpool"
)

type Finding struct {
	Page       int    `json:"page"`
	RuleID     string `json:"rule_id"`
	Category   string `json:"category"`
	Severity   string `json:"severity"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion,omitempty"`
	Source     string `json:"source"`
}

// Report is the stored outcome of checking one deck against one guide.
type Report struct {
	ID           string    `json:"id"`
	DeckID       string    `json:"deck_id"`
	DeckName     string    `json:"deck_name"`
	GuideID      string    `json:"style_guide_id"`
	GuideName    string    `json:"style_guide_name"`
	PagesChecked int       `json:"pages_checked"`
	Findings     []Finding `json:"findings"`
	Source       string    `json:"source"`
	LLMFailures  int       `json:"llm_failures"`
	CreatedAt    time.Time `json:"created_at"`
}

// SeverityCounts tallies findings per severity.
func (r Report) SeverityCounts() map[string]int {
	out := map[string]int{SeverityError: 0, SeverityWarning: 0, SeverityInfo: 0}
	for _, f := range r.Findings {
		out[f.Severity]++
	}
	return out
}

type pageResult struct {
	findings []Finding
	failed   bool
}

// Check reviews every deck page against the guide's rules, one model call
// per page. Pages whose call fails get heuristic findings instead.
func (s *Service) Check(ctx context.Context, deckID, guideID string, concurrency int) (Report, error) {
	deck, err := s.Deck(ctx, deckID)
	if err != nil {
		return Report{}, err
	}
	guide, err := s.StyleGuide(ctx, guideID)
	if err != nil {
		return Report{}, err
	}
	banned := bannedTerms(guide.Rules)
	rulesByID := make(map[string]Rule, len(guide.Rules))
	for _, r := range guide.Rules {
		rulesByID[strings.ToUpper(r.ID)] = r
	}
	ruleList := formatRules(guide.Rules)

	results, err := workpool.Map(ctx, deck.Pages, concurrency, func(ctx context.Context, _ int, p Page) (pageResult, error) {
		if s.caller == nil || len(guide.Rules) == 0 {
			return pageResult{findings: heuristicFindings(p, banned)}, nil
		}
		found, ok := s.checkPageLLM(ctx, p, rulesByID, ruleList)
		if !ok {
			return pageResult{findings: heuristicFindings(p, banned), failed: true}, nil
		}
		return pageResult{findings: found}, nil
	})
	if err != nil {
		return Report{}, err
	}

	rep := Report{
		ID:           store.NewID(),
		DeckID:       deck.ID,
		DeckName:     deck.Name,
		GuideID:      guide.ID,
		GuideName:    guide.Name,
		PagesChecked: len(deck.Pages),
		Findings:     []Finding{},
		CreatedAt:    s.opts.Clock().UTC(),
	}
	for _, r := range results {
		rep.Findings = append(rep.Findings, r.findings...)
		if r.failed {
			rep.LLMFailures++
		}
	}
	switch {
	case s.caller == nil || len(guide.Rules) == 0 || rep.LLMFailures == len(results):
		rep.Source = SourceHeuristic
	case rep.LLMFailures > 0:
		rep.Source = SourceLLMPartial
	default:
		rep.Source = SourceLLM
	}
	if err := s.reports.Put(ctx, rep.ID, rep); err != nil {
		return Report{}, err
	}
	s.logger.Info("brand deck_checked", "deck_id", deck.ID, "style_guide_id", guide.ID,
		"pages", rep.PagesChecked, "findings", len(rep.Findings), "source", rep.Source)
	return rep, nil
}

func formatRules(rules []Rule) string {
	var b strings.Builder
	for _, r := range rules {
		fmt.Fprintf(&b, "- %s [%s, %s]: %s\n", r.ID, r.Category, r.Severity, r.Text)
	}
	return b.String()
}

type findingAnswer struct {
	RuleID     string `json:"rule_id"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
	Severity   string `json:"severity"`
}

const checkSystemPrompt = "You review one slide of a presentation against a brand style guide. " +
	"Report only clear violations of the listed rules, citing the rule_id. Reply with JSON only; " +
	"an empty array means the slide complies."

func (s *Service) checkPageLLM(ctx context.Context, p Page, rules map[string]Rule, ruleList string) ([]Finding, bool) {
	prompt := fmt.Sprintf("Rules:\n%s\nSlide %d text:\n%s\n\nReturn a JSON array: [{\"rule_id\": \"R1\", \"issue\": \"...\", \"suggestion\": \"...\", \"severity\": \"error|warning|info\"}]",
		ruleList, p.Number, p.Text)
	raw, err := s.caller.Invoke(ctx, []llm.Message{llm.System(checkSystemPrompt), llm.User(prompt)})
	if err != nil {
		s.logger.Warn("brand check_failed", "page", p.Number, "err", err)
		return nil, false
	}
	answers, ok := llm.ParseArray[[]findingAnswer](raw).Ok()
	if !ok {
		s.logger.Warn("brand check_malformed", "page", p.Number, "raw_len", len(raw))
		return nil, false
	}
	out := []Finding{}
	for _, a := range answers {
		rule, known := rules[strings.ToUpper(strings.TrimSpace(a.RuleID))]
		issue := strings.TrimSpace(a.Issue)
		if !known || issue == "" {
			continue
		}
		sev := rule.Severity
		if strings.TrimSpace(a.Severity) != "" {
			sev = normalizeSeverity(a.Severity, rule.Text)
		}
		out = append(out, Finding{
			Page:       p.Number,
			RuleID:     rule.ID,
			Category:   rule.Category,
			Severity:   sev,
			Issue:      issue,
			Suggestion: strings.TrimSpace(a.Suggestion),
			Source:     SourceLLM,
		})
	}
	return out, true
}

var bannedRe = regexp.MustCompile(`(?i)\b(?:never use|do not use|don't use|must not use|avoid using|avoid)\s+(?:the\s+)?["“']?([^"”'.,;:()]+)`)

type bannedTerm struct {
	rule Rule
	term string
	re   *regexp.Regexp
}

// bannedTerms pulls the object of prohibitive rules such as
// `Never use "Acme Corp"` so pages can be scanned for it.
func bannedTerms(rules []Rule) []bannedTerm {
	var out []bannedTerm
	for _, r := range rules {
		m := bannedRe.FindStringSubmatch(r.Text)
		if m == nil {
			continue
		}
		term := strings.TrimSpace(m[1])
		if len(term) < 2 || len(strings.Fields(term)) > 4 {
			continue
		}
		out = append(out, bannedTerm{
			rule: r,
			term: term,
			re:   regexp.MustCompile(`(?i)(?:^|\W)` + regexp.QuoteMeta(term) + `(?:\W|$)`),
		})
	}
	return out
}

func heuristicFindings(p Page, banned []bannedTerm) []Finding {
	out := []Finding{}
	for _, b := range banned {
		if !b.re.MatchString(p.Text) {
			continue
		}
		out = append(out, Finding{
			Page:       p.Number,
			RuleID:     b.rule.ID,
			Category:   b.rule.Category,
			Severity:   b.rule.Severity,
			Issue:      fmt.Sprintf("Uses %q, which rule %s prohibits.", b.term, b.rule.ID),
			Suggestion: fmt.Sprintf("Remove or replace %q.", b.term),
			Source:     SourceHeuristic,
		})
	}
	return out
}
