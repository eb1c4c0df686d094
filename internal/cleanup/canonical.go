package cleanup

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/joelkehle/consultkit/internal/llm"
)

// HeuristicCanonical picks the shortest, least vague member. Ties keep
// input order.
func HeuristicCanonical(members []string) string {
	if len(members) == 0 {
		return ""
	}
	sorted := append([]string(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		wi, wj := wordCount(sorted[i]), wordCount(sorted[j])
		if wi != wj {
			return wi < wj
		}
		return vagueCount(sorted[i]) < vagueCount(sorted[j])
	})
	return sorted[0]
}

// Canonicalizer synthesizes one sentence standing for all members.
type Canonicalizer interface {
	Canonicalize(ctx context.Context, members []string, maxWords int) (string, error)
}

const canonicalSystemPrompt = "You are a management consultant who edits client pain-point statements. " +
	"Write crisp, specific, present-tense problem statements. Respond with strict JSON only."

// LLMCanonicalizer asks the model for a combined sentence.
type LLMCanonicalizer struct {
	caller llm.Caller
}

func NewLLMCanonicalizer(caller llm.Caller) *LLMCanonicalizer {
	return &LLMCanonicalizer{caller: caller}
}

func (c *LLMCanonicalizer) Canonicalize(ctx context.Context, members []string, maxWords int) (string, error) {
	var b strings.Builder
	if len(members) == 1 {
		fmt.Fprintf(&b, "Rewrite this pain point as one clear, specific sentence of at most %d words.\n", maxWords)
	} else {
		fmt.Fprintf(&b, "These statements describe the same pain point. Combine them into one clear, specific sentence of at most %d words.\n", maxWords)
	}
	b.WriteString("Keep the business meaning; do not add facts.\n\nStatements:\n")
	for _, m := range members {
		b.WriteString("- ")
		b.WriteString(m)
		b.WriteString("\n")
	}
	b.WriteString("\nReturn JSON: {\"sentence\": \"...\"}")

	raw, err := c.caller.Invoke(ctx, []llm.Message{llm.System(canonicalSystemPrompt), llm.User(b.String())})
	if err != nil {
		return "", err
	}
	res := llm.ParseObject[struct {
		Sentence string `json:"sentence"`
	}](raw)
	if v, ok := res.Ok(); ok {
		return strings.TrimSpace(v.Sentence), nil
	}
	// Some models answer with the bare sentence.
	text, _ := res.Malformed()
	text = strings.TrimSpace(llm.StripCodeFences(text))
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.Trim(strings.TrimSpace(text), `"`), nil
}

// acceptCanonical reports whether a synthesized sentence may replace the
// heuristic pick.
func acceptCanonical(s string, maxWords int) bool {
	n := wordCount(s)
	return n > 0 && (maxWords <= 0 || n <= maxWords)
}
