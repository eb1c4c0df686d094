// Package textsim scores how alike two short text spans are.
package textsim

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Similarity returns the case-insensitive sequence-matcher ratio of a and b:
// 2*M/T where M is the number of matched runes and T the combined length.
// Two empty strings score 1.
func Similarity(a, b string) float64 {
	la, lb := fold(a), fold(b)
	if la == lb {
		return 1
	}
	// Auto-junk is off: with it on, long strings made of repeated runes
	// stop matching themselves.
	m := difflib.NewMatcherWithJunk(runes(la), runes(lb), false, nil)
	return m.Ratio()
}

// Best returns the index of the candidate most similar to query and its
// score. Ties keep the earliest candidate. It returns -1 for no candidates.
func Best(query string, candidates []string) (int, float64) {
	best, bestScore := -1, -1.0
	for i, c := range candidates {
		if s := Similarity(query, c); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return -1, 0
	}
	return best, bestScore
}

func fold(s string) string {
	// Casers carry state and are not safe to share across goroutines.
	return cases.Lower(language.Und).String(s)
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// CollapseSpace trims s and replaces every run of whitespace with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
