// Package cleanup turns a raw list of pain-point statements into an
// auditable set of proposals: normalized, grouped into near-duplicate
// clusters, each cluster reduced to one canonical sentence.
package cleanup

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joelkehle/consultkit/internal/textsim"
)

// StyleRules toggles the rewrite rules applied by Normalize.
type StyleRules struct {
	PresentTense      bool `json:"present_tense" toml:"present_tense"`
	RemoveMetrics     bool `json:"remove_metrics" toml:"remove_metrics"`
	RemoveProperNouns bool `json:"remove_proper_nouns" toml:"remove_proper_nouns"`
}

func (r StyleRules) any() bool {
	return r.PresentTense || r.RemoveMetrics || r.RemoveProperNouns
}

const properNounShare = 0.6

var (
	metricRe = regexp.MustCompile(`\d+%?`)

	// Words ending in "ed" that are not past tense.
	pastTenseExempt = map[string]bool{
		"need": true, "speed": true, "feed": true, "seed": true, "embed": true,
		"exceed": true, "proceed": true, "succeed": true, "shed": true, "bed": true,
		"breed": true, "greed": true,
	}
)

// Normalize applies rules to sentence and truncates it to maxWords words
// when maxWords > 0. With no rules and no limit it only trims and collapses
// whitespace.
func Normalize(sentence string, rules StyleRules, maxWords int) string {
	s := textsim.CollapseSpace(sentence)
	if !rules.any() && maxWords <= 0 {
		return s
	}
	if rules.RemoveMetrics {
		s = textsim.CollapseSpace(metricRe.ReplaceAllString(s, " "))
	}
	words := strings.Fields(s)
	if rules.PresentTense {
		for i, w := range words {
			words[i] = stripPastTense(w)
		}
	}
	if rules.RemoveProperNouns {
		words = dropProperNouns(words)
	}
	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.TrimRight(strings.Join(words, " "), ";, ")
}

// stripPastTense drops a trailing "ed" from alphabetic words longer than
// four characters. Crude on purpose: "used" survives, "generated" becomes
// "generat".
func stripPastTense(word string) string {
	core := strings.TrimRightFunc(word, unicode.IsPunct)
	tail := word[len(core):]
	if utf8.RuneCountInString(core) <= 4 || !strings.HasSuffix(strings.ToLower(core), "ed") {
		return word
	}
	for _, r := range core {
		if !unicode.IsLetter(r) {
			return word
		}
	}
	if pastTenseExempt[strings.ToLower(core)] {
		return word
	}
	return core[:len(core)-2] + tail
}

func dropProperNouns(words []string) []string {
	if len(words) < 2 {
		return words
	}
	proper := 0
	for _, w := range words[1:] {
		if isTitlecase(w) {
			proper++
		}
	}
	if float64(proper) <= properNounShare*float64(len(words)) {
		return words
	}
	out := []string{words[0]}
	for _, w := range words[1:] {
		if !isTitlecase(w) {
			out = append(out, w)
		}
	}
	return out
}

func isTitlecase(word string) bool {
	word = strings.TrimFunc(word, unicode.IsPunct)
	if utf8.RuneCountInString(word) < 2 {
		return false
	}
	for i, r := range word {
		if i == 0 {
			if !unicode.IsUpper(r) {
				return false
			}
			continue
		}
		if unicode.IsLetter(r) && !unicode.IsLower(r) {
			return false
		}
	}
	return true
}

func wordCount(s string) int { return len(strings.Fields(s)) }
