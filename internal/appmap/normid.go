// Package appmap reconciles physical application inventories against a
// catalogue of logical applications, correcting unreliable model answers.
package appmap

import (
	"regexp"
	"strings"
)

var (
	separatorRe = regexp.MustCompile(`[_\s]+`)
	catalogIDRe = regexp.MustCompile(`[A-Z]{2,}-\d+`)
)

// NormID canonicalizes a free-form identifier: lower case, underscores and
// whitespace become hyphens, and leading zeros are dropped from a numeric
// suffix after the last hyphen. NormID("LA_002") == "la-2".
func NormID(id string) string {
	s := strings.ToLower(strings.TrimSpace(id))
	s = separatorRe.ReplaceAllString(s, "-")
	i := strings.LastIndexByte(s, '-')
	if i < 0 || i == len(s)-1 {
		return s
	}
	suffix := s[i+1:]
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return s
		}
	}
	trimmed := strings.TrimLeft(suffix, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	return s[:i+1] + trimmed
}

// mentionedIDs returns the distinct normalized catalogue-style IDs
// (e.g. "LA-7") cited in text, in order of first appearance.
func mentionedIDs(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range catalogIDRe.FindAllString(text, -1) {
		n := NormID(m)
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
