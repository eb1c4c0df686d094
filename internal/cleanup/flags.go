package cleanup

import (
	"strings"
	"unicode"
)

// Flag names a quality heuristic that fired for a sentence.
type Flag string

const (
	FlagWeak     Flag = "weak"
	FlagVague    Flag = "vague"
	FlagMetric   Flag = "metric"
	FlagCompound Flag = "compound"
)

const minStrongWords = 4

var (
	vagueTerms = map[string]bool{
		"issue": true, "issues": true, "problem": true, "problems": true,
		"thing": true, "things": true, "stuff": true, "various": true,
		"etc": true, "several": true, "general": true, "generally": true,
		"bad": true, "poor": true, "inefficient": true, "better": true,
		"improve": true, "difficult": true, "hard": true, "lack": true,
	}
	hedgeTerms = map[string]bool{
		"maybe": true, "might": true, "perhaps": true, "possibly": true,
		"sometimes": true, "somewhat": true, "probably": true,
	}
)

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func vagueCount(s string) int {
	n := 0
	for _, t := range tokens(s) {
		if vagueTerms[t] {
			n++
		}
	}
	return n
}

// Flags returns the heuristics that fire for s, in a fixed order.
func Flags(s string) []Flag {
	toks := tokens(s)
	var flags []Flag
	weak := len(toks) < minStrongWords
	for _, t := range toks {
		if hedgeTerms[t] {
			weak = true
			break
		}
	}
	if weak {
		flags = append(flags, FlagWeak)
	}
	if vagueCount(s) > 0 {
		flags = append(flags, FlagVague)
	}
	if strings.IndexFunc(s, unicode.IsDigit) >= 0 {
		flags = append(flags, FlagMetric)
	}
	lower := " " + strings.ToLower(s) + " "
	if strings.Contains(s, ";") || strings.Contains(lower, " as well as ") ||
		(strings.Contains(lower, " and ") && len(toks) >= 8) {
		flags = append(flags, FlagCompound)
	}
	return flags
}

func needsRewrite(flags []Flag) bool {
	for _, f := range flags {
		if f == FlagWeak || f == FlagVague {
			return true
		}
	}
	return false
}

func joinFlags(flags []Flag) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}
