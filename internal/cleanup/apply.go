package cleanup

import (
	"strings"
)

type AppliedPoint struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	MergedIDs []string `json:"merged_ids"`
}

type Applied struct {
	Count  int            `json:"count"`
	Points []AppliedPoint `json:"points"`
}

// ParseAction splits an action label into its kind and, for merges, the
// target id. Labels are matched case-insensitively; "→" is accepted for "->".
func ParseAction(action string) (kind, target string) {
	a := strings.TrimSpace(strings.ReplaceAll(action, "→", "->"))
	lower := strings.ToLower(a)
	switch {
	case strings.HasPrefix(lower, "merge"):
		rest := strings.TrimSpace(a[len("merge"):])
		rest = strings.TrimSpace(strings.TrimPrefix(rest, "->"))
		return "merge", rest
	case lower == "drop":
		return "drop", ""
	case lower == "rewrite":
		return "rewrite", ""
	default:
		return "keep", ""
	}
}

// ApplyActions collapses reviewed proposal rows into the surviving points.
// Keep and Rewrite rows survive with their proposed text (or the original
// when no proposal is given); Drop rows and merges into a surviving row
// disappear. A merge whose target is missing, dropped or itself merged
// survives with its own original text so no statement is lost silently.
func ApplyActions(rows []ProposalRow) Applied {
	kinds := make([]string, len(rows))
	targets := make([]string, len(rows))
	byID := map[string]int{}
	for i, r := range rows {
		kinds[i], targets[i] = ParseAction(r.Action)
		byID[strings.TrimSpace(r.ID)] = i
	}

	survives := func(i int) bool {
		return kinds[i] == "keep" || kinds[i] == "rewrite"
	}
	merged := map[string][]string{}
	orphan := make([]bool, len(rows))
	for i := range rows {
		if kinds[i] != "merge" {
			continue
		}
		t, ok := byID[targets[i]]
		if !ok || !survives(t) {
			orphan[i] = true
			continue
		}
		merged[targets[i]] = append(merged[targets[i]], strings.TrimSpace(rows[i].ID))
	}

	out := Applied{Points: []AppliedPoint{}}
	for i, r := range rows {
		var text string
		switch {
		case survives(i):
			text = strings.TrimSpace(r.Proposed)
			if text == "" {
				text = strings.TrimSpace(r.Original)
			}
		case orphan[i]:
			text = strings.TrimSpace(r.Original)
		default:
			continue
		}
		if text == "" {
			continue
		}
		id := strings.TrimSpace(r.ID)
		ids := merged[id]
		if ids == nil {
			ids = []string{}
		}
		out.Points = append(out.Points, AppliedPoint{ID: id, Text: text, MergedIDs: ids})
	}
	out.Count = len(out.Points)
	return out
}
