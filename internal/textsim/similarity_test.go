package textsim

import (
	"math"
	"strings"
	"testing"
)

func TestSimilarityIdentityIsOne(t *testing.T) {
	for _, s := range []string{"a", "Slow report generation", strings.Repeat("a", 400), "  mixed CASE  "} {
		if got := Similarity(s, s); got != 1 {
			t.Fatalf("Similarity(%q, itself) = %v, want 1", s, got)
		}
	}
}

func TestSimilarityIgnoresCase(t *testing.T) {
	pairs := [][2]string{
		{"Finance System Reports", "finance system reports generate slowly"},
		{"LOGIN fails", "Unrelated issue about login"},
	}
	for _, p := range pairs {
		want := Similarity(strings.ToLower(p[0]), strings.ToLower(p[1]))
		if got := Similarity(p[0], p[1]); got != want {
			t.Fatalf("Similarity(%q, %q) = %v, lowered = %v", p[0], p[1], got, want)
		}
	}
}

func TestSimilarityKnownRatios(t *testing.T) {
	a := "Slow report generation in finance system"
	b := "Finance system reports generate slowly"
	c := "Unrelated issue about login"
	// Longest common block is "finance system": 2*14/78.
	if got := Similarity(a, b); math.Abs(got-28.0/78.0) > 1e-9 {
		t.Fatalf("Similarity(a, b) = %v, want %v", got, 28.0/78.0)
	}
	if got := Similarity(a, c); got >= 0.35 {
		t.Fatalf("Similarity(a, c) = %v, expected below 0.35", got)
	}
}

func TestSimilarityBounds(t *testing.T) {
	if got := Similarity("", ""); got != 1 {
		t.Fatalf("empty strings should score 1, got %v", got)
	}
	if got := Similarity("abc", ""); got != 0 {
		t.Fatalf("abc vs empty should score 0, got %v", got)
	}
	if got := Similarity("abc", "xyz"); got != 0 {
		t.Fatalf("disjoint strings should score 0, got %v", got)
	}
}

func TestBestPrefersEarliestOnTie(t *testing.T) {
	idx, score := Best("payroll", []string{"billing", "payroll", "Payroll"})
	if idx != 1 || score != 1 {
		t.Fatalf("Best = (%d, %v), want (1, 1)", idx, score)
	}
	if idx, _ := Best("x", nil); idx != -1 {
		t.Fatalf("Best on empty candidates = %d, want -1", idx)
	}
}

func TestCollapseSpace(t *testing.T) {
	if got := CollapseSpace("  a \t b\n\nc  "); got != "a b c" {
		t.Fatalf("CollapseSpace = %q", got)
	}
}
