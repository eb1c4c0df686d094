package appmap

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joelkehle/consultkit/internal/llm"
)

type scriptedCaller struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
}

func (s *scriptedCaller) Invoke(_ context.Context, msgs []llm.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, msgs[len(msgs)-1].Content)
	i := len(s.prompts) - 1
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("script exhausted")
}

func (s *scriptedCaller) ModelName() string { return "scripted" }

func testCatalogue(t *testing.T) *Catalogue {
	t.Helper()
	c, err := NewCatalogue([]LogicalApp{
		{ID: "LA-1", Name: "HR Payroll", Description: "Employee payroll and benefits processing"},
		{ID: "LA-7", Name: "Billing Platform", Description: "Customer invoicing and billing"},
		{ID: "LA-12", Name: "Customer Relationship Management", Description: "Sales pipeline and customer contacts"},
	})
	if err != nil {
		t.Fatalf("NewCatalogue: %v", err)
	}
	return c
}

func TestNormID(t *testing.T) {
	cases := map[string]string{
		"LA_002":   "la-2",
		"LA-7":     "la-7",
		"la 07":    "la-7",
		"LA-000":   "la-0",
		"APP-X01":  "app-x01",
		"Payroll":  "payroll",
		" LA__3 ":  "la-3",
		"LA-":      "la-",
		"crm-0010": "crm-10",
	}
	for in, want := range cases {
		got := NormID(in)
		if got != want {
			t.Errorf("NormID(%q) = %q, want %q", in, got, want)
		}
		if again := NormID(got); again != got {
			t.Errorf("NormID not idempotent on %q: %q -> %q", in, got, again)
		}
	}
}

func TestNewCatalogueRejectsEmptyAndDuplicates(t *testing.T) {
	if _, err := NewCatalogue(nil); !errors.Is(err, ErrEmptyCatalogue) {
		t.Fatalf("expected ErrEmptyCatalogue, got %v", err)
	}
	if _, err := NewCatalogue([]LogicalApp{{ID: "LA-1"}, {ID: "la_01"}}); err == nil {
		t.Fatal("expected duplicate id error")
	}
	if _, err := NewCatalogue([]LogicalApp{{ID: " ", Name: "x"}}); err == nil {
		t.Fatal("expected missing id error")
	}
}

func TestResolveExactThenNormalized(t *testing.T) {
	c := testCatalogue(t)
	if e, kind, ok := c.Resolve("LA-7"); !ok || kind != MatchExact || e.ID != "LA-7" {
		t.Fatalf("exact: %+v %s %v", e, kind, ok)
	}
	if e, kind, ok := c.Resolve("la_07"); !ok || kind != MatchNormalized || e.ID != "LA-7" {
		t.Fatalf("normalized: %+v %s %v", e, kind, ok)
	}
	if _, _, ok := c.Resolve("LA-99"); ok {
		t.Fatal("LA-99 should not resolve")
	}
}

func TestMapOneNormalizedIDResolves(t *testing.T) {
	c := testCatalogue(t)
	caller := &scriptedCaller{responses: []string{
		`{"logical_id":"LA_07","rationale":"Matches LA-7 billing capability","uncertainty":false}`,
	}}
	r := NewReconciler(caller, c, Options{})
	rec := r.MapOne(context.Background(), PhysicalItem{ID: "P1", Name: "InvoiceHub", Description: "Sends customer invoices"})
	if rec.LogicalID != "LA-7" || rec.AutoSubstituted || rec.Uncertainty {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.ModelLogicalID != "LA_07" || rec.State != StateValidated || rec.Attempts != 1 {
		t.Fatalf("audit fields: %+v", rec)
	}
	if rec.LogicalName != "Billing Platform" {
		t.Fatalf("logical name %q", rec.LogicalName)
	}
}

func TestMapOneSubstitutesAfterGarbageTwice(t *testing.T) {
	c := testCatalogue(t)
	caller := &scriptedCaller{responses: []string{
		`{"logical_id":"ZZZ-404","rationale":"No idea","uncertainty":true}`,
		`not json at all`,
	}}
	r := NewReconciler(caller, c, Options{})
	item := PhysicalItem{ID: "P2", Name: "PayrollPro", Description: "Employee payroll and benefits processing"}
	rec := r.MapOne(context.Background(), item)
	if !rec.AutoSubstituted || !rec.Uncertainty || rec.State != StateSubstituted {
		t.Fatalf("expected substitution: %+v", rec)
	}
	want, _ := c.Nearest(item.text())
	if rec.LogicalID != want.ID || rec.LogicalID != "LA-1" {
		t.Fatalf("logical id %q, want %q", rec.LogicalID, want.ID)
	}
	if !strings.Contains(rec.Rationale, "Adjusted") {
		t.Fatalf("rationale missing note: %q", rec.Rationale)
	}
	if rec.Attempts != 2 || len(caller.prompts) != 2 {
		t.Fatalf("attempts %d, calls %d", rec.Attempts, len(caller.prompts))
	}
	if !strings.Contains(caller.prompts[1], "Issue to correct") || !strings.Contains(caller.prompts[1], "ZZZ-404") {
		t.Fatalf("retry prompt lacks issue: %q", caller.prompts[1])
	}
}

func TestMapOneRetriesRationaleMismatch(t *testing.T) {
	c := testCatalogue(t)
	caller := &scriptedCaller{responses: []string{
		`{"logical_id":"LA-7","rationale":"Closest to LA-12 sales tooling","uncertainty":false}`,
		`{"logical_id":"LA-12","rationale":"LA-12 covers customer contacts","uncertainty":"false"}`,
	}}
	r := NewReconciler(caller, c, Options{})
	rec := r.MapOne(context.Background(), PhysicalItem{ID: "P3", Name: "ContactBook"})
	if rec.LogicalID != "LA-12" || rec.State != StateValidated || rec.Attempts != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.Uncertainty {
		t.Fatal("a record that needed correcting must be marked uncertain")
	}
	if rec.MismatchReason != "rationale cites LA-12 but logical_id is LA-7" {
		t.Fatalf("first mismatch should be kept, got %q", rec.MismatchReason)
	}
	if !strings.Contains(caller.prompts[1], "rationale cites LA-12 but logical_id is LA-7") {
		t.Fatalf("retry prompt: %q", caller.prompts[1])
	}
}

func TestMapOneMarksUncertainAfterEmptyID(t *testing.T) {
	c := testCatalogue(t)
	caller := &scriptedCaller{responses: []string{
		`{"logical_id":"","rationale":"Unsure","uncertainty":false}`,
		`{"logical_id":"LA-7","rationale":"LA-7 handles invoicing","uncertainty":false}`,
	}}
	r := NewReconciler(caller, c, Options{})
	rec := r.MapOne(context.Background(), PhysicalItem{ID: "P5", Name: "InvoiceHub"})
	if rec.LogicalID != "LA-7" || rec.State != StateValidated || rec.AutoSubstituted {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.Uncertainty || !strings.Contains(rec.MismatchReason, "empty") {
		t.Fatalf("expected uncertain record with empty-id reason: %+v", rec)
	}
}

func TestMapOneFirstAttemptKeepsModelUncertainty(t *testing.T) {
	c := testCatalogue(t)
	caller := &scriptedCaller{responses: []string{
		`{"logical_id":"LA-7","rationale":"LA-7 handles invoicing","uncertainty":true}`,
	}}
	rec := NewReconciler(caller, c, Options{}).MapOne(context.Background(), PhysicalItem{ID: "P6", Name: "InvoiceHub"})
	if !rec.Uncertainty || rec.MismatchReason != "" || rec.Attempts != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestMapOneKeepsValidIDWhenRationaleNeverAligns(t *testing.T) {
	c := testCatalogue(t)
	mismatch := `{"logical_id":"LA-7","rationale":"Looks like a finance tool","uncertainty":false}`
	caller := &scriptedCaller{responses: []string{mismatch, mismatch}}
	r := NewReconciler(caller, c, Options{})
	rec := r.MapOne(context.Background(), PhysicalItem{ID: "P4", Name: "Ledger"})
	if rec.LogicalID != "LA-7" || rec.AutoSubstituted || !rec.Uncertainty || rec.State != StateExhausted {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.MismatchReason == "" {
		t.Fatal("mismatch reason should be recorded")
	}
}

func TestMapOneWithoutCallerUsesSimilarity(t *testing.T) {
	c := testCatalogue(t)
	r := NewReconciler(nil, c, Options{})
	rec := r.MapOne(context.Background(), PhysicalItem{ID: "P5", Description: "Sales pipeline and customer contacts"})
	if rec.LogicalID != "LA-12" || !rec.AutoSubstituted || rec.Attempts != 0 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestCheckRationale(t *testing.T) {
	cases := []struct {
		rationale, id string
		aligned       bool
	}{
		{"Matches LA-7 billing", "LA-7", true},
		{"Matches LA-07 billing", "LA-7", true},
		{"Both LA-1 and LA-7 apply, LA-7 is closer", "LA-7", true},
		{"Best fit is payroll", "Payroll", true},
		{"Matches LA-1", "LA-7", false},
		{"No identifier here", "LA-7", false},
	}
	for _, tc := range cases {
		got := checkRationale(tc.rationale, tc.id) == ""
		if got != tc.aligned {
			t.Errorf("checkRationale(%q, %q) aligned=%v, want %v", tc.rationale, tc.id, got, tc.aligned)
		}
	}
}

// routedCaller answers by physical ID and delays so completions finish out
// of order.
type routedCaller struct{}

var physicalIDRe = regexp.MustCompile(`ID: P(\d+)`)

func (routedCaller) Invoke(ctx context.Context, msgs []llm.Message) (string, error) {
	m := physicalIDRe.FindStringSubmatch(msgs[len(msgs)-1].Content)
	var n int
	fmt.Sscanf(m[1], "%d", &n)
	select {
	case <-time.After(time.Duration(10-n%10) * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	ids := []string{"LA-1", "LA-7", "LA-12"}
	id := ids[n%3]
	return fmt.Sprintf(`{"logical_id":%q,"rationale":"Chosen %s","uncertainty":false}`, id, id), nil
}

func (routedCaller) ModelName() string { return "routed" }

func TestMapAllPreservesOrder(t *testing.T) {
	c := testCatalogue(t)
	r := NewReconciler(routedCaller{}, c, Options{})
	items := make([]PhysicalItem, 25)
	for i := range items {
		items[i] = PhysicalItem{ID: fmt.Sprintf("P%d", i)}
	}
	recs, err := r.MapAll(context.Background(), items, 6)
	if err != nil {
		t.Fatalf("MapAll: %v", err)
	}
	ids := []string{"LA-1", "LA-7", "LA-12"}
	for i, rec := range recs {
		if rec.PhysicalID != items[i].ID {
			t.Fatalf("record %d is for %s", i, rec.PhysicalID)
		}
		if rec.LogicalID != ids[i%3] {
			t.Fatalf("record %d mapped to %s", i, rec.LogicalID)
		}
	}
}

func TestEveryRecordLandsInCatalogue(t *testing.T) {
	c := testCatalogue(t)
	replies := []string{
		`{"logical_id": 7, "rationale": "7", "uncertainty": 0.9}`,
		`{"logical_id": null}`,
		`[]`,
		`{"logical_id":"la 1","rationale":"LA-1 fits","uncertainty":"yes"}`,
		"```json\n{\"logical_id\":\"LA-12\",\"rationale\":\"LA-12\"}\n```",
		`{"logical_id":"CRM","rationale":"crm"}`,
	}
	for _, reply := range replies {
		caller := &scriptedCaller{responses: []string{reply, reply}}
		rec := NewReconciler(caller, c, Options{}).MapOne(context.Background(), PhysicalItem{ID: "P", Name: "Thing"})
		if _, _, ok := c.Resolve(rec.LogicalID); !ok {
			t.Errorf("reply %q produced %q outside the catalogue", reply, rec.LogicalID)
		}
		if rec.AutoSubstituted && !rec.Uncertainty {
			t.Errorf("reply %q: substitution without uncertainty", reply)
		}
	}
}

func TestCheckRationaleDoesNotMatchPrefixIDs(t *testing.T) {
	if checkRationale("Matches LA-12", "LA-1") == "" {
		t.Fatal("LA-12 must not count as citing LA-1")
	}
}
