package appmap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joelkehle/consultkit/internal/llm"
	"github.com/joelkehle/consultkit/internal/textsim"
	"github.com/joelkehle/consultkit/internal/workpool"
)

const (
	DefaultMaxAttempts = 2
	DefaultConcurrency = 8
)

// Mapping outcomes.
const (
	StateValidated   = "validated"
	StateExhausted   = "exhausted"
	StateSubstituted = "substituted"
)

type PhysicalItem struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

func (p PhysicalItem) text() string {
	return textsim.CollapseSpace(p.Name + " " + p.Description)
}

// Record is the audited result of mapping one physical item.
type Record struct {
	PhysicalID      string  `json:"physical_id"`
	PhysicalName    string  `json:"physical_name,omitempty"`
	LogicalID       string  `json:"logical_id"`
	LogicalName     string  `json:"logical_name"`
	Similarity      float64 `json:"similarity"`
	Rationale       string  `json:"rationale"`
	Uncertainty     bool    `json:"uncertainty"`
	ModelLogicalID  string  `json:"model_logical_id"`
	AutoSubstituted bool    `json:"auto_substituted"`
	MismatchReason  string  `json:"mismatch_reason,omitempty"`
	Attempts        int     `json:"attempts"`
	State           string  `json:"state"`
}

type Options struct {
	MaxAttempts int
	Logger      *slog.Logger
}

// Reconciler maps physical items into a Catalogue. A nil caller maps every
// item by similarity alone.
type Reconciler struct {
	caller      llm.Caller
	catalogue   *Catalogue
	maxAttempts int
	logger      *slog.Logger
}

func NewReconciler(caller llm.Caller, catalogue *Catalogue, opts Options) *Reconciler {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Reconciler{
		caller:      caller,
		catalogue:   catalogue,
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger,
	}
}

// MapAll maps items concurrently; records come back in input order.
func (r *Reconciler) MapAll(ctx context.Context, items []PhysicalItem, concurrency int) ([]Record, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return workpool.Map(ctx, items, concurrency, func(ctx context.Context, _ int, item PhysicalItem) (Record, error) {
		return r.MapOne(ctx, item), nil
	})
}

// answer is the model's reply. Models sometimes send numbers or strings
// where booleans or IDs are expected, so both fields decode loosely.
type answer struct {
	LogicalID   looseString `json:"logical_id"`
	Rationale   string      `json:"rationale"`
	Uncertainty looseBool   `json:"uncertainty"`
}

type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	*s = looseString(b)
	return nil
}

type looseBool bool

func (v *looseBool) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.ToLower(string(bytes.TrimSpace(b))), `"`)
	switch s {
	case "true", "yes", "high", "1":
		*v = true
	case "false", "no", "low", "0", "null", "":
		*v = false
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("uncertainty: unrecognized value %s", b)
		}
		*v = f >= 0.5
	}
	return nil
}

// MapOne asks the model for a logical ID, validates the answer against the
// catalogue and the rationale, retries with the issue stated, and falls
// back to the most similar catalogue entry when nothing resolves.
//
// A record that needed any retry is marked uncertain and keeps the first
// issue as its mismatch reason. When attempts run out on an ID that did
// resolve but was never cited by the rationale, that ID is kept (state
// exhausted) instead of being substituted.
func (r *Reconciler) MapOne(ctx context.Context, item PhysicalItem) Record {
	rec := Record{PhysicalID: item.ID, PhysicalName: item.Name}
	if r.caller == nil {
		return r.substitute(rec, item, "no language model configured")
	}

	var (
		issue     string
		resolved  *LogicalApp
		rationale string
	)
	note := func(reason string) {
		issue = reason
		if rec.MismatchReason == "" {
			rec.MismatchReason = reason
		}
	}
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			issue = ctx.Err().Error()
			break
		}
		rec.Attempts = attempt
		raw, err := r.caller.Invoke(ctx, r.messages(item, issue))
		if err != nil {
			note("the previous request failed; answer again")
			r.logger.Warn("appmap: model call failed", "physical_id", item.ID, "attempt", attempt, "err", err)
			continue
		}
		ans, ok := llm.ParseObject[answer](raw).Ok()
		if !ok {
			note("the previous response was not valid JSON with logical_id, rationale and uncertainty")
			continue
		}
		rec.ModelLogicalID = string(ans.LogicalID)
		entry, kind, found := r.catalogue.Resolve(string(ans.LogicalID))
		if !found {
			if strings.TrimSpace(string(ans.LogicalID)) == "" {
				note("logical_id was empty; choose one of the allowed IDs")
			} else {
				note(fmt.Sprintf("logical_id %q is not one of the allowed IDs", ans.LogicalID))
			}
			if resolved == nil {
				rationale = ans.Rationale
			}
			continue
		}
		resolved, rationale = &entry, strings.TrimSpace(ans.Rationale)
		if reason := checkRationale(rationale, entry.ID); reason != "" {
			note(reason)
			continue
		}
		r.fill(&rec, item, entry)
		rec.Rationale = rationale
		rec.Uncertainty = bool(ans.Uncertainty) || attempt > 1
		rec.State = StateValidated
		if kind == MatchNormalized {
			r.logger.Debug("appmap: resolved by normalized id", "physical_id", item.ID, "model_id", rec.ModelLogicalID, "logical_id", entry.ID)
		}
		return rec
	}

	if resolved != nil {
		r.fill(&rec, item, *resolved)
		rec.Rationale = appendNote(rationale, fmt.Sprintf("Rationale did not cite %s after %d attempts.", resolved.ID, rec.Attempts))
		rec.Uncertainty = true
		rec.State = StateExhausted
		return rec
	}
	rec.Rationale = rationale
	return r.substitute(rec, item, issue)
}

func (r *Reconciler) substitute(rec Record, item PhysicalItem, reason string) Record {
	query := item.text()
	if query == "" {
		query = rec.ModelLogicalID
	}
	if query == "" {
		query = item.ID
	}
	entry, score := r.catalogue.Nearest(query)
	rec.LogicalID = entry.ID
	rec.LogicalName = entry.Name
	rec.Similarity = score
	rec.AutoSubstituted = true
	rec.Uncertainty = true
	if rec.MismatchReason == "" {
		rec.MismatchReason = reason
	}
	rec.State = StateSubstituted
	note := fmt.Sprintf("Adjusted: substituted nearest catalogue entry %s (similarity %.2f)", entry.ID, score)
	if rec.ModelLogicalID != "" {
		note = fmt.Sprintf("Adjusted: model logical_id %q could not be resolved; substituted nearest catalogue entry %s (similarity %.2f)", rec.ModelLogicalID, entry.ID, score)
	}
	rec.Rationale = appendNote(rec.Rationale, note+".")
	r.logger.Info("appmap: substituted", "physical_id", item.ID, "logical_id", entry.ID, "similarity", score, "reason", reason)
	return rec
}

func (r *Reconciler) fill(rec *Record, item PhysicalItem, entry LogicalApp) {
	rec.LogicalID = entry.ID
	rec.LogicalName = entry.Name
	if t := item.text(); t != "" {
		rec.Similarity = textsim.Similarity(t, entry.text())
	}
}

// checkRationale returns "" when the rationale cites chosenID, otherwise a
// description of the mismatch suitable for a retry prompt.
func checkRationale(rationale, chosenID string) string {
	chosen := NormID(chosenID)
	ids := mentionedIDs(rationale)
	for _, id := range ids {
		if id == chosen {
			return ""
		}
	}
	// IDs outside the LA-7 shape can only be cited verbatim.
	if !catalogIDRe.MatchString(chosenID) && strings.Contains(strings.ToLower(rationale), strings.ToLower(chosenID)) {
		return ""
	}
	if len(ids) == 0 {
		return fmt.Sprintf("rationale does not cite the chosen logical_id %s", chosenID)
	}
	return fmt.Sprintf("rationale cites %s but logical_id is %s", strings.ToUpper(strings.Join(ids, ", ")), chosenID)
}

func appendNote(text, note string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return note
	}
	return text + " [" + note + "]"
}

const reconcileSystemPrompt = "You map physical applications from an IT inventory to logical applications " +
	"in an enterprise architecture catalogue. Choose exactly one logical_id from the allowed list, " +
	"cite that ID in your rationale, and reply with JSON only."

func (r *Reconciler) messages(item PhysicalItem, issue string) []llm.Message {
	var b strings.Builder
	b.WriteString("Physical application:\n")
	fmt.Fprintf(&b, "ID: %s\n", item.ID)
	if item.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", item.Name)
	}
	if item.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", item.Description)
	}
	b.WriteString("\nAllowed logical applications (logical_id must be one of these IDs):\n")
	for _, e := range r.catalogue.entries {
		fmt.Fprintf(&b, "- %s: %s", e.ID, e.Name)
		if e.Description != "" {
			fmt.Fprintf(&b, " (%s)", e.Description)
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nReturn JSON: {\"logical_id\": \"<allowed ID>\", \"rationale\": \"<one or two sentences citing the ID>\", \"uncertainty\": true|false}")
	if issue != "" {
		fmt.Fprintf(&b, "\n\nIssue to correct: %s. Return corrected JSON.", issue)
	}
	return []llm.Message{llm.System(reconcileSystemPrompt), llm.User(b.String())}
}
