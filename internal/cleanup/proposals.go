package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joelkehle/consultkit/internal/textsim"
	"github.com/joelkehle/consultkit/internal/workpool"
)

const (
	DefaultThreshold         = 0.85
	DefaultMaxCanonicalWords = 25
	DefaultConcurrency       = 4

	ActionKeep    = "Keep"
	ActionRewrite = "Rewrite"
	ActionDrop    = "Drop"
	mergePrefix   = "Merge->"

	QualityHeuristic  = "heuristic"
	QualityLLM        = "llm"
	QualityLLMPartial = "llm_partial"
)

// ErrInvalidInput marks option or input errors the caller can fix.
var ErrInvalidInput = errors.New("invalid cleanup input")

// MergeAction is the action for a row folded into leadID's row.
func MergeAction(leadID string) string { return mergePrefix + leadID }

// RawPoint is one input statement. ID is optional; rows without one are
// numbered from 1 in input order.
type RawPoint struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

type ProposalRow struct {
	ID        string   `json:"id"`
	Original  string   `json:"original"`
	GroupID   string   `json:"group_id"`
	Proposed  string   `json:"proposed"`
	Action    string   `json:"action"`
	Rationale string   `json:"rationale"`
	MergedIDs []string `json:"merged_ids"`
}

type Summary struct {
	TotalRaw        int    `json:"total_raw"`
	ExactDuplicates int    `json:"exact_duplicates"`
	NearDuplicates  int    `json:"near_duplicates"`
	GroupsDetected  int    `json:"groups_detected"`
	DuplicateGroups int    `json:"duplicate_groups"`
	Dropped         int    `json:"dropped"`
	AnalysisQuality string `json:"analysis_quality"`
	LLMFailures     int    `json:"llm_failures"`
}

type Result struct {
	Proposal []ProposalRow `json:"proposal"`
	Summary  Summary       `json:"summary"`
}

// Options tune Build. A nil Threshold means DefaultThreshold; zero is a
// valid threshold that puts every live statement in one group.
type Options struct {
	Threshold         *float64   `json:"threshold,omitempty"`
	Rules             StyleRules `json:"rules"`
	MaxWords          int        `json:"max_words"`
	MaxCanonicalWords int        `json:"max_canonical_words"`
	UseLLM            bool       `json:"use_llm"`
	Concurrency       int        `json:"concurrency"`
}

func (o Options) withDefaults() Options {
	if o.Threshold == nil {
		t := DefaultThreshold
		o.Threshold = &t
	}
	if o.MaxCanonicalWords <= 0 {
		o.MaxCanonicalWords = DefaultMaxCanonicalWords
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if t := o.Threshold; t != nil && (*t < 0 || *t > 1) {
		return fmt.Errorf("%w: threshold must be between 0 and 1, got %v", ErrInvalidInput, *t)
	}
	if o.MaxWords < 0 {
		return fmt.Errorf("%w: max_words must not be negative", ErrInvalidInput)
	}
	return nil
}

// Builder runs normalize → cluster → canonical selection.
type Builder struct {
	canon  Canonicalizer
	logger *slog.Logger
}

// NewBuilder returns a Builder. canon may be nil, in which case every
// canonical sentence comes from the heuristic.
func NewBuilder(canon Canonicalizer, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{canon: canon, logger: logger}
}

type group struct {
	members   []int // indexes into the input
	canonical string
	viaLLM    bool
}

// Build produces one proposal row per input point.
func (b *Builder) Build(ctx context.Context, points []RawPoint, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	opts = opts.withDefaults()
	ids, err := assignIDs(points)
	if err != nil {
		return Result{}, err
	}

	normalized := make([]string, len(points))
	var live []int
	for i, p := range points {
		normalized[i] = Normalize(p.Text, opts.Rules, opts.MaxWords)
		if normalized[i] != "" {
			live = append(live, i)
		}
	}
	liveText := make([]string, len(live))
	for k, i := range live {
		liveText[k] = normalized[i]
	}

	var groups []*group
	for _, c := range Cluster(liveText, *opts.Threshold) {
		g := &group{}
		members := make([]string, len(c))
		for k, li := range c {
			g.members = append(g.members, live[li])
			members[k] = liveText[li]
		}
		g.canonical = HeuristicCanonical(members)
		groups = append(groups, g)
	}

	llmCalls, llmFailures := b.canonicalize(ctx, groups, normalized, opts)

	res := Result{Proposal: make([]ProposalRow, len(points))}
	res.Summary.TotalRaw = len(points)
	for i, p := range points {
		if normalized[i] == "" {
			res.Proposal[i] = ProposalRow{
				ID:        ids[i],
				Original:  p.Text,
				Action:    ActionDrop,
				Rationale: "empty after normalization",
				MergedIDs: []string{},
			}
			res.Summary.Dropped++
		}
	}

	seen := map[string]bool{}
	for gi, g := range groups {
		groupID := "G" + strconv.Itoa(gi+1)
		lead := g.members[0]
		leadID := ids[lead]
		merged := make([]string, 0, len(g.members)-1)
		for _, m := range g.members[1:] {
			merged = append(merged, ids[m])
		}

		flags := Flags(normalized[lead])
		action := ActionKeep
		if needsRewrite(flags) || g.canonical != strings.TrimSpace(points[lead].Text) {
			action = ActionRewrite
		}
		notes := []string{}
		if f := joinFlags(flags); f != "" {
			notes = append(notes, f)
		}
		if g.viaLLM {
			notes = append(notes, "llm canonical")
		}
		if len(merged) > 0 {
			notes = append(notes, fmt.Sprintf("representative of %d statements", len(g.members)))
		}
		res.Proposal[lead] = ProposalRow{
			ID:        leadID,
			Original:  points[lead].Text,
			GroupID:   groupID,
			Proposed:  g.canonical,
			Action:    action,
			Rationale: strings.Join(notes, "; "),
			MergedIDs: merged,
		}
		seen[strings.ToLower(normalized[lead])] = true

		for _, m := range g.members[1:] {
			key := strings.ToLower(normalized[m])
			kind := "near duplicate"
			if seen[key] {
				kind = "exact duplicate"
				res.Summary.ExactDuplicates++
			} else {
				res.Summary.NearDuplicates++
			}
			seen[key] = true
			score := textsim.Similarity(normalized[m], normalized[lead])
			rationale := fmt.Sprintf("%s of %s (similarity %.2f)", kind, leadID, score)
			if f := joinFlags(Flags(normalized[m])); f != "" {
				rationale += "; " + f
			}
			res.Proposal[m] = ProposalRow{
				ID:        ids[m],
				Original:  points[m].Text,
				GroupID:   groupID,
				Proposed:  g.canonical,
				Action:    MergeAction(leadID),
				Rationale: rationale,
				MergedIDs: []string{},
			}
		}
		if len(g.members) > 1 {
			res.Summary.DuplicateGroups++
		}
	}
	res.Summary.GroupsDetected = len(groups)

	switch {
	case llmCalls == 0:
		res.Summary.AnalysisQuality = QualityHeuristic
	case llmFailures > 0:
		res.Summary.AnalysisQuality = QualityLLMPartial
	default:
		res.Summary.AnalysisQuality = QualityLLM
	}
	res.Summary.LLMFailures = llmFailures
	return res, nil
}

// canonicalize offers multi-member groups, and singleton groups whose lead
// needs a rewrite, to the canonicalizer. A failed or over-long answer keeps
// the heuristic pick.
func (b *Builder) canonicalize(ctx context.Context, groups []*group, normalized []string, opts Options) (calls, failures int) {
	if b.canon == nil || !opts.UseLLM {
		return 0, 0
	}
	var todo []*group
	for _, g := range groups {
		if len(g.members) > 1 || needsRewrite(Flags(normalized[g.members[0]])) {
			todo = append(todo, g)
		}
	}
	if len(todo) == 0 {
		return 0, 0
	}
	type outcome struct {
		text string
		err  error
	}
	outs, _ := workpool.Map(ctx, todo, opts.Concurrency, func(ctx context.Context, _ int, g *group) (outcome, error) {
		members := make([]string, len(g.members))
		for k, m := range g.members {
			members[k] = normalized[m]
		}
		text, err := b.canon.Canonicalize(ctx, members, opts.MaxCanonicalWords)
		return outcome{text: text, err: err}, nil
	})
	for k, g := range todo {
		calls++
		o := outs[k]
		if o.err != nil {
			failures++
			b.logger.Warn("cleanup canonicalize_failed", "group_size", len(g.members), "err", o.err.Error())
			continue
		}
		text := Normalize(o.text, opts.Rules, 0)
		if !acceptCanonical(text, opts.MaxCanonicalWords) {
			failures++
			b.logger.Info("cleanup canonical_rejected", "words", wordCount(text), "max_words", opts.MaxCanonicalWords)
			continue
		}
		g.canonical = text
		g.viaLLM = true
	}
	return calls, failures
}

func assignIDs(points []RawPoint) ([]string, error) {
	ids := make([]string, len(points))
	seen := map[string]bool{}
	for i, p := range points {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate point id %q", ErrInvalidInput, id)
		}
		seen[id] = true
		ids[i] = id
	}
	return ids, nil
}
