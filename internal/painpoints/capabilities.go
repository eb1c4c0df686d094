package painpoints

import (
	"context"
	"fmt"
	"strings"

	"github.com/joelkehle/consultkit/internal/appmap"
	"github.com/joelkehle/consultkit/internal/llm"
	"github.com/joelkehle/consultkit/internal/textsim"
	"github.com/joelkehle/consultkit/internal/workpool"
)

type Capability struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (c Capability) text() string { return textsim.CollapseSpace(c.Name + " " + c.Description) }

type CapabilityMatch struct {
	PointID         string   `json:"pain_point_id"`
	PointText       string   `json:"pain_point"`
	CapabilityIDs   []string `json:"capability_ids"`
	CapabilityNames []string `json:"capability_names"`
	Similarity      float64  `json:"similarity"`
	Rationale       string   `json:"rationale"`
	Source          string   `json:"source"`
}

type capabilityIndex struct {
	caps  []Capability
	byID  map[string]int
	texts []string
}

func newCapabilityIndex(caps []Capability) (*capabilityIndex, error) {
	if len(caps) == 0 {
		return nil, ErrNoCapabilities
	}
	idx := &capabilityIndex{byID: map[string]int{}}
	for _, c := range caps {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return nil, fmt.Errorf("%w: capability %q has no id", ErrInvalidCapability, c.Name)
		}
		n := appmap.NormID(c.ID)
		if prev, dup := idx.byID[n]; dup {
			return nil, fmt.Errorf("%w: duplicate capability id %q (same as %q)", ErrInvalidCapability, c.ID, idx.caps[prev].ID)
		}
		idx.byID[n] = len(idx.caps)
		idx.caps = append(idx.caps, c)
		idx.texts = append(idx.texts, c.text())
	}
	return idx, nil
}

func (x *capabilityIndex) resolve(id string) (Capability, bool) {
	i, ok := x.byID[appmap.NormID(id)]
	if !ok {
		return Capability{}, false
	}
	return x.caps[i], true
}

type capabilityAnswer struct {
	CapabilityIDs []string `json:"capability_ids"`
	Rationale     string   `json:"rationale"`
}

const capabilitySystemPrompt = "You map client pain points to business capabilities. " +
	"Choose one to three capability IDs from the allowed list only. Reply with JSON only."

// MapCapabilities assigns each point to catalogue capabilities. IDs the
// model invents are discarded; a point left with none gets the most similar
// capability.
func (s *Service) MapCapabilities(ctx context.Context, points []Point, caps []Capability, concurrency int) ([]CapabilityMatch, error) {
	points = Normalize(points)
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	idx, err := newCapabilityIndex(caps)
	if err != nil {
		return nil, err
	}
	var list strings.Builder
	for _, c := range idx.caps {
		fmt.Fprintf(&list, "- %s: %s\n", c.ID, c.text())
	}
	return workpool.Map(ctx, points, concurrency, func(ctx context.Context, _ int, p Point) (CapabilityMatch, error) {
		if s.caller != nil {
			if m, ok := s.mapLLM(ctx, p, idx, list.String()); ok {
				return m, nil
			}
		}
		return idx.nearest(p), nil
	})
}

func (s *Service) mapLLM(ctx context.Context, p Point, idx *capabilityIndex, list string) (CapabilityMatch, bool) {
	prompt := fmt.Sprintf("Pain point: %s\n\nAllowed capabilities:\n%s\nReturn JSON: {\"capability_ids\": [\"<ID>\"], \"rationale\": \"<one sentence>\"}", p.Text, list)
	raw, err := s.caller.Invoke(ctx, []llm.Message{llm.System(capabilitySystemPrompt), llm.User(prompt)})
	if err != nil {
		s.logger.Warn("painpoints map_failed", "id", p.ID, "err", err)
		return CapabilityMatch{}, false
	}
	ans, ok := llm.ParseObject[capabilityAnswer](raw).Ok()
	if !ok {
		return CapabilityMatch{}, false
	}
	m := CapabilityMatch{PointID: p.ID, PointText: p.Text, Rationale: ans.Rationale, Source: SourceLLM}
	seen := map[string]bool{}
	for _, id := range ans.CapabilityIDs {
		c, found := idx.resolve(id)
		if !found || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		m.CapabilityIDs = append(m.CapabilityIDs, c.ID)
		m.CapabilityNames = append(m.CapabilityNames, c.Name)
	}
	if len(m.CapabilityIDs) == 0 {
		return CapabilityMatch{}, false
	}
	first, _ := idx.resolve(m.CapabilityIDs[0])
	m.Similarity = textsim.Similarity(p.Text, first.text())
	return m, true
}

func (x *capabilityIndex) nearest(p Point) CapabilityMatch {
	i, score := textsim.Best(p.Text, x.texts)
	if i < 0 {
		i = 0
	}
	c := x.caps[i]
	return CapabilityMatch{
		PointID:         p.ID,
		PointText:       p.Text,
		CapabilityIDs:   []string{c.ID},
		CapabilityNames: []string{c.Name},
		Similarity:      score,
		Rationale:       fmt.Sprintf("Closest capability by text similarity (%.2f).", score),
		Source:          SourceHeuristic,
	}
}
