package appmap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joelkehle/consultkit/internal/textsim"
)

// ErrEmptyCatalogue is returned when no logical applications are supplied.
var ErrEmptyCatalogue = errors.New("logical catalogue is empty")

type LogicalApp struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (a LogicalApp) text() string {
	return textsim.CollapseSpace(a.Name + " " + a.Description)
}

type MatchKind string

const (
	MatchExact      MatchKind = "exact"
	MatchNormalized MatchKind = "normalized"
)

// Catalogue is the closed set of logical IDs a mapping may resolve into.
type Catalogue struct {
	entries []LogicalApp
	exact   map[string]int
	norm    map[string]int
}

// NewCatalogue indexes entries. IDs must be non-empty and unique after
// normalization.
func NewCatalogue(entries []LogicalApp) (*Catalogue, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyCatalogue
	}
	c := &Catalogue{
		entries: make([]LogicalApp, 0, len(entries)),
		exact:   make(map[string]int, len(entries)),
		norm:    make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, fmt.Errorf("logical application %q has no id", e.Name)
		}
		n := NormID(e.ID)
		if _, dup := c.norm[n]; dup {
			return nil, fmt.Errorf("duplicate logical id %q", e.ID)
		}
		c.exact[e.ID] = len(c.entries)
		c.norm[n] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

func (c *Catalogue) Entries() []LogicalApp { return append([]LogicalApp(nil), c.entries...) }

func (c *Catalogue) Len() int { return len(c.entries) }

// Resolve looks id up exactly, then by NormID.
func (c *Catalogue) Resolve(id string) (LogicalApp, MatchKind, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return LogicalApp{}, "", false
	}
	if i, ok := c.exact[id]; ok {
		return c.entries[i], MatchExact, true
	}
	if i, ok := c.norm[NormID(id)]; ok {
		return c.entries[i], MatchNormalized, true
	}
	return LogicalApp{}, "", false
}

// Nearest returns the entry whose name and description are most similar to
// text. Ties keep catalogue order.
func (c *Catalogue) Nearest(text string) (LogicalApp, float64) {
	candidates := make([]string, len(c.entries))
	for i, e := range c.entries {
		candidates[i] = e.text()
	}
	i, score := textsim.Best(text, candidates)
	if i < 0 {
		return c.entries[0], 0
	}
	return c.entries[i], score
}
