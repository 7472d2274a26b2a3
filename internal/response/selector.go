// Package response picks the text the character says for a fired trigger.
package response

import (
	"strings"

	"github.com/JHils/phile-gate-whispers-sub003/internal/mood"
	"github.com/JHils/phile-gate-whispers-sub003/internal/rng"
	"github.com/JHils/phile-gate-whispers-sub003/internal/trust"
)

// Entry is one candidate line in a pool.
type Entry struct {
	Text    string          `yaml:"text"`
	MinTier trust.Tier      `yaml:"minTier"`
	Moods   []mood.Category `yaml:"moods,omitempty"`
}

func (e Entry) taggedWith(c mood.Category) bool {
	for _, m := range e.Moods {
		if m == c {
			return true
		}
	}
	return false
}

// Pools maps a trigger ID to its candidate lines.
type Pools map[string][]Entry

// Selector is stateless apart from the pools it was built with.
type Selector struct {
	pools Pools
}

func NewSelector(p Pools) *Selector {
	if p == nil {
		p = Pools{}
	}
	return &Selector{pools: p}
}

// Has reports whether a pool exists for triggerID.
func (s *Selector) Has(triggerID string) bool {
	return len(s.pools[triggerID]) > 0
}

// Eligible returns the candidates for triggerID at tier and current mood.
// Entries whose MinTier is above tier are excluded, so a lower-tier line
// stands in when nothing at tier exists. If any remaining entry is tagged
// with current, the set narrows to those. Nil when every entry is gated
// above tier.
func (s *Selector) Eligible(triggerID string, tier trust.Tier, current mood.Category) []Entry {
	pool := s.pools[triggerID]
	if len(pool) == 0 {
		return nil
	}

	var allowed, tagged []Entry
	for _, e := range pool {
		if !tier.Allows(e.MinTier) {
			continue
		}
		allowed = append(allowed, e)
		if e.taggedWith(current) {
			tagged = append(tagged, e)
		}
	}
	if len(tagged) > 0 {
		return tagged
	}
	return allowed
}

// Select picks one eligible line uniformly. It returns false when no pool is
// registered for triggerID or every line in it is gated above tier.
func (s *Selector) Select(triggerID string, tier trust.Tier, current mood.Category, src rng.Source) (string, bool) {
	cands := s.Eligible(triggerID, tier, current)
	if len(cands) == 0 {
		return "", false
	}
	return cands[src.Intn(len(cands))].Text, true
}

// Render fills {name} placeholders from vars. Unknown placeholders are left
// as they are.
func Render(text string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(text, "{") {
		return text
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
