// Package score maps a visitor record to a numeric score and a named rank.
package score

import (
	"github.com/JHils/phile-gate-whispers-sub003/internal/state"
)

// Weights is the configurable point table. Negative weights count as zero so
// the score stays monotone as latches accumulate.
type Weights struct {
	Visit       int            `yaml:"visit"`
	Flags       map[string]int `yaml:"flags"`
	DefaultFlag int            `yaml:"defaultFlag"`
	Collapse    int            `yaml:"collapse"`
}

// DefaultWeights is the built-in achievement table.
func DefaultWeights() Weights {
	return Weights{
		Visit: 1,
		Flags: map[string]int{
			"helpCalled":       10,
			"whoisCalled":      20,
			"trustCalled":      25,
			"mirrorCalled":     30,
			"gateCalled":       40,
			"rememberCalled":   50,
			"confessed":        60,
			"echoHeard":        75,
			"forgotten":        80,
			"sawBehindGlass":   100,
			"monsterNamed":     150,
			"survivedCollapse": 200,
		},
		Collapse: 100,
	}
}

func (w Weights) flag(name string) int {
	if p, ok := w.Flags[name]; ok {
		return nonNegative(p)
	}
	return nonNegative(w.DefaultFlag)
}

// Score sums visit points and the weight of every latched flag across
// consoleFlags and events, plus the collapse milestone.
func Score(v state.VisitorState, w Weights) int {
	total := nonNegative(w.Visit) * nonNegative(v.VisitCount)
	for name, on := range v.ConsoleFlags {
		if on {
			total += w.flag(name)
		}
	}
	for name, on := range v.Events {
		if on {
			total += w.flag(name)
		}
	}
	if v.Collapse.Permanent {
		total += nonNegative(w.Collapse)
	}
	return total
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// Rank is a named score band.
type Rank string

const (
	Drifter    Rank = "Drifter"
	Watcher    Rank = "Watcher"
	Survivor   Rank = "Survivor"
	Gatekeeper Rank = "Gatekeeper"
	Monster    Rank = "Monster"
)

// bands are disjoint and, read top down, exhaustive over [0, inf).
var bands = []struct {
	min  int
	rank Rank
}{
	{800, Monster},
	{500, Gatekeeper},
	{300, Survivor},
	{100, Watcher},
	{0, Drifter},
}

// RankOf returns the band containing score. Negative input is treated as 0.
func RankOf(score int) Rank {
	for _, b := range bands {
		if score >= b.min {
			return b.rank
		}
	}
	return Drifter
}
