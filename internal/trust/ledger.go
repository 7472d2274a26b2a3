// Package trust derives the visitor's discrete trust tier from the
// accumulated trust score. The tier is never stored independently of the
// score: every credit recomputes it.
package trust

import (
	"fmt"
	"strings"
)

// Tier is an ordered trust level. Higher tiers unlock a superset of content.
type Tier int

const (
	TierNone Tier = iota
	TierLow
	TierMedium
	TierHigh
)

var tierNames = [...]string{"none", "low", "medium", "high"}

// Tiers lists every tier in ascending order.
var Tiers = []Tier{TierNone, TierLow, TierMedium, TierHigh}

func (t Tier) String() string {
	if t < TierNone || t > TierHigh {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// Allows reports whether t satisfies a minimum tier requirement.
func (t Tier) Allows(min Tier) bool {
	return t >= min
}

// ParseTier maps a tier name to a Tier. The empty string is TierNone.
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TierNone, nil
	}
	for i, name := range tierNames {
		if name == s {
			return Tier(i), nil
		}
	}
	return TierNone, fmt.Errorf("unknown trust tier %q", s)
}

func (t Tier) MarshalText() ([]byte, error) {
	if t < TierNone || t > TierHigh {
		return nil, fmt.Errorf("invalid trust tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Thresholds are the ascending score boundaries at which each tier begins.
type Thresholds struct {
	Low    int `yaml:"low"`
	Medium int `yaml:"medium"`
	High   int `yaml:"high"`
}

// DefaultThresholds: none < 100 <= low < 300 <= medium < 600 <= high.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 100, Medium: 300, High: 600}
}

// Validate checks that thresholds are positive and strictly ascending.
func (th Thresholds) Validate() error {
	if th.Low <= 0 || th.Medium <= th.Low || th.High <= th.Medium {
		return fmt.Errorf("trust thresholds must be positive and ascending, got low=%d medium=%d high=%d",
			th.Low, th.Medium, th.High)
	}
	return nil
}

// TierOf maps a score onto its tier.
func (th Thresholds) TierOf(score int) Tier {
	switch {
	case score >= th.High:
		return TierHigh
	case score >= th.Medium:
		return TierMedium
	case score >= th.Low:
		return TierLow
	default:
		return TierNone
	}
}

// Record is the persisted trust slice of the visitor state.
type Record struct {
	Level Tier `json:"level"`
	Score int  `json:"score"`
}

// Credits are the trust points granted per interaction kind.
type Credits struct {
	Visit       int `yaml:"visit"`
	Message     int `yaml:"message"`
	ConsoleFlag int `yaml:"consoleFlag"`
	Event       int `yaml:"event"`
	Confession  int `yaml:"confession"`
}

func DefaultCredits() Credits {
	return Credits{Visit: 10, Message: 5, ConsoleFlag: 25, Event: 15, Confession: 20}
}

// Ledger applies credits against a Record.
type Ledger struct {
	th Thresholds
}

func NewLedger(th Thresholds) *Ledger {
	if th.Validate() != nil {
		th = DefaultThresholds()
	}
	return &Ledger{th: th}
}

func (l *Ledger) Thresholds() Thresholds { return l.th }

// TierOf returns the tier for score under the ledger's thresholds.
func (l *Ledger) TierOf(score int) Tier { return l.th.TierOf(score) }

// Credit adds points to r and recomputes its level. Non-positive credits are
// ignored so the score never decreases. Returns true when the tier changed.
func (l *Ledger) Credit(r *Record, points int) bool {
	if r == nil || points <= 0 {
		return false
	}
	before := r.Level
	r.Score += points
	r.Level = l.th.TierOf(r.Score)
	return r.Level != before
}

// Normalize repairs a loaded record: negative scores clamp to zero and the
// level is rederived from the score.
func (l *Ledger) Normalize(r *Record) {
	if r == nil {
		return
	}
	if r.Score < 0 {
		r.Score = 0
	}
	r.Level = l.th.TierOf(r.Score)
}
