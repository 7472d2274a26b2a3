package trigger

import (
	"time"

	"github.com/JHils/phile-gate-whispers-sub003/internal/trust"
)

// Trigger IDs. Response pools are keyed by the same strings.
const (
	Whisper      = "whisper"
	EcoRefresh   = "eco.refresh"
	EcoComment   = "eco.comment"
	ForgetRegret = "forget.regret"
	Pulse        = "pulse"
	MessageReply = "message.reply"
	EchoReplay   = "echo.replay"

	VisibilitySaw     = "visibility.saw"
	VisibilityAgain   = "visibility.again"
	VisibilityPersist = "visibility.persist"
)

// Event names latched on the visitor record by the forget flow.
const (
	EventForgotten   = "forgotten"
	EventRegretShown = "regretShown"
)

// Defaults is the built-in registry.
func Defaults() []Definition {
	return []Definition{
		{
			ID:          Whisper,
			Interval:    90 * time.Second,
			Probability: 0.3,
			Cooldown:    5 * time.Minute,
		},
		{
			ID:          EcoRefresh,
			Interval:    30 * time.Minute,
			Probability: 1,
		},
		{
			ID:          EcoComment,
			MinTier:     trust.TierLow,
			Interval:    45 * time.Minute,
			Probability: 0.5,
			Condition:   func(s Snapshot) bool { return s.ConditionsKnown },
		},
		{
			ID:          ForgetRegret,
			Interval:    2 * time.Minute,
			Probability: 0.5,
			Condition: func(s Snapshot) bool {
				return s.State != nil && s.State.Events.Has(EventForgotten) && !s.State.Events.Has(EventRegretShown)
			},
		},
		{
			ID:          Pulse,
			Interval:    6 * time.Second,
			Probability: 0.02,
			TierProbability: map[trust.Tier]float64{
				trust.TierLow:    0.04,
				trust.TierMedium: 0.06,
				trust.TierHigh:   0.1,
			},
		},
		{
			ID:          MessageReply,
			Probability: 0.7,
		},
		{
			ID:          EchoReplay,
			Probability: 0.25,
			Condition:   func(s Snapshot) bool { return s.State != nil && len(s.State.Echoes) > 0 },
		},
	}
}

// ApplyOverrides replaces the tunable fields of defs with the matching
// entries of overrides, keyed by ID. Conditions are never overridden.
// Overrides with unknown IDs are appended as unconditional triggers.
func ApplyOverrides(defs []Definition, overrides []Definition) []Definition {
	out := append([]Definition(nil), defs...)
	idx := make(map[string]int, len(out))
	for i, d := range out {
		idx[d.ID] = i
	}
	for _, o := range overrides {
		i, ok := idx[o.ID]
		if !ok {
			o.Condition = nil
			idx[o.ID] = len(out)
			out = append(out, o)
			continue
		}
		o.Condition = out[i].Condition
		out[i] = o
	}
	return out
}
