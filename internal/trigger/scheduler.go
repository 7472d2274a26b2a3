// Package trigger evaluates randomized, time- and trust-gated triggers.
// A trigger that fires produces an Event; deciding what to say and
// mutating the visitor record is left to the caller.
package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JHils/phile-gate-whispers-sub003/internal/mood"
	"github.com/JHils/phile-gate-whispers-sub003/internal/rng"
	"github.com/JHils/phile-gate-whispers-sub003/internal/state"
	"github.com/JHils/phile-gate-whispers-sub003/internal/trust"
)

// Snapshot is the read-only view a trigger is evaluated against.
type Snapshot struct {
	Now   time.Time
	Tier  trust.Tier
	Mood  mood.Category
	State *state.VisitorState
	// ConditionsKnown is true when fresh eco conditions are cached.
	ConditionsKnown bool
}

// Condition is an extra predicate over the snapshot. Nil always passes.
type Condition func(Snapshot) bool

// Definition describes one trigger. Interval 0 means the trigger is never
// evaluated by Tick and only fires through Check.
type Definition struct {
	ID              string                 `yaml:"id"`
	MinTier         trust.Tier             `yaml:"minTier"`
	Interval        time.Duration          `yaml:"interval"`
	Probability     float64                `yaml:"probability"`
	TierProbability map[trust.Tier]float64 `yaml:"tierProbability,omitempty"`
	Cooldown        time.Duration          `yaml:"cooldown"`
	Condition       Condition              `yaml:"-"`
}

// ProbabilityAt returns the firing probability for tier.
func (d Definition) ProbabilityAt(t trust.Tier) float64 {
	if p, ok := d.TierProbability[t]; ok {
		return p
	}
	return d.Probability
}

// Event is a fired trigger.
type Event struct {
	TriggerID string
	FiredAt   time.Time
	// Count is the number of times this trigger has fired, this one included.
	// For visibility events it is the regain count.
	Count int
}

type entry struct {
	def       Definition
	lastCheck time.Time
	lastFired time.Time
	fired     int
}

// Scheduler holds the registry and per-trigger timing. Timing is session
// state and is not persisted.
type Scheduler struct {
	mu    sync.Mutex
	src   rng.Source
	log   zerolog.Logger
	order []*entry
	byID  map[string]*entry
}

func NewScheduler(src rng.Source, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		src:  src,
		log:  log.With().Str("component", "trigger").Logger(),
		byID: make(map[string]*entry),
	}
}

// Register adds a definition. IDs must be unique.
func (s *Scheduler) Register(defs ...Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("trigger: empty id")
		}
		if _, dup := s.byID[d.ID]; dup {
			return fmt.Errorf("trigger %q already registered", d.ID)
		}
		e := &entry{def: d}
		s.byID[d.ID] = e
		s.order = append(s.order, e)
	}
	return nil
}

// Definitions returns the registry in registration order.
func (s *Scheduler) Definitions() []Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Definition, 0, len(s.order))
	for _, e := range s.order {
		out = append(out, e.def)
	}
	return out
}

// Tick evaluates every interval trigger whose interval has elapsed since it
// was last checked, in registration order.
func (s *Scheduler) Tick(snap Snapshot) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fired []Event
	for _, e := range s.order {
		if e.def.Interval <= 0 {
			continue
		}
		if !e.lastCheck.IsZero() && snap.Now.Sub(e.lastCheck) < e.def.Interval {
			continue
		}
		e.lastCheck = snap.Now
		if ev, ok := s.evaluate(e, snap); ok {
			fired = append(fired, ev)
		}
	}
	return fired
}

// Check evaluates one trigger on demand, ignoring its interval.
func (s *Scheduler) Check(id string, snap Snapshot) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return Event{}, false
	}
	return s.evaluate(e, snap)
}

// evaluate runs the gates in order: tier, cooldown, condition, then one
// uniform sample. No sample is drawn when an earlier gate rejects.
func (s *Scheduler) evaluate(e *entry, snap Snapshot) (Event, bool) {
	d := e.def
	if !snap.Tier.Allows(d.MinTier) {
		return Event{}, false
	}
	if d.Cooldown > 0 && !e.lastFired.IsZero() && snap.Now.Sub(e.lastFired) < d.Cooldown {
		return Event{}, false
	}
	if d.Condition != nil && !d.Condition(snap) {
		return Event{}, false
	}
	if s.src.Float64() >= d.ProbabilityAt(snap.Tier) {
		return Event{}, false
	}
	e.lastFired = snap.Now
	e.fired++
	s.log.Debug().Str("trigger", d.ID).Int("count", e.fired).Msg("fired")
	return Event{TriggerID: d.ID, FiredAt: snap.Now, Count: e.fired}, true
}

// Run calls step on every tick of a ticker until ctx is done. step is
// expected to build a snapshot, call Tick and act on the events in one
// critical section.
func (s *Scheduler) Run(ctx context.Context, every time.Duration, step func(now time.Time)) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			step(now)
		}
	}
}
