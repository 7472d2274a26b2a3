package mood

import (
	"time"

	"github.com/JHils/phile-gate-whispers-sub003/internal/rng"
)

const (
	// DefaultDriftAfter is how long a mood holds before a timed drift is eligible.
	DefaultDriftAfter = 30 * time.Minute
	// HistoryLimit caps the stored transitions.
	HistoryLimit = 20
)

// Entry is one recorded transition.
type Entry struct {
	Emotion Category  `json:"emotion"`
	At      time.Time `json:"at"`
}

// State is the persisted mood slice of the visitor record. Only Engine
// writes Current.
type State struct {
	Current      Category  `json:"current"`
	Trend        Trend     `json:"trend"`
	LastChangeAt time.Time `json:"lastChangeAt"`
	History      []Entry   `json:"history"`
}

// NewState returns the resting state at now.
func NewState(now time.Time) State {
	return State{
		Current:      Neutral,
		Trend:        Steady,
		LastChangeAt: now,
		History:      []Entry{},
	}
}

// Mood returns the current category, Neutral when unset.
func (s State) Mood() Category {
	return Normalize(s.Current)
}

// Engine applies transitions to a State.
type Engine struct {
	driftAfter time.Duration
	lexicon    *Lexicon
}

func NewEngine(driftAfter time.Duration, lex *Lexicon) *Engine {
	if driftAfter <= 0 {
		driftAfter = DefaultDriftAfter
	}
	if lex == nil {
		lex = NewLexicon(DefaultLexicon())
	}
	return &Engine{driftAfter: driftAfter, lexicon: lex}
}

// DriftDue reports whether the timed drift is eligible at now.
func (e *Engine) DriftDue(s State, now time.Time) bool {
	return now.Sub(s.LastChangeAt) > e.driftAfter
}

// Drift moves to a uniformly sampled category once the current mood has held
// longer than the drift window. Returns true when a transition was recorded.
func (e *Engine) Drift(s *State, now time.Time, src rng.Source) bool {
	if s == nil || !e.DriftDue(*s, now) {
		return false
	}
	next := All[src.Intn(len(All))]
	e.record(s, next, now)
	return true
}

// Force transitions immediately, bypassing the drift timer. Unknown
// categories are ignored.
func (e *Engine) Force(s *State, c Category, now time.Time) bool {
	if s == nil || !c.Valid() {
		return false
	}
	e.record(s, c, now)
	return true
}

// React forces a transition to the emotion the lexicon finds in text.
func (e *Engine) React(s *State, text string, now time.Time) (Category, bool) {
	c, ok := e.lexicon.Detect(text)
	if !ok {
		return "", false
	}
	return c, e.Force(s, c, now)
}

// Detect exposes the lexicon match without mutating state.
func (e *Engine) Detect(text string) (Category, bool) {
	return e.lexicon.Detect(text)
}

// Sanitize repairs a loaded state: unknown categories become Neutral, the
// history is trimmed and the trend is rederived.
func (e *Engine) Sanitize(s *State) {
	if s == nil {
		return
	}
	s.Current = Normalize(s.Current)
	if s.History == nil {
		s.History = []Entry{}
	}
	for i := range s.History {
		s.History[i].Emotion = Normalize(s.History[i].Emotion)
	}
	if len(s.History) > HistoryLimit {
		s.History = append([]Entry(nil), s.History[len(s.History)-HistoryLimit:]...)
	}
	s.Trend = TrendOf(s.History)
}

func (e *Engine) record(s *State, c Category, now time.Time) {
	s.Current = c
	s.LastChangeAt = now
	s.History = append(s.History, Entry{Emotion: c, At: now})
	if len(s.History) > HistoryLimit {
		s.History = append([]Entry(nil), s.History[len(s.History)-HistoryLimit:]...)
	}
	s.Trend = TrendOf(s.History)
}

// TrendOf compares the valence of the latest history entries.
func TrendOf(history []Entry) Trend {
	n := len(history)
	if n < 2 {
		return Steady
	}
	last := history[n-1].Emotion.Valence() - history[n-2].Emotion.Valence()
	if n >= 3 {
		prev := history[n-2].Emotion.Valence() - history[n-3].Emotion.Valence()
		if (prev > 0 && last < 0) || (prev < 0 && last > 0) {
			return Fluctuating
		}
	}
	switch {
	case last > 0:
		return Improving
	case last < 0:
		return Deteriorating
	default:
		return Steady
	}
}
