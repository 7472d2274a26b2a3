// Package state defines the durable visitor record shared by every engine
// component.
package state

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JHils/phile-gate-whispers-sub003/internal/mood"
	"github.com/JHils/phile-gate-whispers-sub003/internal/trust"
)

const (
	SchemaVersion   = 1
	WhisperCapacity = 10
	EchoCapacity    = 50
	MaxEchoStage    = 3
)

// Latches is a set of one-way boolean flags. Entries only ever go from
// absent to true.
type Latches map[string]bool

// Latch sets name. Returns true only on the false->true transition.
func (l *Latches) Latch(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if *l == nil {
		*l = make(Latches)
	}
	if (*l)[name] {
		return false
	}
	(*l)[name] = true
	return true
}

// Has reports whether name is latched.
func (l Latches) Has(name string) bool { return l[name] }

// Names returns the latched names in sorted order.
func (l Latches) Names() []string {
	out := make([]string, 0, len(l))
	for k, v := range l {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// UnmarshalJSON drops false entries so a stored false never reads as a latch.
func (l *Latches) UnmarshalJSON(b []byte) error {
	var raw map[string]bool
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Latches, len(raw))
	for k, v := range raw {
		if v {
			out[k] = true
		}
	}
	*l = out
	return nil
}

// Collapse is the terminal narrative flag.
type Collapse struct {
	Permanent bool   `json:"permanent"`
	Message   string `json:"message,omitempty"`
	Rank      string `json:"rank,omitempty"`
}

// Echo is a stored visitor utterance that may be replayed later.
type Echo struct {
	ID               string        `json:"id"`
	OriginalText     string        `json:"originalText"`
	Timestamp        time.Time     `json:"timestamp"`
	RefractedText    string        `json:"refractedText,omitempty"`
	EmotionalContext mood.Category `json:"emotionalContext,omitempty"`
	DecayStage       int           `json:"decayStage"`
	UseCount         int           `json:"useCount"`
}

// Confession is a visitor disclosure. Its emotion prefers EmotionalContext
// and only falls back to Sentiment when no context was captured.
type Confession struct {
	Text             string        `json:"text"`
	EmotionalContext mood.Category `json:"emotionalContext,omitempty"`
	Sentiment        mood.Category `json:"sentiment,omitempty"`
}

func (c Confession) Emotion() mood.Category {
	if c.EmotionalContext.Valid() {
		return c.EmotionalContext
	}
	if c.Sentiment.Valid() {
		return c.Sentiment
	}
	return mood.Neutral
}

// VisitorState is the single durable record per visitor.
type VisitorState struct {
	Version      int          `json:"version"`
	VisitorID    string       `json:"visitorId"`
	VisitCount   int          `json:"visitCount"`
	FirstVisit   time.Time    `json:"firstVisit"`
	LastVisit    time.Time    `json:"lastVisit"`
	Trust        trust.Record `json:"trust"`
	Mood         mood.State   `json:"mood"`
	ConsoleFlags Latches      `json:"consoleFlags"`
	Collapse     Collapse     `json:"collapse"`
	Events       Latches      `json:"events"`
	Echoes       []Echo       `json:"echoes"`
	Whispers     []string     `json:"whispers"`
}

// New returns the default record for a visitor first seen at now.
func New(now time.Time) VisitorState {
	now = now.UTC()
	return VisitorState{
		Version:      SchemaVersion,
		VisitorID:    uuid.NewString(),
		FirstVisit:   now,
		LastVisit:    now,
		Trust:        trust.Record{Level: trust.TierNone},
		Mood:         mood.NewState(now),
		ConsoleFlags: Latches{},
		Events:       Latches{},
		Echoes:       []Echo{},
		Whispers:     []string{},
	}
}

// Normalize fills nil collections and enforces capacities after a load.
func (v *VisitorState) Normalize() {
	if v.Version == 0 {
		v.Version = SchemaVersion
	}
	if v.VisitorID == "" {
		v.VisitorID = uuid.NewString()
	}
	if v.VisitCount < 0 {
		v.VisitCount = 0
	}
	if v.ConsoleFlags == nil {
		v.ConsoleFlags = Latches{}
	}
	if v.Events == nil {
		v.Events = Latches{}
	}
	if v.Echoes == nil {
		v.Echoes = []Echo{}
	}
	if v.Whispers == nil {
		v.Whispers = []string{}
	}
	if v.Mood.History == nil {
		v.Mood.History = []mood.Entry{}
	}
	if n := len(v.Whispers); n > WhisperCapacity {
		v.Whispers = append([]string(nil), v.Whispers[n-WhisperCapacity:]...)
	}
	if n := len(v.Echoes); n > EchoCapacity {
		v.Echoes = append([]Echo(nil), v.Echoes[n-EchoCapacity:]...)
	}
}

// Clone returns a deep copy.
func (v VisitorState) Clone() VisitorState {
	out := v
	out.ConsoleFlags = cloneLatches(v.ConsoleFlags)
	out.Events = cloneLatches(v.Events)
	out.Echoes = append([]Echo(nil), v.Echoes...)
	out.Whispers = append([]string(nil), v.Whispers...)
	out.Mood.History = append([]mood.Entry(nil), v.Mood.History...)
	return out
}

func cloneLatches(l Latches) Latches {
	out := make(Latches, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}
