// Package rng isolates randomness behind a seedable source so that gated
// behavior (trigger firing, pool picks, typing jitter) is reproducible in tests.
package rng

import (
	"math/rand"
	"time"
)

// Source is the only randomness the engine consumes.
type Source interface {
	// Float64 returns a uniform sample in [0,1).
	Float64() float64
	// Intn returns a uniform sample in [0,n). n must be > 0.
	Intn(n int) int
}

type seeded struct {
	r *rand.Rand
}

// New returns a Source seeded with seed. A zero seed picks one from the clock.
func New(seed int64) Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &seeded{r: rand.New(rand.NewSource(seed))}
}

func (s *seeded) Float64() float64 { return s.r.Float64() }
func (s *seeded) Intn(n int) int   { return s.r.Intn(n) }

// Sequence replays fixed samples in order, wrapping around. Intn scales the
// current sample into [0,n).
type Sequence struct {
	values []float64
	pos    int
}

// NewSequence returns a Sequence over values. An empty Sequence always yields 0.
func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

func (s *Sequence) next() float64 {
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.pos%len(s.values)]
	s.pos++
	if v < 0 {
		return 0
	}
	if v >= 1 {
		return 0.999999
	}
	return v
}

func (s *Sequence) Float64() float64 { return s.next() }

func (s *Sequence) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.next() * float64(n))
}

// Draws reports how many samples were consumed.
func (s *Sequence) Draws() int { return s.pos }
