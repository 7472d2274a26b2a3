// Package typing turns a response into a paced delivery plan. It knows
// nothing about what the text means.
package typing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JHils/phile-gate-whispers-sub003/internal/rng"
)

// Speed is the pacing class of a delivery.
type Speed string

const (
	Slow   Speed = "slow"
	Medium Speed = "medium"
	Fast   Speed = "fast"
)

const (
	longPauseChance = 0.10
	longPauseMin    = 300 * time.Millisecond
	longPauseMax    = 1000 * time.Millisecond
	jitterMax       = 100 * time.Millisecond
)

type profile struct {
	base  time.Duration
	width int // runes per chunk
}

var profiles = map[Speed]profile{
	Slow:   {base: 90 * time.Millisecond, width: 1},
	Medium: {base: 50 * time.Millisecond, width: 2},
	Fast:   {base: 25 * time.Millisecond, width: 3},
}

// ParseSpeed maps a name to a Speed.
func ParseSpeed(s string) (Speed, error) {
	sp := Speed(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := profiles[sp]; !ok {
		return "", fmt.Errorf("unknown typing speed %q", s)
	}
	return sp, nil
}

// Chunk is one piece of text shown after Delay.
type Chunk struct {
	Text  string
	Delay time.Duration
}

// Plan is a complete delivery schedule.
type Plan struct {
	Speed  Speed
	Chunks []Chunk
	Total  time.Duration
}

// Text reassembles the planned message.
func (p Plan) Text() string {
	var b strings.Builder
	for _, c := range p.Chunks {
		b.WriteString(c.Text)
	}
	return b.String()
}

// NewPlan paces message at speed. Unknown speeds fall back to Medium. Each
// call draws fresh samples, so planning the same message twice yields two
// independent schedules.
func NewPlan(message string, speed Speed, src rng.Source) Plan {
	prof, ok := profiles[speed]
	if !ok {
		speed, prof = Medium, profiles[Medium]
	}
	runes := []rune(message)
	plan := Plan{Speed: speed, Chunks: make([]Chunk, 0, len(runes)/prof.width+1)}
	for i := 0; i < len(runes); i += prof.width {
		end := i + prof.width
		if end > len(runes) {
			end = len(runes)
		}
		d := prof.base + extraDelay(src)
		plan.Chunks = append(plan.Chunks, Chunk{Text: string(runes[i:end]), Delay: d})
		plan.Total += d
	}
	return plan
}

func extraDelay(src rng.Source) time.Duration {
	if src.Float64() < longPauseChance {
		span := int64(longPauseMax - longPauseMin)
		return longPauseMin + time.Duration(src.Float64()*float64(span))
	}
	return time.Duration(src.Float64() * float64(jitterMax))
}

// Play emits each chunk after its delay. It stops early when ctx is done.
func Play(ctx context.Context, p Plan, emit func(string)) error {
	for _, c := range p.Chunks {
		t := time.NewTimer(c.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		emit(c.Text)
	}
	return nil
}
