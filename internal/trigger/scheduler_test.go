package trigger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JHils/phile-gate-whispers-sub003/internal/mood"
	"github.com/JHils/phile-gate-whispers-sub003/internal/rng"
	"github.com/JHils/phile-gate-whispers-sub003/internal/state"
	"github.com/JHils/phile-gate-whispers-sub003/internal/trust"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, src rng.Source, defs ...Definition) *Scheduler {
	t.Helper()
	s := NewScheduler(src, zerolog.Nop())
	require.NoError(t, s.Register(defs...))
	return s
}

func snapAt(at time.Time, tier trust.Tier) Snapshot {
	v := state.New(t0)
	return Snapshot{Now: at, Tier: tier, Mood: mood.Neutral, State: &v}
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	s := NewScheduler(rng.New(1), zerolog.Nop())
	require.NoError(t, s.Register(Definition{ID: "a"}))
	assert.Error(t, s.Register(Definition{ID: "a"}))
	assert.Error(t, s.Register(Definition{}))
}

func TestTick_ProbabilityZeroNeverFires(t *testing.T) {
	s := newTestScheduler(t, rng.New(5), Definition{ID: "never", Interval: time.Second, Probability: 0})
	for i := 0; i < 10000; i++ {
		assert.Empty(t, s.Tick(snapAt(t0.Add(time.Duration(i)*time.Second), trust.TierHigh)))
	}
}

func TestTick_ProbabilityOneAlwaysFires(t *testing.T) {
	s := newTestScheduler(t, rng.New(5), Definition{ID: "always", Interval: time.Second, Probability: 1})
	for i := 0; i < 1000; i++ {
		evs := s.Tick(snapAt(t0.Add(time.Duration(i)*time.Second), trust.TierNone))
		require.Len(t, evs, 1)
		assert.Equal(t, i+1, evs[0].Count)
	}
}

func TestTick_RespectsInterval(t *testing.T) {
	s := newTestScheduler(t, rng.New(5), Definition{ID: "x", Interval: time.Minute, Probability: 1})
	assert.Len(t, s.Tick(snapAt(t0, trust.TierNone)), 1)
	assert.Empty(t, s.Tick(snapAt(t0.Add(30*time.Second), trust.TierNone)))
	assert.Len(t, s.Tick(snapAt(t0.Add(time.Minute), trust.TierNone)), 1)
}

func TestTick_GateOrderDrawsNoSampleWhenGated(t *testing.T) {
	seq := rng.NewSequence(0)
	s := newTestScheduler(t, seq,
		Definition{ID: "tiered", Interval: time.Second, Probability: 1, MinTier: trust.TierHigh},
		Definition{ID: "cond", Interval: time.Second, Probability: 1, Condition: func(Snapshot) bool { return false }},
	)
	assert.Empty(t, s.Tick(snapAt(t0, trust.TierMedium)))
	assert.Zero(t, seq.Draws())
}

func TestTick_Cooldown(t *testing.T) {
	s := newTestScheduler(t, rng.New(5), Definition{ID: "w", Interval: time.Second, Probability: 1, Cooldown: 5 * time.Minute})
	assert.Len(t, s.Tick(snapAt(t0, trust.TierNone)), 1)
	for i := 1; i < 300; i += 7 {
		assert.Empty(t, s.Tick(snapAt(t0.Add(time.Duration(i)*time.Second), trust.TierNone)))
	}
	assert.Len(t, s.Tick(snapAt(t0.Add(5*time.Minute), trust.TierNone)), 1)
}

func TestTick_RegistrationOrderAndEventDrivenSkipped(t *testing.T) {
	s := newTestScheduler(t, rng.New(5),
		Definition{ID: "b", Interval: time.Second, Probability: 1},
		Definition{ID: "ondemand", Probability: 1},
		Definition{ID: "a", Interval: time.Second, Probability: 1},
	)
	evs := s.Tick(snapAt(t0, trust.TierNone))
	require.Len(t, evs, 2)
	assert.Equal(t, "b", evs[0].TriggerID)
	assert.Equal(t, "a", evs[1].TriggerID)

	ev, ok := s.Check("ondemand", snapAt(t0, trust.TierNone))
	assert.True(t, ok)
	assert.Equal(t, "ondemand", ev.TriggerID)

	_, ok = s.Check("missing", snapAt(t0, trust.TierNone))
	assert.False(t, ok)
}

func TestTick_TierProbability(t *testing.T) {
	def := Definition{
		ID: "p", Interval: time.Second, Probability: 0,
		TierProbability: map[trust.Tier]float64{trust.TierHigh: 1},
	}
	s := newTestScheduler(t, rng.New(5), def)
	assert.Empty(t, s.Tick(snapAt(t0, trust.TierLow)))
	assert.Len(t, s.Tick(snapAt(t0.Add(time.Second), trust.TierHigh)), 1)
}

func TestTick_FiringRateTracksProbability(t *testing.T) {
	s := newTestScheduler(t, rng.New(11), Definition{ID: "p", Interval: time.Second, Probability: 0.25})
	fired := 0
	const n = 20000
	for i := 0; i < n; i++ {
		fired += len(s.Tick(snapAt(t0.Add(time.Duration(i)*time.Second), trust.TierNone)))
	}
	assert.InDelta(t, 0.25, float64(fired)/n, 0.02)
}

func TestDefaults_ForgetRegretNeedsForget(t *testing.T) {
	s := newTestScheduler(t, rng.NewSequence(0), Defaults()...)
	snap := snapAt(t0, trust.TierNone)
	_, ok := s.Check(ForgetRegret, snap)
	assert.False(t, ok)

	snap.State.Events.Latch(EventForgotten)
	_, ok = s.Check(ForgetRegret, snap)
	assert.True(t, ok)

	snap.State.Events.Latch(EventRegretShown)
	_, ok = s.Check(ForgetRegret, snap.withNow(t0.Add(time.Hour)))
	assert.False(t, ok)
}

func (s Snapshot) withNow(at time.Time) Snapshot {
	s.Now = at
	return s
}

func TestApplyOverrides(t *testing.T) {
	out := ApplyOverrides(Defaults(), []Definition{
		{ID: EchoReplay, Probability: 0.9},
		{ID: "custom", Interval: time.Minute, Probability: 1},
	})
	byID := map[string]Definition{}
	for _, d := range out {
		byID[d.ID] = d
	}
	assert.Equal(t, 0.9, byID[EchoReplay].Probability)
	assert.NotNil(t, byID[EchoReplay].Condition, "condition survives override")
	assert.Contains(t, byID, "custom")
	assert.Len(t, out, len(Defaults())+1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(rng.New(1), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	var steps atomic.Int32
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond, func(time.Time) { steps.Add(1) })
		close(done)
	}()
	require.Eventually(t, func() bool { return steps.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done
}
