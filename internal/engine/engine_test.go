package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JHils/phile-gate-whispers-sub003/internal/config"
	"github.com/JHils/phile-gate-whispers-sub003/internal/eco"
	"github.com/JHils/phile-gate-whispers-sub003/internal/mood"
	"github.com/JHils/phile-gate-whispers-sub003/internal/rng"
	"github.com/JHils/phile-gate-whispers-sub003/internal/score"
	"github.com/JHils/phile-gate-whispers-sub003/internal/state"
	"github.com/JHils/phile-gate-whispers-sub003/internal/storage"
	"github.com/JHils/phile-gate-whispers-sub003/internal/trigger"
	"github.com/JHils/phile-gate-whispers-sub003/internal/trust"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	*Engine
	clock *fakeClock
	store *storage.Storage
}

func newFixture(t *testing.T, src rng.Source, mutate func(*Options)) fixture {
	t.Helper()
	clock := &fakeClock{t: t0}
	st := storage.New(storage.NewMemory(), zerolog.Nop())
	st.SetClock(clock.Now)
	opts := Options{Source: src, Clock: clock.Now, Logger: zerolog.Nop()}
	if mutate != nil {
		mutate(&opts)
	}
	e, err := New(st, opts)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return fixture{Engine: e, clock: clock, store: st}
}

func ids(ds []Delivery) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.TriggerID)
	}
	return out
}

func TestScoreAndRank_FreshVisitor(t *testing.T) {
	f := newFixture(t, rng.New(1), nil)
	f.Visit()

	s := f.CalculateScore(f.Snapshot())
	assert.Equal(t, 1, s)

	assert.True(t, f.LatchConsoleFlag("helpCalled"))
	assert.False(t, f.LatchConsoleFlag("helpCalled"))
	s = f.CalculateScore(f.Snapshot())
	assert.Equal(t, 11, s)
	assert.Equal(t, "Drifter", f.DetermineRank(s))

	st := f.Standing()
	assert.Equal(t, 11, st.Score)
	assert.Equal(t, score.Drifter, st.Rank)
	assert.Equal(t, 10+25, st.TrustScore)
}

func TestVisit_GapDecidesCount(t *testing.T) {
	f := newFixture(t, rng.New(1), nil)
	f.Visit()
	f.clock.Advance(10 * time.Minute)
	f.Visit()
	assert.Equal(t, 1, f.Snapshot().VisitCount)

	f.clock.Advance(31 * time.Minute)
	f.Visit()
	v := f.Snapshot()
	assert.Equal(t, 2, v.VisitCount)
	assert.True(t, v.LastVisit.Equal(f.clock.Now()))
	assert.Equal(t, 20, v.Trust.Score)
}

func TestTrust_MonotoneAndTierConsistent(t *testing.T) {
	tn := config.DefaultTuning()
	tn.Thresholds = trust.Thresholds{Low: 20, Medium: 40, High: 60}
	f := newFixture(t, rng.New(3), func(o *Options) { o.Tuning = &tn })

	prev := 0
	for i := 0; i < 30; i++ {
		switch i % 3 {
		case 0:
			f.Message("just words")
		case 1:
			f.TrackEvent("e" + string(rune('a'+i)))
		case 2:
			f.clock.Advance(time.Hour)
			f.Visit()
		}
		v := f.Snapshot()
		assert.GreaterOrEqual(t, v.Trust.Score, prev)
		assert.Equal(t, tn.Thresholds.TierOf(v.Trust.Score), v.Trust.Level)
		prev = v.Trust.Score
	}
	assert.Equal(t, trust.TierHigh, f.Standing().Tier)
}

func TestMessage_MoodAndEcho(t *testing.T) {
	f := newFixture(t, rng.NewSequence(0.99), nil)
	assert.Empty(t, f.Message("I feel so lonely tonight"))
	assert.Equal(t, mood.Sadness, f.CurrentMood())

	echoes := f.AllEchoes()
	require.Len(t, echoes, 1)
	assert.Equal(t, "I feel so lonely tonight", echoes[0].OriginalText)
	assert.Equal(t, mood.Sadness, echoes[0].EmotionalContext)

	assert.Nil(t, f.Message("   "), "blank text is ignored")
	assert.Len(t, f.AllEchoes(), 1)
}

func TestMessage_ReplyAndEchoReplay(t *testing.T) {
	f := newFixture(t, rng.NewSequence(0), nil)
	ds := f.Message("hello there")
	assert.Equal(t, []string{trigger.MessageReply, trigger.EchoReplay}, ids(ds))
	assert.Equal(t, "You once said: hello there", ds[1].Text)
	assert.Equal(t, ds[1].Text, ds[1].Plan.Text())

	v := f.Snapshot()
	assert.Equal(t, 1, v.Echoes[0].UseCount)
	assert.True(t, v.Events.Has(EventEchoHeard))
}

func TestConfess_EmotionPrecedence(t *testing.T) {
	f := newFixture(t, rng.New(1), nil)
	require.True(t, f.Confess(state.Confession{
		Text:             "I read your messages",
		EmotionalContext: mood.Fear,
		Sentiment:        mood.Joy,
	}))
	assert.Equal(t, mood.Fear, f.CurrentMood())

	v := f.Snapshot()
	assert.Equal(t, mood.Fear, v.Echoes[0].EmotionalContext)
	assert.True(t, v.Events.Has(EventConfessed))
	assert.Equal(t, 20+15, v.Trust.Score)

	require.True(t, f.Confess(state.Confession{Text: "sorry", Sentiment: mood.Hope}))
	assert.Equal(t, mood.Hope, f.CurrentMood())
	assert.False(t, f.Confess(state.Confession{}))
}

func TestCollapse_FreezesTrustAndSnapshotsRank(t *testing.T) {
	f := newFixture(t, rng.New(1), nil)
	f.Visit()
	require.True(t, f.Collapse("it is over"))
	assert.False(t, f.Collapse("again"))

	before := f.Snapshot()
	assert.True(t, before.Collapse.Permanent)
	assert.Equal(t, "it is over", before.Collapse.Message)
	assert.Equal(t, string(score.RankOf(f.CalculateScore(before))), before.Collapse.Rank)

	f.LatchConsoleFlag("whoisCalled")
	f.TrackEvent("late")
	after := f.Snapshot()
	assert.Equal(t, before.Trust, after.Trust)
	assert.True(t, after.ConsoleFlags.Has("whoisCalled"), "latches still record")

	st := f.Standing()
	assert.True(t, st.Collapsed)
	assert.Equal(t, before.Collapse.Rank, st.CollapseRank)
}

func TestForget_KeepsProvenanceAndRegretFires(t *testing.T) {
	f := newFixture(t, rng.NewSequence(0), nil)
	f.Visit()
	f.clock.Advance(time.Hour)
	f.Visit()
	f.LatchConsoleFlag("helpCalled")
	f.AddWhisper("keep me?")
	before := f.Snapshot()

	f.clock.Advance(time.Hour)
	require.NoError(t, f.Forget())
	after := f.Snapshot()

	assert.Equal(t, before.VisitorID, after.VisitorID)
	assert.Equal(t, 2, after.VisitCount)
	assert.True(t, after.FirstVisit.Equal(before.FirstVisit))
	assert.Zero(t, after.Trust.Score)
	assert.False(t, after.ConsoleFlags.Has("helpCalled"))
	assert.Empty(t, after.Whispers)
	assert.Equal(t, []string{trigger.EventForgotten}, after.Events.Names())

	ds := f.Tick()
	assert.Contains(t, ids(ds), trigger.ForgetRegret)
	assert.True(t, f.Snapshot().Events.Has(trigger.EventRegretShown))

	f.clock.Advance(time.Hour)
	assert.NotContains(t, ids(f.Tick()), trigger.ForgetRegret)
}

func TestWhispers_TickEnqueuesAndCrossSitePops(t *testing.T) {
	f := newFixture(t, rng.NewSequence(0), nil)
	_, ok := f.CrossSiteWhisper()
	assert.False(t, ok)

	ds := f.Tick()
	require.Contains(t, ids(ds), trigger.Whisper)

	text, ok := f.CrossSiteWhisper()
	require.True(t, ok)
	assert.Equal(t, "The gate remembers you.", text)

	assert.False(t, f.AddWhisper(""))
	for i := 0; i < 15; i++ {
		assert.True(t, f.AddWhisper("w"))
	}
	assert.Len(t, f.Snapshot().Whispers, state.WhisperCapacity)
}

func TestVisibility_ThirdRegain(t *testing.T) {
	f := newFixture(t, rng.NewSequence(0), nil)
	var got []Delivery
	for i := 0; i < 4; i++ {
		f.VisibilityChanged(false)
		f.clock.Advance(6 * time.Second)
		got = append(got, f.VisibilityChanged(true)...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, trigger.VisibilitySaw, got[0].TriggerID)
	assert.Equal(t, "I saw what you were looking at.", got[0].Text)
}

func TestDrift_AfterWindow(t *testing.T) {
	f := newFixture(t, rng.NewSequence(0.5), nil)
	f.Tick()
	assert.Equal(t, mood.Neutral, f.CurrentMood())

	f.clock.Advance(31 * time.Minute)
	f.Tick()
	assert.Equal(t, mood.All[7], f.CurrentMood())
	assert.Len(t, f.Snapshot().Mood.History, 1)
}

func TestEco_RefreshThenComment(t *testing.T) {
	tn := config.DefaultTuning()
	tn.Thresholds = trust.Thresholds{Low: 1, Medium: 2, High: 3}
	f := newFixture(t, rng.NewSequence(0), func(o *Options) {
		o.Tuning = &tn
		o.Fetcher = eco.Static{Description: "foggy", TemperatureC: 9}
	})
	f.Visit()

	assert.NotContains(t, ids(f.Tick()), trigger.EcoComment, "no conditions cached yet")
	assert.NotNil(t, f.store.LoadEco().Conditions)

	f.clock.Advance(45 * time.Minute)
	ds := f.Tick()
	var comment *Delivery
	for i := range ds {
		if ds[i].TriggerID == trigger.EcoComment {
			comment = &ds[i]
		}
	}
	require.NotNil(t, comment)
	assert.Equal(t, "It's foggy where you are.", comment.Text)
	assert.Equal(t, 1, f.store.LoadEco().Comments)
}

func TestEco_FetchFailureIsQuiet(t *testing.T) {
	f := newFixture(t, rng.NewSequence(0), nil)
	assert.False(t, f.RefreshConditions(context.Background()))
	assert.Nil(t, f.store.LoadEco().Conditions)
}

func TestCorruptStorageStartsFresh(t *testing.T) {
	b := storage.NewMemory()
	require.NoError(t, b.Set(context.Background(), storage.KeyVisitorState, `{"trust":`))
	e, err := New(storage.New(b, zerolog.Nop()), Options{Logger: zerolog.Nop(), Source: rng.New(1)})
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, mood.Neutral, e.CurrentMood())
	assert.Zero(t, e.Standing().Score)
}

type flakyBackend struct {
	*storage.Memory
	failReads int
}

func (f *flakyBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failReads > 0 {
		f.failReads--
		return "", false, errors.New("i/o timeout")
	}
	return f.Memory.Get(ctx, key)
}

func TestReadFailureNeverOverwritesRecord(t *testing.T) {
	fb := &flakyBackend{Memory: storage.NewMemory()}
	clock := &fakeClock{t: t0}
	st := storage.New(fb, zerolog.Nop())
	st.SetClock(clock.Now)
	e, err := New(st, Options{Source: rng.NewSequence(0.99), Clock: clock.Now, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer e.Close()

	e.Visit()
	e.LatchConsoleFlag("helpCalled")
	before := e.Snapshot()
	require.Equal(t, 35, before.Trust.Score)

	clock.Advance(time.Hour)
	fb.failReads = 1
	e.Visit()
	fb.failReads = 1
	e.Message("I feel so lonely")

	after := e.Snapshot()
	assert.Equal(t, before.VisitorID, after.VisitorID)
	assert.Equal(t, 1, after.VisitCount)
	assert.Equal(t, 35, after.Trust.Score)
	assert.True(t, after.ConsoleFlags.Has("helpCalled"))
	assert.Empty(t, after.Echoes)

	fb.failReads = 1
	assert.ErrorIs(t, e.Forget(), storage.ErrUnavailable)
	assert.Equal(t, 1, e.Snapshot().VisitCount)
}

func TestNew_RejectsBadTuning(t *testing.T) {
	tn := config.DefaultTuning()
	tn.Thresholds = trust.Thresholds{Low: 10, Medium: 5, High: 1}
	_, err := New(storage.New(storage.NewMemory(), zerolog.Nop()), Options{Tuning: &tn})
	assert.Error(t, err)
}

func TestApplyTuning(t *testing.T) {
	f := newFixture(t, rng.New(1), nil)
	tn := config.DefaultTuning()
	tn.Weights.Visit = 7
	require.NoError(t, f.ApplyTuning(tn))
	f.Visit()
	assert.Equal(t, 7, f.Standing().Score)
}

func TestApplyTuning_VisibilityDebounce(t *testing.T) {
	f := newFixture(t, rng.NewSequence(0), nil)
	tn := config.DefaultTuning()
	tn.VisibilityDebounce = time.Minute
	require.NoError(t, f.ApplyTuning(tn))

	regain := func(gap time.Duration) []Delivery {
		f.VisibilityChanged(false)
		f.clock.Advance(gap)
		return f.VisibilityChanged(true)
	}
	for i := 0; i < 3; i++ {
		assert.Empty(t, regain(10*time.Second))
	}
	assert.Equal(t, 1, f.vis.Count(), "regains inside the new window are ignored")

	require.NoError(t, f.ApplyTuning(tn))
	assert.Equal(t, 1, f.vis.Count(), "same window keeps the session count")

	assert.Empty(t, regain(61*time.Second))
	got := regain(61 * time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, trigger.VisibilitySaw, got[0].TriggerID)
}

func TestStartClose_DeliversAndStops(t *testing.T) {
	f := newFixture(t, rng.NewSequence(0), func(o *Options) { o.TickEvery = time.Millisecond })

	var mu sync.Mutex
	var got []Delivery
	f.SetOnDelivery(func(d Delivery) {
		mu.Lock()
		got = append(got, d)
		mu.Unlock()
	})
	require.NoError(t, f.Start(context.Background()))
	assert.Error(t, f.Start(context.Background()), "already running")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, f.Close())
}
