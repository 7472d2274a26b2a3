// Package engine is the presentation boundary. Every call runs one
// load-modify-save cycle on the visitor record under a single lock, so API
// calls and timer callbacks never interleave.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JHils/phile-gate-whispers-sub003/internal/config"
	"github.com/JHils/phile-gate-whispers-sub003/internal/eco"
	"github.com/JHils/phile-gate-whispers-sub003/internal/mood"
	"github.com/JHils/phile-gate-whispers-sub003/internal/response"
	"github.com/JHils/phile-gate-whispers-sub003/internal/rng"
	"github.com/JHils/phile-gate-whispers-sub003/internal/score"
	"github.com/JHils/phile-gate-whispers-sub003/internal/state"
	"github.com/JHils/phile-gate-whispers-sub003/internal/storage"
	"github.com/JHils/phile-gate-whispers-sub003/internal/trigger"
	"github.com/JHils/phile-gate-whispers-sub003/internal/trust"
	"github.com/JHils/phile-gate-whispers-sub003/internal/typing"
	"github.com/JHils/phile-gate-whispers-sub003/pkg/jobmgr"
)

// Event and flag names the engine latches itself.
const (
	EventConfessed = "confessed"
	EventEchoHeard = "echoHeard"
	EventCollapsed = "collapsed"
)

const ecoFetchTimeout = 15 * time.Second

type Options struct {
	Tuning    *config.Tuning // nil uses config.DefaultTuning
	Source    rng.Source     // nil seeds from the clock
	Fetcher   eco.Fetcher    // nil disables eco triggers
	Clock     func() time.Time
	Logger    zerolog.Logger
	TickEvery time.Duration
}

// Delivery is a line the character says, with its typing schedule.
type Delivery struct {
	TriggerID string
	FiredAt   time.Time
	Text      string
	Plan      typing.Plan
}

// Standing summarizes the visitor for display.
type Standing struct {
	Visits       int
	Score        int
	Rank         score.Rank
	Tier         trust.Tier
	TrustScore   int
	Mood         mood.Category
	Trend        mood.Trend
	Collapsed    bool
	CollapseRank string
}

type Engine struct {
	mu sync.Mutex

	store   *storage.Storage
	tuning  config.Tuning
	ledger  *trust.Ledger
	moods   *mood.Engine
	sel     *response.Selector
	sched   *trigger.Scheduler
	vis     *trigger.VisibilityTracker
	src     rng.Source
	fetcher eco.Fetcher
	now     func() time.Time
	log     zerolog.Logger

	// unreadable is set when the last load could not reach the backend.
	// Saves are skipped until a load succeeds.
	unreadable bool

	jobs       *jobmgr.Manager
	tickEvery  time.Duration
	onDelivery func(Delivery)
}

func New(store *storage.Storage, opts Options) (*Engine, error) {
	tn := config.DefaultTuning()
	if opts.Tuning != nil {
		tn = *opts.Tuning
	}
	if err := tn.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if opts.Source == nil {
		opts.Source = rng.New(0)
	}
	if opts.Fetcher == nil {
		opts.Fetcher = eco.Disabled{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.TickEvery <= 0 {
		opts.TickEvery = time.Second
	}

	log := opts.Logger.With().Str("component", "engine").Logger()
	e := &Engine{
		store:     store,
		src:       opts.Source,
		fetcher:   opts.Fetcher,
		now:       opts.Clock,
		log:       log,
		tickEvery: opts.TickEvery,
		sched:     trigger.NewScheduler(opts.Source, opts.Logger),
	}
	e.jobs = jobmgr.NewManager(log)
	e.applyTuning(tn)

	if err := e.sched.Register(trigger.ApplyOverrides(trigger.Defaults(), tn.Triggers)...); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return e, nil
}

func (e *Engine) applyTuning(tn config.Tuning) {
	// A new debounce window needs a new tracker, which restarts the
	// session's regain count.
	if e.vis == nil || tn.VisibilityDebounce != e.tuning.VisibilityDebounce {
		e.vis = trigger.NewVisibilityTracker(tn.VisibilityDebounce, e.src)
	}
	e.tuning = tn
	e.ledger = trust.NewLedger(tn.Thresholds)
	e.moods = mood.NewEngine(tn.DriftAfter, mood.NewLexicon(tn.Lexicon))
	e.sel = response.NewSelector(tn.Pools)
}

// ApplyTuning swaps balance and content settings at runtime. Trigger
// definitions keep their registration from New. Changing the visibility
// debounce restarts the regain count.
func (e *Engine) ApplyTuning(tn config.Tuning) error {
	if err := tn.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyTuning(tn)
	return nil
}

// SetOnDelivery sets where deliveries from background ticks go.
func (e *Engine) SetOnDelivery(fn func(Delivery)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDelivery = fn
}

// Start runs the trigger loop in the background until ctx is done or Close
// is called.
func (e *Engine) Start(ctx context.Context) error {
	return e.jobs.Start(ctx, "triggers", func(ctx context.Context) error {
		e.sched.Run(ctx, e.tickEvery, func(time.Time) {
			ds := e.Tick()
			e.mu.Lock()
			fn := e.onDelivery
			e.mu.Unlock()
			if fn == nil {
				return
			}
			for _, d := range ds {
				fn(d)
			}
		})
		return nil
	})
}

// Close stops background work and waits for it to finish.
func (e *Engine) Close() error {
	e.jobs.StopAll()
	return nil
}

// load reads the record and re-derives everything that must never diverge
// from stored inputs.
func (e *Engine) load() state.VisitorState {
	v, err := e.store.LoadState()
	e.unreadable = err != nil
	e.ledger.Normalize(&v.Trust)
	e.moods.Sanitize(&v.Mood)
	return v
}

func (e *Engine) save(v state.VisitorState) {
	if e.unreadable {
		e.log.Warn().Msg("record could not be read, change not saved")
		return
	}
	if err := e.store.Save(v); err != nil {
		e.log.Warn().Err(err).Msg("save failed, change kept in memory only")
	}
}

// credit adds trust points unless the visitor has collapsed.
func (e *Engine) credit(v *state.VisitorState, points int) {
	if v.Collapse.Permanent {
		return
	}
	if e.ledger.Credit(&v.Trust, points) {
		e.log.Info().Stringer("tier", v.Trust.Level).Int("score", v.Trust.Score).Msg("trust tier changed")
	}
}

func (e *Engine) latchEvent(v *state.VisitorState, name string) bool {
	if !v.Events.Latch(name) {
		return false
	}
	e.credit(v, e.tuning.Credits.Event)
	return true
}

func (e *Engine) snapshot(v *state.VisitorState, now time.Time) trigger.Snapshot {
	return trigger.Snapshot{
		Now:             now,
		Tier:            v.Trust.Level,
		Mood:            v.Mood.Mood(),
		State:           v,
		ConditionsKnown: e.store.LoadEco().Fresh(now, e.tuning.EcoMaxAge),
	}
}

// deliver picks and paces a line for id. vars fill placeholders.
func (e *Engine) deliver(v *state.VisitorState, id string, at time.Time, vars map[string]string) (Delivery, bool) {
	text, ok := e.sel.Select(id, v.Trust.Level, v.Mood.Mood(), e.src)
	if !ok {
		return Delivery{}, false
	}
	text = response.Render(text, vars)
	e.log.Debug().Str("trigger", id).Msg("delivering")
	return Delivery{
		TriggerID: id,
		FiredAt:   at,
		Text:      text,
		Plan:      typing.NewPlan(text, e.tuning.TypingSpeed, e.src),
	}, true
}

// CurrentMood returns the visitor's current mood.
func (e *Engine) CurrentMood() mood.Category {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.load()
	return v.Mood.Mood()
}

// AllEchoes returns every stored echo, oldest first.
func (e *Engine) AllEchoes() []state.Echo {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.load()
	return append([]state.Echo(nil), v.Echoes...)
}

// CrossSiteWhisper takes the oldest queued whisper.
func (e *Engine) CrossSiteWhisper() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.load()
	text, ok := v.PopWhisper()
	if ok {
		e.save(v)
	}
	return text, ok
}

// AddWhisper queues text for another context. Blank text is rejected.
func (e *Engine) AddWhisper(text string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.load()
	if !v.PushWhisper(text) {
		return false
	}
	e.save(v)
	return true
}

// TrackEvent latches a named event. Repeats are no-ops.
func (e *Engine) TrackEvent(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.load()
	if e.latchEvent(&v, name) {
		e.save(v)
	}
}

// LatchConsoleFlag latches a console flag and reports whether it was new.
func (e *Engine) LatchConsoleFlag(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.load()
	if !v.ConsoleFlags.Latch(name) {
		return false
	}
	e.credit(&v, e.tuning.Credits.ConsoleFlag)
	e.save(v)
	return true
}

// CalculateScore scores v with the configured weights.
func (e *Engine) CalculateScore(v state.VisitorState) int {
	e.mu.Lock()
	w := e.tuning.Weights
	e.mu.Unlock()
	return score.Score(v, w)
}

// DetermineRank names the band containing s.
func (e *Engine) DetermineRank(s int) string {
	return string(score.RankOf(s))
}

// Standing summarizes the current record.
func (e *Engine) Standing() Standing {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.load()
	s := score.Score(v, e.tuning.Weights)
	return Standing{
		Visits:       v.VisitCount,
		Score:        s,
		Rank:         score.RankOf(s),
		Tier:         v.Trust.Level,
		TrustScore:   v.Trust.Score,
		Mood:         v.Mood.Mood(),
		Trend:        v.Mood.Trend,
		Collapsed:    v.Collapse.Permanent,
		CollapseRank: v.Collapse.Rank,
	}
}

// Snapshot returns a deep copy of the record.
func (e *Engine) Snapshot() state.VisitorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.load().Clone()
}
