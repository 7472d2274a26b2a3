package engine

import (
	"context"
	"time"

	"github.com/JHils/phile-gate-whispers-sub003/internal/score"
	"github.com/JHils/phile-gate-whispers-sub003/internal/state"
	"github.com/JHils/phile-gate-whispers-sub003/internal/trigger"
)

// Visit records a page load. A visit counts when it is the first one or
// comes more than the visit gap after the previous one.
func (e *Engine) Visit() []Delivery {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	v := e.load()
	if v.VisitCount == 0 || now.Sub(v.LastVisit) > e.tuning.VisitGap {
		v.VisitCount++
		e.credit(&v, e.tuning.Credits.Visit)
	}
	v.LastVisit = now.UTC()
	if e.moods.DriftDue(v.Mood, now) {
		e.moods.Drift(&v.Mood, now, e.src)
	}

	var out []Delivery
	if d, ok := e.replayEcho(&v, now); ok {
		out = append(out, d)
	}
	e.save(v)
	return out
}

// Message handles text the visitor typed. Emotional keywords move the mood,
// the text is kept as an echo and the character may reply.
func (e *Engine) Message(text string) []Delivery {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	v := e.load()
	emotion, _ := e.moods.React(&v.Mood, text, now)
	if _, ok := v.PushEcho(text, emotion, now); !ok {
		return nil
	}
	e.credit(&v, e.tuning.Credits.Message)

	var out []Delivery
	if ev, ok := e.sched.Check(trigger.MessageReply, e.snapshot(&v, now)); ok {
		if d, ok := e.deliver(&v, ev.TriggerID, now, nil); ok {
			out = append(out, d)
		}
	}
	if d, ok := e.replayEcho(&v, now); ok {
		out = append(out, d)
	}
	e.save(v)
	return out
}

// Confess stores a confession as an echo and moves the mood to its emotion.
func (e *Engine) Confess(c state.Confession) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	v := e.load()
	emotion := c.Emotion()
	if _, ok := v.PushEcho(c.Text, emotion, now); !ok {
		return false
	}
	e.moods.Force(&v.Mood, emotion, now)
	e.credit(&v, e.tuning.Credits.Confession)
	e.latchEvent(&v, EventConfessed)
	e.save(v)
	return true
}

// VisibilityChanged reports the page being hidden or shown again.
func (e *Engine) VisibilityChanged(visible bool) []Delivery {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !visible {
		e.vis.Hidden()
		return nil
	}
	now := e.now()
	ev, ok := e.vis.Visible(now)
	if !ok {
		return nil
	}
	v := e.load()
	d, ok := e.deliver(&v, ev.TriggerID, now, nil)
	if !ok {
		return nil
	}
	return []Delivery{d}
}

// Collapse ends the narrative. Trust freezes and the rank at this moment is
// kept for display. Repeated calls are no-ops.
func (e *Engine) Collapse(message string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := e.load()
	if v.Collapse.Permanent {
		return false
	}
	v.Events.Latch(EventCollapsed)
	v.Collapse.Permanent = true
	v.Collapse.Message = message
	v.Collapse.Rank = string(score.RankOf(score.Score(v, e.tuning.Weights)))
	e.log.Info().Str("rank", v.Collapse.Rank).Msg("collapsed")
	e.save(v)
	return true
}

// Forget wipes the record except visit count, first visit and visitor id,
// drops the eco record, then marks that the character was asked to forget.
func (e *Engine) Forget() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.store.Reset("visitCount", "firstVisit", "visitorId")
	if err != nil {
		return err
	}
	e.unreadable = false
	if err := e.store.ClearEco(); err != nil {
		e.log.Warn().Err(err).Msg("could not clear eco record")
	}
	v.Events.Latch(trigger.EventForgotten)
	e.save(v)
	e.log.Info().Msg("visitor state forgotten")
	return nil
}

// Tick runs one scheduler pass: timed mood drift, then every due trigger.
func (e *Engine) Tick() []Delivery {
	e.mu.Lock()
	now := e.now()
	v := e.load()
	if e.moods.DriftDue(v.Mood, now) {
		e.moods.Drift(&v.Mood, now, e.src)
	}

	var (
		out     []Delivery
		refresh bool
	)
	for _, ev := range e.sched.Tick(e.snapshot(&v, now)) {
		switch ev.TriggerID {
		case trigger.EcoRefresh:
			refresh = true
		case trigger.EcoComment:
			if d, ok := e.ecoComment(&v, now); ok {
				out = append(out, d)
			}
		case trigger.Whisper:
			if d, ok := e.deliver(&v, ev.TriggerID, now, nil); ok {
				v.PushWhisper(d.Text)
				out = append(out, d)
			}
		case trigger.ForgetRegret:
			if d, ok := e.deliver(&v, ev.TriggerID, now, nil); ok {
				v.Events.Latch(trigger.EventRegretShown)
				out = append(out, d)
			}
		default:
			if d, ok := e.deliver(&v, ev.TriggerID, now, nil); ok {
				out = append(out, d)
			}
		}
	}
	e.save(v)
	e.mu.Unlock()

	if refresh {
		e.RefreshConditions(context.Background())
	}
	return out
}

// RefreshConditions fetches current conditions outside the engine lock and
// caches them. Failures leave the cache as it was.
func (e *Engine) RefreshConditions(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, ecoFetchTimeout)
	defer cancel()

	c, err := e.fetcher.FetchCurrentConditions(ctx)
	if err != nil {
		e.log.Debug().Err(err).Msg("no conditions")
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.store.LoadEcoState()
	if err != nil {
		return false
	}
	a.Conditions = &c
	a.FetchedAt = e.now().UTC()
	if err := e.store.SaveEco(a); err != nil {
		e.log.Warn().Err(err).Msg("could not save conditions")
	}
	return true
}

func (e *Engine) ecoComment(v *state.VisitorState, now time.Time) (Delivery, bool) {
	a, err := e.store.LoadEcoState()
	if err != nil || !a.Fresh(now, e.tuning.EcoMaxAge) {
		return Delivery{}, false
	}
	d, ok := e.deliver(v, trigger.EcoComment, now, a.Conditions.Vars())
	if !ok {
		return Delivery{}, false
	}
	a.LastCommentAt = now.UTC()
	a.Comments++
	if err := e.store.SaveEco(a); err != nil {
		e.log.Warn().Err(err).Msg("could not save eco comment")
	}
	return d, true
}

// replayEcho gives echo.replay a chance to fire and, when it does, replays
// the least used echo with its current distortion.
func (e *Engine) replayEcho(v *state.VisitorState, now time.Time) (Delivery, bool) {
	if _, ok := e.sched.Check(trigger.EchoReplay, e.snapshot(v, now)); !ok {
		return Delivery{}, false
	}
	echo, ok := v.ReplayEcho(v.LeastUsedEcho(), now, e.src)
	if !ok {
		return Delivery{}, false
	}
	e.latchEvent(v, EventEchoHeard)
	return e.deliver(v, trigger.EchoReplay, now, map[string]string{"echo": echo.RefractedText})
}
