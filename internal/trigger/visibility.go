package trigger

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JHils/phile-gate-whispers-sub003/internal/rng"
)

const (
	DefaultVisibilityDebounce = 5 * time.Second
	persistProbability        = 0.4
)

// VisibilityTracker counts how often the page regains visibility after
// being hidden. Regains closer together than the debounce window are not
// counted. The count lives for the session only.
type VisibilityTracker struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	src     rng.Source
	hidden  bool
	count   int
}

func NewVisibilityTracker(debounce time.Duration, src rng.Source) *VisibilityTracker {
	if debounce <= 0 {
		debounce = DefaultVisibilityDebounce
	}
	return &VisibilityTracker{
		limiter: rate.NewLimiter(rate.Every(debounce), 1),
		src:     src,
	}
}

// Hidden records that the page lost visibility.
func (v *VisibilityTracker) Hidden() {
	v.mu.Lock()
	v.hidden = true
	v.mu.Unlock()
}

// Visible records a regain at now and reports the visibility event it
// produces, if any.
func (v *VisibilityTracker) Visible(now time.Time) (Event, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.hidden {
		return Event{}, false
	}
	v.hidden = false
	if !v.limiter.AllowN(now, 1) {
		return Event{}, false
	}
	v.count++

	var id string
	switch {
	case v.count == 3:
		id = VisibilitySaw
	case v.count == 5:
		id = VisibilityAgain
	case v.count > 7 && v.src.Float64() < persistProbability:
		id = VisibilityPersist
	default:
		return Event{}, false
	}
	return Event{TriggerID: id, FiredAt: now, Count: v.count}, true
}

// Count returns the number of counted regains.
func (v *VisibilityTracker) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.count
}
