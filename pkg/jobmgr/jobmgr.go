// Package jobmgr runs named background jobs and stops them on demand.
//
//	jm := jobmgr.NewManager(log)
//	_ = jm.Start(ctx, "ticker", func(ctx context.Context) error {
//	    <-ctx.Done()
//	    return nil
//	})
//	jm.StopAll()
//
// Stop and StopAll block until the job's goroutine has returned.
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrRunning    = errors.New("job already running")
	ErrNotRunning = errors.New("job not running")
)

type job struct {
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// Manager tracks running jobs. It is safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*job
	log  zerolog.Logger

	// OnExit, when set, is called after a job's runner returns. err is nil
	// for a clean exit and for cancellation.
	OnExit func(name string, err error)
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		jobs: make(map[string]*job),
		log:  log.With().Str("component", "jobs").Logger(),
	}
}

// Start runs runner in its own goroutine under a context derived from
// parent. A name may only run once at a time.
func (m *Manager) Start(parent context.Context, name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrRunning, name)
	}

	ctx, cancel := context.WithCancel(parent)
	j := &job{cancel: cancel, done: make(chan struct{}), started: time.Now()}
	m.jobs[name] = j
	m.log.Debug().Str("job", name).Msg("job started")

	go func() {
		defer close(j.done)
		defer cancel()

		err := runner(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		ev := m.log.Debug()
		if err != nil {
			ev = m.log.Warn().Err(err)
		}
		ev.Str("job", name).Dur("ran", time.Since(j.started)).Msg("job exited")

		m.mu.Lock()
		if m.jobs[name] == j {
			delete(m.jobs, name)
		}
		onExit := m.OnExit
		m.mu.Unlock()
		if onExit != nil {
			onExit(name, err)
		}
	}()
	return nil
}

// Stop cancels a job and waits for it to return.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	j, ok := m.jobs[name]
	delete(m.jobs, name)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	j.cancel()
	<-j.done
	return nil
}

// StopAll cancels every job and waits for all of them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	running := make([]*job, 0, len(m.jobs))
	for name, j := range m.jobs {
		running = append(running, j)
		delete(m.jobs, name)
	}
	m.mu.Unlock()

	for _, j := range running {
		j.cancel()
	}
	for _, j := range running {
		<-j.done
	}
}

// Running reports whether name is active.
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// List returns the active job names, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
