// Package storage persists the visitor record and its sub-records through a
// pluggable Backend. A missing or undecodable record comes back as defaults.
// When the backend itself fails the caller still gets defaults, but nothing
// is written over the stored record.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JHils/phile-gate-whispers-sub003/internal/state"
)

const (
	KeyVisitorState = "visitorState"
	KeyEcoAwareness = "ecoAwareness"

	opTimeout = 5 * time.Second
)

// ErrUnavailable means the backend could not be read. The stored record may
// still be intact and must not be overwritten.
var ErrUnavailable = errors.New("storage unavailable")

type Storage struct {
	backend Backend
	log     zerolog.Logger
	now     func() time.Time

	mu   sync.Mutex
	last map[string][]byte // payload last read or written per key
}

func New(b Backend, log zerolog.Logger) *Storage {
	return &Storage{
		backend: b,
		log:     log.With().Str("component", "storage").Logger(),
		now:     time.Now,
		last:    make(map[string][]byte),
	}
}

// SetClock replaces the time source used for defaults.
func (s *Storage) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Storage) Close() error {
	return s.backend.Close()
}

// Load returns the stored visitor record, or defaults when it cannot be
// read. See LoadState.
func (s *Storage) Load() state.VisitorState {
	v, _ := s.LoadState()
	return v
}

// LoadState returns the stored visitor record. An absent, undecodable or
// empty record is replaced by fresh defaults, which are persisted. When the
// backend read fails, defaults are returned with ErrUnavailable and nothing
// is written.
func (s *Storage) LoadState() (state.VisitorState, error) {
	raw, ok, err := s.read(KeyVisitorState)
	if err != nil {
		return state.New(s.now()), err
	}
	if ok {
		var v state.VisitorState
		err := json.Unmarshal(raw, &v)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Msg("visitor state is corrupt, using defaults")
		case v.FirstVisit.IsZero():
			s.log.Warn().Msg("visitor state is empty, using defaults")
		default:
			v.Normalize()
			return v, nil
		}
	}
	v := state.New(s.now())
	if err := s.Save(v); err != nil {
		s.log.Warn().Err(err).Msg("could not persist default visitor state")
	}
	return v, nil
}

// Save replaces the stored record. Saving a value whose encoding matches the
// last one read or written is a no-op.
func (s *Storage) Save(v state.VisitorState) error {
	return s.write(KeyVisitorState, v)
}

// Update loads the record, applies fn and saves the result.
func (s *Storage) Update(fn func(*state.VisitorState)) (state.VisitorState, error) {
	v, err := s.LoadState()
	if err != nil {
		return v, err
	}
	fn(&v)
	return v, s.Save(v)
}

// Reset replaces the record with defaults, keeping the named top-level
// fields (by JSON name) from the current record.
func (s *Storage) Reset(preserve ...string) (state.VisitorState, error) {
	loaded, err := s.LoadState()
	if err != nil {
		return loaded, err
	}
	current, err := fieldMap(loaded)
	if err != nil {
		return state.VisitorState{}, err
	}
	fresh, err := fieldMap(state.New(s.now()))
	if err != nil {
		return state.VisitorState{}, err
	}
	for _, name := range preserve {
		if v, ok := current[name]; ok {
			fresh[name] = v
		}
	}
	merged, err := json.Marshal(fresh)
	if err != nil {
		return state.VisitorState{}, fmt.Errorf("reset: %w", err)
	}
	var out state.VisitorState
	if err := json.Unmarshal(merged, &out); err != nil {
		return state.VisitorState{}, fmt.Errorf("reset: %w", err)
	}
	out.Normalize()
	return out, s.Save(out)
}

func fieldMap(v state.VisitorState) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode visitor state: %w", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("split visitor state: %w", err)
	}
	return m, nil
}

func (s *Storage) read(key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	v, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("backend read failed")
		return nil, false, fmt.Errorf("%w: read %s: %v", ErrUnavailable, key, err)
	}
	if !ok {
		return nil, false, nil
	}
	s.mu.Lock()
	s.last[key] = []byte(v)
	s.mu.Unlock()
	return []byte(v), true, nil
}

func (s *Storage) write(key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if bytes.Equal(s.last[key], payload) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.backend.Set(ctx, key, string(payload)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	s.last[key] = payload
	return nil
}

func (s *Storage) remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	delete(s.last, key)
	return nil
}
