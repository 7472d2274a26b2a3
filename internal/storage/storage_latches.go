package storage

import "github.com/JHils/phile-gate-whispers-sub003/internal/state"

// LatchEvent sets a named event. It reports whether the latch was newly set.
func (s *Storage) LatchEvent(name string) (bool, error) {
	var set bool
	_, err := s.Update(func(v *state.VisitorState) {
		set = v.Events.Latch(name)
	})
	return set, err
}

// LatchConsoleFlag sets a named console flag. It reports whether the latch
// was newly set.
func (s *Storage) LatchConsoleFlag(name string) (bool, error) {
	var set bool
	_, err := s.Update(func(v *state.VisitorState) {
		set = v.ConsoleFlags.Latch(name)
	})
	return set, err
}
