package storage

import "github.com/JHils/phile-gate-whispers-sub003/internal/state"

// AddWhisper queues text for display in another context. Blank text is
// ignored.
func (s *Storage) AddWhisper(text string) (bool, error) {
	var added bool
	_, err := s.Update(func(v *state.VisitorState) {
		added = v.PushWhisper(text)
	})
	return added, err
}

// PopWhisper takes the oldest queued whisper.
func (s *Storage) PopWhisper() (string, bool, error) {
	var (
		text string
		ok   bool
	)
	_, err := s.Update(func(v *state.VisitorState) {
		text, ok = v.PopWhisper()
	})
	return text, ok, err
}
