package storage

import (
	"time"

	"github.com/JHils/phile-gate-whispers-sub003/internal/mood"
	"github.com/JHils/phile-gate-whispers-sub003/internal/state"
)

func (s *Storage) AddEcho(text string, emotion mood.Category, at time.Time) (state.Echo, bool, error) {
	var (
		e  state.Echo
		ok bool
	)
	_, err := s.Update(func(v *state.VisitorState) {
		e, ok = v.PushEcho(text, emotion, at)
	})
	return e, ok, err
}

func (s *Storage) Echoes() []state.Echo {
	return s.Load().Echoes
}
