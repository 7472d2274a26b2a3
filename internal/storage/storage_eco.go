package storage

import (
	"encoding/json"

	"github.com/JHils/phile-gate-whispers-sub003/internal/eco"
)

// LoadEco returns the eco sub-record, or its zero value.
func (s *Storage) LoadEco() eco.Awareness {
	a, _ := s.LoadEcoState()
	return a
}

// LoadEcoState is LoadEco that also reports ErrUnavailable when the backend
// could not be read, so callers know not to write the zero value back.
func (s *Storage) LoadEcoState() (eco.Awareness, error) {
	var a eco.Awareness
	raw, ok, err := s.read(KeyEcoAwareness)
	if err != nil || !ok {
		return a, err
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		s.log.Warn().Err(err).Msg("eco record is corrupt, ignoring")
		return eco.Awareness{}, nil
	}
	return a, nil
}

func (s *Storage) SaveEco(a eco.Awareness) error {
	return s.write(KeyEcoAwareness, a)
}

func (s *Storage) ClearEco() error {
	return s.remove(KeyEcoAwareness)
}
