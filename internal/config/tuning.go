package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JHils/phile-gate-whispers-sub003/internal/mood"
	"github.com/JHils/phile-gate-whispers-sub003/internal/response"
	"github.com/JHils/phile-gate-whispers-sub003/internal/score"
	"github.com/JHils/phile-gate-whispers-sub003/internal/trigger"
	"github.com/JHils/phile-gate-whispers-sub003/internal/trust"
	"github.com/JHils/phile-gate-whispers-sub003/internal/typing"
)

// Tuning holds every content and balance knob. A YAML file overrides the
// built-in values field by field; maps merge by key.
type Tuning struct {
	Thresholds         trust.Thresholds           `yaml:"thresholds"`
	Credits            trust.Credits              `yaml:"credits"`
	Weights            score.Weights              `yaml:"weights"`
	DriftAfter         time.Duration              `yaml:"driftAfter"`
	VisitGap           time.Duration              `yaml:"visitGap"`
	TypingSpeed        typing.Speed               `yaml:"typingSpeed"`
	VisibilityDebounce time.Duration              `yaml:"visibilityDebounce"`
	EcoMaxAge          time.Duration              `yaml:"ecoMaxAge"`
	Lexicon            map[mood.Category][]string `yaml:"lexicon"`
	Pools              response.Pools             `yaml:"pools"`
	// Triggers overrides built-in trigger definitions by ID.
	Triggers []trigger.Definition `yaml:"triggers"`
}

func DefaultTuning() Tuning {
	return Tuning{
		Thresholds:         trust.DefaultThresholds(),
		Credits:            trust.DefaultCredits(),
		Weights:            score.DefaultWeights(),
		DriftAfter:         mood.DefaultDriftAfter,
		VisitGap:           30 * time.Minute,
		TypingSpeed:        typing.Medium,
		VisibilityDebounce: trigger.DefaultVisibilityDebounce,
		EcoMaxAge:          time.Hour,
		Lexicon:            mood.DefaultLexicon(),
		Pools:              response.DefaultPools(),
	}
}

// Validate reports tuning that the engine cannot run with.
func (t Tuning) Validate() error {
	if err := t.Thresholds.Validate(); err != nil {
		return err
	}
	if _, err := typing.ParseSpeed(string(t.TypingSpeed)); err != nil {
		return err
	}
	for c := range t.Lexicon {
		if !c.Valid() {
			return fmt.Errorf("lexicon: unknown mood %q", c)
		}
	}
	for id, pool := range t.Pools {
		for _, e := range pool {
			for _, m := range e.Moods {
				if !m.Valid() {
					return fmt.Errorf("pool %s: unknown mood %q", id, m)
				}
			}
		}
	}
	return nil
}

// ParseTuning applies YAML overrides on top of DefaultTuning.
func ParseTuning(data []byte) (Tuning, error) {
	t := DefaultTuning()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, fmt.Errorf("invalid tuning: %w", err)
	}
	return t, nil
}

// LoadTuning reads path. An empty path yields the defaults.
func LoadTuning(path string) (Tuning, error) {
	if path == "" {
		return DefaultTuning(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning %s: %w", path, err)
	}
	return ParseTuning(data)
}
