package state

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JHils/phile-gate-whispers-sub003/internal/mood"
)

// PushWhisper appends text, evicting the oldest whisper when full.
// Blank text is rejected.
func (v *VisitorState) PushWhisper(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	v.Whispers = append(v.Whispers, text)
	if n := len(v.Whispers); n > WhisperCapacity {
		v.Whispers = append([]string(nil), v.Whispers[n-WhisperCapacity:]...)
	}
	return true
}

// PopWhisper removes and returns the oldest whisper.
func (v *VisitorState) PopWhisper() (string, bool) {
	if len(v.Whispers) == 0 {
		return "", false
	}
	w := v.Whispers[0]
	v.Whispers = append(v.Whispers[:0:0], v.Whispers[1:]...)
	return w, true
}

// PushEcho records an utterance, evicting the oldest echo when full.
func (v *VisitorState) PushEcho(text string, emotion mood.Category, at time.Time) (Echo, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Echo{}, false
	}
	e := Echo{
		ID:           uuid.NewString(),
		OriginalText: text,
		Timestamp:    at.UTC(),
	}
	if emotion.Valid() {
		e.EmotionalContext = emotion
	}
	v.Echoes = append(v.Echoes, e)
	if n := len(v.Echoes); n > EchoCapacity {
		v.Echoes = append([]Echo(nil), v.Echoes[n-EchoCapacity:]...)
	}
	return e, true
}

// LeastUsedEcho returns the index of the echo replayed the fewest times,
// preferring the oldest on ties. -1 when there are no echoes.
func (v *VisitorState) LeastUsedEcho() int {
	best := -1
	for i, e := range v.Echoes {
		if best == -1 || e.UseCount < v.Echoes[best].UseCount {
			best = i
		}
	}
	return best
}
