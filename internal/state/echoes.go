package state

import (
	"strings"
	"time"

	"github.com/JHils/phile-gate-whispers-sub003/internal/rng"
)

const echoWeek = 7 * 24 * time.Hour

// ReplayEcho marks echo i as used at now, advances its decay stage and
// stores the refracted rendition. Stage never decreases: it grows with the
// number of replays and with age in weeks, capped at MaxEchoStage.
func (v *VisitorState) ReplayEcho(i int, now time.Time, src rng.Source) (Echo, bool) {
	if i < 0 || i >= len(v.Echoes) {
		return Echo{}, false
	}
	e := &v.Echoes[i]
	e.UseCount++
	stage := e.UseCount - 1 + int(now.Sub(e.Timestamp)/echoWeek)
	if stage > MaxEchoStage {
		stage = MaxEchoStage
	}
	if stage > e.DecayStage {
		e.DecayStage = stage
	}
	e.RefractedText = Refract(e.OriginalText, e.DecayStage, src)
	return *e, true
}

// Refract distorts text in proportion to stage: 0 is verbatim, 1 is a
// murmur, 2 drops words, 3 is a corrupted fragment.
func Refract(text string, stage int, src rng.Source) string {
	text = strings.TrimSpace(text)
	if text == "" || stage <= 0 {
		return text
	}
	words := strings.Fields(strings.ToLower(text))
	switch stage {
	case 1:
		return strings.TrimRight(strings.Join(words, " "), ".!?") + "..."
	case 2:
		out := make([]string, 0, len(words))
		for _, w := range words {
			if src.Float64() < 0.33 {
				out = append(out, "...")
				continue
			}
			out = append(out, w)
		}
		return strings.Join(out, " ")
	default:
		keep := (len(words) + 1) / 2
		frag := []rune(strings.Join(words[:keep], " "))
		for i, r := range frag {
			if strings.ContainsRune("aeiou", r) && src.Float64() < 0.5 {
				frag[i] = '_'
			}
		}
		return string(frag) + "..."
	}
}
