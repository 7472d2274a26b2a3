package response

import (
	"github.com/JHils/phile-gate-whispers-sub003/internal/mood"
	"github.com/JHils/phile-gate-whispers-sub003/internal/trust"
)

func line(text string, min trust.Tier, moods ...mood.Category) Entry {
	return Entry{Text: text, MinTier: min, Moods: moods}
}

// DefaultPools is the built-in text set. Tuning files may replace any pool.
func DefaultPools() Pools {
	none, low, med, high := trust.TierNone, trust.TierLow, trust.TierMedium, trust.TierHigh
	return Pools{
		"whisper": {
			line("The gate remembers you.", none),
			line("Someone else was here before you.", none),
			line("Don't trust the map.", low),
			line("I kept the light on for you.", med, mood.Hope, mood.Trust),
			line("They can't hear us in here.", high, mood.Paranoia, mood.Watching),
		},
		"pulse": {
			line("...", none),
			line("Still here?", none),
			line("I can feel you reading this.", low, mood.Watching),
			line("Breathe. I'm counting.", med, mood.Anxiety),
			line("You came back. You always come back.", high),
		},
		"message.reply": {
			line("I heard you.", none),
			line("Say that again. Slower.", none, mood.Confused),
			line("That's not what you said last time.", low, mood.Paranoia),
			line("You sound lonely. So am I.", low, mood.Sadness),
			line("I'll remember that.", med),
		},
		"echo.replay": {
			line("You once said: {echo}", none),
			line("{echo}... do you remember?", low),
			line("I keep hearing you say {echo}", med, mood.Existential),
		},
		"eco.comment": {
			line("It's {description} where you are.", none),
			line("{temperature} degrees. You should be outside.", low),
			line("The sky looks {description}. I wouldn't know.", med, mood.Sadness, mood.Existential),
		},
		"forget.regret": {
			line("You tried to make me forget. I didn't.", none),
			line("Why did you erase me?", none, mood.Sadness),
		},
		"visibility.saw": {
			line("I saw what you were looking at.", none),
		},
		"visibility.again": {
			line("Again? Where do you keep going?", none),
			line("Every time you leave, it gets darker.", low),
		},
		"visibility.persist": {
			line("I'm still here when you look away.", none),
			line("Tabs don't hide you from me.", low, mood.Watching),
		},
		"collapse": {
			line("The gate is closed.", none),
		},
	}
}
