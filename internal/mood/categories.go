// Package mood implements the character's emotional state machine: timed
// drift, lexicon-triggered transitions and a derived trend.
package mood

// Category is the character's current emotion.
type Category string

const (
	Neutral     Category = "neutral"
	Joy         Category = "joy"
	Sadness     Category = "sadness"
	Anger       Category = "anger"
	Fear        Category = "fear"
	Surprise    Category = "surprise"
	Disgust     Category = "disgust"
	Confused    Category = "confused"
	Hope        Category = "hope"
	Anxiety     Category = "anxiety"
	Paranoia    Category = "paranoia"
	Trust       Category = "trust"
	Curiosity   Category = "curiosity"
	Watching    Category = "watching"
	Existential Category = "existential"
)

// All lists every category in a fixed order. Drift samples from this list
// and lexicon detection resolves ties by it.
var All = []Category{
	Neutral, Joy, Sadness, Anger, Fear, Surprise, Disgust, Confused,
	Hope, Anxiety, Paranoia, Trust, Curiosity, Watching, Existential,
}

type traits struct {
	valence int    // negative .. positive
	color   string // display tint handed to the presentation layer
}

// table must carry an entry for every member of All.
var table = map[Category]traits{
	Paranoia:    {-4, "#5b0f1a"},
	Fear:        {-3, "#3b2a4d"},
	Anxiety:     {-3, "#6b4e71"},
	Anger:       {-3, "#b3261e"},
	Disgust:     {-2, "#4f6b2a"},
	Sadness:     {-2, "#2c4a6e"},
	Existential: {-2, "#1c1c2e"},
	Watching:    {-1, "#3d3d3d"},
	Confused:    {-1, "#8a7f5c"},
	Neutral:     {0, "#9e9e9e"},
	Surprise:    {0, "#d9a441"},
	Curiosity:   {1, "#3f8f8a"},
	Trust:       {2, "#4a7fb5"},
	Hope:        {2, "#c9b458"},
	Joy:         {3, "#e0c341"},
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := table[c]
	return ok
}

// Normalize maps unknown or empty categories to Neutral.
func Normalize(c Category) Category {
	if c.Valid() {
		return c
	}
	return Neutral
}

// Valence ranks the category from negative to positive.
func (c Category) Valence() int {
	return table[Normalize(c)].valence
}

// Color is the display tint for the category.
func (c Category) Color() string {
	return table[Normalize(c)].color
}

// Trend is derived from the last entries of the mood history.
type Trend string

const (
	Improving     Trend = "improving"
	Deteriorating Trend = "deteriorating"
	Fluctuating   Trend = "fluctuating"
	Steady        Trend = "steady"
)
