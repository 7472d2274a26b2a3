package mood

import (
	"strings"
	"unicode"
)

// Lexicon matches visitor text against per-category trigger words.
// Single words match whole tokens; multi-word phrases match as runs of
// consecutive tokens.
type Lexicon struct {
	words   map[Category]map[string]struct{}
	phrases map[Category][][]string
}

func NewLexicon(entries map[Category][]string) *Lexicon {
	l := &Lexicon{
		words:   make(map[Category]map[string]struct{}),
		phrases: make(map[Category][][]string),
	}
	for c, terms := range entries {
		if !c.Valid() {
			continue
		}
		for _, t := range terms {
			toks := tokenize(t)
			switch len(toks) {
			case 0:
				continue
			case 1:
				if l.words[c] == nil {
					l.words[c] = make(map[string]struct{})
				}
				l.words[c][toks[0]] = struct{}{}
			default:
				l.phrases[c] = append(l.phrases[c], toks)
			}
		}
	}
	return l
}

// Detect returns the first category, in All order, with a matching term.
func (l *Lexicon) Detect(text string) (Category, bool) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return "", false
	}
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		seen[t] = struct{}{}
	}
	for _, c := range All {
		for _, p := range l.phrases[c] {
			if containsRun(tokens, p) {
				return c, true
			}
		}
		for w := range l.words[c] {
			if _, ok := seen[w]; ok {
				return c, true
			}
		}
	}
	return "", false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

// containsRun reports whether run appears in tokens as consecutive entries.
func containsRun(tokens, run []string) bool {
	for i := 0; i+len(run) <= len(tokens); i++ {
		match := true
		for j, w := range run {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// DefaultLexicon is the built-in emotional trigger vocabulary.
func DefaultLexicon() map[Category][]string {
	return map[Category][]string{
		Joy:         {"happy", "glad", "love", "wonderful", "yay", "great"},
		Sadness:     {"sad", "cry", "crying", "lonely", "miss", "grief", "tired of"},
		Anger:       {"angry", "hate", "furious", "mad", "shut up"},
		Fear:        {"scared", "afraid", "terrified", "fear", "frightened"},
		Surprise:    {"wow", "whoa", "unexpected", "surprised"},
		Disgust:     {"gross", "disgusting", "sick of", "vile"},
		Confused:    {"confused", "what", "huh", "lost", "don't understand"},
		Hope:        {"hope", "maybe", "someday", "wish"},
		Anxiety:     {"anxious", "nervous", "worried", "panic"},
		Paranoia:    {"watching me", "followed", "tracking", "spying"},
		Trust:       {"trust", "believe you", "friend"},
		Curiosity:   {"why", "how", "who are you", "curious"},
		Watching:    {"see you", "i see", "watching"},
		Existential: {"real", "exist", "alive", "meaning", "dead"},
	}
}
