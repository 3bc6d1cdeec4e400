package moderation

import (
	"chat-pubsub/errors"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator masks forbidden words in outbound message bodies.
// Matching ignores case, separators and common leet substitutions.
type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
}

// folded is the searchable form of a text; origin[i] is the index of the
// original rune folded into position i.
type folded struct {
	runes  []rune
	origin []int
}

// ParseWords splits a comma separated list, dropping blanks.
func ParseWords(list string) []string {
	var words []string
	for _, w := range strings.Split(list, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func NewModerator(words []string, replacement rune) (*Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		if f := fold(word); len(f.runes) > 0 {
			patterns = append(patterns, f.runes)
		}
	}
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyWords
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, replacement: replacement}, nil
}

// Censor returns body with every match replaced, and the number of matches.
// Separators inside a match are masked too; those around it are kept.
func (m *Moderator) Censor(body string) (string, int) {
	f := fold(body)
	if len(f.runes) == 0 {
		return body, 0
	}
	hits := m.matcher.MultiPatternSearch(f.runes, false)
	if len(hits) == 0 {
		return body, 0
	}

	out := []rune(body)
	for _, hit := range hits {
		first, last := hit.Pos, hit.Pos+len(hit.Word)-1
		if first < 0 || last >= len(f.origin) {
			continue
		}
		for i := f.origin[first]; i <= f.origin[last]; i++ {
			out[i] = m.replacement
		}
	}
	return string(out), len(hits)
}

func fold(text string) folded {
	runes := []rune(text)
	f := folded{runes: make([]rune, 0, len(runes)), origin: make([]int, 0, len(runes))}
	for i, r := range runes {
		r = unleet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		f.runes = append(f.runes, unicode.ToLower(r))
		f.origin = append(f.origin, i)
	}
	return f
}

func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	}
	return r
}
