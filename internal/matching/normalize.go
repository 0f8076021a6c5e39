package matching

import (
	"strings"
	"unicode"
)

// Normalize turns a raw entity name into its canonical comparison form:
// lowercase, punctuation stripped, whitespace collapsed to single spaces.
// Always returns a string, possibly empty.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// FirstSignificantWord returns the first word of the normalized name,
// skipping a leading "the". Empty string when nothing remains.
func FirstSignificantWord(name string) string {
	words := strings.Fields(Normalize(name))
	if len(words) == 0 {
		return ""
	}
	if words[0] == "the" {
		if len(words) == 1 {
			return ""
		}
		return words[1]
	}
	return words[0]
}
