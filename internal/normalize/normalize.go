// Package normalize provides the lexical substrate shared by every comparison
// in the resolution and classification pipelines. All functions are pure,
// total and idempotent.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold removes combining marks so "café" and "cafe" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Text returns s without diacritics, lowercased, trimmed and with internal
// whitespace collapsed to single spaces.
func Text(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(fold(s))), " ")
}

// Spaced returns Text(s) with every run of non-alphanumeric runes replaced
// by a single space.
func Spaced(s string) string {
	var b strings.Builder
	for _, r := range Text(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Compact returns Text(s) with every non-alphanumeric rune removed, so
// "cross-fit" and "crossfit" compare equal.
func Compact(s string) string {
	var b strings.Builder
	for _, r := range Text(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Words returns the Spaced tokens of s having at least minLen runes.
func Words(s string, minLen int) []string {
	var words []string
	for _, w := range strings.Fields(Spaced(s)) {
		if len([]rune(w)) >= minLen {
			words = append(words, w)
		}
	}
	return words
}

// HasWord reports whether word occurs in s as a whole Spaced token.
func HasWord(s, word string) bool {
	word = Spaced(word)
	if word == "" {
		return false
	}
	for _, w := range strings.Fields(Spaced(s)) {
		if w == word {
			return true
		}
	}
	return false
}

// Singular strips the common Portuguese plural endings from a single
// normalized word ("colheres" -> "colher", "paes" -> "pao", "fatias" -> "fatia").
func Singular(word string) string {
	switch {
	case len(word) <= 3:
		return word
	case strings.HasSuffix(word, "oes"), strings.HasSuffix(word, "aes"):
		return word[:len(word)-3] + "ao"
	case strings.HasSuffix(word, "res"), strings.HasSuffix(word, "zes"), strings.HasSuffix(word, "les"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s"):
		return word[:len(word)-1]
	}
	return word
}
