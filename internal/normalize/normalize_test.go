package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgard/nutribot/internal/normalize"
)

func TestText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Diacritics", input: "Café com Pão", expected: "cafe com pao"},
		{name: "Whitespace", input: "  arroz   \t integral \n", expected: "arroz integral"},
		{name: "Cedilla", input: "AÇAÍ", expected: "acai"},
		{name: "Empty", input: "", expected: ""},
		{name: "Punctuation kept", input: "Cross-Fit!", expected: "cross-fit!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, normalize.Text(tt.input))
		})
	}
}

func TestSpacedAndCompact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		spaced  string
		compact string
	}{
		{name: "Hyphen", input: "Cross-Fit", spaced: "cross fit", compact: "crossfit"},
		{name: "Accents", input: "café", spaced: "cafe", compact: "cafe"},
		{name: "Mixed punctuation", input: "pão, de  queijo!!", spaced: "pao de queijo", compact: "paodequeijo"},
		{name: "Digits", input: "whey 100%", spaced: "whey 100", compact: "whey100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.spaced, normalize.Spaced(tt.input))
			assert.Equal(t, tt.compact, normalize.Compact(tt.input))
		})
	}

	t.Run("Equivalences", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, normalize.Compact("café"), normalize.Compact("cafe"))
		assert.Equal(t, normalize.Compact("cross-fit"), normalize.Compact("crossfit"))
	})
}

func TestIdempotence(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Café com Pão",
		"  Cross-Fit  ",
		"ÁÉÍÓÚ ãõ ç",
		"100g de arroz, 2 colheres de feijão",
		"",
		"---",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, normalize.Text(in), normalize.Text(normalize.Text(in)))
			assert.Equal(t, normalize.Spaced(in), normalize.Spaced(normalize.Spaced(in)))
			assert.Equal(t, normalize.Compact(in), normalize.Compact(normalize.Compact(in)))
		})
	}
}

func TestWordsAndHasWord(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"arroz", "integral"}, normalize.Words("arroz e integral", 3))
	assert.Nil(t, normalize.Words("a e o", 3))

	assert.True(t, normalize.HasWord("frango temperado", "frango"))
	assert.False(t, normalize.HasWord("carne temperada", "pera"))
	assert.False(t, normalize.HasWord("anything", ""))
}

func TestSingular(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"colheres": "colher",
		"fatias":   "fatia",
		"paes":     "pao",
		"xicaras":  "xicara",
		"ovo":      "ovo",
		"mes":      "mes",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalize.Singular(in), in)
	}
}
