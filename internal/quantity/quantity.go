// Package quantity extracts amounts and durations from free-form Portuguese
// text. A miss is reported with a false return and is never an error: callers
// escalate to the next resolution strategy instead.
package quantity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edgard/nutribot/internal/normalize"
)

// Unit is the canonical unit vocabulary recognised by the parser.
type Unit string

const (
	UnitGram       Unit = "g"
	UnitSpoon      Unit = "colher"
	UnitCup        Unit = "xicara"
	UnitMilliliter Unit = "ml"
	UnitCount      Unit = "unidade"
	UnitServing    Unit = "porcao"
)

// IsMass reports whether the unit already expresses grams.
func (u Unit) IsMass() bool { return u == UnitGram }

// Quantity is a parsed amount. Label keeps the unit phrase as written
// (normalized), e.g. "colheres de sopa" or "fatias", for named-measure lookup.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
	Label string  `json:"label,omitempty"`
}

// String renders the quantity for user-facing text.
func (q Quantity) String() string {
	label := q.Label
	switch {
	case label != "":
	case q.Unit == UnitCount:
		label = "un"
	default:
		label = string(q.Unit)
	}
	return fmt.Sprintf("%s %s", formatNumber(q.Value), label)
}

var numberWords = map[string]float64{
	"meia": 0.5, "meio": 0.5,
	"um": 1, "uma": 1,
	"dois": 2, "duas": 2,
	"tres":   3,
	"quatro": 4,
	"cinco":  5,
	"seis":   6,
	"dez":    10,
}

const numberPattern = `(\d+(?:[.,]\d+)?|meia|meio|uma|um|duas|dois|tres|quatro|cinco|seis|dez)`

const unitPattern = `(kg|quilos?|gramas?|gr|g|ml|mililitros?|litros?|latas?|l|` +
	`colher(?:es)? de sopa|colher(?:es)? de cha|colher(?:es)?|xicaras?|copos?|` +
	`unidades?|un|porcao|porcoes|fatias?|pedacos?|conchas?|escumadeiras?|potes?)`

var quantityRe = regexp.MustCompile(`\b` + numberPattern + `(?:\s*` + unitPattern + `)?\b`)

type unitRule struct {
	unit   Unit
	factor float64
}

// unitFor maps a matched unit phrase to its canonical unit and scale.
func unitFor(label string) unitRule {
	head := strings.Fields(label)[0]
	switch {
	case head == "kg" || strings.HasPrefix(head, "quilo"):
		return unitRule{UnitGram, 1000}
	case head == "g" || head == "gr" || strings.HasPrefix(head, "grama"):
		return unitRule{UnitGram, 1}
	case head == "ml" || strings.HasPrefix(head, "mililitro"):
		return unitRule{UnitMilliliter, 1}
	case head == "l" || strings.HasPrefix(head, "litro"):
		return unitRule{UnitMilliliter, 1000}
	case strings.HasPrefix(head, "colher"):
		return unitRule{UnitSpoon, 1}
	case strings.HasPrefix(head, "xicara"), strings.HasPrefix(head, "copo"):
		return unitRule{UnitCup, 1}
	case strings.HasPrefix(head, "porc"):
		return unitRule{UnitServing, 1}
	}
	return unitRule{UnitCount, 1}
}

func parseNumber(s string) (float64, bool) {
	if v, ok := numberWords[s]; ok {
		return v, true
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// find locates the first quantity in already-normalized text and returns it
// with its byte span.
func find(text string) (Quantity, int, int, bool) {
	loc := quantityRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return Quantity{}, 0, 0, false
	}
	value, ok := parseNumber(text[loc[2]:loc[3]])
	if !ok || value <= 0 {
		return Quantity{}, 0, 0, false
	}
	q := Quantity{Value: value, Unit: UnitCount}
	if loc[4] >= 0 {
		label := text[loc[4]:loc[5]]
		rule := unitFor(label)
		q.Unit = rule.unit
		q.Value = value * rule.factor
		if rule.unit != UnitGram && rule.unit != UnitMilliliter {
			q.Label = label
		}
	}
	return q, loc[0], loc[1], true
}

// Parse returns the first amount found in text. A bare number is read as a
// unit count ("2 ovos" is two units).
func Parse(text string) (Quantity, bool) {
	q, _, _, ok := find(normalize.Text(text))
	return q, ok
}

// SplitItem separates a food mention such as "100g de arroz" or "arroz 100g"
// into its normalized name and the quantity phrase. The quantity phrase is
// empty when none was found.
func SplitItem(text string) (name string, amount string) {
	norm := normalize.Text(text)
	_, start, end, ok := find(norm)
	if !ok {
		return strings.TrimSpace(trimConnectors(norm)), ""
	}
	amount = norm[start:end]
	rest := strings.TrimSpace(norm[:start]) + " " + strings.TrimSpace(norm[end:])
	return strings.TrimSpace(trimConnectors(strings.TrimSpace(rest))), amount
}

func trimConnectors(s string) string {
	for _, p := range []string{"de ", "do ", "da ", "dos ", "das "} {
		s = strings.TrimPrefix(s, p)
	}
	for _, p := range []string{" de", " do", " da"} {
		s = strings.TrimSuffix(s, p)
	}
	return s
}

var listSeparatorRe = regexp.MustCompile(`\s*(?:,|;|\+|\s+e\s+)\s*`)

// SplitList splits a meal description into individual item mentions.
func SplitList(text string) []string {
	var parts []string
	for _, p := range listSeparatorRe.Split(normalize.Text(text), -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}
