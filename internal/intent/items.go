package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/edgard/nutribot/internal/gemini"
	"github.com/edgard/nutribot/internal/normalize"
	"github.com/edgard/nutribot/internal/quantity"
)

// ItemKind tags the variants of Item.
type ItemKind string

const (
	KindMeal     ItemKind = "meal"
	KindExercise ItemKind = "exercise"
)

// Item is a mention extracted from the message: a MealItem or an
// ExerciseItem.
type Item interface {
	Kind() ItemKind
	ItemName() string
}

// MealItem is a food mention with its amount text.
type MealItem struct {
	Name     string
	Quantity string
}

// Kind implements Item.
func (MealItem) Kind() ItemKind { return KindMeal }

// ItemName implements Item.
func (m MealItem) ItemName() string { return m.Name }

// ExerciseItem is an activity mention with its duration text.
type ExerciseItem struct {
	Name     string
	Duration string
}

// Kind implements Item.
func (ExerciseItem) Kind() ItemKind { return KindExercise }

// ItemName implements Item.
func (e ExerciseItem) ItemName() string { return e.Name }

// ItemsFromRaw keeps the raw model items that match the intent and have a
// name.
func ItemsFromRaw(in Intent, raw []gemini.RawItem) []Item {
	var items []Item
	for _, r := range raw {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			continue
		}
		switch {
		case ItemKind(r.Kind) == KindMeal && in == LogMeal:
			items = append(items, MealItem{Name: name, Quantity: strings.TrimSpace(r.Quantity)})
		case ItemKind(r.Kind) == KindExercise && in == LogExercise:
			items = append(items, ExerciseItem{Name: name, Duration: strings.TrimSpace(r.Duration)})
		}
	}
	return items
}

var mealLeadRe = regexp.MustCompile(`^(?:(?:eu|hoje|agora|acabei de|ja)\s+)*` +
	`(?:comi|almocei|jantei|tomei|bebi|lanchei|belisquei|comendo|tomando)\b\s*` +
	`(?:(?:no|de|pro|na|do)\s+(?:cafe da manha|almoco|jantar|lanche|janta|ceia)\s*:?\s*)?`)

var mealPrefixRe = regexp.MustCompile(`^(?:(?:no|de|pro|na|do)\s+)?(?:cafe da manha|almoco|jantar|lanche|janta|ceia)\s*:?\s*`)

var mealStopRe = regexp.MustCompile(`^(?:(?:e|tambem|mais|um pouco de|uns|umas)\s+)+`)

// ExtractMeals derives meal items from free text without the model:
// "comi 100g de arroz e 2 ovos" gives arroz/100g and ovos/2.
func ExtractMeals(text string) []Item {
	norm := normalize.Text(text)
	norm = mealPrefixRe.ReplaceAllString(norm, "")
	norm = mealLeadRe.ReplaceAllString(norm, "")
	norm = mealPrefixRe.ReplaceAllString(norm, "")

	var items []Item
	for _, part := range quantity.SplitList(norm) {
		part = mealStopRe.ReplaceAllString(part, "")
		name, amount := quantity.SplitItem(part)
		name = strings.Trim(name, " .!?")
		if name == "" {
			continue
		}
		items = append(items, MealItem{Name: name, Quantity: amount})
	}
	return items
}

var durationSpanRe = regexp.MustCompile(`\b(?:\d+\s*h\s*\d{1,2}(?:\s*(?:minutos?|mins?|m))?\b|` +
	`(?:\d+(?:[.,]\d+)?|uma|um|duas|dois|tres)\s*(?:horas?|hrs?|h)(?:\s+e\s+(?:meia|\d+\s*(?:minutos?|mins?|m)))?\b|` +
	`\d+\s*(?:minutos?|mins?)\b|meia hora)`)

var exerciseStopWords = map[string]bool{
	"eu": true, "hoje": true, "fiz": true, "de": true, "do": true, "da": true,
	"por": true, "durante": true, "um": true, "uma": true, "pouco": true,
	"bem": true, "agora": true, "ja": true, "acabei": true, "mais": true,
	"tambem": true, "min": true, "minutos": true,
}

var placeholderRe = regexp.MustCompile(`dur(\d+)x`)

// ExtractExercises derives exercise items from free text without the
// model. Duration phrases are kept whole even when they contain " e ".
func ExtractExercises(text string) []Item {
	norm := normalize.Text(text)

	var spans []string
	protected := durationSpanRe.ReplaceAllStringFunc(norm, func(s string) string {
		spans = append(spans, s)
		return " dur" + strconv.Itoa(len(spans)-1) + "x "
	})

	var items []Item
	for _, part := range quantity.SplitList(protected) {
		var duration string
		if m := placeholderRe.FindStringSubmatch(part); m != nil {
			if i, err := strconv.Atoi(m[1]); err == nil && i < len(spans) {
				duration = spans[i]
			}
			part = placeholderRe.ReplaceAllString(part, " ")
		}

		var words []string
		for _, w := range strings.Fields(normalize.Spaced(part)) {
			// Stop words and distances ("5km") are not part of the name.
			if exerciseStopWords[w] || (w[0] >= '0' && w[0] <= '9') {
				continue
			}
			words = append(words, w)
		}
		name := strings.Join(words, " ")
		if name == "" {
			continue
		}
		items = append(items, ExerciseItem{Name: name, Duration: duration})
	}
	return items
}
