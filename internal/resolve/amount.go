package resolve

import (
	"context"
	"slices"
	"strings"

	"github.com/edgard/nutribot/internal/database"
	"github.com/edgard/nutribot/internal/normalize"
	"github.com/edgard/nutribot/internal/quantity"
)

const (
	UnitGrams   = "g"
	UnitMinutes = "min"

	defaultServingGrams = 100
	defaultMinutes      = 30
)

// Reference is a resolved catalog item with its amount in grams (food) or
// minutes (exercise).
type Reference struct {
	Item         database.CatalogItem
	Query        string
	Amount       float64
	Unit         string
	Quantity     quantity.Quantity
	Intensity    database.Intensity
	Method       Method
	AmountMethod AmountMethod
}

func (r *Reference) clone() *Reference {
	c := *r
	return &c
}

// Nutrients is the energy and macro content of a food amount.
type Nutrients struct {
	Calories float64
	Protein  float64
	Carbs    float64
	Fat      float64
}

// Nutrients scales the per-100g coefficients to the resolved grams.
func (r *Reference) Nutrients() Nutrients {
	f := r.Amount / 100
	return Nutrients{
		Calories: r.Item.CaloriesPer100g * f,
		Protein:  r.Item.ProteinPer100g * f,
		Carbs:    r.Item.CarbsPer100g * f,
		Fat:      r.Item.FatPer100g * f,
	}
}

// CaloriesBurned applies MET × kg × hours.
func (r *Reference) CaloriesBurned(weightKg float64) float64 {
	return r.Item.MET(r.Intensity) * weightKg * r.Amount / 60
}

// foodAmount converts amount text to grams: direct grams, then the item's
// named measures, then the converter, then serving size × value.
func (r *Resolver) foodAmount(ctx context.Context, item *database.CatalogItem, amount string) (float64, quantity.Quantity, AmountMethod) {
	q, parsed := quantity.Parse(amount)
	if !parsed {
		q = quantity.Quantity{Value: 1, Unit: quantity.UnitServing}
	}

	if parsed && q.Unit.IsMass() {
		return q.Value, q, AmountDirect
	}

	if parsed {
		if grams, ok := lookupMeasure(item.Measures, q); ok {
			return grams * q.Value, q, AmountMeasure
		}
		if q.Unit == quantity.UnitServing {
			return servingGrams(item) * q.Value, q, AmountServing
		}
	}

	if r.conv != nil && strings.TrimSpace(amount) != "" {
		cctx, cancel := context.WithTimeout(ctx, r.cfg.ConversionTimeout)
		grams, err := r.conv.ConvertUnit(cctx, item.Name, amount, servingGrams(item), item.Measures)
		cancel()
		if err == nil && grams > 0 {
			return grams, q, AmountLLM
		}
		r.log.DebugContext(ctx, "Unit conversion unavailable", "item", item.Name, "amount", amount, "error", err, "grams", grams)
	}

	// One milliliter is taken as one gram when no measure is declared.
	if q.Unit == quantity.UnitMilliliter {
		return q.Value, q, AmountServing
	}
	return servingGrams(item) * q.Value, q, AmountServing
}

func servingGrams(item *database.CatalogItem) float64 {
	if item.ServingGrams > 0 {
		return item.ServingGrams
	}
	return defaultServingGrams
}

// exerciseAmount converts duration text to minutes: direct parse, then the
// converter, then the item's default minutes.
func (r *Resolver) exerciseAmount(ctx context.Context, item *database.CatalogItem, duration string) (float64, AmountMethod) {
	if minutes, ok := quantity.ParseDuration(duration); ok {
		return float64(minutes), AmountDirect
	}

	if r.conv != nil && strings.TrimSpace(duration) != "" {
		cctx, cancel := context.WithTimeout(ctx, r.cfg.ConversionTimeout)
		minutes, err := r.conv.ConvertDuration(cctx, item.Name, duration)
		cancel()
		if err == nil && minutes > 0 && minutes <= quantity.MaxDurationMinutes {
			return minutes, AmountLLM
		}
		r.log.DebugContext(ctx, "Duration conversion unavailable", "item", item.Name, "duration", duration, "error", err, "minutes", minutes)
	}

	if item.DefaultMinutes > 0 {
		return float64(item.DefaultMinutes), AmountServing
	}
	return defaultMinutes, AmountServing
}

// lookupMeasure finds grams per measure for q in the item's measure table:
// exact label, then the first significant word singularized, then a
// substring match in either direction. The canonical unit name is tried the
// same way after the label.
func lookupMeasure(measures database.Measures, q quantity.Quantity) (float64, bool) {
	if len(measures) == 0 {
		return 0, false
	}
	table := make(map[string]float64, len(measures))
	keys := make([]string, 0, len(measures))
	for k, v := range measures {
		nk := normalize.Spaced(k)
		if nk == "" || v <= 0 {
			continue
		}
		table[nk] = v
		keys = append(keys, nk)
	}
	// Sorted so map order never decides a substring match.
	slices.Sort(keys)

	var labels []string
	if l := normalize.Spaced(q.Label); l != "" {
		labels = append(labels, l)
	}
	if u := string(q.Unit); u != "" {
		labels = append(labels, u)
	}

	for _, label := range labels {
		if g, ok := table[label]; ok {
			return g, true
		}
		word := firstSignificantWord(label)
		if word == "" {
			continue
		}
		if g, ok := table[word]; ok {
			return g, true
		}
		for _, k := range keys {
			if firstSignificantWord(k) == word {
				return table[k], true
			}
		}
		for _, k := range keys {
			if strings.Contains(k, word) || strings.Contains(label, k) {
				return table[k], true
			}
		}
	}
	return 0, false
}

func firstSignificantWord(s string) string {
	for _, w := range strings.Fields(s) {
		if len(w) >= 3 {
			return normalize.Singular(w)
		}
	}
	return ""
}

var intensityWords = map[string]database.Intensity{
	"leve":      database.IntensityLight,
	"levinho":   database.IntensityLight,
	"tranquilo": database.IntensityLight,
	"moderado":  database.IntensityModerate,
	"moderada":  database.IntensityModerate,
	"intenso":   database.IntensityVigorous,
	"intensa":   database.IntensityVigorous,
	"forte":     database.IntensityVigorous,
	"pesado":    database.IntensityVigorous,
	"pesada":    database.IntensityVigorous,
	"puxado":    database.IntensityVigorous,
	"puxada":    database.IntensityVigorous,
}

// DetectIntensity returns the intensity named in text, moderate when none.
func DetectIntensity(text string) database.Intensity {
	for _, w := range strings.Fields(normalize.Spaced(text)) {
		if i, ok := intensityWords[w]; ok {
			return i
		}
	}
	return database.IntensityModerate
}

func stripIntensity(name string) string {
	var kept []string
	for _, w := range strings.Fields(normalize.Spaced(name)) {
		if _, ok := intensityWords[w]; ok {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
