package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/edgard/nutribot/internal/database"
)

//go:embed default_catalog.yaml
var defaultSeed []byte

// Seed is the on-disk catalog format.
type Seed struct {
	Foods     []FoodSeed     `yaml:"foods"`
	Exercises []ExerciseSeed `yaml:"exercises"`
}

// FoodSeed describes one food with per-100g coefficients.
type FoodSeed struct {
	Name         string             `yaml:"name"`
	Aliases      []string           `yaml:"aliases"`
	Calories     float64            `yaml:"calories"`
	Protein      float64            `yaml:"protein"`
	Carbs        float64            `yaml:"carbs"`
	Fat          float64            `yaml:"fat"`
	ServingGrams float64            `yaml:"serving_grams"`
	Measures     map[string]float64 `yaml:"measures"`
}

// ExerciseSeed describes one exercise with MET values per intensity.
type ExerciseSeed struct {
	Name           string   `yaml:"name"`
	Aliases        []string `yaml:"aliases"`
	METLight       float64  `yaml:"met_light"`
	METModerate    float64  `yaml:"met_moderate"`
	METVigorous    float64  `yaml:"met_vigorous"`
	DefaultMinutes int      `yaml:"default_minutes"`
}

// Writer persists catalog items.
type Writer interface {
	UpsertCatalogItem(ctx context.Context, item *database.CatalogItem) error
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(r io.Reader) (*Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, goerr.Wrap(err, "failed to decode catalog seed")
	}
	for i, f := range s.Foods {
		if f.Name == "" || f.Calories < 0 {
			return nil, goerr.New("invalid food entry", goerr.V("index", i), goerr.V("name", f.Name))
		}
	}
	for i, e := range s.Exercises {
		if e.Name == "" || e.METModerate <= 0 {
			return nil, goerr.New("invalid exercise entry", goerr.V("index", i), goerr.V("name", e.Name))
		}
	}
	return &s, nil
}

// LoadSeedFile reads a seed from path, or the built-in catalog when path is
// empty.
func LoadSeedFile(path string) (*Seed, error) {
	if path == "" {
		return DefaultSeed()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open catalog seed", goerr.V("path", path))
	}
	defer f.Close()
	return ParseSeed(f)
}

// DefaultSeed returns the built-in catalog.
func DefaultSeed() (*Seed, error) {
	return ParseSeed(bytes.NewReader(defaultSeed))
}

// Apply upserts every seed entry and returns how many items were written.
func (s *Seed) Apply(ctx context.Context, w Writer) (int, error) {
	n := 0
	for _, f := range s.Foods {
		serving := f.ServingGrams
		if serving <= 0 {
			serving = 100
		}
		item := &database.CatalogItem{
			Kind:            database.KindFood,
			Name:            f.Name,
			Aliases:         f.Aliases,
			CaloriesPer100g: f.Calories,
			ProteinPer100g:  f.Protein,
			CarbsPer100g:    f.Carbs,
			FatPer100g:      f.Fat,
			ServingGrams:    serving,
			Measures:        database.Measures(f.Measures),
		}
		if err := w.UpsertCatalogItem(ctx, item); err != nil {
			return n, err
		}
		n++
	}
	for _, e := range s.Exercises {
		minutes := e.DefaultMinutes
		if minutes <= 0 {
			minutes = 30
		}
		item := &database.CatalogItem{
			Kind:           database.KindExercise,
			Name:           e.Name,
			Aliases:        e.Aliases,
			METLight:       e.METLight,
			METModerate:    e.METModerate,
			METVigorous:    e.METVigorous,
			DefaultMinutes: minutes,
		}
		if err := w.UpsertCatalogItem(ctx, item); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
