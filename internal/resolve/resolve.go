// Package resolve maps free-text food and exercise mentions to catalog items
// with a calibrated amount. Lookups cascade from exact matching to fuzzy
// search, and amounts cascade from direct units to the language model.
package resolve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/edgard/nutribot/internal/catalog"
	"github.com/edgard/nutribot/internal/database"
	"github.com/edgard/nutribot/internal/fuzzy"
	"github.com/edgard/nutribot/internal/normalize"
)

// ErrNotFound is returned when no catalog stage accepts the query.
var ErrNotFound = goerr.New("catalog item not found")

// Method names the stage that produced a catalog match.
type Method string

const (
	MethodCache     Method = "cache"
	MethodExact     Method = "exact"
	MethodPrefix    Method = "prefix"
	MethodSubstring Method = "substring"
	MethodFuzzy     Method = "fuzzy"
)

// AmountMethod names the strategy that produced the amount.
type AmountMethod string

const (
	AmountDirect  AmountMethod = "direct"
	AmountMeasure AmountMethod = "measure"
	AmountLLM     AmountMethod = "llm"
	AmountServing AmountMethod = "serving"
)

// Store is the subset of the repository used by the cascade.
type Store interface {
	FindCatalogExact(ctx context.Context, kind database.CatalogKind, normalized, compact string) (*database.CatalogItem, error)
	FindCatalogByPrefix(ctx context.Context, kind database.CatalogKind, prefix string, limit int) ([]database.CatalogItem, error)
	FindCatalogContaining(ctx context.Context, kind database.CatalogKind, tokens []string, limit int) ([]database.CatalogItem, error)
	BumpCatalogUsage(ctx context.Context, id int64, at time.Time) error
	LogResolutionFallback(ctx context.Context, fb *database.ResolutionFallback) error
}

// Candidates serves the fuzzy candidate set of a kind.
type Candidates interface {
	Snapshot(ctx context.Context, kind database.CatalogKind) (*catalog.Snapshot, error)
}

// Converter asks an external model to convert amounts the catalog cannot.
// Both methods return a strictly positive value or an error.
type Converter interface {
	ConvertUnit(ctx context.Context, item, amount string, servingGrams float64, measures map[string]float64) (float64, error)
	ConvertDuration(ctx context.Context, activity, text string) (float64, error)
}

// DefaultShortQueryLength is the longest normalized name that skips the
// substring and fuzzy stages.
const DefaultShortQueryLength = 5

// Config tunes the cascade.
type Config struct {
	FoodThreshold     float64
	ExerciseThreshold float64
	ShortQueryLength  int
	ConversionTimeout time.Duration
	MaxQueryRunes     int
}

// Resolver runs the catalog and amount cascades.
type Resolver struct {
	store    Store
	cands    Candidates
	conv     Converter
	food     *fuzzy.Matcher
	exercise *fuzzy.Matcher
	cfg      Config
	stages   []stage
	log      *slog.Logger
	now      func() time.Time
}

type query struct {
	raw     string
	spaced  string
	compact string
}

type stage struct {
	method Method
	run    func(ctx context.Context, kind database.CatalogKind, q query) (*database.CatalogItem, error)
}

// errStop ends the cascade early without a match.
var errStop = errors.New("stop cascade")

// New creates a Resolver. conv may be nil, in which case amount conversion
// skips straight to serving defaults.
func New(store Store, cands Candidates, conv Converter, dist fuzzy.Distancer, cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.FoodThreshold <= 0 {
		cfg.FoodThreshold = 0.75
	}
	if cfg.ExerciseThreshold <= 0 {
		cfg.ExerciseThreshold = 0.70
	}
	if cfg.ShortQueryLength <= 0 {
		cfg.ShortQueryLength = DefaultShortQueryLength
	}
	if cfg.ConversionTimeout <= 0 {
		cfg.ConversionTimeout = 4 * time.Second
	}
	if cfg.MaxQueryRunes <= 0 {
		cfg.MaxQueryRunes = fuzzy.DefaultMaxRunes
	}
	r := &Resolver{
		store:    store,
		cands:    cands,
		conv:     conv,
		food:     fuzzy.NewMatcher(dist, cfg.FoodThreshold),
		exercise: fuzzy.NewMatcher(dist, cfg.ExerciseThreshold),
		cfg:      cfg,
		log:      logger.With("component", "resolver"),
		now:      time.Now,
	}
	r.stages = []stage{
		{MethodExact, r.exactStage},
		{MethodPrefix, r.prefixStage},
		{"", r.shortQueryGuard},
		{MethodSubstring, r.substringStage},
		{MethodFuzzy, r.fuzzyStage},
	}
	return r
}

// SetClock replaces the time source. Intended for tests.
func (r *Resolver) SetClock(now func() time.Time) { r.now = now }

// Scope memoizes resolutions for the duration of one inbound message.
type Scope struct {
	mu      sync.Mutex
	entries map[scopeKey]scopeEntry
}

type scopeKey struct {
	kind   database.CatalogKind
	name   string
	amount string
}

type scopeEntry struct {
	ref *Reference
	err error
}

// NewScope returns an empty per-message cache.
func NewScope() *Scope {
	return &Scope{entries: make(map[scopeKey]scopeEntry)}
}

func (s *Scope) get(k scopeKey) (scopeEntry, bool) {
	if s == nil {
		return scopeEntry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	return e, ok
}

func (s *Scope) put(k scopeKey, e scopeEntry) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.entries[k] = e
	s.mu.Unlock()
}

// ResolveFood resolves a food mention and its amount text (for example
// "2 colheres") to grams.
func (r *Resolver) ResolveFood(ctx context.Context, scope *Scope, identity, name, amount string) (*Reference, error) {
	key := scopeKey{database.KindFood, name, amount}
	if e, ok := scope.get(key); ok {
		return cached(e)
	}

	item, method, err := r.lookup(ctx, database.KindFood, identity, name)
	if err != nil {
		scope.put(key, scopeEntry{err: err})
		return nil, err
	}

	grams, q, amountMethod := r.foodAmount(ctx, item, amount)
	ref := &Reference{
		Item:         *item,
		Query:        name,
		Amount:       grams,
		Unit:         UnitGrams,
		Quantity:     q,
		Method:       method,
		AmountMethod: amountMethod,
	}
	scope.put(key, scopeEntry{ref: ref})
	return ref.clone(), nil
}

// ResolveExercise resolves an exercise mention and its duration text to
// minutes. Intensity words in either string select the MET coefficient.
func (r *Resolver) ResolveExercise(ctx context.Context, scope *Scope, identity, name, duration string) (*Reference, error) {
	key := scopeKey{database.KindExercise, name, duration}
	if e, ok := scope.get(key); ok {
		return cached(e)
	}

	intensity := DetectIntensity(name + " " + duration)
	activity := stripIntensity(name)
	if activity == "" {
		activity = name
	}

	item, method, err := r.lookup(ctx, database.KindExercise, identity, activity)
	if err != nil {
		scope.put(key, scopeEntry{err: err})
		return nil, err
	}

	minutes, amountMethod := r.exerciseAmount(ctx, item, duration)
	ref := &Reference{
		Item:         *item,
		Query:        name,
		Amount:       minutes,
		Unit:         UnitMinutes,
		Intensity:    intensity,
		Method:       method,
		AmountMethod: amountMethod,
	}
	scope.put(key, scopeEntry{ref: ref})
	return ref.clone(), nil
}

func cached(e scopeEntry) (*Reference, error) {
	if e.err != nil {
		return nil, e.err
	}
	ref := e.ref.clone()
	ref.Method = MethodCache
	return ref, nil
}

// lookup runs the catalog stages in order. A miss is logged as a fallback
// record and reported as ErrNotFound.
func (r *Resolver) lookup(ctx context.Context, kind database.CatalogKind, identity, name string) (*database.CatalogItem, Method, error) {
	q := query{raw: name, spaced: normalize.Spaced(name), compact: normalize.Compact(name)}
	if q.compact != "" {
		for _, st := range r.stages {
			item, err := st.run(ctx, kind, q)
			if errors.Is(err, errStop) {
				break
			}
			if err != nil {
				return nil, "", err
			}
			if item != nil {
				r.bumpUsage(ctx, item)
				r.log.DebugContext(ctx, "Catalog match", "kind", kind, "query", name, "item", item.Name, "method", st.method)
				return item, st.method, nil
			}
		}
	}

	r.log.InfoContext(ctx, "Catalog miss", "kind", kind, "query", name, "normalized", q.spaced, "identity", identity)
	fb := &database.ResolutionFallback{
		Kind:            kind,
		Query:           name,
		NormalizedQuery: q.spaced,
		Identity:        identity,
		CreatedAt:       r.now().UTC(),
	}
	if err := r.store.LogResolutionFallback(ctx, fb); err != nil {
		r.log.WarnContext(ctx, "Failed to record resolution fallback", "query", name, "error", err)
	}
	return nil, "", goerr.Wrap(ErrNotFound, "no catalog stage matched", goerr.V("kind", kind), goerr.V("query", name))
}

func (r *Resolver) bumpUsage(ctx context.Context, item *database.CatalogItem) {
	if err := r.store.BumpCatalogUsage(ctx, item.ID, r.now().UTC()); err != nil {
		r.log.WarnContext(ctx, "Failed to bump catalog usage", "item_id", item.ID, "error", err)
	}
}

func (r *Resolver) exactStage(ctx context.Context, kind database.CatalogKind, q query) (*database.CatalogItem, error) {
	item, err := r.store.FindCatalogExact(ctx, kind, q.spaced, q.compact)
	if err != nil {
		return nil, goerr.Wrap(err, "exact catalog lookup failed")
	}
	return item, nil
}

func (r *Resolver) prefixStage(ctx context.Context, kind database.CatalogKind, q query) (*database.CatalogItem, error) {
	if q.spaced == "" {
		return nil, nil
	}
	items, err := r.store.FindCatalogByPrefix(ctx, kind, q.spaced, 1)
	if err != nil {
		return nil, goerr.Wrap(err, "prefix catalog lookup failed")
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// shortQueryGuard stops the cascade for short queries, which match too many
// unrelated names in the looser stages.
func (r *Resolver) shortQueryGuard(_ context.Context, _ database.CatalogKind, q query) (*database.CatalogItem, error) {
	if len([]rune(q.compact)) <= r.cfg.ShortQueryLength {
		return nil, errStop
	}
	return nil, nil
}

func (r *Resolver) substringStage(ctx context.Context, kind database.CatalogKind, q query) (*database.CatalogItem, error) {
	tokens := normalize.Words(q.spaced, 3)
	if len(tokens) == 0 {
		return nil, nil
	}
	items, err := r.store.FindCatalogContaining(ctx, kind, tokens, 50)
	if err != nil {
		return nil, goerr.Wrap(err, "substring catalog lookup failed")
	}
	for i := range items {
		if containsAllWords(items[i].NormalizedName, tokens) {
			return &items[i], nil
		}
	}
	return nil, nil
}

func containsAllWords(name string, tokens []string) bool {
	for _, t := range tokens {
		if !normalize.HasWord(name, t) {
			return false
		}
	}
	return true
}

func (r *Resolver) fuzzyStage(ctx context.Context, kind database.CatalogKind, q query) (*database.CatalogItem, error) {
	if r.cands == nil {
		return nil, nil
	}
	snap, err := r.cands.Snapshot(ctx, kind)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load fuzzy candidates")
	}

	matcher := r.food
	if kind == database.KindExercise {
		matcher = r.exercise
	}
	raw := q.raw
	if runes := []rune(raw); len(runes) > r.cfg.MaxQueryRunes {
		raw = string(runes[:r.cfg.MaxQueryRunes])
	}
	m, ok := matcher.Best(raw, snap.Candidates)
	if !ok {
		return nil, nil
	}
	item := snap.Items[m.Index]
	r.log.DebugContext(ctx, "Fuzzy catalog match", "query", q.raw, "item", item.Name, "score", m.Score)
	return &item, nil
}
