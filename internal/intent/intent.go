// Package intent classifies user messages into the fixed intent taxonomy.
// The language model is tried first under a deadline; ordered regex rules,
// carry-over of the previous intent and a default follow.
package intent

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/nutribot/internal/gemini"
)

// Intent is one label of the taxonomy.
type Intent string

const (
	Greeting      Intent = "greeting"
	Help          Intent = "help"
	LogMeal       Intent = "log_meal"
	LogExercise   Intent = "log_exercise"
	Confirm       Intent = "confirm"
	Reject        Intent = "reject"
	DailySummary  Intent = "daily_summary"
	WeeklySummary Intent = "weekly_summary"
	Streak        Intent = "streak"
	SetWeight     Intent = "set_weight"
	SetGoal       Intent = "set_goal"
	Unknown       Intent = "unknown"
)

// Taxonomy lists every intent the classifier may return.
var Taxonomy = []Intent{
	Greeting, Help, LogMeal, LogExercise, Confirm, Reject,
	DailySummary, WeeklySummary, Streak, SetWeight, SetGoal, Unknown,
}

// Valid reports whether i belongs to the taxonomy.
func (i Intent) Valid() bool {
	for _, t := range Taxonomy {
		if t == i {
			return true
		}
	}
	return false
}

// IsLogging reports whether the intent carries extracted items.
func (i Intent) IsLogging() bool { return i == LogMeal || i == LogExercise }

// Source names the classification tier that produced a result.
type Source string

const (
	SourceLLM     Source = "llm"
	SourceRules   Source = "rules"
	SourceCarry   Source = "carry_over"
	SourceDefault Source = "default"
)

const (
	ruleConfidence  = 0.9
	carryConfidence = 0.5
)

// Result is the classifier verdict for one batch.
type Result struct {
	Intent     Intent
	Confidence float64
	Items      []Item
	Source     Source
}

// Input is what the classifier sees for one batch of user messages.
type Input struct {
	// Batch holds the user messages since the last assistant reply, oldest
	// first. The last element is the latest message.
	Batch []string
	// History holds earlier user-only lines for model context, oldest first.
	History      []string
	LastIntent   Intent
	LastIntentAt time.Time
	Now          time.Time
}

func (in Input) latest() string {
	if len(in.Batch) == 0 {
		return ""
	}
	return in.Batch[len(in.Batch)-1]
}

// LLM is the model capability used for the first tier.
type LLM interface {
	Classify(ctx context.Context, req gemini.ClassifyRequest) (*gemini.Classification, error)
}

// Config tunes the classifier.
type Config struct {
	Timeout         time.Duration
	HistoryWindow   int
	CarryOverWindow time.Duration
}

// Classifier runs the tiers in order and never fails.
type Classifier struct {
	llm   LLM
	cfg   Config
	rules []rule
	log   *slog.Logger
}

// NewClassifier creates a Classifier. llm may be nil to run rules only.
func NewClassifier(llm LLM, cfg Config, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3000 * time.Millisecond
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 4
	}
	if cfg.CarryOverWindow <= 0 {
		cfg.CarryOverWindow = 5 * time.Minute
	}
	return &Classifier{
		llm:   llm,
		cfg:   cfg,
		rules: defaultRules(),
		log:   logger.With("component", "intent_classifier"),
	}
}

// Classify returns the first tier that produces a verdict.
func (c *Classifier) Classify(ctx context.Context, in Input) Result {
	if res, ok := c.classifyLLM(ctx, in); ok {
		return c.withItems(res, strings.Join(in.Batch, "\n"))
	}

	latest := in.latest()
	if res, ok := c.classifyRules(latest); ok {
		return c.withItems(res, latest)
	}

	if in.LastIntent != "" && in.LastIntent != Unknown && in.LastIntent.Valid() &&
		!in.LastIntentAt.IsZero() && in.Now.Sub(in.LastIntentAt) <= c.cfg.CarryOverWindow {
		return c.withItems(Result{Intent: in.LastIntent, Confidence: carryConfidence, Source: SourceCarry}, latest)
	}

	return Result{Intent: Unknown, Confidence: 0, Source: SourceDefault}
}

// withItems fills deterministic items for logging intents that have none.
func (c *Classifier) withItems(res Result, text string) Result {
	if !res.Intent.IsLogging() || len(res.Items) > 0 {
		return res
	}
	if res.Intent == LogMeal {
		res.Items = ExtractMeals(text)
	} else {
		res.Items = ExtractExercises(text)
	}
	return res
}

type llmOutcome struct {
	res *gemini.Classification
	err error
}

// classifyLLM races the model against the timeout. The losing call is left
// to finish on its own.
func (c *Classifier) classifyLLM(ctx context.Context, in Input) (Result, bool) {
	if c.llm == nil || len(in.Batch) == 0 {
		return Result{}, false
	}

	history := in.History
	if n := c.cfg.HistoryWindow; len(history) > n {
		history = history[len(history)-n:]
	}
	req := gemini.ClassifyRequest{
		Text:    strings.Join(in.Batch, "\n"),
		History: history,
		Intents: taxonomyStrings(),
	}

	done := make(chan llmOutcome, 1)
	go func() {
		res, err := c.llm.Classify(ctx, req)
		done <- llmOutcome{res: res, err: err}
	}()

	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil || out.res == nil {
			c.log.DebugContext(ctx, "LLM classification missed", "error", out.err)
			return Result{}, false
		}
		return c.validate(ctx, out.res)
	case <-timer.C:
		c.log.InfoContext(ctx, "LLM classification timed out", "timeout", c.cfg.Timeout)
		return Result{}, false
	case <-ctx.Done():
		return Result{}, false
	}
}

// validate turns the raw model output into a Result. Out-of-taxonomy and
// unknown verdicts are misses so the rules get a chance.
func (c *Classifier) validate(ctx context.Context, raw *gemini.Classification) (Result, bool) {
	in := Intent(strings.TrimSpace(strings.ToLower(raw.Intent)))
	if !in.Valid() || in == Unknown {
		c.log.DebugContext(ctx, "LLM returned unusable intent", "intent", raw.Intent)
		return Result{}, false
	}

	conf := raw.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	res := Result{Intent: in, Confidence: conf, Source: SourceLLM}
	if in.IsLogging() {
		res.Items = ItemsFromRaw(in, raw.Items)
	}
	return res, true
}

func taxonomyStrings() []string {
	out := make([]string, len(Taxonomy))
	for i, t := range Taxonomy {
		out[i] = string(t)
	}
	return out
}
