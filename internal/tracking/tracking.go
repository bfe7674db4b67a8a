// Package tracking keeps daily summaries, weekly grades and activity
// streaks. Local dates are computed in each user's time zone.
package tracking

import (
	"context"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/edgard/nutribot/internal/database"
)

// Store is the part of the repository used for aggregation.
type Store interface {
	GetUserProfile(ctx context.Context, identity string) (*database.UserProfile, error)
	SaveUserProfile(ctx context.Context, p *database.UserProfile) error
	ClaimStreakDay(ctx context.Context, identity, localDate string, at time.Time) (bool, error)

	EnsureDailySummary(ctx context.Context, identity, localDate string, at time.Time) (*database.DailySummary, error)
	ReplaceDailySummary(ctx context.Context, s *database.DailySummary) error
	ListDailySummaries(ctx context.Context, identity, fromDate, toDate string) ([]database.DailySummary, error)
	CommitMeal(ctx context.Context, log *database.MealLog) error
	CommitExercise(ctx context.Context, log *database.ExerciseLog) error
	ListMealLogs(ctx context.Context, identity, localDate string) ([]database.MealLog, error)
	ListExerciseLogs(ctx context.Context, identity, localDate string) ([]database.ExerciseLog, error)
	ListIdentitiesWithLogs(ctx context.Context, localDate string) ([]string, error)
}

// Config holds tracking defaults for new profiles.
type Config struct {
	Location             *time.Location
	DefaultWeightKg      float64
	DefaultCalorieTarget float64
	WeekDays             int
}

// Tracker implements the aggregation and gamification operations.
type Tracker struct {
	store Store
	cfg   Config
	log   *slog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(store Store, cfg Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.WeekDays <= 0 {
		cfg.WeekDays = 7
	}
	return &Tracker{store: store, cfg: cfg, log: logger.With("component", "tracker")}
}

// Location returns the zone used for p's calendar dates.
func (t *Tracker) Location(p *database.UserProfile) *time.Location {
	if p != nil && p.Timezone != "" {
		if loc, err := time.LoadLocation(p.Timezone); err == nil {
			return loc
		}
		t.log.Warn("Unknown profile time zone, using default", "identity", p.Identity, "timezone", p.Timezone)
	}
	return t.cfg.Location
}

// Profile returns the stored profile for identity, or a new unsaved one
// filled with defaults.
func (t *Tracker) Profile(ctx context.Context, identity, displayName string) (*database.UserProfile, error) {
	p, err := t.store.GetUserProfile(ctx, identity)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load profile", goerr.V("identity", identity))
	}
	if p != nil {
		return p, nil
	}
	return t.DefaultProfile(identity, displayName), nil
}

// DefaultProfile returns an unsaved profile filled with the configured
// defaults.
func (t *Tracker) DefaultProfile(identity, displayName string) *database.UserProfile {
	return &database.UserProfile{
		Identity:      identity,
		DisplayName:   displayName,
		WeightKg:      t.cfg.DefaultWeightKg,
		CalorieTarget: t.cfg.DefaultCalorieTarget,
		Timezone:      t.cfg.Location.String(),
	}
}

// SaveProfile persists p.
func (t *Tracker) SaveProfile(ctx context.Context, p *database.UserProfile) error {
	if err := t.store.SaveUserProfile(ctx, p); err != nil {
		return goerr.Wrap(err, "failed to save profile", goerr.V("identity", p.Identity))
	}
	return nil
}

// UpdateStreak counts a user message at now towards p's streak and saves
// the profile when the counters moved. The per-day claim keeps concurrent
// messages from counting the same day twice.
func (t *Tracker) UpdateStreak(ctx context.Context, p *database.UserProfile, now time.Time) (bool, error) {
	loc := t.Location(p)
	today := LocalDate(now, loc)

	claimed, err := t.store.ClaimStreakDay(ctx, p.Identity, today, now)
	if err != nil {
		return false, goerr.Wrap(err, "failed to claim streak day", goerr.V("identity", p.Identity))
	}

	st := StreakState{
		CurrentDays:       p.CurrentStreakDays,
		LongestDays:       p.LongestStreakDays,
		TotalDaysLogged:   p.TotalDaysLogged,
		LastUserMessageAt: p.LastUserMessageAt,
	}
	moved := claimed && st.Advance(now, loc)
	if !moved && p.ID != 0 {
		return false, nil
	}

	p.CurrentStreakDays = st.CurrentDays
	p.LongestStreakDays = st.LongestDays
	p.TotalDaysLogged = st.TotalDaysLogged
	p.LastUserMessageAt = st.LastUserMessageAt
	if err := t.SaveProfile(ctx, p); err != nil {
		return false, err
	}
	if moved {
		t.log.DebugContext(ctx, "Streak updated", "identity", p.Identity, "date", today, "current", p.CurrentStreakDays)
	}
	return moved, nil
}

// Daily returns the summary of identity for date, creating an empty one.
func (t *Tracker) Daily(ctx context.Context, identity, date string, now time.Time) (*database.DailySummary, error) {
	sum, err := t.store.EnsureDailySummary(ctx, identity, date, now)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load daily summary", goerr.V("identity", identity), goerr.V("date", date))
	}
	return sum, nil
}

// AddMeal stores a confirmed meal and adds it to its day's totals.
func (t *Tracker) AddMeal(ctx context.Context, m *database.MealLog) error {
	if err := t.store.CommitMeal(ctx, m); err != nil {
		return goerr.Wrap(err, "failed to commit meal", goerr.V("identity", m.Identity), goerr.V("item", m.ItemName))
	}
	return nil
}

// AddExercise stores a confirmed workout and adds it to its day's totals.
func (t *Tracker) AddExercise(ctx context.Context, e *database.ExerciseLog) error {
	if err := t.store.CommitExercise(ctx, e); err != nil {
		return goerr.Wrap(err, "failed to commit exercise", goerr.V("identity", e.Identity), goerr.V("item", e.ItemName))
	}
	return nil
}

// Totals folds confirmed child records into summary totals.
func Totals(identity, date string, meals []database.MealLog, workouts []database.ExerciseLog) database.DailySummary {
	sum := database.DailySummary{Identity: identity, LocalDate: date}
	for _, m := range meals {
		if m.Status != "" && m.Status != database.LogConfirmed {
			continue
		}
		sum.CaloriesConsumed += m.Calories
		sum.Protein += m.Protein
		sum.Carbs += m.Carbs
		sum.Fat += m.Fat
		sum.MealsCount++
	}
	for _, w := range workouts {
		if w.Status != "" && w.Status != database.LogConfirmed {
			continue
		}
		sum.CaloriesBurned += w.CaloriesBurned
		sum.WorkoutsCount++
	}
	sum.NetCalories = sum.CaloriesConsumed - sum.CaloriesBurned
	return sum
}

// Recompute rebuilds a daily summary from its confirmed children.
// Running it twice yields the same totals.
func (t *Tracker) Recompute(ctx context.Context, identity, date string) (*database.DailySummary, error) {
	meals, err := t.store.ListMealLogs(ctx, identity, date)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list meals", goerr.V("identity", identity), goerr.V("date", date))
	}
	workouts, err := t.store.ListExerciseLogs(ctx, identity, date)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list workouts", goerr.V("identity", identity), goerr.V("date", date))
	}

	sum := Totals(identity, date, meals, workouts)
	if err := t.store.ReplaceDailySummary(ctx, &sum); err != nil {
		return nil, goerr.Wrap(err, "failed to write recomputed summary", goerr.V("identity", identity), goerr.V("date", date))
	}
	return &sum, nil
}

// RecomputeRange rebuilds identity's summaries from from to to inclusive.
func (t *Tracker) RecomputeRange(ctx context.Context, identity, from, to string) (int, error) {
	days, err := DaysBetween(from, to)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := 0; i <= days; i++ {
		date, err := AddDays(from, i)
		if err != nil {
			return n, err
		}
		if _, err := t.Recompute(ctx, identity, date); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// RepairDate recomputes the summary of every identity with activity on
// date. Failures are logged and skipped.
func (t *Tracker) RepairDate(ctx context.Context, date string) (int, error) {
	identities, err := t.store.ListIdentitiesWithLogs(ctx, date)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list identities", goerr.V("date", date))
	}
	repaired := 0
	for _, id := range identities {
		if ctx.Err() != nil {
			return repaired, ctx.Err()
		}
		if _, err := t.Recompute(ctx, id, date); err != nil {
			t.log.WarnContext(ctx, "Failed to repair daily summary", "identity", id, "date", date, "error", err)
			continue
		}
		repaired++
	}
	return repaired, nil
}

// Grade is the letter assigned to a week.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

const maxCountedWorkouts = 4

// Score weighs days on target at 0.7 and workouts (capped at four) at 0.3,
// on a 0 to 100 scale.
func Score(daysInTarget, daysLogged, workouts int) float64 {
	var adherence float64
	if daysLogged > 0 {
		adherence = float64(daysInTarget) / float64(daysLogged)
	}
	activity := float64(min(workouts, maxCountedWorkouts)) / maxCountedWorkouts
	return math.Round(100*(0.7*adherence+0.3*activity)*100) / 100
}

// GradeFor maps a score to its letter.
func GradeFor(score float64) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 75:
		return GradeB
	case score >= 60:
		return GradeC
	default:
		return GradeD
	}
}

// WeeklyReport aggregates the daily summaries of a window.
type WeeklyReport struct {
	From             string
	To               string
	Days             int
	DaysLogged       int
	DaysInTarget     int
	Workouts         int
	CaloriesConsumed float64
	CaloriesBurned   float64
	AverageConsumed  float64
	Target           float64
	Score            float64
	Grade            Grade
}

// Weekly aggregates the days window ending at end (inclusive). Only days
// with intake count towards adherence.
func (t *Tracker) Weekly(ctx context.Context, identity, end string, days int, target float64) (*WeeklyReport, error) {
	if days <= 0 {
		days = t.cfg.WeekDays
	}
	if target <= 0 {
		target = t.cfg.DefaultCalorieTarget
	}
	from, err := AddDays(end, -(days - 1))
	if err != nil {
		return nil, err
	}

	sums, err := t.store.ListDailySummaries(ctx, identity, from, end)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list summaries", goerr.V("identity", identity))
	}

	r := &WeeklyReport{From: from, To: end, Days: days, Target: target}
	for _, s := range sums {
		r.CaloriesConsumed += s.CaloriesConsumed
		r.CaloriesBurned += s.CaloriesBurned
		r.Workouts += s.WorkoutsCount
		if s.CaloriesConsumed <= 0 {
			continue
		}
		r.DaysLogged++
		if s.CaloriesConsumed <= target {
			r.DaysInTarget++
		}
	}
	if r.DaysLogged > 0 {
		r.AverageConsumed = r.CaloriesConsumed / float64(r.DaysLogged)
	}
	r.Score = Score(r.DaysInTarget, r.DaysLogged, r.Workouts)
	r.Grade = GradeFor(r.Score)
	return r, nil
}
