package tracking_test

import (
	"context"
	"database/sql"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nutribot/internal/database"
	"github.com/edgard/nutribot/internal/tracking"
)

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	return loc
}

func newTracker(t *testing.T) (*tracking.Tracker, database.Store) {
	t.Helper()
	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)
	tr := tracking.NewTracker(store, tracking.Config{
		Location:             saoPaulo(t),
		DefaultWeightKg:      70,
		DefaultCalorieTarget: 2000,
		WeekDays:             7,
	}, nil)
	return tr, store
}

func seedCatalog(t *testing.T, store database.Store) int64 {
	t.Helper()
	item := &database.CatalogItem{Kind: database.KindFood, Name: "Arroz", CaloriesPer100g: 130, ServingGrams: 100}
	require.NoError(t, store.UpsertCatalogItem(context.Background(), item))
	return item.ID
}

func TestLocalDateRollover(t *testing.T) {
	t.Parallel()
	loc := saoPaulo(t)

	// 23:59 and 00:01 in São Paulo are both on the 18th in UTC.
	lateNight := time.Date(2026, 10, 18, 2, 59, 0, 0, time.UTC)
	justAfter := time.Date(2026, 10, 18, 3, 1, 0, 0, time.UTC)

	assert.Equal(t, "2026-10-17", tracking.LocalDate(lateNight, loc))
	assert.Equal(t, "2026-10-18", tracking.LocalDate(justAfter, loc))
	assert.Equal(t, "2026-10-18", tracking.LocalDate(lateNight, time.UTC))
}

func TestDateHelpers(t *testing.T) {
	t.Parallel()

	d, err := tracking.AddDays("2026-03-01", -1)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-28", d)

	n, err := tracking.DaysBetween("2026-12-30", "2027-01-02")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = tracking.DaysBetween("ontem", "2027-01-02")
	assert.Error(t, err)
}

func TestStreakAdvance(t *testing.T) {
	t.Parallel()
	loc := saoPaulo(t)
	at := func(day, hour, minute int) time.Time {
		return time.Date(2026, 10, day, hour, minute, 0, 0, loc)
	}

	tests := []struct {
		name        string
		last        time.Time
		now         time.Time
		moved       bool
		wantCurrent int
		wantLongest int
		wantTotal   int
	}{
		{"Same day unchanged", at(17, 8, 0), at(17, 22, 0), false, 3, 5, 10},
		{"Next day increments", at(17, 8, 0), at(18, 9, 0), true, 4, 5, 11},
		{"Three days later resets", at(17, 8, 0), at(20, 9, 0), true, 1, 5, 11},
		{"Local midnight rollover", at(17, 23, 59), at(18, 0, 1), true, 4, 5, 11},
		{"Late evening same local day", at(17, 0, 1), at(17, 23, 59), false, 3, 5, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := tracking.StreakState{
				CurrentDays:       3,
				LongestDays:       5,
				TotalDaysLogged:   10,
				LastUserMessageAt: sql.NullTime{Time: tt.last.UTC(), Valid: true},
			}
			assert.Equal(t, tt.moved, st.Advance(tt.now.UTC(), loc))
			assert.Equal(t, tt.wantCurrent, st.CurrentDays)
			assert.Equal(t, tt.wantLongest, st.LongestDays)
			assert.Equal(t, tt.wantTotal, st.TotalDaysLogged)
		})
	}
}

func TestStreakLongestFollowsCurrent(t *testing.T) {
	t.Parallel()
	loc := saoPaulo(t)
	start := time.Date(2026, 10, 10, 12, 0, 0, 0, loc)

	var st tracking.StreakState
	require.True(t, st.Advance(start, loc))
	assert.Equal(t, 1, st.CurrentDays)
	assert.Equal(t, 1, st.LongestDays)

	for i := 1; i <= 3; i++ {
		require.True(t, st.Advance(start.AddDate(0, 0, i), loc))
	}
	assert.Equal(t, 4, st.CurrentDays)
	assert.Equal(t, 4, st.LongestDays)
	assert.Equal(t, 4, st.TotalDaysLogged)
}

func TestUpdateStreakPersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr, store := newTracker(t)
	loc := saoPaulo(t)

	p, err := tr.Profile(ctx, "tg:1", "Ana")
	require.NoError(t, err)
	assert.Zero(t, p.ID)
	assert.InDelta(t, 2000.0, p.CalorieTarget, 1e-9)
	assert.Equal(t, "America/Sao_Paulo", p.Timezone)

	day1 := time.Date(2026, 10, 17, 23, 59, 0, 0, loc)
	moved, err := tr.UpdateStreak(ctx, p, day1)
	require.NoError(t, err)
	assert.True(t, moved)

	// A second message on the same local day is a no-op.
	moved, err = tr.UpdateStreak(ctx, p, day1.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = tr.UpdateStreak(ctx, p, day1.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, moved)

	stored, err := store.GetUserProfile(ctx, "tg:1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 2, stored.CurrentStreakDays)
	assert.Equal(t, 2, stored.LongestStreakDays)
	assert.Equal(t, 2, stored.TotalDaysLogged)
}

func TestRecomputeIsFixedPoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr, store := newTracker(t)
	itemID := seedCatalog(t, store)
	date := "2026-10-17"

	require.NoError(t, tr.AddMeal(ctx, &database.MealLog{
		Identity: "tg:1", LocalDate: date, CatalogItemID: itemID, ItemName: "Arroz",
		Grams: 100, Calories: 130, Protein: 2.7, Carbs: 28, Fat: 0.3,
	}))
	require.NoError(t, tr.AddMeal(ctx, &database.MealLog{
		Identity: "tg:1", LocalDate: date, CatalogItemID: itemID, ItemName: "Arroz",
		Grams: 50, Calories: 65, Protein: 1.35, Carbs: 14, Fat: 0.15,
	}))
	require.NoError(t, tr.AddExercise(ctx, &database.ExerciseLog{
		Identity: "tg:1", LocalDate: date, CatalogItemID: itemID, ItemName: "Corrida",
		Minutes: 30, Intensity: database.IntensityModerate, CaloriesBurned: 280,
	}))

	additive, err := tr.Daily(ctx, "tg:1", date, time.Now())
	require.NoError(t, err)

	// Simulate drift on the stored row.
	drifted := *additive
	drifted.CaloriesConsumed = 9999
	require.NoError(t, store.ReplaceDailySummary(ctx, &drifted))

	first, err := tr.Recompute(ctx, "tg:1", date)
	require.NoError(t, err)
	second, err := tr.Recompute(ctx, "tg:1", date)
	require.NoError(t, err)

	assert.Equal(t, first.CaloriesConsumed, second.CaloriesConsumed)
	assert.Equal(t, first.NetCalories, second.NetCalories)
	assert.Equal(t, first.MealsCount, second.MealsCount)

	assert.InDelta(t, 195.0, first.CaloriesConsumed, 1e-9)
	assert.InDelta(t, 280.0, first.CaloriesBurned, 1e-9)
	assert.InDelta(t, -85.0, first.NetCalories, 1e-9)
	assert.Equal(t, 2, first.MealsCount)
	assert.Equal(t, 1, first.WorkoutsCount)

	assert.InDelta(t, additive.CaloriesConsumed, first.CaloriesConsumed, 1e-9)
	assert.InDelta(t, additive.NetCalories, first.NetCalories, 1e-9)
	assert.InDelta(t, additive.Protein, first.Protein, 1e-9)

	stored, err := tr.Daily(ctx, "tg:1", date, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 195.0, stored.CaloriesConsumed, 1e-9)
}

func TestDailyIsLazy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr, _ := newTracker(t)

	sum, err := tr.Daily(ctx, "tg:9", "2026-10-17", time.Now())
	require.NoError(t, err)
	assert.Zero(t, sum.CaloriesConsumed)
	assert.Zero(t, sum.MealsCount)
}

func TestRepairDate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr, store := newTracker(t)
	itemID := seedCatalog(t, store)

	for _, id := range []string{"tg:1", "tg:2"} {
		require.NoError(t, tr.AddMeal(ctx, &database.MealLog{
			Identity: id, LocalDate: "2026-10-16", CatalogItemID: itemID, ItemName: "Arroz", Grams: 100, Calories: 130,
		}))
	}
	n, err := tr.RepairDate(ctx, "2026-10-16")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = tr.RecomputeRange(ctx, "tg:1", "2026-10-14", "2026-10-16")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestScoreAndGrade(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		inTarget  int
		logged    int
		workouts  int
		wantScore float64
		wantGrade tracking.Grade
	}{
		{"Perfect week", 7, 7, 4, 100, tracking.GradeA},
		{"Workouts capped", 7, 7, 9, 100, tracking.GradeA},
		{"Boundary A", 6, 7, 4, 90, tracking.GradeA},
		{"B", 7, 7, 1, 77.5, tracking.GradeB},
		{"C", 5, 7, 2, 65, tracking.GradeC},
		{"Diet only", 5, 5, 0, 70, tracking.GradeC},
		{"Nothing logged", 0, 0, 4, 30, tracking.GradeD},
		{"Empty", 0, 0, 0, 0, tracking.GradeD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			score := tracking.Score(tt.inTarget, tt.logged, tt.workouts)
			assert.InDelta(t, tt.wantScore, score, 0.01)
			assert.Equal(t, tt.wantGrade, tracking.GradeFor(score))
		})
	}
}

func TestWeekly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr, store := newTracker(t)

	days := []database.DailySummary{
		{LocalDate: "2026-10-10", CaloriesConsumed: 3000}, // outside the window
		{LocalDate: "2026-10-11", CaloriesConsumed: 1800, WorkoutsCount: 1},
		{LocalDate: "2026-10-13", CaloriesConsumed: 2500},
		{LocalDate: "2026-10-15", CaloriesConsumed: 1900, CaloriesBurned: 300, WorkoutsCount: 2},
		{LocalDate: "2026-10-17", CaloriesConsumed: 2000, WorkoutsCount: 1},
	}
	for i := range days {
		days[i].Identity = "tg:1"
		require.NoError(t, store.ReplaceDailySummary(ctx, &days[i]))
	}

	r, err := tr.Weekly(ctx, "tg:1", "2026-10-17", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-11", r.From)
	assert.Equal(t, 7, r.Days)
	assert.Equal(t, 4, r.DaysLogged)
	assert.Equal(t, 3, r.DaysInTarget)
	assert.Equal(t, 4, r.Workouts)
	assert.InDelta(t, 8200.0, r.CaloriesConsumed, 1e-9)
	assert.InDelta(t, 2050.0, r.AverageConsumed, 1e-9)
	// 100 * (0.7 * 3/4 + 0.3) = 82.5
	assert.InDelta(t, 82.5, r.Score, 0.01)
	assert.Equal(t, tracking.GradeB, r.Grade)
}
