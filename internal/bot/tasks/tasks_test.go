package tasks

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nutribot/internal/catalog"
	"github.com/edgard/nutribot/internal/database"
	"github.com/edgard/nutribot/internal/session"
	"github.com/edgard/nutribot/internal/tracking"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func newDeps(t *testing.T) TaskDeps {
	t.Helper()
	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)

	return TaskDeps{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:    store,
		Sessions: session.NewManager(store, session.Config{IdleWindow: 30 * time.Minute}, nil),
		Tracker:  tracking.NewTracker(store, tracking.Config{Location: time.UTC, DefaultCalorieTarget: 2000}, nil),
		Catalog:  catalog.NewCache(store, time.Hour, 10, nil),
		Now:      func() time.Time { return now },
	}
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()
	tasks := RegisterAllTasks(newDeps(t))

	for _, name := range []string{"sql_maintenance", "summary_repair", "conversation_sweep", "catalog_refresh"} {
		assert.Contains(t, tasks, name)
	}
}

func TestSummaryRepairTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	deps := newDeps(t)

	require.NoError(t, deps.Store.CommitMeal(ctx, &database.MealLog{
		Identity: "tg:1", LocalDate: "2026-10-16", ItemName: "Arroz branco", Grams: 100, Calories: 130,
	}))
	// Drift the stored totals.
	require.NoError(t, deps.Store.ReplaceDailySummary(ctx, &database.DailySummary{
		Identity: "tg:1", LocalDate: "2026-10-16", CaloriesConsumed: 999,
	}))

	require.NoError(t, newSummaryRepairTask(deps)(ctx))

	sum, err := deps.Store.GetDailySummary(ctx, "tg:1", "2026-10-16")
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.InDelta(t, 130, sum.CaloriesConsumed, 1e-9)
	assert.Equal(t, 1, sum.MealsCount)
}

func TestConversationSweepTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	deps := newDeps(t)

	_, err := deps.Sessions.Resolve(ctx, "tg:1", now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = deps.Sessions.Resolve(ctx, "tg:2", now.Add(-time.Minute))
	require.NoError(t, err)

	require.NoError(t, newConversationSweepTask(deps)(ctx))

	stale, err := deps.Store.GetActiveConversation(ctx, "tg:1")
	require.NoError(t, err)
	assert.Nil(t, stale)

	fresh, err := deps.Store.GetActiveConversation(ctx, "tg:2")
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}

func TestSQLMaintenanceAndCatalogRefresh(t *testing.T) {
	t.Parallel()
	deps := newDeps(t)

	assert.NoError(t, newSQLMaintenanceTask(deps)(context.Background()))
	assert.NoError(t, newCatalogRefreshTask(deps)(context.Background()))
}
