package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/m-mizutani/goerr/v2"
)

const summaryColumns = `id, identity, local_date, calories_consumed, calories_burned, net_calories,
	protein, carbs, fat, meals_count, workouts_count, created_at, updated_at`

// GetDailySummary returns the summary row for identity and date, or nil.
func (s *sqlxStore) GetDailySummary(ctx context.Context, identity, localDate string) (*DailySummary, error) {
	return getDailySummary(ctx, s.db, identity, localDate)
}

func getDailySummary(ctx context.Context, q sqlx.QueryerContext, identity, localDate string) (*DailySummary, error) {
	var sum DailySummary
	err := sqlx.GetContext(ctx, q, &sum,
		`SELECT `+summaryColumns+` FROM daily_summaries WHERE identity = ? AND local_date = ?`,
		identity, localDate)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, goerr.Wrap(err, "failed to get daily summary", goerr.V("identity", identity), goerr.V("date", localDate))
	}
	return &sum, nil
}

func ensureDailySummary(ctx context.Context, tx sqlx.ExecerContext, identity, localDate string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
        INSERT OR IGNORE INTO daily_summaries (identity, local_date, created_at, updated_at)
        VALUES (?, ?, ?, ?);`, identity, localDate, at.UTC(), at.UTC())
	if err != nil {
		return goerr.Wrap(err, "failed to create daily summary", goerr.V("identity", identity), goerr.V("date", localDate))
	}
	return nil
}

// EnsureDailySummary fetches the summary row, creating an empty one first
// when it does not exist.
func (s *sqlxStore) EnsureDailySummary(ctx context.Context, identity, localDate string, at time.Time) (*DailySummary, error) {
	if identity == "" || localDate == "" {
		return nil, goerr.New("identity and date are required")
	}
	if err := ensureDailySummary(ctx, s.db, identity, localDate, at); err != nil {
		return nil, err
	}
	sum, err := s.GetDailySummary(ctx, identity, localDate)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, goerr.New("daily summary missing after insert", goerr.V("identity", identity), goerr.V("date", localDate))
	}
	return sum, nil
}

// ReplaceDailySummary writes absolute totals, creating the row if needed.
func (s *sqlxStore) ReplaceDailySummary(ctx context.Context, sum *DailySummary) error {
	if sum == nil {
		return goerr.New("cannot save nil daily summary")
	}
	now := time.Now().UTC()
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = now
	}
	sum.UpdatedAt = now

	query := `
        INSERT INTO daily_summaries (identity, local_date, calories_consumed, calories_burned, net_calories,
            protein, carbs, fat, meals_count, workouts_count, created_at, updated_at)
        VALUES (:identity, :local_date, :calories_consumed, :calories_burned, :net_calories,
            :protein, :carbs, :fat, :meals_count, :workouts_count, :created_at, :updated_at)
        ON CONFLICT (identity, local_date) DO UPDATE SET
            calories_consumed = excluded.calories_consumed,
            calories_burned = excluded.calories_burned,
            net_calories = excluded.net_calories,
            protein = excluded.protein,
            carbs = excluded.carbs,
            fat = excluded.fat,
            meals_count = excluded.meals_count,
            workouts_count = excluded.workouts_count,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, sum); err != nil {
		s.logger.ErrorContext(ctx, "Error replacing daily summary", "identity", sum.Identity, "date", sum.LocalDate, "error", err)
		return goerr.Wrap(err, "failed to replace daily summary", goerr.V("identity", sum.Identity), goerr.V("date", sum.LocalDate))
	}
	return nil
}

// ListDailySummaries returns the summaries between two dates inclusive,
// oldest first.
func (s *sqlxStore) ListDailySummaries(ctx context.Context, identity, fromDate, toDate string) ([]DailySummary, error) {
	var out []DailySummary
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+summaryColumns+` FROM daily_summaries
		 WHERE identity = ? AND local_date BETWEEN ? AND ?
		 ORDER BY local_date ASC`, identity, fromDate, toDate)
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to list daily summaries", goerr.V("identity", identity))
	}
	return out, nil
}

// CommitMeal stores a confirmed meal and adds it to the day's summary.
func (s *sqlxStore) CommitMeal(ctx context.Context, log *MealLog) error {
	if log == nil || log.Identity == "" || log.LocalDate == "" {
		return goerr.New("meal log must have identity and date")
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	log.Status = LogConfirmed

	return s.withTx(ctx, "commit_meal", func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
            INSERT INTO meal_logs (identity, local_date, catalog_item_id, item_name, grams, calories,
                protein, carbs, fat, status, created_at)
            VALUES (:identity, :local_date, :catalog_item_id, :item_name, :grams, :calories,
                :protein, :carbs, :fat, :status, :created_at);`, log)
		if err != nil {
			return goerr.Wrap(err, "failed to insert meal log", goerr.V("identity", log.Identity))
		}
		if id, err := res.LastInsertId(); err == nil {
			log.ID = id
		}

		if err := ensureDailySummary(ctx, tx, log.Identity, log.LocalDate, log.CreatedAt); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
            UPDATE daily_summaries SET
                calories_consumed = calories_consumed + ?,
                net_calories = calories_consumed + ? - calories_burned,
                protein = protein + ?,
                carbs = carbs + ?,
                fat = fat + ?,
                meals_count = meals_count + 1,
                updated_at = ?
            WHERE identity = ? AND local_date = ?;`,
			log.Calories, log.Calories, log.Protein, log.Carbs, log.Fat, log.CreatedAt.UTC(),
			log.Identity, log.LocalDate)
		if err != nil {
			return goerr.Wrap(err, "failed to add meal to daily summary", goerr.V("identity", log.Identity))
		}
		return nil
	})
}

// CommitExercise stores a confirmed workout and adds it to the day's summary.
func (s *sqlxStore) CommitExercise(ctx context.Context, log *ExerciseLog) error {
	if log == nil || log.Identity == "" || log.LocalDate == "" {
		return goerr.New("exercise log must have identity and date")
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	log.Status = LogConfirmed

	return s.withTx(ctx, "commit_exercise", func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
            INSERT INTO exercise_logs (identity, local_date, catalog_item_id, item_name, minutes,
                intensity, calories_burned, status, created_at)
            VALUES (:identity, :local_date, :catalog_item_id, :item_name, :minutes,
                :intensity, :calories_burned, :status, :created_at);`, log)
		if err != nil {
			return goerr.Wrap(err, "failed to insert exercise log", goerr.V("identity", log.Identity))
		}
		if id, err := res.LastInsertId(); err == nil {
			log.ID = id
		}

		if err := ensureDailySummary(ctx, tx, log.Identity, log.LocalDate, log.CreatedAt); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
            UPDATE daily_summaries SET
                calories_burned = calories_burned + ?,
                net_calories = calories_consumed - (calories_burned + ?),
                workouts_count = workouts_count + 1,
                updated_at = ?
            WHERE identity = ? AND local_date = ?;`,
			log.CaloriesBurned, log.CaloriesBurned, log.CreatedAt.UTC(), log.Identity, log.LocalDate)
		if err != nil {
			return goerr.Wrap(err, "failed to add exercise to daily summary", goerr.V("identity", log.Identity))
		}
		return nil
	})
}

// ListMealLogs returns the confirmed meals of a day.
func (s *sqlxStore) ListMealLogs(ctx context.Context, identity, localDate string) ([]MealLog, error) {
	var out []MealLog
	err := s.db.SelectContext(ctx, &out, `
        SELECT id, identity, local_date, catalog_item_id, item_name, grams, calories, protein, carbs, fat, status, created_at
        FROM meal_logs
        WHERE identity = ? AND local_date = ? AND status = 'confirmed'
        ORDER BY id ASC`, identity, localDate)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list meal logs", goerr.V("identity", identity), goerr.V("date", localDate))
	}
	return out, nil
}

// ListExerciseLogs returns the confirmed workouts of a day.
func (s *sqlxStore) ListExerciseLogs(ctx context.Context, identity, localDate string) ([]ExerciseLog, error) {
	var out []ExerciseLog
	err := s.db.SelectContext(ctx, &out, `
        SELECT id, identity, local_date, catalog_item_id, item_name, minutes, intensity, calories_burned, status, created_at
        FROM exercise_logs
        WHERE identity = ? AND local_date = ? AND status = 'confirmed'
        ORDER BY id ASC`, identity, localDate)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list exercise logs", goerr.V("identity", identity), goerr.V("date", localDate))
	}
	return out, nil
}

// ListIdentitiesWithLogs returns every identity with a confirmed child
// record on localDate.
func (s *sqlxStore) ListIdentitiesWithLogs(ctx context.Context, localDate string) ([]string, error) {
	var out []string
	err := s.db.SelectContext(ctx, &out, `
        SELECT identity FROM meal_logs WHERE local_date = ? AND status = 'confirmed'
        UNION
        SELECT identity FROM exercise_logs WHERE local_date = ? AND status = 'confirmed'
        ORDER BY identity`, localDate, localDate)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list identities with logs", goerr.V("date", localDate))
	}
	return out, nil
}
