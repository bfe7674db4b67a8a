package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// GetUserProfile retrieves a user profile by identity. Returns nil, nil if not found.
func (s *sqlxStore) GetUserProfile(ctx context.Context, identity string) (*UserProfile, error) {
	if identity == "" {
		return nil, goerr.New("identity cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var profile UserProfile
	query := `SELECT id, identity, display_name, weight_kg, calorie_target, timezone,
	                 current_streak_days, longest_streak_days, total_days_logged, last_user_message_at,
	                 created_at, updated_at
	          FROM user_profiles WHERE identity = ?`

	err := s.db.GetContext(ctx, &profile, query, identity)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No user profile found", "identity", identity)
		return nil, nil

	case isContextErr(err):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching user profile",
			"identity", identity, "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting user profile", "identity", identity, "error", err)
		return nil, goerr.Wrap(err, "failed to get user profile", goerr.V("identity", identity))
	}

	return &profile, nil
}

// SaveUserProfile inserts or updates a user profile keyed by identity.
func (s *sqlxStore) SaveUserProfile(ctx context.Context, p *UserProfile) error {
	if p == nil {
		return goerr.New("cannot save nil user profile")
	}
	if p.Identity == "" {
		return goerr.New("user profile must have an identity")
	}

	now := time.Now().UTC()
	p.UpdatedAt = now
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}

	query := `
        INSERT INTO user_profiles (identity, display_name, weight_kg, calorie_target, timezone,
            current_streak_days, longest_streak_days, total_days_logged, last_user_message_at,
            created_at, updated_at)
        VALUES (:identity, :display_name, :weight_kg, :calorie_target, :timezone,
            :current_streak_days, :longest_streak_days, :total_days_logged, :last_user_message_at,
            :created_at, :updated_at)
        ON CONFLICT (identity) DO UPDATE SET
            display_name = excluded.display_name,
            weight_kg = excluded.weight_kg,
            calorie_target = excluded.calorie_target,
            timezone = excluded.timezone,
            current_streak_days = excluded.current_streak_days,
            longest_streak_days = excluded.longest_streak_days,
            total_days_logged = excluded.total_days_logged,
            last_user_message_at = excluded.last_user_message_at,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, p); err != nil {
		s.logger.ErrorContext(ctx, "Error saving user profile", "identity", p.Identity, "error", err)
		return goerr.Wrap(err, "failed to save user profile", goerr.V("identity", p.Identity))
	}

	if p.ID == 0 {
		if err := s.db.GetContext(ctx, &p.ID, `SELECT id FROM user_profiles WHERE identity = ?`, p.Identity); err != nil {
			s.logger.WarnContext(ctx, "Could not read user profile id", "identity", p.Identity, "error", err)
		}
	}

	s.logger.DebugContext(ctx, "User profile saved", "identity", p.Identity)
	return nil
}

// ClaimStreakDay records that identity was active on localDate. It returns
// true only for the first claim of a given day.
func (s *sqlxStore) ClaimStreakDay(ctx context.Context, identity, localDate string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO streak_days (identity, local_date, created_at) VALUES (?, ?, ?)`,
		identity, localDate, at.UTC())
	if err != nil {
		return false, goerr.Wrap(err, "failed to claim streak day", goerr.V("identity", identity), goerr.V("date", localDate))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, goerr.Wrap(err, "failed to read affected rows")
	}
	return affected == 1, nil
}
