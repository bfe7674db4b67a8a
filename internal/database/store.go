package database

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/m-mizutani/goerr/v2"
)

// ErrConflict is returned when a write violates a uniqueness constraint,
// for example a second active conversation for the same identity.
var ErrConflict = goerr.New("unique constraint violated")

// Store defines the repository gateway used by the conversational core.
// Get* methods return nil, nil when the row does not exist.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error

	// Catalog
	UpsertCatalogItem(ctx context.Context, item *CatalogItem) error
	FindCatalogExact(ctx context.Context, kind CatalogKind, normalized, compact string) (*CatalogItem, error)
	FindCatalogByPrefix(ctx context.Context, kind CatalogKind, prefix string, limit int) ([]CatalogItem, error)
	FindCatalogContaining(ctx context.Context, kind CatalogKind, tokens []string, limit int) ([]CatalogItem, error)
	TopCatalogByUsage(ctx context.Context, kind CatalogKind, limit int) ([]CatalogItem, error)
	BumpCatalogUsage(ctx context.Context, id int64, at time.Time) error
	LogResolutionFallback(ctx context.Context, fb *ResolutionFallback) error

	// Conversations and messages
	GetActiveConversation(ctx context.Context, identity string) (*Conversation, error)
	CreateConversation(ctx context.Context, c *Conversation) error
	ExpireConversation(ctx context.Context, id int64, at time.Time) error
	ExpireConversationsForIdentity(ctx context.Context, identity string, at time.Time) (int64, error)
	ListActiveConversations(ctx context.Context) ([]Conversation, error)
	SaveConversationState(ctx context.Context, id int64, state sql.NullString, at time.Time) error
	AppendMessage(ctx context.Context, m *Message) error
	GetRecentMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error)
	MarkInboundReceived(ctx context.Context, key string, at time.Time) (bool, error)

	// Profiles and streaks
	GetUserProfile(ctx context.Context, identity string) (*UserProfile, error)
	SaveUserProfile(ctx context.Context, p *UserProfile) error
	ClaimStreakDay(ctx context.Context, identity, localDate string, at time.Time) (bool, error)

	// Aggregation
	GetDailySummary(ctx context.Context, identity, localDate string) (*DailySummary, error)
	EnsureDailySummary(ctx context.Context, identity, localDate string, at time.Time) (*DailySummary, error)
	ReplaceDailySummary(ctx context.Context, s *DailySummary) error
	ListDailySummaries(ctx context.Context, identity, fromDate, toDate string) ([]DailySummary, error)
	CommitMeal(ctx context.Context, log *MealLog) error
	CommitExercise(ctx context.Context, log *ExerciseLog) error
	ListMealLogs(ctx context.Context, identity, localDate string) ([]MealLog, error)
	ListExerciseLogs(ctx context.Context, identity, localDate string) ([]ExerciseLog, error)
	ListIdentitiesWithLogs(ctx context.Context, localDate string) ([]string, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, rolling back unless fn succeeds and
// the commit goes through.
func (s *sqlxStore) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "op", op, "error", err)
		return goerr.Wrap(err, "failed to begin transaction", goerr.V("op", op))
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "op", op, "error", rollbackErr)
				}
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "op", op, "error", err)
		return goerr.Wrap(err, "failed to commit transaction", goerr.V("op", op))
	}
	tx = nil
	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isContextErr reports whether err is a timeout or cancellation.
func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// escapeLike escapes LIKE wildcards so user text is matched literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		s.logger.WarnContext(ctx, "Failed to set busy timeout", "error", err)
	}

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case isContextErr(err):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return goerr.Wrap(err, "database maintenance (VACUUM) timed out")

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return goerr.Wrap(err, "failed to execute VACUUM")

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}
