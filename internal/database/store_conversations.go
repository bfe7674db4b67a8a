package database

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/m-mizutani/goerr/v2"
)

const conversationColumns = `id, identity, status, last_activity_at, state, created_at, updated_at`

// GetActiveConversation returns the active conversation for identity, or
// nil when there is none. Idle checks are the caller's concern.
func (s *sqlxStore) GetActiveConversation(ctx context.Context, identity string) (*Conversation, error) {
	if identity == "" {
		return nil, goerr.New("identity cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var c Conversation
	query := `SELECT ` + conversationColumns + ` FROM conversations
	          WHERE identity = ? AND status = 'active'
	          ORDER BY id DESC LIMIT 1`
	err := s.db.GetContext(ctx, &c, query, identity)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case isContextErr(err):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching conversation", "identity", identity, "error", err)
		return nil, err
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting active conversation", "identity", identity, "error", err)
		return nil, goerr.Wrap(err, "failed to get active conversation", goerr.V("identity", identity))
	}
	return &c, nil
}

// CreateConversation inserts a new active conversation. It returns an error
// wrapping ErrConflict when another active conversation already exists.
func (s *sqlxStore) CreateConversation(ctx context.Context, c *Conversation) error {
	if c == nil || c.Identity == "" {
		return goerr.New("conversation must have an identity")
	}
	if c.LastActivityAt.IsZero() {
		c.LastActivityAt = time.Now().UTC()
	}
	c.Status = ConversationActive
	c.CreatedAt = c.LastActivityAt
	c.UpdatedAt = c.LastActivityAt

	query := `
        INSERT INTO conversations (identity, status, last_activity_at, state, created_at, updated_at)
        VALUES (:identity, :status, :last_activity_at, :state, :created_at, :updated_at);
    `
	res, err := s.db.NamedExecContext(ctx, query, c)
	if err != nil {
		if isUniqueViolation(err) {
			return goerr.Wrap(ErrConflict, "active conversation already exists", goerr.V("identity", c.Identity))
		}
		s.logger.ErrorContext(ctx, "Error creating conversation", "identity", c.Identity, "error", err)
		return goerr.Wrap(err, "failed to create conversation", goerr.V("identity", c.Identity))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return goerr.Wrap(err, "failed to read conversation id")
	}
	c.ID = id
	s.logger.DebugContext(ctx, "Conversation created", "conversation_id", c.ID, "identity", c.Identity)
	return nil
}

// ExpireConversation marks a conversation expired. Expired rows are never
// reactivated.
func (s *sqlxStore) ExpireConversation(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = 'expired', updated_at = ? WHERE id = ? AND status = 'active'`,
		at.UTC(), id)
	if err != nil {
		return goerr.Wrap(err, "failed to expire conversation", goerr.V("conversation_id", id))
	}
	return nil
}

// ExpireConversationsForIdentity expires every active conversation of identity.
func (s *sqlxStore) ExpireConversationsForIdentity(ctx context.Context, identity string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = 'expired', updated_at = ? WHERE identity = ? AND status = 'active'`,
		at.UTC(), identity)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to expire conversations", goerr.V("identity", identity))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read affected rows")
	}
	return affected, nil
}

// ListActiveConversations returns every active conversation.
func (s *sqlxStore) ListActiveConversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE status = 'active' ORDER BY id ASC`
	if err := s.db.SelectContext(ctx, &out, query); err != nil {
		if isContextErr(err) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to list active conversations")
	}
	return out, nil
}

// SaveConversationState overwrites the state blob of a conversation.
func (s *sqlxStore) SaveConversationState(ctx context.Context, id int64, state sql.NullString, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET state = ?, updated_at = ? WHERE id = ?`,
		state, at.UTC(), id)
	if err != nil {
		return goerr.Wrap(err, "failed to save conversation state", goerr.V("conversation_id", id))
	}
	return nil
}

// AppendMessage inserts a message and bumps the conversation's last
// activity in one transaction.
func (s *sqlxStore) AppendMessage(ctx context.Context, m *Message) error {
	if m == nil {
		return goerr.New("cannot save nil message")
	}
	if m.ConversationID == 0 {
		return goerr.New("message must have a conversation_id")
	}
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return goerr.New("message has invalid role", goerr.V("role", m.Role))
	}
	if m.Content == "" {
		return goerr.New("message must have non-empty content")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.CreatedAt = m.CreatedAt.UTC()

	return s.withTx(ctx, "append_message", func(tx *sqlx.Tx) error {
		query := `
        INSERT INTO messages (conversation_id, role, content, intent, created_at)
        VALUES (:conversation_id, :role, :content, :intent, :created_at);
    `
		res, err := tx.NamedExecContext(ctx, query, m)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error saving message", "conversation_id", m.ConversationID, "error", err)
			return goerr.Wrap(err, "failed to save message", goerr.V("conversation_id", m.ConversationID))
		}
		if id, err := res.LastInsertId(); err == nil {
			m.ID = id
		} else {
			s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving message",
				"conversation_id", m.ConversationID, "error", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET last_activity_at = ?, updated_at = ? WHERE id = ?`,
			m.CreatedAt, m.CreatedAt, m.ConversationID); err != nil {
			return goerr.Wrap(err, "failed to bump conversation activity", goerr.V("conversation_id", m.ConversationID))
		}

		s.logger.DebugContext(ctx, "Message saved successfully",
			"conversation_id", m.ConversationID, "message_id", m.ID, "role", m.Role)
		return nil
	})
}

// GetRecentMessages returns the most recent limit messages of a
// conversation in chronological order.
func (s *sqlxStore) GetRecentMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error) {
	if conversationID == 0 {
		return nil, goerr.New("conversation_id cannot be zero")
	}
	if limit <= 0 {
		limit = 10
	} else if limit > 100 {
		limit = 100
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var messages []Message
	query := `
        SELECT id, conversation_id, role, content, intent, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?;
    `
	err := s.db.SelectContext(ctx, &messages, query, conversationID, limit)
	if isContextErr(err) {
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching messages",
			"conversation_id", conversationID, "error", err)
		return nil, err
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting recent messages", "conversation_id", conversationID, "error", err)
		return nil, goerr.Wrap(err, "failed to get recent messages", goerr.V("conversation_id", conversationID))
	}

	SortChronologically(messages)
	return messages, nil
}

// SortChronologically orders messages by creation time, then id.
func SortChronologically(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

// MarkInboundReceived records an inbound message key. It returns false when
// the key was already seen.
func (s *sqlxStore) MarkInboundReceived(ctx context.Context, key string, at time.Time) (bool, error) {
	if key == "" {
		return true, nil
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO inbound_receipts (receipt_key, created_at) VALUES (?, ?)`, key, at.UTC())
	if err != nil {
		return false, goerr.Wrap(err, "failed to record inbound receipt", goerr.V("key", key))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, goerr.Wrap(err, "failed to read affected rows")
	}
	return affected == 1, nil
}
