// Package session manages conversations: the idle boundary, bounded history
// and the pending confirmation carried between turns.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/edgard/nutribot/internal/database"
)

// Store is the part of the repository the session manager needs.
type Store interface {
	GetActiveConversation(ctx context.Context, identity string) (*database.Conversation, error)
	CreateConversation(ctx context.Context, c *database.Conversation) error
	ExpireConversation(ctx context.Context, id int64, at time.Time) error
	ExpireConversationsForIdentity(ctx context.Context, identity string, at time.Time) (int64, error)
	ListActiveConversations(ctx context.Context) ([]database.Conversation, error)
	SaveConversationState(ctx context.Context, id int64, state sql.NullString, at time.Time) error
	AppendMessage(ctx context.Context, m *database.Message) error
	GetRecentMessages(ctx context.Context, conversationID int64, limit int) ([]database.Message, error)
}

// Config holds the session timings.
type Config struct {
	IdleWindow   time.Duration
	HistoryLimit int
	PendingTTL   time.Duration
}

// Manager owns the conversation lifecycle. It keeps no per-identity state in
// memory; everything lives in the store.
type Manager struct {
	store Store
	cfg   Config
	log   *slog.Logger
}

// NewManager creates a Manager, filling zero config values with defaults.
func NewManager(store Store, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.IdleWindow <= 0 {
		cfg.IdleWindow = 30 * time.Minute
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 5 * time.Minute
	}
	return &Manager{
		store: store,
		cfg:   cfg,
		log:   logger.With("component", "session_manager"),
	}
}

// HistoryLimit returns the configured history bound.
func (m *Manager) HistoryLimit() int { return m.cfg.HistoryLimit }

func (m *Manager) idle(c *database.Conversation, now time.Time) bool {
	return now.Sub(c.LastActivityAt) > m.cfg.IdleWindow
}

// Resolve returns the active conversation for identity. A conversation idle
// for longer than the window is expired and replaced by a new row.
func (m *Manager) Resolve(ctx context.Context, identity string, now time.Time) (*database.Conversation, error) {
	conv, err := m.store.GetActiveConversation(ctx, identity)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to look up active conversation", goerr.V("identity", identity))
	}
	if conv != nil && !m.idle(conv, now) {
		return conv, nil
	}

	if conv != nil {
		m.log.DebugContext(ctx, "Conversation idle, starting a new one",
			"identity", identity, "conversation_id", conv.ID, "last_activity_at", conv.LastActivityAt)
		if err := m.store.ExpireConversation(ctx, conv.ID, now); err != nil {
			return nil, goerr.Wrap(err, "failed to expire idle conversation", goerr.V("conversation_id", conv.ID))
		}
	}

	fresh := &database.Conversation{Identity: identity, LastActivityAt: now}
	err = m.store.CreateConversation(ctx, fresh)
	if errors.Is(err, database.ErrConflict) {
		// A concurrent message for the same identity won the insert.
		conv, err = m.store.GetActiveConversation(ctx, identity)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to reload conversation after conflict", goerr.V("identity", identity))
		}
		if conv == nil {
			return nil, goerr.New("active conversation vanished after conflict", goerr.V("identity", identity))
		}
		return conv, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create conversation", goerr.V("identity", identity))
	}

	m.log.InfoContext(ctx, "Conversation started", "identity", identity, "conversation_id", fresh.ID)
	return fresh, nil
}

// Append stores a message and bumps the conversation's last activity.
func (m *Manager) Append(ctx context.Context, conv *database.Conversation, role database.MessageRole, content, intent string, at time.Time) (*database.Message, error) {
	msg := &database.Message{
		ConversationID: conv.ID,
		Role:           role,
		Content:        content,
		CreatedAt:      at,
	}
	if intent != "" {
		msg.Intent = sql.NullString{String: intent, Valid: true}
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return nil, goerr.Wrap(err, "failed to append message", goerr.V("conversation_id", conv.ID), goerr.V("role", role))
	}
	conv.LastActivityAt = msg.CreatedAt
	return msg, nil
}

// History returns up to n recent messages, oldest first. n <= 0 uses the
// configured limit.
func (m *Manager) History(ctx context.Context, conversationID int64, n int) ([]database.Message, error) {
	if n <= 0 {
		n = m.cfg.HistoryLimit
	}
	msgs, err := m.store.GetRecentMessages(ctx, conversationID, n)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load history", goerr.V("conversation_id", conversationID))
	}
	database.SortChronologically(msgs)
	return msgs, nil
}

// UnconsumedUserMessages returns the user messages after the last assistant
// reply, oldest first.
func UnconsumedUserMessages(history []database.Message) []string {
	start := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == database.RoleAssistant {
			start = i + 1
			break
		}
	}
	var out []string
	for _, msg := range history[start:] {
		if msg.Role == database.RoleUser {
			out = append(out, msg.Content)
		}
	}
	return out
}

// PriorUserMessages returns the user messages before the last assistant
// reply, oldest first.
func PriorUserMessages(history []database.Message) []string {
	end := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == database.RoleAssistant {
			end = i
			break
		}
	}
	var out []string
	for _, msg := range history[:end] {
		if msg.Role == database.RoleUser {
			out = append(out, msg.Content)
		}
	}
	return out
}

// ExpireIdentity closes every active conversation of identity.
func (m *Manager) ExpireIdentity(ctx context.Context, identity string, now time.Time) (int64, error) {
	n, err := m.store.ExpireConversationsForIdentity(ctx, identity, now)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to expire conversations", goerr.V("identity", identity))
	}
	m.log.InfoContext(ctx, "Conversations expired", "identity", identity, "count", n)
	return n, nil
}

// SweepIdle marks every active conversation idle at now as expired. Resolve
// would do the same lazily; the sweep keeps the active set small.
func (m *Manager) SweepIdle(ctx context.Context, now time.Time) (int, error) {
	convs, err := m.store.ListActiveConversations(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list active conversations")
	}
	expired := 0
	for i := range convs {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		if !m.idle(&convs[i], now) {
			continue
		}
		if err := m.store.ExpireConversation(ctx, convs[i].ID, now); err != nil {
			m.log.WarnContext(ctx, "Failed to expire idle conversation", "conversation_id", convs[i].ID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// State is the JSON blob stored on the conversation row.
type State struct {
	LastIntent    string    `json:"last_intent,omitempty"`
	LastIntentAt  time.Time `json:"last_intent_at"`
	AwaitingInput *Pending  `json:"awaiting_input,omitempty"`
}

// LoadState decodes the conversation state. A corrupt blob reads as empty.
func (m *Manager) LoadState(ctx context.Context, conv *database.Conversation) State {
	var st State
	if !conv.State.Valid || conv.State.String == "" {
		return st
	}
	if err := json.Unmarshal([]byte(conv.State.String), &st); err != nil {
		m.log.WarnContext(ctx, "Discarding unreadable conversation state", "conversation_id", conv.ID, "error", err)
		return State{}
	}
	return st
}

func (m *Manager) saveState(ctx context.Context, conv *database.Conversation, st State, now time.Time) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return goerr.Wrap(err, "failed to encode conversation state", goerr.V("conversation_id", conv.ID))
	}
	blob := sql.NullString{String: string(raw), Valid: true}
	if err := m.store.SaveConversationState(ctx, conv.ID, blob, now); err != nil {
		return goerr.Wrap(err, "failed to save conversation state", goerr.V("conversation_id", conv.ID))
	}
	conv.State = blob
	return nil
}

// RememberIntent records the last classified intent for carry-over.
func (m *Manager) RememberIntent(ctx context.Context, conv *database.Conversation, intent string, now time.Time) error {
	st := m.LoadState(ctx, conv)
	st.LastIntent = intent
	st.LastIntentAt = now
	return m.saveState(ctx, conv, st, now)
}
