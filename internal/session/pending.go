package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/edgard/nutribot/internal/database"
)

// PendingKind names what a pending confirmation would write.
type PendingKind string

const (
	PendingMeal     PendingKind = "meal"
	PendingExercise PendingKind = "exercise"
)

// Pending is a tentative write waiting for the user to confirm it.
type Pending struct {
	Kind      PendingKind     `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the record can no longer be confirmed at now.
func (p *Pending) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Decode unmarshals the payload into out.
func (p *Pending) Decode(out any) error {
	if err := json.Unmarshal(p.Payload, out); err != nil {
		return goerr.Wrap(err, "failed to decode pending payload", goerr.V("kind", p.Kind))
	}
	return nil
}

// SetPending attaches a pending confirmation, replacing any previous one.
func (m *Manager) SetPending(ctx context.Context, conv *database.Conversation, kind PendingKind, payload any, now time.Time) (*Pending, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode pending payload", goerr.V("kind", kind))
	}
	p := &Pending{Kind: kind, Payload: raw, ExpiresAt: now.Add(m.cfg.PendingTTL)}

	st := m.LoadState(ctx, conv)
	if st.AwaitingInput != nil {
		m.log.DebugContext(ctx, "Overwriting pending confirmation",
			"conversation_id", conv.ID, "previous_kind", st.AwaitingInput.Kind, "kind", kind)
	}
	st.AwaitingInput = p
	if err := m.saveState(ctx, conv, st, now); err != nil {
		return nil, err
	}
	return p, nil
}

// Pending returns the live pending confirmation. An expired record is
// cleared and reported as absent.
func (m *Manager) Pending(ctx context.Context, conv *database.Conversation, now time.Time) (*Pending, error) {
	st := m.LoadState(ctx, conv)
	if st.AwaitingInput == nil {
		return nil, nil
	}
	if st.AwaitingInput.Expired(now) {
		m.log.DebugContext(ctx, "Pending confirmation expired",
			"conversation_id", conv.ID, "kind", st.AwaitingInput.Kind, "expires_at", st.AwaitingInput.ExpiresAt)
		st.AwaitingInput = nil
		if err := m.saveState(ctx, conv, st, now); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return st.AwaitingInput, nil
}

// ClearPending removes the pending confirmation, if any.
func (m *Manager) ClearPending(ctx context.Context, conv *database.Conversation, now time.Time) error {
	st := m.LoadState(ctx, conv)
	if st.AwaitingInput == nil {
		return nil
	}
	st.AwaitingInput = nil
	return m.saveState(ctx, conv, st, now)
}
