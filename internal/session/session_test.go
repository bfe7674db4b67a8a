package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nutribot/internal/database"
	"github.com/edgard/nutribot/internal/session"
)

var base = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T) (*session.Manager, database.Store) {
	t.Helper()
	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)
	return session.NewManager(store, session.Config{
		IdleWindow:   30 * time.Minute,
		HistoryLimit: 10,
		PendingTTL:   5 * time.Minute,
	}, nil), store
}

func TestResolveIdleWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		elapsed time.Duration
		same    bool
	}{
		{"Within window", 29 * time.Minute, true},
		{"Exactly at window", 30 * time.Minute, true},
		{"Past window", 31 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			m, store := newManager(t)

			first, err := m.Resolve(ctx, "tg:1", base)
			require.NoError(t, err)

			second, err := m.Resolve(ctx, "tg:1", base.Add(tt.elapsed))
			require.NoError(t, err)

			if tt.same {
				assert.Equal(t, first.ID, second.ID)
				return
			}
			assert.NotEqual(t, first.ID, second.ID)

			active, err := store.GetActiveConversation(ctx, "tg:1")
			require.NoError(t, err)
			require.NotNil(t, active)
			assert.Equal(t, second.ID, active.ID)
		})
	}
}

func TestAppendKeepsConversationAlive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newManager(t)

	conv, err := m.Resolve(ctx, "tg:1", base)
	require.NoError(t, err)

	_, err = m.Append(ctx, conv, database.RoleUser, "oi", "greeting", base.Add(20*time.Minute))
	require.NoError(t, err)

	again, err := m.Resolve(ctx, "tg:1", base.Add(45*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
}

func TestHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newManager(t)

	conv, err := m.Resolve(ctx, "tg:1", base)
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		role := database.RoleUser
		if i%2 == 1 {
			role = database.RoleAssistant
		}
		_, err := m.Append(ctx, conv, role, string(rune('a'+i)), "", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	msgs, err := m.History(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 10)
	assert.Equal(t, "c", msgs[0].Content)
	assert.Equal(t, "l", msgs[9].Content)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}

func TestUnconsumedAndPrior(t *testing.T) {
	t.Parallel()
	msg := func(role database.MessageRole, content string) database.Message {
		return database.Message{Role: role, Content: content}
	}

	history := []database.Message{
		msg(database.RoleUser, "oi"),
		msg(database.RoleAssistant, "olá"),
		msg(database.RoleUser, "comi arroz"),
		msg(database.RoleAssistant, "quanto?"),
		msg(database.RoleUser, "100g"),
		msg(database.RoleUser, "e feijão"),
	}
	assert.Equal(t, []string{"100g", "e feijão"}, session.UnconsumedUserMessages(history))
	assert.Equal(t, []string{"oi", "comi arroz"}, session.PriorUserMessages(history))

	userOnly := history[4:]
	assert.Equal(t, []string{"100g", "e feijão"}, session.UnconsumedUserMessages(userOnly))
	assert.Empty(t, session.PriorUserMessages(userOnly))

	assert.Empty(t, session.UnconsumedUserMessages(history[:4]))
}

type mealPayload struct {
	Name  string  `json:"name"`
	Grams float64 `json:"grams"`
}

func TestPendingTTL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		after time.Duration
		live  bool
	}{
		{"Honored at four minutes", 4 * time.Minute, true},
		{"Discarded at six minutes", 6 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			m, _ := newManager(t)

			conv, err := m.Resolve(ctx, "tg:1", base)
			require.NoError(t, err)

			_, err = m.SetPending(ctx, conv, session.PendingMeal, mealPayload{Name: "arroz", Grams: 100}, base)
			require.NoError(t, err)

			p, err := m.Pending(ctx, conv, base.Add(tt.after))
			require.NoError(t, err)
			if !tt.live {
				assert.Nil(t, p)
				// Once discarded it stays gone.
				p, err = m.Pending(ctx, conv, base)
				require.NoError(t, err)
				assert.Nil(t, p)
				return
			}
			require.NotNil(t, p)
			assert.Equal(t, session.PendingMeal, p.Kind)

			var got mealPayload
			require.NoError(t, p.Decode(&got))
			assert.Equal(t, mealPayload{Name: "arroz", Grams: 100}, got)
		})
	}
}

func TestPendingOverwriteAndClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, store := newManager(t)

	conv, err := m.Resolve(ctx, "tg:1", base)
	require.NoError(t, err)

	_, err = m.SetPending(ctx, conv, session.PendingMeal, mealPayload{Name: "arroz"}, base)
	require.NoError(t, err)
	_, err = m.SetPending(ctx, conv, session.PendingExercise, map[string]int{"minutes": 30}, base.Add(time.Minute))
	require.NoError(t, err)

	// State survives a reload from the store.
	reloaded, err := store.GetActiveConversation(ctx, "tg:1")
	require.NoError(t, err)
	p, err := m.Pending(ctx, reloaded, base.Add(5*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, session.PendingExercise, p.Kind)

	require.NoError(t, m.ClearPending(ctx, reloaded, base.Add(5*time.Minute)))
	p, err = m.Pending(ctx, reloaded, base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRememberIntentKeepsPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newManager(t)

	conv, err := m.Resolve(ctx, "tg:1", base)
	require.NoError(t, err)

	_, err = m.SetPending(ctx, conv, session.PendingMeal, mealPayload{Name: "arroz"}, base)
	require.NoError(t, err)
	require.NoError(t, m.RememberIntent(ctx, conv, "log_meal", base))

	st := m.LoadState(ctx, conv)
	assert.Equal(t, "log_meal", st.LastIntent)
	assert.True(t, st.LastIntentAt.Equal(base))
	require.NotNil(t, st.AwaitingInput)
}

func TestCorruptStateReadsEmpty(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	conv := &database.Conversation{ID: 1}
	conv.State.String = "{not json"
	conv.State.Valid = true
	assert.Equal(t, session.State{}, m.LoadState(context.Background(), conv))
}

func TestSweepAndExpireIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, store := newManager(t)

	_, err := m.Resolve(ctx, "tg:1", base)
	require.NoError(t, err)
	_, err = m.Resolve(ctx, "tg:2", base.Add(20*time.Minute))
	require.NoError(t, err)

	n, err := m.SweepIdle(ctx, base.Add(40*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := store.GetActiveConversation(ctx, "tg:1")
	require.NoError(t, err)
	assert.Nil(t, active)

	expired, err := m.ExpireIdentity(ctx, "tg:2", base.Add(41*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)
}
