package dialogue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nutribot/internal/catalog"
	"github.com/edgard/nutribot/internal/config"
	"github.com/edgard/nutribot/internal/database"
	"github.com/edgard/nutribot/internal/dialogue"
	"github.com/edgard/nutribot/internal/fuzzy"
	"github.com/edgard/nutribot/internal/intent"
	"github.com/edgard/nutribot/internal/resolve"
	"github.com/edgard/nutribot/internal/session"
	"github.com/edgard/nutribot/internal/tracking"
)

const user = "tg:42"

// 12:00 in São Paulo.
var base = time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)

var messages = config.MessagesConfig{
	Welcome:        "welcome",
	Help:           "help",
	Fallback:       "fallback",
	Unknown:        "unknown",
	NothingPending: "nothing pending",
	Rejected:       "rejected",
}

type sentMessage struct {
	identity string
	text     string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *fakeSender) Send(_ context.Context, identity, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{identity, text})
	return s.err
}

type countingDistancer struct {
	mu    sync.Mutex
	calls int
}

func (d *countingDistancer) Distance(a, b string) int {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return fuzzy.Levenshtein{}.Distance(a, b)
}

func (d *countingDistancer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fixture struct {
	orch   *dialogue.Orchestrator
	store  database.Store
	db     *sqlx.DB
	sender *fakeSender
	dist   *countingDistancer
	now    time.Time
}

func (f *fixture) say(t *testing.T, text string) string {
	t.Helper()
	reply := f.orch.HandleInboundMessage(context.Background(), user, text)
	require.NotEmpty(t, reply)
	return reply
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)

	seed, err := catalog.DefaultSeed()
	require.NoError(t, err)
	_, err = seed.Apply(ctx, store)
	require.NoError(t, err)

	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	f := &fixture{store: store, db: db, sender: &fakeSender{}, dist: &countingDistancer{}, now: base}
	f.orch = dialogue.New(dialogue.Deps{
		Messages: messages,
		Receipts: store,
		Sessions: session.NewManager(store, session.Config{
			IdleWindow:   30 * time.Minute,
			HistoryLimit: 10,
			PendingTTL:   5 * time.Minute,
		}, nil),
		Classifier: intent.NewClassifier(nil, intent.Config{CarryOverWindow: 5 * time.Minute}, nil),
		Resolver: resolve.New(store, catalog.NewCache(store, time.Minute, 200, nil), nil,
			f.dist, resolve.Config{}, nil),
		Tracker: tracking.NewTracker(store, tracking.Config{
			Location:             loc,
			DefaultWeightKg:      70,
			DefaultCalorieTarget: 2000,
		}, nil),
		Sender: f.sender,
	})
	f.orch.SetClock(func() time.Time { return f.now })
	return f
}

func TestMealConfirmFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	reply := f.say(t, "comi 100g de arroz")
	assert.Contains(t, reply, "Arroz branco")
	assert.Contains(t, reply, "130 kcal")
	assert.Contains(t, reply, "Confirma?")

	f.advance(time.Minute)
	reply = f.say(t, "sim")
	assert.Contains(t, reply, "Registrado!")
	assert.Contains(t, reply, "130 kcal consumidas")

	sum, err := f.store.GetDailySummary(ctx, user, "2026-10-17")
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.InDelta(t, 130, sum.CaloriesConsumed, 1e-6)
	assert.Equal(t, 1, sum.MealsCount)

	// The pending record was consumed.
	f.advance(time.Minute)
	assert.Equal(t, messages.NothingPending, f.say(t, "sim"))

	meals, err := f.store.ListMealLogs(ctx, user, "2026-10-17")
	require.NoError(t, err)
	assert.Len(t, meals, 1)
}

func TestRejectClearsPending(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.say(t, "comi 100g de arroz")
	f.advance(time.Minute)
	assert.Equal(t, messages.Rejected, f.say(t, "não"))
	f.advance(time.Minute)
	assert.Equal(t, messages.NothingPending, f.say(t, "sim"))

	sum, err := f.store.GetDailySummary(context.Background(), user, "2026-10-17")
	require.NoError(t, err)
	if sum != nil {
		assert.Zero(t, sum.CaloriesConsumed)
	}
}

func TestConfirmWithoutPending(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.Equal(t, messages.NothingPending, f.say(t, "sim"))
	assert.Equal(t, messages.NothingPending, f.say(t, "cancela"))
}

func TestPendingExpires(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.say(t, "comi 100g de arroz")
	f.advance(6 * time.Minute)
	assert.Equal(t, messages.NothingPending, f.say(t, "sim"))
}

func TestExerciseConfirmFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	reply := f.say(t, "corri 30 minutos")
	assert.Contains(t, reply, "Corrida")
	assert.Contains(t, reply, "30 min")
	assert.Contains(t, reply, "gastas")

	f.advance(time.Minute)
	f.say(t, "sim")

	workouts, err := f.store.ListExerciseLogs(ctx, user, "2026-10-17")
	require.NoError(t, err)
	require.Len(t, workouts, 1)
	// MET 8.3 × 70 kg × 0.5 h.
	assert.InDelta(t, 290.5, workouts[0].CaloriesBurned, 0.01)
	assert.Equal(t, 30, workouts[0].Minutes)
}

func TestFixedReplies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{"oi", messages.Welcome},
		{"ajuda", messages.Help},
		{"xyzzy plugh", messages.Unknown},
		{"   ", messages.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			assert.Equal(t, tt.want, f.say(t, tt.text))
		})
	}
}

func TestUnknownFoodIsReported(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	reply := f.say(t, "comi 100g de kryptonita")
	assert.Contains(t, reply, "Não encontrei")
	assert.Contains(t, reply, "kryptonita")

	f.advance(time.Minute)
	assert.Equal(t, messages.NothingPending, f.say(t, "sim"))
}

func TestShortUnknownFoodSkipsFuzzyStages(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	reply := f.say(t, "comi 100g de xyz")
	assert.Contains(t, reply, "Não encontrei")
	assert.Contains(t, reply, "xyz")
	assert.Zero(t, f.dist.count())
}

func TestBareAmountCorrectsPendingMeal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	reply := f.say(t, "comi arroz")
	assert.Contains(t, reply, "Arroz branco: 150 g")

	f.advance(time.Minute)
	reply = f.say(t, "100g")
	assert.Contains(t, reply, "Arroz branco: 100 g")
	assert.Contains(t, reply, "130 kcal")
	assert.Contains(t, reply, "Confirma?")

	f.advance(time.Minute)
	f.say(t, "sim")
	meals, err := f.store.ListMealLogs(ctx, user, "2026-10-17")
	require.NoError(t, err)
	require.Len(t, meals, 1)
	assert.InDelta(t, 100, meals[0].Grams, 1e-9)
}

func TestBareDurationCorrectsPendingExercise(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	reply := f.say(t, "corri")
	assert.Contains(t, reply, "Corrida: 30 min")

	f.advance(time.Minute)
	reply = f.say(t, "45 minutos")
	assert.Contains(t, reply, "Corrida: 45 min")
}

func TestBareAmountWithoutPendingAsksForFood(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.Contains(t, f.say(t, "150g"), "Não consegui identificar os alimentos")
}

func TestSetWeightAndGoal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	reply := f.say(t, "meu peso é 72,5 kg")
	assert.Contains(t, reply, "72,5 kg")

	reply = f.say(t, "minha meta é 1800 kcal")
	assert.Contains(t, reply, "kcal")

	p, err := f.store.GetUserProfile(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.InDelta(t, 72.5, p.WeightKg, 1e-9)
	assert.InDelta(t, 1800, p.CalorieTarget, 1e-9)

	// Out of range values leave the profile untouched.
	reply = f.say(t, "minha meta é 100 kcal")
	assert.Contains(t, reply, "Não entendi a meta")
	p, err = f.store.GetUserProfile(ctx, user)
	require.NoError(t, err)
	assert.InDelta(t, 1800, p.CalorieTarget, 1e-9)
}

func TestStreakAndWeekly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.say(t, "comi 100g de arroz")
	f.advance(time.Minute)
	f.say(t, "sim")

	f.advance(time.Minute)
	assert.Contains(t, f.say(t, "minha sequência"), "Sequência atual: 1 dia.")

	// Next local day extends the streak.
	f.advance(24 * time.Hour)
	assert.Contains(t, f.say(t, "minha sequência"), "Sequência atual: 2 dias.")

	reply := f.say(t, "resumo da semana")
	assert.Contains(t, reply, "Dias com registro: 1 de 7")
	assert.Contains(t, reply, "Nota: C")
}

func TestConversationHistoryIsStored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.say(t, "oi")
	conv, err := f.store.GetActiveConversation(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, conv)

	msgs, err := f.store.GetRecentMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	database.SortChronologically(msgs)
	require.Len(t, msgs, 2)
	assert.Equal(t, database.RoleUser, msgs[0].Role)
	assert.Equal(t, database.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "greeting", msgs[1].Intent.String)
}

func TestDuplicateReceiptIsIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	in := dialogue.Inbound{Identity: user, Text: "oi", ReceiptKey: "tg:42:1001"}

	f.orch.Deliver(ctx, in)
	f.orch.Deliver(ctx, in)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, sentMessage{user, messages.Welcome}, f.sender.sent[0])
}

func TestSendFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.sender.err = errors.New("network down")

	assert.NotPanics(t, func() {
		f.orch.Deliver(context.Background(), dialogue.Inbound{Identity: user, Text: "oi"})
	})
	assert.Len(t, f.sender.sent, 1)
}

func TestStoreFailureYieldsFallback(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.db.Close())

	assert.Equal(t, messages.Fallback, f.say(t, "comi 100g de arroz"))
}
