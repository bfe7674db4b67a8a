// Package dialogue runs the per-message control loop: conversation lookup,
// intent classification, dispatch to the intent handler and persistence of
// the exchange. Every inbound message gets a reply.
package dialogue

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edgard/nutribot/internal/config"
	"github.com/edgard/nutribot/internal/database"
	"github.com/edgard/nutribot/internal/intent"
	"github.com/edgard/nutribot/internal/resolve"
	"github.com/edgard/nutribot/internal/session"
	"github.com/edgard/nutribot/internal/tracking"
)

const (
	handleTimeout = 30 * time.Second
	sendTimeout   = 10 * time.Second
)

// Sender delivers outbound text to an identity on its channel.
type Sender interface {
	Send(ctx context.Context, identity, text string) error
}

// ReceiptStore records inbound message keys so redeliveries are ignored.
type ReceiptStore interface {
	MarkInboundReceived(ctx context.Context, key string, at time.Time) (bool, error)
}

// Deps provides the collaborators of the orchestrator.
type Deps struct {
	Logger     *slog.Logger
	Messages   config.MessagesConfig
	Receipts   ReceiptStore
	Sessions   *session.Manager
	Classifier *intent.Classifier
	Resolver   *resolve.Resolver
	Tracker    *tracking.Tracker
	Sender     Sender
}

// Inbound is one user message as received from a channel.
type Inbound struct {
	Identity    string
	DisplayName string
	Text        string
	// ReceiptKey identifies the channel message. Empty disables
	// duplicate detection.
	ReceiptKey string
}

type handlerFunc func(ctx context.Context, t *turn) (string, error)

// turn carries everything a handler needs for one message.
type turn struct {
	identity string
	conv     *database.Conversation
	profile  *database.UserProfile
	result   intent.Result
	text     string
	history  []database.Message
	pending  *session.Pending
	now      time.Time
	loc      *time.Location
	scope    *resolve.Scope
}

// Orchestrator composes the classifier, the resolver, the session manager
// and the tracker.
type Orchestrator struct {
	deps     Deps
	log      *slog.Logger
	handlers map[intent.Intent]handlerFunc
	now      func() time.Time
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	o := &Orchestrator{
		deps: deps,
		log:  deps.Logger.With("component", "orchestrator"),
		now:  time.Now,
	}
	o.handlers = map[intent.Intent]handlerFunc{
		intent.Greeting:      o.handleGreeting,
		intent.Help:          o.handleHelp,
		intent.LogMeal:       o.handleLogMeal,
		intent.LogExercise:   o.handleLogExercise,
		intent.Confirm:       o.handleConfirm,
		intent.Reject:        o.handleReject,
		intent.DailySummary:  o.handleDailySummary,
		intent.WeeklySummary: o.handleWeeklySummary,
		intent.Streak:        o.handleStreak,
		intent.SetWeight:     o.handleSetWeight,
		intent.SetGoal:       o.handleSetGoal,
		intent.Unknown:       o.handleUnknown,
	}
	return o
}

// SetClock replaces the time source. Intended for tests.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// HandleInboundMessage processes one message and returns the reply text.
// It never returns an empty string.
func (o *Orchestrator) HandleInboundMessage(ctx context.Context, identity, text string) string {
	reply, _ := o.Handle(ctx, Inbound{Identity: identity, Text: text})
	return reply
}

// Deliver handles in and hands the reply to the Sender. Send failures are
// logged and not retried.
func (o *Orchestrator) Deliver(ctx context.Context, in Inbound) {
	reply, ok := o.Handle(ctx, in)
	if !ok || o.deps.Sender == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := o.deps.Sender.Send(sendCtx, in.Identity, reply); err != nil {
		o.log.ErrorContext(ctx, "Failed to send reply", "identity", in.Identity, "error", err)
	}
}

// Handle processes in. It reports false only for a redelivered message,
// which gets no reply.
func (o *Orchestrator) Handle(ctx context.Context, in Inbound) (reply string, ok bool) {
	log := o.log.With("identity", in.Identity, "request_id", uuid.NewString())
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "Panic while handling message", "panic", r)
			reply, ok = o.deps.Messages.Fallback, true
		}
	}()

	text := strings.TrimSpace(in.Text)
	if in.Identity == "" || text == "" {
		return o.deps.Messages.Unknown, true
	}

	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()
	now := o.now().UTC()

	if in.ReceiptKey != "" && o.deps.Receipts != nil {
		fresh, err := o.deps.Receipts.MarkInboundReceived(ctx, in.ReceiptKey, now)
		switch {
		case err != nil:
			log.WarnContext(ctx, "Failed to record inbound receipt, handling anyway", "key", in.ReceiptKey, "error", err)
		case !fresh:
			log.InfoContext(ctx, "Ignoring redelivered message", "key", in.ReceiptKey)
			return "", false
		}
	}

	reply, err := o.process(ctx, log, in, text, now)
	if err != nil {
		log.ErrorContext(ctx, "Failed to handle message", "error", err)
		return o.deps.Messages.Fallback, true
	}
	return reply, true
}

func (o *Orchestrator) process(ctx context.Context, log *slog.Logger, in Inbound, text string, now time.Time) (string, error) {
	conv, err := o.deps.Sessions.Resolve(ctx, in.Identity, now)
	if err != nil {
		return "", err
	}
	if _, err := o.deps.Sessions.Append(ctx, conv, database.RoleUser, text, "", now); err != nil {
		return "", err
	}

	profile := o.loadProfile(ctx, log, in, now)

	history, err := o.deps.Sessions.History(ctx, conv.ID, 0)
	if err != nil {
		log.WarnContext(ctx, "Failed to load history, classifying the message alone", "error", err)
		history = nil
	}
	batch := session.UnconsumedUserMessages(history)
	if len(batch) == 0 {
		batch = []string{text}
	}

	state := o.deps.Sessions.LoadState(ctx, conv)
	pending, err := o.deps.Sessions.Pending(ctx, conv, now)
	if err != nil {
		log.WarnContext(ctx, "Failed to read pending confirmation", "error", err)
		pending = nil
	}

	res := o.deps.Classifier.Classify(ctx, intent.Input{
		Batch:        batch,
		History:      session.PriorUserMessages(history),
		LastIntent:   intent.Intent(state.LastIntent),
		LastIntentAt: state.LastIntentAt,
		Now:          now,
	})
	log.DebugContext(ctx, "Message classified",
		"intent", res.Intent, "confidence", res.Confidence, "source", res.Source, "items", len(res.Items))

	t := &turn{
		identity: in.Identity,
		conv:     conv,
		profile:  profile,
		result:   res,
		text:     text,
		history:  history,
		pending:  pending,
		now:      now,
		loc:      o.deps.Tracker.Location(profile),
		scope:    resolve.NewScope(),
	}

	handler, found := o.handlers[res.Intent]
	if !found {
		handler = o.handleUnknown
	}
	reply, err := handler(ctx, t)
	if err != nil {
		log.ErrorContext(ctx, "Intent handler failed", "intent", res.Intent, "error", err)
		reply = o.deps.Messages.Fallback
	}
	if reply == "" {
		reply = o.deps.Messages.Unknown
	}

	if res.Intent != intent.Unknown {
		if err := o.deps.Sessions.RememberIntent(ctx, conv, string(res.Intent), now); err != nil {
			log.WarnContext(ctx, "Failed to remember intent", "error", err)
		}
	}
	if _, err := o.deps.Sessions.Append(ctx, conv, database.RoleAssistant, reply, string(res.Intent), o.now().UTC()); err != nil {
		log.WarnContext(ctx, "Failed to store reply", "error", err)
	}
	return reply, nil
}

// loadProfile returns the user's profile after counting this message
// towards the streak. Store failures fall back to an unsaved default.
func (o *Orchestrator) loadProfile(ctx context.Context, log *slog.Logger, in Inbound, now time.Time) *database.UserProfile {
	p, err := o.deps.Tracker.Profile(ctx, in.Identity, in.DisplayName)
	if err != nil {
		log.WarnContext(ctx, "Failed to load profile, using defaults", "error", err)
		return o.deps.Tracker.DefaultProfile(in.Identity, in.DisplayName)
	}
	if p.DisplayName == "" && in.DisplayName != "" {
		p.DisplayName = in.DisplayName
	}
	if _, err := o.deps.Tracker.UpdateStreak(ctx, p, now); err != nil {
		log.WarnContext(ctx, "Failed to update streak", "error", err)
	}
	return p
}
