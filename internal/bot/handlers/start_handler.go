package handlers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStartHandler returns a handler for the /start command. The first /start
// of a user stores their profile with the configured defaults.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return startHandler{deps}.Handle
}

type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	identity := Identity(msg.From.ID)
	log := h.deps.Logger.With("handler", "start", "identity", identity)

	if h.deps.Tracker != nil {
		if err := h.registerProfile(ctx, identity, displayName(msg.From)); err != nil {
			// The greeting still goes out; the profile is created lazily later.
			log.ErrorContext(ctx, "Failed to register profile", "error", err)
		}
	}
	sendText(ctx, b, log, msg.Chat.ID, h.deps.Config.Messages.Welcome)
}

func (h startHandler) registerProfile(ctx context.Context, identity, name string) error {
	p, err := h.deps.Tracker.Profile(ctx, identity, name)
	if err != nil {
		return err
	}
	if p.ID != 0 && p.DisplayName == name {
		return nil
	}
	p.DisplayName = name
	return h.deps.Tracker.SaveProfile(ctx, p)
}

func displayName(u *models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// sendText sends a plain message and logs a failure.
func sendText(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, text string) {
	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()
	if _, err := b.SendMessage(sendCtx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
	}
}
