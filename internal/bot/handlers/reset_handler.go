package handlers

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const resetTimeout = 10 * time.Second

// NewResetHandler returns a handler for the /reset command, which expires
// the caller's active conversation along with any pending confirmation.
func NewResetHandler(deps HandlerDeps) bot.HandlerFunc {
	return resetHandler{deps}.Handle
}

type resetHandler struct {
	deps HandlerDeps
}

func (h resetHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "reset")
	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Reset handler called with nil Message or From", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	identity := Identity(update.Message.From.ID)
	log.InfoContext(ctx, "Conversation reset requested", "chat_id", chatID, "identity", identity)

	timeoutCtx, cancel := context.WithTimeout(ctx, resetTimeout)
	defer cancel()

	n, err := h.deps.Sessions.ExpireIdentity(timeoutCtx, identity, time.Now().UTC())
	if err != nil {
		log.ErrorContext(ctx, "Failed to reset conversation", "error", err, "identity", identity)
		sendText(ctx, b, log, chatID, h.deps.Config.Messages.ResetErrorMsg)
		return
	}

	log.InfoContext(ctx, "Conversation reset", "identity", identity, "expired", n)
	sendText(ctx, b, log, chatID, h.deps.Config.Messages.ResetConfirmMsg)
}
