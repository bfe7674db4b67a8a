package handlers

import (
	"context"
	"fmt"
	"math"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) bot.HandlerFunc {
	return helpHandler{deps}.Handle
}

type helpHandler struct {
	deps HandlerDeps
}

func (h helpHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	identity := Identity(msg.From.ID)
	log := h.deps.Logger.With("handler", "help", "identity", identity)

	text := h.deps.Config.Messages.Help
	if h.deps.Tracker != nil {
		p, err := h.deps.Tracker.Profile(ctx, identity, "")
		if err != nil {
			log.WarnContext(ctx, "Failed to load profile for help", "error", err)
		} else {
			text += fmt.Sprintf("\n\nSua meta diária: %d kcal. Peso considerado: %d kg.",
				int(math.Round(p.CalorieTarget)), int(math.Round(p.WeightKg)))
		}
	}
	sendText(ctx, b, log, msg.Chat.ID, text)
}
