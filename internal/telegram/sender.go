package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/m-mizutani/goerr/v2"

	"github.com/edgard/nutribot/internal/bot/handlers"
)

// messageSender is the part of *bot.Bot used to deliver replies.
type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Sender delivers orchestrator replies to private Telegram chats.
type Sender struct {
	client messageSender
}

// NewSender creates a Sender backed by b.
func NewSender(b *bot.Bot) *Sender {
	return &Sender{client: b}
}

// Send implements dialogue.Sender.
func (s *Sender) Send(ctx context.Context, identity, text string) error {
	chatID, err := handlers.ChatID(identity)
	if err != nil {
		return err
	}
	if _, err := s.client.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		return goerr.Wrap(err, "failed to send telegram message", goerr.V("chat_id", chatID))
	}
	return nil
}
