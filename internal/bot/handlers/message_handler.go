package handlers

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/nutribot/internal/dialogue"
)

const sendMessageTimeout = 10 * time.Second

type messageHandler struct {
	deps HandlerDeps
}

// NewMessageHandler creates the default handler. Private messages go to the
// orchestrator and the reply is delivered through its Sender. In groups only
// messages that mention the bot or reply to it are handled, and the answer is
// posted as a reply in the group.
func NewMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	return messageHandler{deps}.Handle
}

func (h messageHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "message")

	msg := update.Message
	if msg == nil || msg.From == nil || strings.TrimSpace(msg.Text) == "" {
		log.DebugContext(ctx, "Ignoring update without text or sender", "update_id", update.ID)
		return
	}
	if msg.From.IsBot {
		return
	}

	in := inboundFrom(msg)

	if msg.Chat.Type == models.ChatTypePrivate {
		sendTyping(ctx, b, msg.Chat.ID)
		h.deps.Orchestrator.Deliver(ctx, in)
		return
	}

	if !h.shouldHandle(msg) {
		log.DebugContext(ctx, "Bot not mentioned, skipping group message", "chat_id", msg.Chat.ID)
		return
	}
	in.Text = h.stripMention(msg.Text)

	sendTyping(ctx, b, msg.Chat.ID)
	reply, ok := h.deps.Orchestrator.Handle(ctx, in)
	if !ok {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendMessageTimeout)
	defer cancel()
	_, err := b.SendMessage(sendCtx, &bot.SendMessageParams{
		ChatID:          msg.Chat.ID,
		Text:            reply,
		ReplyParameters: &models.ReplyParameters{MessageID: msg.ID},
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send group reply", "error", err, "chat_id", msg.Chat.ID)
	}
}

// inboundFrom builds the orchestrator input for msg. The identity is the
// sender's user id in every chat, so private and group messages share one
// diary and one conversation.
func inboundFrom(msg *models.Message) dialogue.Inbound {
	return dialogue.Inbound{
		Identity:    Identity(msg.From.ID),
		DisplayName: displayName(msg.From),
		Text:        msg.Text,
		ReceiptKey:  ReceiptKey(msg.Chat.ID, msg.ID),
	}
}

// shouldHandle reports whether a group message is addressed to the bot.
func (h messageHandler) shouldHandle(msg *models.Message) bool {
	info := h.deps.Config.Telegram.BotInfo
	if info == nil || info.Username == "" {
		return false
	}

	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && msg.ReplyToMessage.From.ID == info.ID {
		return true
	}

	username := strings.ToLower(info.Username)
	for _, w := range strings.Fields(strings.ToLower(msg.Text)) {
		if strings.TrimFunc(w, unicode.IsPunct) == username {
			return true
		}
	}
	return false
}

func (h messageHandler) stripMention(text string) string {
	info := h.deps.Config.Telegram.BotInfo
	if info == nil || info.Username == "" {
		return text
	}
	mention := "@" + strings.ToLower(info.Username)
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, w := range fields {
		if strings.ToLower(strings.TrimRightFunc(w, unicode.IsPunct)) == mention {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func sendTyping(ctx context.Context, b *bot.Bot, chatID int64) {
	_, _ = b.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})
}
