package handlers

import (
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nutribot/internal/config"
)

func TestIdentityRoundTrip(t *testing.T) {
	t.Parallel()

	id := Identity(123456789)
	assert.Equal(t, "tg:123456789", id)

	chatID, err := ChatID(id)
	require.NoError(t, err)
	assert.EqualValues(t, 123456789, chatID)
}

func TestChatIDRejectsForeignIdentities(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"", "cli:local", "tg:", "tg:abc"} {
		_, err := ChatID(id)
		assert.Error(t, err, id)
	}
}

func TestReceiptKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "tg:-100:7", ReceiptKey(-100, 7))
}

func TestRegisterAllCommands(t *testing.T) {
	t.Parallel()

	cmds := RegisterAllCommands(HandlerDeps{Config: &config.Config{}})
	require.Len(t, cmds, 3)
	assert.Empty(t, cmds["/start"].Middleware)
	assert.Empty(t, cmds["/help"].Middleware)
	assert.Len(t, cmds["/reset"].Middleware, 1)
	assert.Equal(t, "reset", cmds["/reset"].Pattern)
}

func TestGroupMentions(t *testing.T) {
	t.Parallel()
	h := messageHandler{deps: HandlerDeps{Config: &config.Config{
		Telegram: config.TelegramConfig{BotInfo: &models.User{ID: 99, Username: "NutriBot"}},
	}}}

	tests := []struct {
		name string
		msg  *models.Message
		want bool
	}{
		{"Mention", &models.Message{Text: "@nutribot comi 2 ovos"}, true},
		{"Mention with punctuation", &models.Message{Text: "oi @NutriBot!"}, true},
		{"Reply to bot", &models.Message{Text: "sim", ReplyToMessage: &models.Message{From: &models.User{ID: 99}}}, true},
		{"Unrelated", &models.Message{Text: "comi 2 ovos"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, h.shouldHandle(tt.msg))
		})
	}

	assert.Equal(t, "comi 2 ovos", h.stripMention("@nutribot comi 2 ovos"))
	assert.Equal(t, "oi", h.stripMention("oi @NutriBot!"))
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		user models.User
		want string
	}{
		{"First and last", models.User{FirstName: "Ana", LastName: "Souza"}, "Ana Souza"},
		{"First only", models.User{FirstName: "Ana"}, "Ana"},
		{"Username fallback", models.User{Username: "ana_s"}, "ana_s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, displayName(&tt.user))
		})
	}
}

func TestInboundIdentityIsPerUser(t *testing.T) {
	t.Parallel()
	from := &models.User{ID: 42, FirstName: "Ana"}

	private := inboundFrom(&models.Message{ID: 7, From: from, Chat: models.Chat{ID: 42, Type: models.ChatTypePrivate}, Text: "comi arroz"})
	group := inboundFrom(&models.Message{ID: 7, From: from, Chat: models.Chat{ID: -100, Type: models.ChatTypeGroup}, Text: "sim"})

	assert.Equal(t, "tg:42", private.Identity)
	assert.Equal(t, private.Identity, group.Identity)
	assert.Equal(t, "Ana", group.DisplayName)
	assert.NotEqual(t, private.ReceiptKey, group.ReceiptKey)
}
