package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	params []*bot.SendMessageParams
	err    error
}

func (f *fakeClient) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{}, nil
}

func TestSenderRoutesByIdentity(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	s := &Sender{client: client}

	require.NoError(t, s.Send(context.Background(), "tg:42", "olá"))
	require.Len(t, client.params, 1)
	assert.Equal(t, int64(42), client.params[0].ChatID)
	assert.Equal(t, "olá", client.params[0].Text)
}

func TestSenderErrors(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	s := &Sender{client: client}
	assert.Error(t, s.Send(context.Background(), "cli:local", "x"))
	assert.Empty(t, client.params)

	client.err = errors.New("forbidden")
	assert.Error(t, s.Send(context.Background(), "tg:42", "x"))
}
