package handlers

import (
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

const identityPrefix = "tg:"

// Identity returns the channel-qualified identity of a Telegram user.
func Identity(userID int64) string {
	return identityPrefix + strconv.FormatInt(userID, 10)
}

// ChatID extracts the Telegram id from an identity built by Identity. In a
// private chat the user id is also the chat id.
func ChatID(identity string) (int64, error) {
	raw, ok := strings.CutPrefix(identity, identityPrefix)
	if !ok {
		return 0, goerr.New("not a telegram identity", goerr.V("identity", identity))
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, goerr.Wrap(err, "invalid telegram identity", goerr.V("identity", identity))
	}
	return id, nil
}

// ReceiptKey identifies one inbound Telegram message for duplicate detection.
func ReceiptKey(chatID int64, messageID int) string {
	return identityPrefix + strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(messageID)
}
