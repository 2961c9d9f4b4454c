package telegram

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// NewBot creates a long-polling bot whose errors go to log.
func NewBot(token string, log *logrus.Entry) (*telebot.Bot, error) {
	pref := telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := log.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{
					"message":   c.Text(),
					"sender_id": c.Sender().ID,
					"chat_id":   c.Chat().ID,
				})
			}
			entry.Error("Telegram handler failed")
		},
	}
	return telebot.NewBot(pref)
}

// Register wires every command and callback handler onto b.
func Register(ctx context.Context, b *telebot.Bot, h *AdminHandlers, log *logrus.Entry) {
	RegisterBotCommands(b, h, log)
	RegisterAdminHandlers(ctx, b, h)
	RegisterNotifyCallbacks(ctx, b, h)
}
