// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// HelpText lists the admin commands.
func HelpText() string {
	var helpText strings.Builder
	helpText.WriteString("Available admin commands:\n\n")
	helpText.WriteString("`/run_cycle [bills|alerts]`\n - Reconcile both feeds, or only one.\n\n")
	helpText.WriteString("`/notify`\n - Send digests for the records flagged new (asks for confirmation).\n\n")
	helpText.WriteString("`/runs [N]`\n - Show the last N cycles.\n\n")
	helpText.WriteString("`/add_subscriber <email> <STATES,...> <CATEGORIES,...>`\n - Add a subscriber. Use state codes, e.g. `CA,NY`.\n\n")
	helpText.WriteString("`/update_subscriber <email> <STATES,...> <CATEGORIES,...>`\n - Replace a subscriber's preferences.\n\n")
	helpText.WriteString("`/remove_subscriber <email>`\n - Remove a subscriber.\n\n")
	helpText.WriteString("`/list_subscribers`\n - Show all subscribers.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}

func RegisterBotCommands(b *telebot.Bot, h *AdminHandlers, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if h.admin.IsAdmin(senderID) {
			return c.Send(fmt.Sprintf("Hello %s! Cycle reports will be posted here. Use /help for the list of commands.", c.Sender().FirstName))
		}
		logCtx.Info("User is unknown")
		return c.Send("This bot is for Medirate operators only.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID).Info("Processing /help command")

		if !h.admin.IsAdmin(senderID) {
			return c.Send("No commands are available to you.")
		}
		return c.Send(HelpText(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})
}
