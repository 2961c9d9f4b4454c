// internal/infra/telegram/notify_handlers.go
package telegram

import (
	"context"
	"errors"
	"fmt"

	"medirate_alerts/internal/app"

	"gopkg.in/telebot.v3"
)

const (
	callbackNotifyConfirm = "notify_confirm"
	callbackNotifyCancel  = "notify_cancel"
)

// ConfirmNotify answers /notify with the pending digest size and Send/Cancel buttons.
// A nil markup means there is nothing to confirm.
func (h *AdminHandlers) ConfirmNotify(ctx context.Context, senderID int64) (string, *telebot.ReplyMarkup) {
	if !h.authorized(senderID, "/notify") {
		return msgUnauthorized, nil
	}
	recs, err := h.cycles.FetchNewRecords(ctx)
	if err != nil {
		h.log.WithError(err).Error("Failed to fetch new records")
		return fmt.Sprintf("Failed to fetch new records: %v", err), nil
	}
	if len(recs) == 0 {
		return "There are no new records to send.", nil
	}

	markup := &telebot.ReplyMarkup{}
	markup.InlineKeyboard = [][]telebot.InlineButton{{
		{Text: "Send", Data: callbackNotifyConfirm},
		{Text: "Cancel", Data: callbackNotifyCancel},
	}}
	return fmt.Sprintf("%d new record(s) are flagged. Send digests to all matching subscribers?", len(recs)), markup
}

// HandleNotifyCallback runs the dispatch the admin confirmed. It returns the message
// to post and the short callback acknowledgement.
func (h *AdminHandlers) HandleNotifyCallback(ctx context.Context, senderID int64, data string) (text, ack string) {
	switch data {
	case callbackNotifyCancel:
		return "Dispatch cancelled.", "Cancelled"
	case callbackNotifyConfirm:
	default:
		return "", "Unknown action."
	}
	if !h.authorized(senderID, "/notify") {
		return msgUnauthorized, "Not allowed"
	}

	report, err := h.cycles.Dispatch(ctx)
	if errors.Is(err, app.ErrCycleInProgress) {
		return msgInProgress, "Busy"
	}
	if err != nil {
		h.log.WithError(err).Error("Dispatch failed")
		return fmt.Sprintf("Dispatch failed: %v", err), "Failed"
	}
	return fmt.Sprintf("Dispatch finished: %d sent, %d failed.", report.Sent(), report.Failed()), "Done"
}

// RegisterNotifyCallbacks handles the inline buttons sent by /notify.
func RegisterNotifyCallbacks(ctx context.Context, b *telebot.Bot, h *AdminHandlers) {
	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		data := c.Callback().Data
		text, ack := h.HandleNotifyCallback(ctx, c.Sender().ID, data)
		if text == "" {
			c.Bot().OnError(fmt.Errorf("unhandled callback data: %s", data), c)
			return c.Respond(&telebot.CallbackResponse{Text: ack})
		}
		if err := c.Respond(&telebot.CallbackResponse{Text: ack}); err != nil {
			return err
		}
		return c.Edit(text)
	})
}
