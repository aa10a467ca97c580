package handlers

import (
	"strings"
	"time"

	"finbot/internal/convo"
	"finbot/internal/telegram"
)

// Normalize maps a Bot API update onto a convo.Event. Updates the bot does not
// act on come back with Kind convo.KindUnknown. Callback queries carry no date
// of their own, so they are stamped with the arrival time.
func Normalize(u telegram.Update, arrived time.Time) convo.Event {
	ev := convo.Event{UpdateID: u.UpdateID, Kind: convo.KindUnknown}

	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		ev.Kind = convo.KindCallback
		ev.UserID = cq.From.ID
		ev.ChatID = cq.From.ID
		if cq.Message != nil {
			ev.ChatID = cq.Message.Chat.ID
			ev.MessageID = cq.Message.MessageID
		}
		ev.Timestamp = arrived
		ev.CallbackID = cq.ID
		ev.CallbackData = cq.Data
		fillUser(&ev, cq.From)

	case u.Message != nil:
		msg := u.Message
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			text = strings.TrimSpace(msg.Caption)
		}
		if msg.From == nil || msg.From.IsBot || text == "" {
			return ev
		}
		ev.Kind = convo.KindMessage
		ev.UserID = msg.From.ID
		ev.ChatID = msg.Chat.ID
		ev.MessageID = msg.MessageID
		ev.Timestamp = time.Unix(msg.Date, 0).UTC()
		ev.Text = text
		fillUser(&ev, *msg.From)
	}
	return ev
}

func fillUser(ev *convo.Event, u telegram.User) {
	ev.DisplayName = u.DisplayName()
	ev.Username = u.Username
	ev.LanguageCode = u.LanguageCode
}

// dedupeKey is the idempotency key of an update.
func dedupeKey(updateID int64) string {
	return "telegram_" + itoa(updateID)
}
