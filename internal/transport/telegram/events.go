package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/SinaHo/community-gate-bot/internal/model"
)

// Events translates one update into zero or more bot events.
func Events(update tgbotapi.Update) []model.Event {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil {
			return nil
		}
		chatID := cb.From.ID
		if cb.Message != nil && cb.Message.Chat != nil {
			chatID = cb.Message.Chat.ID
		}
		return []model.Event{model.ButtonPress{ChatID: chatID, UserID: cb.From.ID, ActionID: cb.Data}}
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}

	if len(msg.NewChatMembers) > 0 {
		events := make([]model.Event, 0, len(msg.NewChatMembers))
		for _, m := range msg.NewChatMembers {
			events = append(events, model.MemberJoined{
				ChatID:      msg.Chat.ID,
				MemberID:    m.ID,
				Username:    m.UserName,
				IsAutomated: m.IsBot,
			})
		}
		return events
	}

	if msg.From == nil || msg.Text == "" {
		return nil
	}
	if msg.IsCommand() {
		return []model.Event{model.Command{
			ChatID:   msg.Chat.ID,
			UserID:   msg.From.ID,
			Username: msg.From.UserName,
			Name:     msg.Command(),
			Args:     msg.CommandArguments(),
		}}
	}
	return []model.Event{model.TextMessage{
		ChatID:   msg.Chat.ID,
		UserID:   msg.From.ID,
		Username: msg.From.UserName,
		Text:     msg.Text,
	}}
}
