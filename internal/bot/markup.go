package bot

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/chatflow/internal/keyboard"
)

func toReplyMarkup(m *keyboard.Markup) *telebot.ReplyMarkup {
	if m == nil {
		return nil
	}

	out := &telebot.ReplyMarkup{
		ResizeKeyboard:  m.ResizeReply,
		OneTimeKeyboard: m.OneTime,
		RemoveKeyboard:  m.RemoveReply,
	}

	if m.IsInline() {
		out.InlineKeyboard = make([][]telebot.InlineButton, 0, len(m.Inline))
		for _, row := range m.Inline {
			buttons := make([]telebot.InlineButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, telebot.InlineButton{Text: b.Text, Data: b.Data, URL: b.URL})
			}
			out.InlineKeyboard = append(out.InlineKeyboard, buttons)
		}
		return out
	}

	for _, row := range m.Reply {
		buttons := make([]telebot.ReplyButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, telebot.ReplyButton{Text: b.Text, Contact: b.RequestContact})
		}
		out.ReplyKeyboard = append(out.ReplyKeyboard, buttons)
	}

	return out
}
