package bot

import (
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/chatflow/internal/dialog"
)

// ConvertUpdate maps a Telegram update onto the engine's Update. It returns nil
// for update kinds the engine does not handle (edits, inline queries, polls).
func ConvertUpdate(tu *telebot.Update) *dialog.Update {
	if tu == nil {
		return nil
	}

	u := &dialog.Update{ID: int64(tu.ID)}

	switch {
	case tu.Callback != nil:
		cb := tu.Callback
		u.CallbackID = cb.ID
		// telebot prefixes data of buttons with a Unique with \f.
		u.CallbackData = strings.TrimPrefix(cb.Data, "\f")
		u.Sender = convertUser(cb.Sender)
		if cb.Message != nil {
			u.MessageID = cb.Message.ID
			u.Chat = convertChat(cb.Message.Chat)
		}
	case tu.Message != nil:
		m := tu.Message
		u.MessageID = m.ID
		u.Text = m.Text
		u.Sender = convertUser(m.Sender)
		u.Chat = convertChat(m.Chat)

		if m.Contact != nil {
			u.Contact = &dialog.Contact{
				PhoneNumber: m.Contact.PhoneNumber,
				FirstName:   m.Contact.FirstName,
				LastName:    m.Contact.LastName,
				UserID:      m.Contact.UserID,
			}
		}
		if m.Photo != nil {
			u.Photo = &dialog.Photo{FileID: m.Photo.FileID, Caption: m.Caption}
		}
	default:
		return nil
	}

	return u
}

func convertUser(u *telebot.User) *dialog.User {
	if u == nil {
		return nil
	}
	return &dialog.User{
		ID:           u.ID,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		LanguageCode: u.LanguageCode,
	}
}

func convertChat(c *telebot.Chat) *dialog.Chat {
	if c == nil {
		return nil
	}
	return &dialog.Chat{ID: c.ID, Type: string(c.Type), Title: c.Title}
}
