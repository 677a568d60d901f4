// Package dialog is the stateful dialogue engine: it routes inbound chat updates to
// handlers and flows, keeps the per-user session around each dispatch, and renders
// flow states through an outbound Transport.
package dialog

import (
	"context"

	"github.com/Proton-105/chatflow/internal/keyboard"
)

type User struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}

type Chat struct {
	ID    int64
	Type  string
	Title string
}

type Contact struct {
	PhoneNumber string
	FirstName   string
	LastName    string
	UserID      int64
}

type Photo struct {
	FileID  string
	Caption string
}

// Update is one inbound event. It carries message text, a contact or photo
// attachment, or callback data, plus the sender and chat identity.
type Update struct {
	ID int64

	Text    string
	Contact *Contact
	Photo   *Photo

	CallbackID   string
	CallbackData string

	// MessageID is the incoming message, or for callbacks the message that
	// carried the pressed button.
	MessageID int

	Sender *User
	Chat   *Chat
}

// IsCallback reports whether the update is a button press.
func (u *Update) IsCallback() bool {
	return u != nil && (u.CallbackID != "" || u.CallbackData != "")
}

// HasText reports whether the update is a message with text.
func (u *Update) HasText() bool {
	return u != nil && !u.IsCallback() && u.Text != ""
}

// Kind names the update for logs and metrics.
func (u *Update) Kind() string {
	switch {
	case u == nil:
		return "none"
	case u.IsCallback():
		return "callback"
	case u.Contact != nil:
		return "contact"
	case u.Photo != nil:
		return "photo"
	case u.Text != "":
		return "text"
	default:
		return "other"
	}
}

// Message is an outbound presentation payload.
type Message struct {
	Text      string
	ParseMode string
	Markup    *keyboard.Markup
}

// Text is a plain message without markup.
func Text(s string) Message {
	return Message{Text: s}
}

// Transport delivers outbound messages to the chat provider.
type Transport interface {
	Send(ctx context.Context, chatID int64, msg Message) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, msg Message) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}
