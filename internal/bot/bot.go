// Package bot connects the dialog engine to the Telegram Bot API through telebot.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/chatflow/internal/dialog"
	apperrors "github.com/Proton-105/chatflow/internal/errors"
	"github.com/Proton-105/chatflow/pkg/config"
)

// NewTelebot builds the API client. Update delivery is driven by Poller or
// WebhookHandler, never by telebot's own poller.
func NewTelebot(cfg config.BotConfig) (*telebot.Bot, error) {
	tb, err := telebot.NewBot(telebot.Settings{
		URL:         cfg.APIURL,
		Token:       cfg.Token,
		Synchronous: true,
		Offline:     false,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}
	return tb, nil
}

// Transport implements dialog.Transport on top of telebot.
type Transport struct {
	bot *telebot.Bot
	log *slog.Logger
}

var _ dialog.Transport = (*Transport)(nil)

func NewTransport(tb *telebot.Bot, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}
	return &Transport{bot: tb, log: log}
}

// Username is the bot account name resolved by getMe.
func (t *Transport) Username() string {
	if t == nil || t.bot == nil || t.bot.Me == nil {
		return ""
	}
	return t.bot.Me.Username
}

func (t *Transport) Send(ctx context.Context, chatID int64, msg dialog.Message) (int, error) {
	sent, err := t.bot.Send(telebot.ChatID(chatID), msg.Text, sendOptions(msg))
	if err != nil {
		return 0, apperrors.NewTransportError("send", err)
	}
	return sent.ID, nil
}

// Edit replaces the text and markup of a message. Telegram rejects edits that
// change nothing; those count as success. Only inline keyboards can be edited
// in, so a message carrying a reply keyboard is sent as a new one.
func (t *Transport) Edit(ctx context.Context, chatID int64, messageID int, msg dialog.Message) error {
	if msg.Markup != nil && !msg.Markup.IsInline() {
		_, err := t.Send(ctx, chatID, msg)
		return err
	}

	_, err := t.bot.Edit(storedMessage(chatID, messageID), msg.Text, sendOptions(msg))
	if err != nil && !isNotModified(err) {
		return apperrors.NewTransportError("edit", err)
	}
	if err != nil {
		t.log.DebugContext(ctx, "edit skipped, message not modified", slog.Int("message_id", messageID))
	}
	return nil
}

func (t *Transport) Delete(_ context.Context, chatID int64, messageID int) error {
	if err := t.bot.Delete(storedMessage(chatID, messageID)); err != nil {
		return apperrors.NewTransportError("delete", err)
	}
	return nil
}

func (t *Transport) AnswerCallback(_ context.Context, callbackID, text string, alert bool) error {
	resp := &telebot.CallbackResponse{Text: text, ShowAlert: alert}
	if err := t.bot.Respond(&telebot.Callback{ID: callbackID}, resp); err != nil {
		return apperrors.NewTransportError("answer callback", err)
	}
	return nil
}

func storedMessage(chatID int64, messageID int) telebot.StoredMessage {
	return telebot.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
}

func sendOptions(msg dialog.Message) *telebot.SendOptions {
	return &telebot.SendOptions{
		ParseMode:   telebot.ParseMode(msg.ParseMode),
		ReplyMarkup: toReplyMarkup(msg.Markup),
	}
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
