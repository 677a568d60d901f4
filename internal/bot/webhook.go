package bot

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	telebot "gopkg.in/telebot.v3"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler receives updates pushed by Telegram. Dispatches are serialized
// so updates never interleave, matching the poller.
type WebhookHandler struct {
	mu     sync.Mutex
	handle UpdateHandler
	secret string
	log    *slog.Logger
}

func NewWebhookHandler(handle UpdateHandler, secret string, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{handle: handle, secret: secret, log: log.With(slog.String("component", "webhook"))}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(h.secret)) != 1 {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var tu telebot.Update
	if err := json.NewDecoder(r.Body).Decode(&tu); err != nil {
		h.log.WarnContext(r.Context(), "malformed webhook payload", slog.Any("error", err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Telegram retries until it gets a 2xx, so failures inside the dispatch
	// are not reported back.
	if u := ConvertUpdate(&tu); u != nil {
		h.mu.Lock()
		h.handle(context.WithoutCancel(r.Context()), u)
		h.mu.Unlock()
	}

	w.WriteHeader(http.StatusOK)
}

// SetWebhook registers url with Telegram.
func SetWebhook(tb *telebot.Bot, url, secret string) error {
	params := map[string]string{
		"url":             url,
		"allowed_updates": `["message","callback_query"]`,
	}
	if secret != "" {
		params["secret_token"] = secret
	}

	if _, err := tb.Raw("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}
