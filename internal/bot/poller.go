package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/chatflow/internal/dialog"
)

const (
	defaultPollTimeout = 10 * time.Second
	defaultPollBackoff = 3 * time.Second
)

// UpdateHandler consumes converted updates. dialog.Router.Handle satisfies it.
type UpdateHandler func(ctx context.Context, u *dialog.Update)

// Poller fetches updates with getUpdates and hands them over one at a time.
//
// The offset is advanced before an update is handled, so delivery is at most
// once: an update being handled when the process dies is not fetched again.
type Poller struct {
	bot     *telebot.Bot
	handle  UpdateHandler
	log     *slog.Logger
	timeout time.Duration
	backoff time.Duration
	offset  int

	// OnStarted runs once after the first successful getUpdates call.
	OnStarted func()
}

func NewPoller(tb *telebot.Bot, handle UpdateHandler, timeout, backoff time.Duration, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	if backoff <= 0 {
		backoff = defaultPollBackoff
	}

	return &Poller{
		bot:     tb,
		handle:  handle,
		log:     log.With(slog.String("component", "poller")),
		timeout: timeout,
		backoff: backoff,
	}
}

// Run polls until ctx is cancelled. A webhook left registered from an earlier
// deployment is removed first because Telegram refuses getUpdates otherwise.
func (p *Poller) Run(ctx context.Context) error {
	if _, err := p.bot.Raw("deleteWebhook", map[string]string{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	started := false
	for ctx.Err() == nil {
		updates, err := p.fetch()
		if err != nil {
			p.log.WarnContext(ctx, "getUpdates failed", slog.Duration("backoff", p.backoff), slog.Any("error", err))
			select {
			case <-ctx.Done():
			case <-time.After(p.backoff):
			}
			continue
		}

		if !started {
			started = true
			p.log.InfoContext(ctx, "polling started", slog.Int("offset", p.offset))
			if p.OnStarted != nil {
				p.OnStarted()
			}
		}

		for i := range updates {
			p.offset = updates[i].ID + 1
			if u := ConvertUpdate(&updates[i]); u != nil {
				p.handle(ctx, u)
			}
		}
	}

	p.log.InfoContext(ctx, "polling stopped", slog.Int("offset", p.offset))
	return nil
}

// Offset is the next update id that will be requested.
func (p *Poller) Offset() int { return p.offset }

func (p *Poller) fetch() ([]telebot.Update, error) {
	data, err := p.bot.Raw("getUpdates", map[string]string{
		"offset":          strconv.Itoa(p.offset),
		"timeout":         strconv.Itoa(int(p.timeout / time.Second)),
		"allowed_updates": `["message","callback_query"]`,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result []telebot.Update `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode getUpdates: %w", err)
	}
	return resp.Result, nil
}
