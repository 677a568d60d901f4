package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/chatflow/internal/dialog"
	"github.com/Proton-105/chatflow/internal/idempotency"
	"github.com/Proton-105/chatflow/internal/ratelimit"
	"github.com/Proton-105/chatflow/internal/session"
	"github.com/Proton-105/chatflow/pkg/config"
)

type sent struct {
	op   string
	text string
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeTransport) add(op, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{op: op, text: text})
}

func (f *fakeTransport) Send(_ context.Context, _ int64, msg dialog.Message) (int, error) {
	f.add("send", msg.Text)
	return 1, nil
}

func (f *fakeTransport) Edit(_ context.Context, _ int64, _ int, msg dialog.Message) error {
	f.add("edit", msg.Text)
	return nil
}

func (f *fakeTransport) Delete(context.Context, int64, int) error { return nil }

func (f *fakeTransport) AnswerCallback(_ context.Context, _ string, text string, _ bool) error {
	f.add("answer", text)
	return nil
}

func (f *fakeTransport) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(t *testing.T, mws ...dialog.Middleware) (*dialog.Router, *fakeTransport, *int) {
	t.Helper()

	transport := &fakeTransport{}
	router := dialog.NewRouter(transport, dialog.WithLogger(discard()))
	router.Use(mws...)

	hits := 0
	router.OnCommand("/ping", func(c *dialog.Context) error {
		hits++
		_, err := c.Reply(dialog.Text("pong"))
		return err
	})
	router.OnCallbackQuery("ping", func(c *dialog.Context) error {
		hits++
		return c.AnswerCallbackQuery("pong", false)
	})

	return router, transport, &hits
}

func ping(id int64) *dialog.Update {
	return &dialog.Update{
		ID:     id,
		Text:   "/ping",
		Sender: &dialog.User{ID: 42},
		Chat:   &dialog.Chat{ID: 42},
	}
}

func TestIdempotency_SkipsRedeliveredUpdate(t *testing.T) {
	manager := idempotency.NewManager(idempotency.NewMemoryStore(), discard())
	router, transport, hits := newRouter(t, Idempotency(manager, time.Hour, discard()))

	router.Handle(context.Background(), ping(10))
	router.Handle(context.Background(), ping(10))
	router.Handle(context.Background(), ping(11))

	assert.Equal(t, 2, *hits)
	assert.Len(t, transport.all(), 2)
}

func TestIdempotency_UpdateWithoutIDAlwaysRuns(t *testing.T) {
	manager := idempotency.NewManager(idempotency.NewMemoryStore(), discard())
	router, _, hits := newRouter(t, Idempotency(manager, time.Hour, discard()))

	router.Handle(context.Background(), ping(0))
	router.Handle(context.Background(), ping(0))

	assert.Equal(t, 2, *hits)
	assert.Empty(t, UpdateKey(ping(0)))
	assert.NotEmpty(t, UpdateKey(ping(1)))
}

func TestIdempotency_NilManagerPassesThrough(t *testing.T) {
	router, _, hits := newRouter(t, Idempotency(nil, time.Hour, nil))

	router.Handle(context.Background(), ping(1))
	router.Handle(context.Background(), ping(1))

	assert.Equal(t, 2, *hits)
}

func newRateLimit(t *testing.T, limit int, whitelist ...int64) *RateLimitMiddleware {
	t.Helper()

	rules, err := ratelimit.NewRules(config.RateLimitConfig{
		Enabled:   true,
		PerUser:   config.RateLimitRule{Limit: limit, Window: "1m"},
		Whitelist: whitelist,
	})
	require.NoError(t, err)

	return NewRateLimitMiddleware(ratelimit.NewMemoryLimiter(), rules, discard())
}

func TestRateLimit_RepliesWhenExceeded(t *testing.T) {
	router, transport, hits := newRouter(t, newRateLimit(t, 1).Handle)

	router.Handle(context.Background(), ping(1))
	router.Handle(context.Background(), ping(2))

	assert.Equal(t, 1, *hits)
	got := transport.all()
	require.Len(t, got, 2)
	assert.Equal(t, "pong", got[0].text)
	assert.Equal(t, "send", got[1].op)
	assert.Contains(t, got[1].text, "Too many requests")
}

func TestRateLimit_CallbackGetsToast(t *testing.T) {
	router, transport, hits := newRouter(t, newRateLimit(t, 1).Handle)

	cb := func(id int64) *dialog.Update {
		return &dialog.Update{
			ID:           id,
			CallbackID:   "cb",
			CallbackData: "ping",
			Sender:       &dialog.User{ID: 42},
			Chat:         &dialog.Chat{ID: 42},
		}
	}

	router.Handle(context.Background(), cb(1))
	router.Handle(context.Background(), cb(2))

	assert.Equal(t, 1, *hits)
	got := transport.all()
	require.Len(t, got, 2)
	assert.Equal(t, "answer", got[1].op)
	assert.Contains(t, got[1].text, "Too many requests")
}

func TestRateLimit_WhitelistBypasses(t *testing.T) {
	router, _, hits := newRouter(t, newRateLimit(t, 1, 42).Handle)

	for i := int64(1); i <= 3; i++ {
		router.Handle(context.Background(), ping(i))
	}

	assert.Equal(t, 3, *hits)
}

func TestMetrics_PassesThroughErrors(t *testing.T) {
	store := session.NewMemoryStore()
	router, _, hits := newRouter(t, dialog.SessionMiddleware(store), Metrics)

	router.Handle(context.Background(), ping(1))
	assert.Equal(t, 1, *hits)
}

func TestHTTPLogging_RecordsStatus(t *testing.T) {
	handler := HTTPLogging(discard())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Test", "1")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Test"))
	assert.Equal(t, "short and stout", rec.Body.String())
}
