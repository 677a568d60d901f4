package dialog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Proton-105/chatflow/internal/session"
)

type call struct {
	op        string
	chatID    int64
	messageID int
	msg       Message
	text      string
	alert     bool
}

type fakeTransport struct {
	mu     sync.Mutex
	calls  []call
	nextID int
	err    error
}

func (f *fakeTransport) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, msg Message) (int, error) {
	if err := f.record(call{op: "send", chatID: chatID, msg: msg}); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID, nil
}

func (f *fakeTransport) Edit(_ context.Context, chatID int64, messageID int, msg Message) error {
	return f.record(call{op: "edit", chatID: chatID, messageID: messageID, msg: msg})
}

func (f *fakeTransport) Delete(_ context.Context, chatID int64, messageID int) error {
	return f.record(call{op: "delete", chatID: chatID, messageID: messageID})
}

func (f *fakeTransport) AnswerCallback(_ context.Context, callbackID, text string, alert bool) error {
	return f.record(call{op: "answer", text: text, alert: alert})
}

func (f *fakeTransport) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.op
	}
	return out
}

func (f *fakeTransport) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.op == "send" || c.op == "edit" {
			out = append(out, c.msg.Text)
		}
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// spyStore counts calls on top of a MemoryStore.
type spyStore struct {
	*session.MemoryStore
	sets    atomic.Int32
	deletes atomic.Int32
	getErr  error
}

func newSpyStore() *spyStore {
	return &spyStore{MemoryStore: session.NewMemoryStore()}
}

func (s *spyStore) Get(ctx context.Context, key string) (session.Session, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *spyStore) Set(ctx context.Context, key string, sess session.Session) error {
	s.sets.Add(1)
	return s.MemoryStore.Set(ctx, key, sess)
}

func (s *spyStore) Delete(ctx context.Context, key string) error {
	s.deletes.Add(1)
	return s.MemoryStore.Delete(ctx, key)
}

func (s *spyStore) load(t *testing.T, userID int64) session.Session {
	t.Helper()
	sess, err := s.MemoryStore.Get(context.Background(), fmt.Sprint(userID))
	if err != nil {
		return session.New()
	}
	return sess
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	router    *Router
	transport *fakeTransport
	store     *spyStore
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	tr := &fakeTransport{}
	store := newSpyStore()
	r := NewRouter(tr, append([]Option{WithLogger(testLogger())}, opts...)...)
	r.Use(SessionMiddleware(store))

	return &harness{router: r, transport: tr, store: store}
}

func (h *harness) dispatch(t *testing.T, u *Update) {
	t.Helper()
	require.NoError(t, h.router.dispatch(context.Background(), u))
}

var updateSeq atomic.Int64

func textUpdate(userID int64, text string) *Update {
	return &Update{
		ID:        updateSeq.Add(1),
		Text:      text,
		MessageID: 10,
		Sender:    &User{ID: userID, FirstName: "Test"},
		Chat:      &Chat{ID: userID, Type: "private"},
	}
}

func callbackUpdate(userID int64, data string) *Update {
	return &Update{
		ID:           updateSeq.Add(1),
		CallbackID:   "cb-" + data,
		CallbackData: data,
		MessageID:    77,
		Sender:       &User{ID: userID},
		Chat:         &Chat{ID: userID, Type: "private"},
	}
}

func contactUpdate(userID int64, phone string) *Update {
	return &Update{
		ID:        updateSeq.Add(1),
		Contact:   &Contact{PhoneNumber: phone, UserID: userID},
		MessageID: 11,
		Sender:    &User{ID: userID},
		Chat:      &Chat{ID: userID, Type: "private"},
	}
}
