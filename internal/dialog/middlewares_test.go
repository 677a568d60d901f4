package dialog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/chatflow/internal/session"
)

func counterHarness(t *testing.T) *harness {
	t.Helper()

	h := newHarness(t)
	h.router.OnCommand(`^/inc$`, func(c *Context) error {
		n, _ := c.Session().Get("n")
		count, _ := n.(int)
		c.Session().Set("n", count+1)
		return nil
	})
	h.router.OnCommand(`^/reset$`, func(c *Context) error {
		c.Session().Delete("n")
		return nil
	})
	return h
}

func TestSessionMiddleware_PersistsUntilEmpty(t *testing.T) {
	h := counterHarness(t)

	h.dispatch(t, textUpdate(1, "/inc"))
	h.dispatch(t, textUpdate(1, "/inc"))
	assert.Equal(t, 2, h.store.load(t, 1)["n"])

	h.dispatch(t, textUpdate(1, "/reset"))
	assert.Equal(t, int32(1), h.store.deletes.Load())

	_, err := h.store.Get(context.Background(), "1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	h.dispatch(t, textUpdate(1, "/inc"))
	assert.Equal(t, 1, h.store.load(t, 1)["n"])
}

func TestSessionMiddleware_UsersAreIsolated(t *testing.T) {
	h := counterHarness(t)

	h.dispatch(t, textUpdate(1, "/inc"))
	h.dispatch(t, textUpdate(2, "/inc"))
	h.dispatch(t, textUpdate(1, "/inc"))

	assert.Equal(t, 2, h.store.load(t, 1)["n"])
	assert.Equal(t, 1, h.store.load(t, 2)["n"])
}

func TestSessionMiddleware_NoSenderIsNeverPersisted(t *testing.T) {
	h := counterHarness(t)

	channelPost := &Update{ID: 1, Text: "/inc", Chat: &Chat{ID: -100, Type: "channel"}}
	h.dispatch(t, channelPost)
	h.dispatch(t, channelPost)

	assert.Zero(t, h.store.sets.Load())
	assert.Zero(t, h.store.deletes.Load())
	assert.Zero(t, h.store.Len())
}

func TestSessionMiddleware_SavesAfterWholeDispatch(t *testing.T) {
	h := newHarness(t)

	var setsDuringHandler int32
	h.router.OnCommand(`^/x$`, func(c *Context) error {
		c.Session().Set("a", 1)
		setsDuringHandler = h.store.sets.Load()
		c.Session().Set("b", 2)
		return nil
	})

	h.dispatch(t, textUpdate(1, "/x"))

	assert.Zero(t, setsDuringHandler)
	assert.Equal(t, int32(1), h.store.sets.Load())
	stored := h.store.load(t, 1)
	assert.Equal(t, 1, stored["a"])
	assert.Equal(t, 2, stored["b"])
}

func TestSessionMiddleware_LoadFailureStopsDispatch(t *testing.T) {
	h := newHarness(t)
	h.store.getErr = errors.New("store down")

	ran := false
	h.router.OnCommand(`^/x$`, func(c *Context) error {
		ran = true
		return nil
	})

	err := h.router.dispatch(context.Background(), textUpdate(1, "/x"))
	require.Error(t, err)
	assert.False(t, ran)
}

func TestLoggingMiddleware_PassesErrorsThrough(t *testing.T) {
	r := NewRouter(&fakeTransport{}, WithLogger(testLogger()))
	r.Use(LoggingMiddleware())

	boom := errors.New("boom")
	r.OnText(`^fail$`, func(*Context) error { return boom })
	r.OnText(`^ok$`, func(*Context) error { return nil })

	assert.ErrorIs(t, r.dispatch(context.Background(), textUpdate(1, "fail")), boom)
	assert.NoError(t, r.dispatch(context.Background(), textUpdate(1, "ok")))
}
