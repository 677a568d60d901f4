package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/chatflow/internal/pattern"
	"github.com/Proton-105/chatflow/internal/session"
)

// maxEnterDepth bounds how often EnterFlow may re-enter routing within one update.
const maxEnterDepth = 8

var (
	ErrUnknownFlow  = errors.New("dialog: unknown flow")
	ErrEnterTooDeep = errors.New("dialog: flow re-entry limit reached")
	ErrNoChat       = errors.New("dialog: update has no chat")
	ErrNoMessage    = errors.New("dialog: update has no message to edit")
	ErrNotACallback = errors.New("dialog: update is not a callback")
)

// Context is built once per update and discarded after dispatch.
type Context struct {
	ctx     context.Context
	update  *Update
	session session.Session
	params  pattern.Params
	router  *Router
	log     *slog.Logger
	values  map[string]any

	answered bool
	depth    int
	// entries counts EnterFlow and ExitFlow calls made during the dispatch.
	entries int
}

func newContext(ctx context.Context, r *Router, u *Update) *Context {
	log := r.log.With(slog.Int64("update_id", u.ID), slog.String("kind", u.Kind()))
	if u.Sender != nil {
		log = log.With(slog.Int64("user_id", u.Sender.ID))
	}

	return &Context{
		ctx:     ctx,
		update:  u,
		session: session.New(),
		router:  r,
		log:     log,
	}
}

// Context returns the context.Context of the dispatch.
func (c *Context) Context() context.Context { return c.ctx }

func (c *Context) Update() *Update { return c.update }

// Session returns the mutable session of the sender.
func (c *Context) Session() session.Session { return c.session }

// Params returns the captures of the last matched pattern.
func (c *Context) Params() pattern.Params { return c.params }

func (c *Context) Param(name string) string { return c.params.Get(name) }

func (c *Context) Sender() *User { return c.update.Sender }

func (c *Context) Chat() *Chat { return c.update.Chat }

func (c *Context) Logger() *slog.Logger { return c.log }

func (c *Context) Text() string { return c.update.Text }

func (c *Context) SenderID() int64 {
	if c.update.Sender == nil {
		return 0
	}
	return c.update.Sender.ID
}

// ChatID returns the chat of the update, falling back to the sender for private chats.
func (c *Context) ChatID() int64 {
	if c.update.Chat != nil {
		return c.update.Chat.ID
	}
	return c.SenderID()
}

// Set stores a value for the rest of this dispatch.
func (c *Context) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

func (c *Context) Get(key string) any {
	return c.values[key]
}

// Reply sends msg to the chat of the update and returns the new message id.
func (c *Context) Reply(msg Message) (int, error) {
	chatID := c.ChatID()
	if chatID == 0 {
		return 0, ErrNoChat
	}
	return c.router.transport.Send(c.ctx, chatID, msg)
}

// EditMessageText replaces the message the update refers to.
func (c *Context) EditMessageText(msg Message) error {
	chatID := c.ChatID()
	if chatID == 0 {
		return ErrNoChat
	}
	if c.update.MessageID == 0 {
		return ErrNoMessage
	}
	return c.router.transport.Edit(c.ctx, chatID, c.update.MessageID, msg)
}

// DeleteMessage removes the message the update refers to.
func (c *Context) DeleteMessage() error {
	chatID := c.ChatID()
	if chatID == 0 {
		return ErrNoChat
	}
	if c.update.MessageID == 0 {
		return ErrNoMessage
	}
	return c.router.transport.Delete(c.ctx, chatID, c.update.MessageID)
}

// AnswerCallbackQuery acknowledges the pressed button, optionally with a toast or
// alert. A callback is answered at most once; later calls are no-ops.
func (c *Context) AnswerCallbackQuery(text string, alert bool) error {
	if !c.update.IsCallback() {
		return ErrNotACallback
	}
	if c.answered {
		return nil
	}

	if err := c.router.transport.AnswerCallback(c.ctx, c.update.CallbackID, text, alert); err != nil {
		return err
	}
	c.answered = true
	return nil
}

// Answered reports whether the callback has been acknowledged.
func (c *Context) Answered() bool { return c.answered }

// EnterFlow activates the named flow at state (the initial state when empty) and
// routes the current update again, so the state renders before this call returns.
func (c *Context) EnterFlow(name, state string) error {
	flow, ok := c.router.flow(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFlow, name)
	}
	if state == "" {
		state = flow.initial
	}
	if _, ok := flow.states[state]; !ok {
		return fmt.Errorf("dialog: flow %q has no state %q", name, state)
	}
	if c.depth >= maxEnterDepth {
		return ErrEnterTooDeep
	}

	if prev := c.session.FlowName(); prev != "" && prev != name {
		c.router.recordTransition(prev, c.session.FlowState(), "")
	}
	c.session.SetFlow(name, state)
	c.entries++
	c.router.recordTransition(name, "", state)

	c.depth++
	defer func() { c.depth-- }()

	return c.router.route(c)
}

// ExitFlow clears the active flow.
func (c *Context) ExitFlow() {
	if name := c.session.FlowName(); name != "" {
		c.router.recordTransition(name, c.session.FlowState(), "")
	}
	c.session.ClearFlow()
	c.entries++
}
