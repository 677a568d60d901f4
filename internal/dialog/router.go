package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	apperrors "github.com/Proton-105/chatflow/internal/errors"
	"github.com/Proton-105/chatflow/internal/pattern"
	"github.com/Proton-105/chatflow/pkg/logger"
)

type route struct {
	matcher *pattern.Matcher
	handler Handler
}

// TransitionRecorder observes flow state changes. Leaving a flow is reported with
// an empty to; entering one with an empty from.
type TransitionRecorder func(flow, from, to string)

// Router dispatches updates to flows and static routes. Registration is safe for
// concurrent use; dispatch is expected to run one update at a time.
type Router struct {
	mu          sync.RWMutex
	commands    []route
	texts       []route
	callbacks   []route
	middlewares []Middleware
	flows       map[string]*Flow

	transport  Transport
	log        *slog.Logger
	errHandler *apperrors.Handler
	recorders  []TransitionRecorder
}

type Option func(*Router)

func WithLogger(log *slog.Logger) Option {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

// WithErrorHandler reports dispatch errors through h instead of a plain log line.
func WithErrorHandler(h *apperrors.Handler) Option {
	return func(r *Router) { r.errHandler = h }
}

func WithTransitionRecorder(rec TransitionRecorder) Option {
	return func(r *Router) {
		if rec != nil {
			r.recorders = append(r.recorders, rec)
		}
	}
}

func NewRouter(transport Transport, opts ...Option) *Router {
	r := &Router{
		flows:     make(map[string]*Flow),
		transport: transport,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnCommand registers a handler tried first for text messages.
func (r *Router) OnCommand(p string, h Handler) {
	r.add(&r.commands, p, h)
}

// OnText registers a handler tried for text messages after all commands.
func (r *Router) OnText(p string, h Handler) {
	r.add(&r.texts, p, h)
}

// OnCallbackQuery registers a handler for callback data.
func (r *Router) OnCallbackQuery(p string, h Handler) {
	r.add(&r.callbacks, p, h)
}

func (r *Router) add(list *[]route, p string, h Handler) {
	if h == nil {
		panic(fmt.Sprintf("dialog: nil handler for pattern %q", p))
	}
	m := pattern.MustCompile(p)

	r.mu.Lock()
	defer r.mu.Unlock()
	*list = append(*list, route{matcher: m, handler: h})
}

// Use appends middleware. The first registered middleware runs outermost.
func (r *Router) Use(mws ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, mw := range mws {
		if mw != nil {
			r.middlewares = append(r.middlewares, mw)
		}
	}
}

// AddFlow registers f. Flow names must be unique.
func (r *Router) AddFlow(f *Flow) error {
	if f == nil {
		return fmt.Errorf("dialog: nil flow")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.flows[f.name]; exists {
		return fmt.Errorf("dialog: flow %q already registered", f.name)
	}
	r.flows[f.name] = f
	return nil
}

func (r *Router) flow(name string) (*Flow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[name]
	return f, ok
}

// Handle dispatches one update end to end. Errors and panics are logged and
// never reach the caller; the update is dropped without a reply to the user.
func (r *Router) Handle(ctx context.Context, u *Update) {
	if u == nil {
		return
	}
	if logger.CorrelationIDFromContext(ctx) == "" {
		ctx = logger.ContextWithCorrelationID(ctx, "")
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.ErrorContext(ctx, "panic recovered in dispatch",
				slog.Any("panic", rec), slog.String("stack", string(debug.Stack())))
			r.report(ctx, u, fmt.Errorf("panic recovered: %v", rec))
		}
	}()

	if err := r.dispatch(ctx, u); err != nil {
		r.report(ctx, u, err)
	}
}

func (r *Router) dispatch(ctx context.Context, u *Update) error {
	c := newContext(ctx, r, u)
	return r.chain()(c)
}

func (r *Router) chain() Handler {
	r.mu.RLock()
	mws := make([]Middleware, len(r.middlewares))
	copy(mws, r.middlewares)
	r.mu.RUnlock()

	h := Handler(r.route)
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// route gives the active flow the first chance, then tries static routes.
func (r *Router) route(c *Context) error {
	if name := c.session.FlowName(); name != "" {
		if f, ok := r.flow(name); ok {
			claimed, err := f.handle(c)
			if claimed || err != nil {
				return err
			}
		} else {
			c.log.Warn("session references an unknown flow, leaving it", slog.String("flow", name))
			c.session.ClearFlow()
		}
	}

	u := c.update
	r.mu.RLock()
	var candidates [][]route
	input := ""
	switch {
	case u.IsCallback():
		candidates, input = [][]route{r.callbacks}, u.CallbackData
	case u.Text != "":
		candidates, input = [][]route{r.commands, r.texts}, u.Text
	}
	r.mu.RUnlock()

	for _, routes := range candidates {
		for _, rt := range routes {
			if params, ok := rt.matcher.Match(input); ok {
				c.params = params
				return rt.handler(c)
			}
		}
	}

	c.log.Debug("update dropped, no route matched")
	return nil
}

func (r *Router) recordTransition(flow, from, to string) {
	for _, rec := range r.recorders {
		rec(flow, from, to)
	}
}

func (r *Router) report(ctx context.Context, u *Update, err error) {
	if r.errHandler != nil {
		r.errHandler.Handle(ctx, err)
		return
	}
	r.log.ErrorContext(ctx, "update dispatch failed",
		slog.Int64("update_id", u.ID), slog.String("kind", u.Kind()), slog.Any("error", err))
}
