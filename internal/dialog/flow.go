package dialog

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/chatflow/internal/pattern"
)

// StateDefinition describes one state of a flow.
type StateDefinition struct {
	// OnEnter loads the props for Component. Optional.
	OnEnter Query
	// Component renders the state. Required.
	Component Component
	// OnAction is matched against callback data.
	OnAction []ActionRoute
	// OnText is matched against message text.
	OnText []ActionRoute
	// OnContact runs when the user shares a contact. Optional.
	OnContact Action
}

// FlowConfig maps state names to their definitions.
type FlowConfig map[string]StateDefinition

// Flow is a named finite-state machine. A state without any transition is
// terminal in practice; revisiting states is allowed.
type Flow struct {
	name    string
	initial string
	states  FlowConfig
}

// NewFlow validates cfg and compiles its patterns.
func NewFlow(name, initial string, cfg FlowConfig) (*Flow, error) {
	if name == "" {
		return nil, errors.New("dialog: flow name is empty")
	}
	if _, ok := cfg[initial]; !ok {
		return nil, fmt.Errorf("dialog: flow %q: initial state %q is not defined", name, initial)
	}

	states := make(FlowConfig, len(cfg))
	for stateName, def := range cfg {
		if def.Component == nil {
			return nil, fmt.Errorf("dialog: flow %q: state %q has no component", name, stateName)
		}

		var err error
		if def.OnAction, err = compileRoutes(name, stateName, cfg, def.OnAction); err != nil {
			return nil, err
		}
		if def.OnText, err = compileRoutes(name, stateName, cfg, def.OnText); err != nil {
			return nil, err
		}
		if def.OnContact != nil {
			if err := checkAction(name, stateName, cfg, def.OnContact); err != nil {
				return nil, err
			}
		}

		states[stateName] = def
	}

	return &Flow{name: name, initial: initial, states: states}, nil
}

// MustFlow is NewFlow for static registration; it panics on error.
func MustFlow(name, initial string, cfg FlowConfig) *Flow {
	f, err := NewFlow(name, initial, cfg)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Flow) Name() string    { return f.name }
func (f *Flow) Initial() string { return f.initial }

// HasState reports whether state is defined.
func (f *Flow) HasState(state string) bool {
	_, ok := f.states[state]
	return ok
}

func compileRoutes(flow, state string, cfg FlowConfig, routes []ActionRoute) ([]ActionRoute, error) {
	compiled := make([]ActionRoute, len(routes))
	for i, r := range routes {
		m, err := pattern.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("dialog: flow %q state %q: %w", flow, state, err)
		}
		if err := checkAction(flow, state, cfg, r.Action); err != nil {
			return nil, err
		}

		r.matcher = m
		compiled[i] = r
	}
	return compiled, nil
}

func checkAction(flow, state string, cfg FlowConfig, action Action) error {
	switch a := action.(type) {
	case Refresh:
		return nil
	case Transition:
		if a.Next == nil {
			return fmt.Errorf("dialog: flow %q state %q: transition without next state", flow, state)
		}
		if fn, ok := a.Next.(ResolveFunc); ok && fn == nil {
			return fmt.Errorf("dialog: flow %q state %q: nil resolver", flow, state)
		}
		if to, ok := a.Next.(To); ok {
			if _, defined := cfg[string(to)]; !defined {
				return fmt.Errorf("dialog: flow %q state %q: next state %q is not defined", flow, state, to)
			}
		}
		return nil
	case nil:
		return fmt.Errorf("dialog: flow %q state %q: nil action", flow, state)
	default:
		return fmt.Errorf("dialog: flow %q state %q: unsupported action %T", flow, state, action)
	}
}

// handle runs the update through the active state. It reports whether the flow
// claimed the update.
func (f *Flow) handle(c *Context) (bool, error) {
	sess := c.session
	if sess.FlowName() != f.name {
		return false, nil
	}

	current := sess.FlowState()
	if current == "" {
		current = f.initial
	}

	def, ok := f.states[current]
	if !ok {
		c.log.Warn("flow state is not defined, leaving flow",
			slog.String("flow", f.name), slog.String("state", current))
		sess.ClearFlow()
		c.router.recordTransition(f.name, current, "")
		return false, nil
	}

	action, params, matched := match(def, c.update)
	if !matched {
		return true, f.render(c, current, def)
	}
	c.params = params

	entries := c.entries
	var result any
	if cmd := action.command(); cmd != nil {
		var err error
		result, err = cmd(c, Payload{
			Params:  params,
			Session: sess,
			Text:    c.update.Text,
			Contact: c.update.Contact,
		})
		if err != nil {
			return true, err
		}
	}

	// the command moved the user elsewhere and rendered it already
	if sess.FlowName() != f.name || c.entries != entries {
		return true, nil
	}

	var next string
	switch a := action.(type) {
	case Refresh:
		next = current
	case Transition:
		next = a.Next.resolve(result, c)
	}

	if next == "" {
		sess.ClearFlow()
		c.router.recordTransition(f.name, current, "")
		return true, nil
	}

	nextDef, ok := f.states[next]
	if !ok {
		c.log.Warn("resolved state is not defined, leaving flow",
			slog.String("flow", f.name), slog.String("from", current), slog.String("to", next))
		sess.ClearFlow()
		c.router.recordTransition(f.name, current, "")
		return true, nil
	}

	sess.SetFlow(f.name, next)
	if next != current {
		c.router.recordTransition(f.name, current, next)
	}

	return true, f.render(c, next, nextDef)
}

func match(def StateDefinition, u *Update) (Action, pattern.Params, bool) {
	var (
		routes []ActionRoute
		input  string
	)

	switch {
	case u.IsCallback():
		routes, input = def.OnAction, u.CallbackData
	case u.Contact != nil:
		if def.OnContact != nil {
			return def.OnContact, pattern.Params{}, true
		}
		return nil, nil, false
	case u.Text != "":
		routes, input = def.OnText, u.Text
	default:
		return nil, nil, false
	}

	for _, r := range routes {
		if params, ok := r.matcher.Match(input); ok {
			return r.Action, params, true
		}
	}
	return nil, nil, false
}

// render loads props, renders the component and delivers it: callbacks edit the
// message that carried the button, everything else gets a new message.
func (f *Flow) render(c *Context, state string, def StateDefinition) error {
	var props any
	if def.OnEnter != nil {
		var err error
		props, err = def.OnEnter(c.ctx, QueryInput{
			Update:  c.update,
			Params:  c.params,
			Session: c.session.Clone(),
		})
		if err != nil {
			return fmt.Errorf("flow %q state %q: load: %w", f.name, state, err)
		}
	}

	msg := def.Component(props)

	if c.update.IsCallback() {
		if err := c.AnswerCallbackQuery("", false); err != nil {
			return err
		}
		if c.update.MessageID != 0 {
			return c.EditMessageText(msg)
		}
	}

	_, err := c.Reply(msg)
	return err
}
