package dialog

import "github.com/Proton-105/chatflow/internal/pattern"

// Action is what happens when a flow pattern matches. It is either Refresh or
// Transition.
type Action interface {
	command() Command
}

// Refresh runs Command and re-renders the current state.
type Refresh struct {
	Command Command
}

// Transition runs Command and moves to the state chosen by Next.
type Transition struct {
	Command Command
	Next    Next
}

func (a Refresh) command() Command    { return a.Command }
func (a Transition) command() Command { return a.Command }

// Next picks the state that follows a Transition. It is either To or ResolveFunc.
type Next interface {
	resolve(result any, c *Context) string
}

// To is a static next state.
type To string

func (t To) resolve(any, *Context) string { return string(t) }

// ResolveFunc picks the next state from the command result. Returning "" exits
// the flow; returning the current state keeps the user where they are.
type ResolveFunc func(result any, c *Context) string

func (f ResolveFunc) resolve(result any, c *Context) string { return f(result, c) }

// ActionRoute binds a pattern to an action. Routes are tried in declaration order.
type ActionRoute struct {
	Pattern string
	Action  Action

	matcher *pattern.Matcher
}

// On declares an action route.
func On(p string, action Action) ActionRoute {
	return ActionRoute{Pattern: p, Action: action}
}

// Goto is shorthand for a Transition to a fixed state.
func Goto(cmd Command, state string) Transition {
	return Transition{Command: cmd, Next: To(state)}
}

// Exit is a Next that leaves the flow without rendering anything.
func Exit() Next {
	return ResolveFunc(func(any, *Context) string { return "" })
}
