package dialog

import (
	"context"

	"github.com/Proton-105/chatflow/internal/pattern"
	"github.com/Proton-105/chatflow/internal/session"
)

// Handler handles one update routed to it.
type Handler func(c *Context) error

// Middleware wraps a Handler. The first middleware passed to Router.Use runs outermost.
type Middleware func(next Handler) Handler

// Payload is the input of a Command bound to a flow action.
type Payload struct {
	Params  pattern.Params
	Session session.Session
	Text    string
	Contact *Contact
}

// Command mutates the session or the outside world in response to an action. Its
// result is handed to a ResolveFunc when the action uses one.
type Command func(c *Context, p Payload) (any, error)

// QueryInput is what a Query may look at. The session is a read-only snapshot.
type QueryInput struct {
	Update  *Update
	Params  pattern.Params
	Session session.View
}

// Query loads the props a Component renders. Queries must not have side effects.
type Query func(ctx context.Context, in QueryInput) (any, error)

// Component renders props into a message. It must be pure.
type Component func(props any) Message
