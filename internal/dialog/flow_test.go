package dialog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/chatflow/internal/pattern"
	"github.com/Proton-105/chatflow/internal/session"
)

type tally struct {
	enters  map[string]int
	renders map[string]int
	params  []pattern.Params
}

func newTally() *tally {
	return &tally{enters: map[string]int{}, renders: map[string]int{}}
}

func selectedItems(v session.View) []string {
	raw, _ := v.Get("items")
	switch items := raw.(type) {
	case []string:
		return items
	case []any:
		out := make([]string, 0, len(items))
		for _, it := range items {
			out = append(out, fmt.Sprint(it))
		}
		return out
	}
	return nil
}

func bookingFlow(p *tally) *Flow {
	load := func(state string) Query {
		return func(_ context.Context, in QueryInput) (any, error) {
			p.enters[state]++
			return len(selectedItems(in.Session)), nil
		}
	}
	render := func(state string) Component {
		return func(props any) Message {
			p.renders[state]++
			return Text(fmt.Sprintf("%s %v", state, props))
		}
	}

	selectItem := func(c *Context, in Payload) (any, error) {
		p.params = append(p.params, in.Params)
		items := append(selectedItems(in.Session), in.Params.Get("id"))
		in.Session.Set("items", items)
		return nil, nil
	}

	done := ResolveFunc(func(_ any, c *Context) string {
		if len(selectedItems(c.Session())) == 0 {
			_ = c.AnswerCallbackQuery("select something", false)
			return "SELECT_ITEMS"
		}
		return "PHONE"
	})

	savePhone := func(c *Context, in Payload) (any, error) {
		phone := in.Text
		if in.Contact != nil {
			phone = in.Contact.PhoneNumber
		}
		in.Session.Set("phone", phone)
		return nil, nil
	}

	confirm := func(c *Context, in Payload) (any, error) {
		in.Session.Delete("items")
		in.Session.Delete("phone")
		return "ok", nil
	}

	return MustFlow("booking", "SELECT_ITEMS", FlowConfig{
		"SELECT_ITEMS": {
			OnEnter:   load("SELECT_ITEMS"),
			Component: render("SELECT_ITEMS"),
			OnAction: []ActionRoute{
				On("select_item::id", Refresh{Command: selectItem}),
				On("^done$", Transition{Next: done}),
				On("^cancel$", Transition{Next: ResolveFunc(func(any, *Context) string { return "" })}),
			},
		},
		"PHONE": {
			Component: render("PHONE"),
			OnText:    []ActionRoute{On(`^\+?\d{5,}$`, Goto(savePhone, "CONFIRM"))},
			OnContact: Goto(savePhone, "CONFIRM"),
		},
		"CONFIRM": {
			OnEnter:   load("CONFIRM"),
			Component: render("CONFIRM"),
			OnAction: []ActionRoute{
				On("^confirm$", Transition{
					Command: confirm,
					Next:    ResolveFunc(func(result any, _ *Context) string { return "" }),
				}),
				On("^back$", Goto(nil, "SELECT_ITEMS")),
			},
		},
	})
}

func newBookingHarness(t *testing.T) (*harness, *tally) {
	t.Helper()

	h := newHarness(t)
	p := newTally()
	require.NoError(t, h.router.AddFlow(bookingFlow(p)))

	h.router.OnCommand(`^/book$`, func(c *Context) error {
		return c.EnterFlow("booking", "")
	})
	h.router.OnCallbackQuery(`^menu_book$`, func(c *Context) error {
		return c.EnterFlow("booking", "SELECT_ITEMS")
	})

	return h, p
}

func TestEnterFlow_RendersBeforeDispatchReturns(t *testing.T) {
	h, p := newBookingHarness(t)

	h.dispatch(t, textUpdate(1, "/book"))

	assert.Equal(t, 1, p.enters["SELECT_ITEMS"])
	assert.Equal(t, 1, p.renders["SELECT_ITEMS"])
	assert.Equal(t, []string{"send"}, h.transport.ops())
	assert.Equal(t, []string{"SELECT_ITEMS 0"}, h.transport.texts())

	stored := h.store.load(t, 1)
	assert.Equal(t, "booking", stored.FlowName())
	assert.Equal(t, "SELECT_ITEMS", stored.FlowState())
}

func TestEnterFlow_FromCallbackEditsMessage(t *testing.T) {
	h, p := newBookingHarness(t)

	h.dispatch(t, callbackUpdate(1, "menu_book"))

	assert.Equal(t, 1, p.renders["SELECT_ITEMS"])
	assert.Equal(t, []string{"answer", "edit"}, h.transport.ops())
	assert.Equal(t, 77, h.transport.calls[1].messageID)
}

func TestFlow_TemplateParamsReachCommand(t *testing.T) {
	h, p := newBookingHarness(t)
	h.dispatch(t, textUpdate(1, "/book"))

	h.dispatch(t, callbackUpdate(1, "select_item:store_1"))

	require.Len(t, p.params, 1)
	assert.Equal(t, "store_1", p.params[0]["id"])
}

func TestFlow_RefreshKeepsStateAndReRenders(t *testing.T) {
	h, p := newBookingHarness(t)
	h.dispatch(t, textUpdate(1, "/book"))
	h.transport.reset()

	h.dispatch(t, callbackUpdate(1, "select_item:a"))

	assert.Equal(t, 2, p.enters["SELECT_ITEMS"])
	assert.Equal(t, 2, p.renders["SELECT_ITEMS"])
	assert.Equal(t, []string{"answer", "edit"}, h.transport.ops())
	assert.Equal(t, []string{"SELECT_ITEMS 1"}, h.transport.texts())
	assert.Equal(t, "SELECT_ITEMS", h.store.load(t, 1).FlowState())
}

func TestFlow_StaticNextRendersOnce(t *testing.T) {
	h, p := newBookingHarness(t)
	h.dispatch(t, textUpdate(1, "/book"))
	h.dispatch(t, callbackUpdate(1, "select_item:a"))
	h.dispatch(t, callbackUpdate(1, "done"))
	h.transport.reset()

	h.dispatch(t, contactUpdate(1, "+15550001"))

	assert.Equal(t, 1, p.renders["CONFIRM"])
	assert.Equal(t, 1, p.enters["CONFIRM"])
	assert.Equal(t, []string{"send"}, h.transport.ops())

	stored := h.store.load(t, 1)
	assert.Equal(t, "CONFIRM", stored.FlowState())
	assert.Equal(t, "+15550001", stored["phone"])
}

func TestFlow_TextActionWithStaticNext(t *testing.T) {
	h, p := newBookingHarness(t)
	h.dispatch(t, textUpdate(1, "/book"))
	h.dispatch(t, callbackUpdate(1, "select_item:a"))
	h.dispatch(t, callbackUpdate(1, "done"))

	h.dispatch(t, textUpdate(1, "+15550002"))

	assert.Equal(t, 1, p.renders["CONFIRM"])
	assert.Equal(t, "+15550002", h.store.load(t, 1)["phone"])
}

func TestFlow_ResolverCanKeepStateWithToast(t *testing.T) {
	h, p := newBookingHarness(t)
	h.dispatch(t, textUpdate(1, "/book"))
	h.transport.reset()

	h.dispatch(t, callbackUpdate(1, "done"))

	assert.Equal(t, "SELECT_ITEMS", h.store.load(t, 1).FlowState())
	assert.Zero(t, p.renders["PHONE"])
	require.Equal(t, []string{"answer", "edit"}, h.transport.ops())
	assert.Equal(t, "select something", h.transport.calls[0].text)
}

func TestFlow_FalsyResolverExits(t *testing.T) {
	h, _ := newBookingHarness(t)
	h.dispatch(t, textUpdate(1, "/book"))
	h.dispatch(t, callbackUpdate(1, "select_item:a"))

	h.dispatch(t, callbackUpdate(1, "cancel"))

	stored := h.store.load(t, 1)
	_, hasName := stored[session.KeyFlowName]
	_, hasState := stored[session.KeyFlowState]
	assert.False(t, hasName)
	assert.False(t, hasState)
	assert.Equal(t, []string{"a"}, selectedItems(stored))
}

func TestFlow_ExitLeavingEmptySessionDeletesIt(t *testing.T) {
	h, _ := newBookingHarness(t)
	h.dispatch(t, textUpdate(1, "/book"))
	h.dispatch(t, callbackUpdate(1, "select_item:a"))
	h.dispatch(t, callbackUpdate(1, "done"))
	h.dispatch(t, contactUpdate(1, "+15550001"))
	deletesBefore := h.store.deletes.Load()

	h.dispatch(t, callbackUpdate(1, "confirm"))

	assert.Equal(t, deletesBefore+1, h.store.deletes.Load())
	_, err := h.store.MemoryStore.Get(context.Background(), "1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestFlow_NoMatchReRendersAndClaims(t *testing.T) {
	h, p := newBookingHarness(t)
	textRouteRan := false
	h.router.OnText(`.*`, func(c *Context) error {
		textRouteRan = true
		return nil
	})
	h.dispatch(t, textUpdate(1, "/book"))
	h.transport.reset()

	h.dispatch(t, textUpdate(1, "random words"))

	assert.False(t, textRouteRan)
	assert.Equal(t, 2, p.renders["SELECT_ITEMS"])
	assert.Equal(t, []string{"send"}, h.transport.ops())
}

func TestFlow_RemovedStateForceExits(t *testing.T) {
	h, p := newBookingHarness(t)
	require.NoError(t, h.store.Set(context.Background(), "1", session.Session{
		session.KeyFlowName:  "booking",
		session.KeyFlowState: "REMOVED",
	}))

	fellThrough := false
	h.router.OnCallbackQuery(`^select_item:`, func(c *Context) error {
		fellThrough = true
		return nil
	})

	err := h.router.dispatch(context.Background(), callbackUpdate(1, "select_item:x"))
	require.NoError(t, err)

	assert.True(t, fellThrough)
	assert.Empty(t, p.params)
	assert.False(t, h.store.load(t, 1).InFlow())
}

func TestFlow_HandleUnclaimedForOtherFlow(t *testing.T) {
	f := bookingFlow(newTally())
	r := NewRouter(&fakeTransport{}, WithLogger(testLogger()))
	c := newContext(context.Background(), r, textUpdate(1, "x"))
	c.session.SetFlow("other", "A")

	claimed, err := f.handle(c)
	assert.NoError(t, err)
	assert.False(t, claimed)
}

func TestFlow_DefaultsToInitialState(t *testing.T) {
	h, p := newBookingHarness(t)
	require.NoError(t, h.store.Set(context.Background(), "1", session.Session{session.KeyFlowName: "booking"}))

	h.dispatch(t, callbackUpdate(1, "select_item:z"))

	require.Len(t, p.params, 1)
	assert.Equal(t, "SELECT_ITEMS", h.store.load(t, 1).FlowState())
}

func TestFlow_CommandErrorDiscardsSessionChanges(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("boom")
	flow := MustFlow("f", "A", FlowConfig{
		"A": {
			Component: func(any) Message { return Text("A") },
			OnText: []ActionRoute{On(".*", Refresh{Command: func(c *Context, in Payload) (any, error) {
				in.Session.Set("dirty", true)
				return nil, boom
			}})},
		},
	})
	require.NoError(t, h.router.AddFlow(flow))
	require.NoError(t, h.store.Set(context.Background(), "1", session.Session{session.KeyFlowName: "f", session.KeyFlowState: "A"}))
	setsBefore := h.store.sets.Load()

	err := h.router.dispatch(context.Background(), textUpdate(1, "x"))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, setsBefore, h.store.sets.Load())
	_, dirty := h.store.load(t, 1)["dirty"]
	assert.False(t, dirty)
	assert.Empty(t, h.transport.ops())
}

func TestFlow_QueryGetsSnapshot(t *testing.T) {
	h := newHarness(t)
	flow := MustFlow("f", "A", FlowConfig{
		"A": {
			OnEnter: func(_ context.Context, in QueryInput) (any, error) {
				if s, ok := in.Session.(session.Session); ok {
					s.Set("sneaky", true)
				}
				return nil, nil
			},
			Component: func(any) Message { return Text("A") },
		},
	})
	require.NoError(t, h.router.AddFlow(flow))
	h.router.OnCommand(`^/f$`, func(c *Context) error { return c.EnterFlow("f", "") })

	h.dispatch(t, textUpdate(1, "/f"))

	_, sneaky := h.store.load(t, 1)["sneaky"]
	assert.False(t, sneaky)
}

func TestFlow_QueryErrorPropagates(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("load failed")
	flow := MustFlow("f", "A", FlowConfig{
		"A": {
			OnEnter:   func(context.Context, QueryInput) (any, error) { return nil, boom },
			Component: func(any) Message { return Text("A") },
		},
	})
	require.NoError(t, h.router.AddFlow(flow))
	h.router.OnCommand(`^/f$`, func(c *Context) error { return c.EnterFlow("f", "") })

	err := h.router.dispatch(context.Background(), textUpdate(1, "/f"))
	assert.ErrorIs(t, err, boom)
}

func TestFlow_ResolvedUndefinedStateExits(t *testing.T) {
	h := newHarness(t)
	flow := MustFlow("f", "A", FlowConfig{
		"A": {
			Component: func(any) Message { return Text("A") },
			OnText: []ActionRoute{On(".*", Transition{Next: ResolveFunc(func(any, *Context) string {
				return "NOWHERE"
			})})},
		},
	})
	require.NoError(t, h.router.AddFlow(flow))
	require.NoError(t, h.store.Set(context.Background(), "1", session.Session{session.KeyFlowName: "f", session.KeyFlowState: "A"}))

	h.dispatch(t, textUpdate(1, "x"))

	assert.False(t, h.store.load(t, 1).InFlow())
	assert.Empty(t, h.transport.ops())
}

func TestEnterFlow_ReentryIsBounded(t *testing.T) {
	h := newHarness(t)
	loop := MustFlow("loop", "A", FlowConfig{
		"A": {
			Component: func(any) Message { return Text("A") },
			OnText: []ActionRoute{On(".*", Refresh{Command: func(c *Context, _ Payload) (any, error) {
				return nil, c.EnterFlow("loop", "A")
			}})},
		},
	})
	require.NoError(t, h.router.AddFlow(loop))
	h.router.OnCommand(`^/loop$`, func(c *Context) error { return c.EnterFlow("loop", "") })

	err := h.router.dispatch(context.Background(), textUpdate(1, "/loop"))
	assert.ErrorIs(t, err, ErrEnterTooDeep)
}

func TestEnterFlow_FromCommandInSameFlowWins(t *testing.T) {
	h := newHarness(t)
	jump := func(c *Context, _ Payload) (any, error) {
		return nil, c.EnterFlow("steps", "B")
	}
	steps := MustFlow("steps", "A", FlowConfig{
		"A": {
			Component: func(any) Message { return Text("A") },
			OnText:    []ActionRoute{On("^jump$", Goto(jump, "A"))},
		},
		"B": {Component: func(any) Message { return Text("B") }},
	})
	require.NoError(t, h.router.AddFlow(steps))
	h.router.OnCommand(`^/steps$`, func(c *Context) error { return c.EnterFlow("steps", "") })

	h.dispatch(t, textUpdate(1, "/steps"))
	h.transport.reset()

	h.dispatch(t, textUpdate(1, "jump"))

	assert.Equal(t, []string{"B"}, h.transport.texts())
	assert.Equal(t, "B", h.store.load(t, 1).FlowState())
}

func TestFlow_CallbackWithoutMessageIsAnswered(t *testing.T) {
	h, p := newBookingHarness(t)
	h.dispatch(t, textUpdate(1, "/book"))
	h.transport.reset()

	inline := callbackUpdate(1, "select_item:store_1")
	inline.MessageID = 0
	h.dispatch(t, inline)

	assert.Equal(t, 2, p.renders["SELECT_ITEMS"])
	assert.Equal(t, []string{"answer", "send"}, h.transport.ops())
}

func TestEnterFlow_UnknownState(t *testing.T) {
	h, _ := newBookingHarness(t)
	h.router.OnCommand(`^/bad$`, func(c *Context) error { return c.EnterFlow("booking", "NOPE") })

	err := h.router.dispatch(context.Background(), textUpdate(1, "/bad"))
	assert.Error(t, err)
}

func TestTransitionRecorder(t *testing.T) {
	type step struct{ flow, from, to string }
	var steps []step

	h := newHarness(t, WithTransitionRecorder(func(flow, from, to string) {
		steps = append(steps, step{flow, from, to})
	}))
	require.NoError(t, h.router.AddFlow(bookingFlow(newTally())))
	h.router.OnCommand(`^/book$`, func(c *Context) error { return c.EnterFlow("booking", "") })

	h.dispatch(t, textUpdate(1, "/book"))
	h.dispatch(t, callbackUpdate(1, "select_item:a"))
	h.dispatch(t, callbackUpdate(1, "done"))
	h.dispatch(t, callbackUpdate(1, "cancel"))

	assert.Equal(t, []step{
		{"booking", "", "SELECT_ITEMS"},
		{"booking", "SELECT_ITEMS", "PHONE"},
	}, steps)
}

func TestNewFlow_Validation(t *testing.T) {
	comp := func(any) Message { return Text("x") }

	cases := map[string]struct {
		name    string
		initial string
		cfg     FlowConfig
	}{
		"empty name":       {"", "A", FlowConfig{"A": {Component: comp}}},
		"missing initial":  {"f", "B", FlowConfig{"A": {Component: comp}}},
		"no component":     {"f", "A", FlowConfig{"A": {}}},
		"bad pattern":      {"f", "A", FlowConfig{"A": {Component: comp, OnText: []ActionRoute{On("(", Refresh{})}}}},
		"empty pattern":    {"f", "A", FlowConfig{"A": {Component: comp, OnText: []ActionRoute{On("", Refresh{})}}}},
		"undefined target": {"f", "A", FlowConfig{"A": {Component: comp, OnAction: []ActionRoute{On("x", Goto(nil, "B"))}}}},
		"nil action":       {"f", "A", FlowConfig{"A": {Component: comp, OnAction: []ActionRoute{On("x", nil)}}}},
		"nil next":         {"f", "A", FlowConfig{"A": {Component: comp, OnAction: []ActionRoute{On("x", Transition{})}}}},
		"nil resolver":     {"f", "A", FlowConfig{"A": {Component: comp, OnAction: []ActionRoute{On("x", Transition{Next: ResolveFunc(nil)})}}}},
		"contact target":   {"f", "A", FlowConfig{"A": {Component: comp, OnContact: Goto(nil, "Z")}}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewFlow(tc.name, tc.initial, tc.cfg)
			assert.Error(t, err)
		})
	}

	f, err := NewFlow("f", "A", FlowConfig{"A": {Component: comp}, "B": {Component: comp}})
	require.NoError(t, err)
	assert.Equal(t, "f", f.Name())
	assert.Equal(t, "A", f.Initial())
	assert.True(t, f.HasState("B"))
	assert.False(t, f.HasState("C"))

	assert.Panics(t, func() { MustFlow("", "A", nil) })
}
