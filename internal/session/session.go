// Package session holds per-user conversation data and the stores that persist it.
package session

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Reserved keys used by the flow controller.
const (
	KeyFlowName  = "flowName"
	KeyFlowState = "flowState"
)

// Session is the mutable key/value record kept per user. It is created empty on
// first contact and must stay JSON-serialisable.
type Session map[string]any

// View is the read-only surface handed to queries.
type View interface {
	FlowName() string
	FlowState() string
	Get(key string) (any, bool)
	GetString(key string) string
	Decode(out any) error
	IsEmpty() bool
}

var _ View = Session(nil)

func New() Session {
	return make(Session)
}

func (s Session) FlowName() string {
	return s.GetString(KeyFlowName)
}

func (s Session) FlowState() string {
	return s.GetString(KeyFlowState)
}

// InFlow reports whether both flow keys are set.
func (s Session) InFlow() bool {
	return s.FlowName() != "" && s.FlowState() != ""
}

func (s Session) SetFlow(name, state string) {
	s[KeyFlowName] = name
	s[KeyFlowState] = state
}

func (s Session) ClearFlow() {
	delete(s, KeyFlowName)
	delete(s, KeyFlowState)
}

func (s Session) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

// GetString returns the value under key when it is a string, or "".
func (s Session) GetString(key string) string {
	v, _ := s[key].(string)
	return v
}

func (s Session) Set(key string, value any) {
	s[key] = value
}

func (s Session) Delete(key string) {
	delete(s, key)
}

func (s Session) IsEmpty() bool {
	return len(s) == 0
}

// Clone returns a deep copy of maps and slices; other values are shared.
func (s Session) Clone() Session {
	if s == nil {
		return New()
	}

	out := make(Session, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

// Decode copies the session into a struct using mapstructure tags. Numbers
// restored from JSON arrive as float64, so input is weakly typed.
func (s Session) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("session decoder: %w", err)
	}

	if err := dec.Decode(map[string]any(s)); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	return nil
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case Session:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
