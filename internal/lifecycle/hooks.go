package lifecycle

import "context"

// Hook describes a named shutdown hook.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Phase groups hooks that may run concurrently. Phases run in ascending order,
// so intake stops before the stores it writes to are closed.
type Phase int

const (
	PhaseIntake Phase = iota
	PhaseWorkers
	PhaseStorage
)
