package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Shutdown coordinates graceful shutdown hooks, phase by phase.
type Shutdown struct {
	mu     sync.Mutex
	phases map[Phase][]Hook
	log    *slog.Logger
}

// NewShutdown constructs a new Shutdown coordinator.
func NewShutdown(log *slog.Logger) *Shutdown {
	if log == nil {
		log = slog.Default()
	}

	return &Shutdown{log: log, phases: make(map[Phase][]Hook)}
}

// Register adds a named hook to phase.
func (s *Shutdown) Register(phase Phase, name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.phases[phase] = append(s.phases[phase], Hook{Name: name, Fn: fn})
}

// Execute runs every phase in order; hooks inside a phase run concurrently. All
// phases run even if an earlier one failed, and every failure is returned.
func (s *Shutdown) Execute(ctx context.Context) error {
	s.mu.Lock()
	order := make([]Phase, 0, len(s.phases))
	phases := make(map[Phase][]Hook, len(s.phases))
	total := 0
	for phase, hooks := range s.phases {
		order = append(order, phase)
		phases[phase] = append([]Hook(nil), hooks...)
		total += len(hooks)
	}
	s.mu.Unlock()
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	start := time.Now()
	s.log.Info("shutdown sequence started", slog.Int("hook_count", total))

	var errs []error
	for _, phase := range order {
		errs = append(errs, s.runPhase(ctx, phases[phase])...)
	}

	s.log.Info("shutdown sequence finished", slog.Duration("elapsed", time.Since(start)))

	return errors.Join(errs...)
}

func (s *Shutdown) runPhase(ctx context.Context, hooks []Hook) []error {
	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)

	for _, h := range hooks {
		h := h
		wg.Add(1)
		go func() {
			defer wg.Done()

			s.log.Info("running shutdown hook", slog.String("hook", h.Name))

			if err := h.Fn(ctx); err != nil {
				s.log.Error("shutdown hook failed", slog.String("hook", h.Name), slog.Any("error", err))
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
				errMu.Unlock()
				return
			}

			s.log.Info("shutdown hook completed", slog.String("hook", h.Name))
		}()
	}

	wg.Wait()
	return errs
}
