// Package lifecycle tracks process readiness and runs shutdown hooks.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/Proton-105/chatflow/internal/health"
)

// ErrNotReady is returned by Readiness before MarkReady or after MarkDraining.
var ErrNotReady = errors.New("service is not ready")

// Probes implements health.Prober on top of a dependency Checker.
type Probes struct {
	log     *slog.Logger
	checker *health.Checker
	ready   atomic.Bool
}

var _ health.Prober = (*Probes)(nil)

// NewProbes creates a new Probes instance. It starts not ready.
func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{log: log, checker: checker}
}

// MarkReady flips readiness on once the bot started receiving updates.
func (p *Probes) MarkReady() { p.ready.Store(true) }

// MarkDraining flips readiness off at the start of shutdown.
func (p *Probes) MarkDraining() { p.ready.Store(false) }

// Liveness reports success while the process runs.
func (p *Probes) Liveness(context.Context) error {
	return nil
}

// Readiness fails while not ready or while any dependency check fails.
func (p *Probes) Readiness(ctx context.Context) (map[string]string, error) {
	var results map[string]string
	if p.checker != nil {
		results = p.checker.Check(ctx)
	}

	if !p.ready.Load() {
		return results, ErrNotReady
	}

	var failed []string
	for name, status := range results {
		if status != "OK" {
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		p.log.DebugContext(ctx, "readiness probe failed", slog.Any("components", failed))
		return results, fmt.Errorf("unhealthy components: %s", strings.Join(failed, ", "))
	}

	return results, nil
}
