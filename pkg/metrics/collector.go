// Package metrics exposes Prometheus instruments for the dialogue engine.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Proton-105/chatflow/internal/session"
)

const unknown = "unknown"

var (
	updatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Total number of dispatched updates labeled by kind, active flow and status",
		},
		[]string{"kind", "flow", "status"},
	)
	updateDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "update_duration_seconds",
			Help:    "Duration of update dispatch in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	flowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_transitions_total",
			Help: "Total number of flow state transitions",
		},
		[]string{"flow", "from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Current number of stored sessions",
		},
	)
	sessionsByFlow = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessions_by_flow",
			Help: "Number of stored sessions per active flow and state",
		},
		[]string{"flow", "state"},
	)
)

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

// RecordUpdate increments update counters and records duration.
func RecordUpdate(kind, flow, status string, duration time.Duration) {
	kind = orUnknown(kind)
	if flow == "" {
		flow = "none"
	}

	updatesTotal.WithLabelValues(kind, flow, orUnknown(status)).Inc()
	updateDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordFlowTransition tracks flow state changes. Entering and leaving a flow
// show up as transitions from or to "none".
func RecordFlowTransition(flow, from, to string) {
	if from == "" {
		from = "none"
	}
	if to == "" {
		to = "none"
	}

	flowTransitionsTotal.WithLabelValues(orUnknown(flow), from, to).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(code, severity string) {
	errorsTotal.WithLabelValues(orUnknown(code), orUnknown(severity)).Inc()
}

// SessionCollector periodically counts stored sessions per flow.
type SessionCollector struct {
	scanner  session.Scanner
	log      *slog.Logger
	interval time.Duration
}

func NewSessionCollector(scanner session.Scanner, log *slog.Logger, interval time.Duration) *SessionCollector {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &SessionCollector{scanner: scanner, log: log, interval: interval}
}

// Run collects until ctx is cancelled.
func (c *SessionCollector) Run(ctx context.Context) {
	if c == nil || c.scanner == nil {
		return
	}

	for {
		if err := c.Collect(ctx); err != nil {
			c.log.WarnContext(ctx, "session metrics collection failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

// Collect performs a single scan and refreshes the gauges.
func (c *SessionCollector) Collect(ctx context.Context) error {
	type flowState struct{ flow, state string }

	total := 0
	counts := make(map[flowState]int)

	err := c.scanner.Scan(ctx, func(_ string, s session.Session) bool {
		total++
		if s.InFlow() {
			counts[flowState{s.FlowName(), s.FlowState()}]++
		}
		return true
	})
	if err != nil {
		return err
	}

	activeSessions.Set(float64(total))
	sessionsByFlow.Reset()
	for key, count := range counts {
		sessionsByFlow.WithLabelValues(key.flow, key.state).Set(float64(count))
	}

	return nil
}
