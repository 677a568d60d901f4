package middleware

import (
	"time"

	"github.com/Proton-105/chatflow/internal/dialog"
	apperrors "github.com/Proton-105/chatflow/internal/errors"
	"github.com/Proton-105/chatflow/pkg/metrics"
)

// Metrics measures dispatch time and status, reporting them to Prometheus.
// It belongs inside the session middleware so the active flow is known.
func Metrics(next dialog.Handler) dialog.Handler {
	return func(c *dialog.Context) error {
		start := time.Now()
		flow := c.Session().FlowName()
		err := next(c)

		status := "ok"
		if err != nil {
			status = "error"
			appErr := apperrors.Classify(err)
			metrics.RecordError(appErr.Code, string(appErr.Severity))
		}

		metrics.RecordUpdate(c.Update().Kind(), flow, status, time.Since(start))

		return err
	}
}
