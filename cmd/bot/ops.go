package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/chatflow/internal/health"
	"github.com/Proton-105/chatflow/internal/middleware"
	"github.com/Proton-105/chatflow/pkg/logger"
)

// newOpsHandler serves probes, metrics and, in webhook mode, the Telegram
// webhook on one listener. webhook may be nil.
func newOpsHandler(log *slog.Logger, prober health.Prober, webhookPath string, webhook http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer, logger.Middleware, middleware.HTTPLogging(log))

	health.Mount(r, prober)
	r.Handle("/metrics", promhttp.Handler())

	if webhook != nil && webhookPath != "" {
		r.Handle(webhookPath, webhook)
	}
	return r
}
