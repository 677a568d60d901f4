package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Prober answers liveness and readiness questions. Readiness also returns the
// per-component statuses it was based on.
type Prober interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) (map[string]string, error)
}

type probeResponse struct {
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// Mount registers /healthz and /readyz on r.
func Mount(r chi.Router, prober Prober) {
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeProbe(w, nil, prober.Liveness(req.Context()))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		components, err := prober.Readiness(req.Context())
		writeProbe(w, components, err)
	})
}

func writeProbe(w http.ResponseWriter, components map[string]string, err error) {
	resp := probeResponse{Status: "ok", Components: components}
	status := http.StatusOK
	if err != nil {
		resp.Status = "unavailable"
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
