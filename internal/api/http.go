// Package api serves the operational endpoints of the tariff reload worker.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bher20/ebill/internal/storage"
)

// Reloader triggers a tariff reload. *cron.Reloader satisfies it.
type Reloader interface {
	RunOnce(ctx context.Context) (changed bool, err error)
}

// ReloadResponse is the body returned by POST /reload.
type ReloadResponse struct {
	Status  string `json:"status"`
	Changed bool   `json:"changed"`
	Error   string `json:"error,omitempty"`
}

// NewMux wires metrics, health probes and the manual reload trigger. st and r
// may be nil, in which case readiness always passes and /reload is not
// registered.
func NewMux(st storage.Storage, r Reloader, log *zap.Logger) *http.ServeMux {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()

	// Metrics endpoint.
	mux.Handle("/metrics", promhttp.Handler())

	// Health / readiness / liveness.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if st != nil {
			if err := st.Ping(req.Context()); err != nil {
				log.Warn("readyz: storage ping failed", zap.Error(err))
				http.Error(w, "storage not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if r != nil {
		mux.HandleFunc("/reload", handleReload(r, log))
	}
	return mux
}

func handleReload(r Reloader, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		changed, err := r.RunOnce(req.Context())
		resp := ReloadResponse{Status: "ok", Changed: changed}
		code := http.StatusOK
		if err != nil {
			log.Warn("manual reload failed", zap.Error(err))
			resp.Status = "error"
			resp.Error = err.Error()
			code = http.StatusInternalServerError
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
