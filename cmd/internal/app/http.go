package app

import (
	"context"
	"net/http"
	"time"

	authapi "github.com/Azuko9/forum-app/cmd/internal/auth/api"
	"github.com/Azuko9/forum-app/cmd/internal/forum"
)

// readinessProbe is the slice of backend that /readyz needs.
type readinessProbe interface {
	persistent() bool
	Ping(ctx context.Context, timeout time.Duration) error
}

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	db readinessProbe,
	metrics *Metrics,
	auth *authapi.Handler,
	topics *forum.Handler,
) {
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Forum API is running"))
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !db.persistent() {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if err := db.Ping(r.Context(), 2*time.Second); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			log.Info("readyz.db.not_ready", "err", err)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	auth.Register(mux)
	topics.Register(mux)
}
