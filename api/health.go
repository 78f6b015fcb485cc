package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// health handles liveness and readiness probes.
type health struct {
	pool *pgxpool.Pool
}

func newHealth(pool *pgxpool.Pool) *health {
	return &health{pool: pool}
}

func (h *health) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.alive)
	mux.HandleFunc("GET /ready", h.ready)
}

// alive returns 200 if the process is up.
func (*health) alive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ready returns 200 only when the database answers a ping.
func (h *health) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.pool.Ping(ctx); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
