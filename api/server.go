// Package api exposes the knowledge lifecycle over HTTP as a JSON API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kardexlab/kardex/internal/agent"
)

// Server is the HTTP server for the incident knowledge API.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

// ServerConfig contains the dependencies for a Server.
type ServerConfig struct {
	Agent  *agent.Agent  // Required
	DBPool *pgxpool.Pool // Required: backs the readiness probe
	Logger *slog.Logger
}

// NewServer creates a Server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("agent is required")
	}
	if cfg.DBPool == nil {
		return nil, errors.New("db pool is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	health := newHealth(cfg.DBPool)
	health.registerRoutes(mux)

	h := &handlers{agent: cfg.Agent, logger: logger}

	mux.HandleFunc("POST /api/problems", h.receiveProblem)
	mux.HandleFunc("GET /api/incidences", h.listIncidences)
	mux.HandleFunc("GET /api/incidences/{id}/reports", h.listReports)
	mux.HandleFunc("POST /api/incidences/{id}/reports", h.addReport)
	mux.HandleFunc("POST /api/incidences/{id}/resolve", h.resolveIncidence)
	mux.HandleFunc("POST /api/incidences/{id}/8d", h.generate8D)
	mux.HandleFunc("GET /api/search", h.search)
	mux.HandleFunc("POST /api/ask", h.ask)
	mux.HandleFunc("GET /api/versions", h.versionHistory)
	mux.HandleFunc("GET /api/stats", h.stats)

	return &Server{mux: mux, logger: logger}, nil
}

// ServeHTTP implements http.Handler with the middleware stack:
// Recovery → Logging → Routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var handler http.Handler = s.mux
	handler = loggingMiddleware(s.logger)(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	handler.ServeHTTP(w, r)
}

// ListenAndServe runs the server until ctx is canceled, then drains with a
// bounded shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
