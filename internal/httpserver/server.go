package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports whether a dependency is ready to serve traffic; used by
// /readyz. It never returns a sensitive error directly to the caller — the
// handler logs the cause and returns a generic message.
type Checker func(ctx context.Context) error

// Server wraps the gateway's chi router with the ambient middleware stack
// (request id, structured logging, Prometheus, panic recovery, CORS) and the
// unauthenticated health/readiness/metrics endpoints. Domain routes are
// mounted onto Router by the caller after construction, so this package
// never needs to import the auth, ratelimit, or httpapi packages that build
// on top of it.
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	startedAt time.Time
}

// NewServer builds a Server. readyChecks names each dependency /readyz
// should verify (e.g. "database", "redis"); any failing check reports the
// gateway not ready.
func NewServer(logger *slog.Logger, metricsReg *prometheus.Registry, corsOrigins []string, readyChecks map[string]Checker) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID", "Cache-Control"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz(readyChecks))
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				s.Logger.Error("readiness check failed", "check", name, "error", err)
				RespondError(w, http.StatusServiceUnavailable, "unavailable", name+" not ready")
				return
			}
		}
		Respond(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
