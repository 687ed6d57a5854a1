// Package ops provides the engine's minimal operator-facing HTTP surface:
// liveness/readiness checks and a Prometheus scrape endpoint. This is
// deliberately not the complaint-submission API (spec.md §1 Non-goals put
// that outside the core) — it exists so a deployed worker process can be
// health-checked and monitored like any other service in the fleet.
package ops

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Checker is anything the readiness probe pings. *sql.DB and *redis.Client
// both satisfy it.
type Checker interface {
	PingContext(ctx context.Context) error
}

type sqlChecker struct{ db *sql.DB }

func (c sqlChecker) PingContext(ctx context.Context) error { return c.db.PingContext(ctx) }

// SQLChecker adapts a *sql.DB into a Checker.
func SQLChecker(db *sql.DB) Checker { return sqlChecker{db: db} }

type redisChecker struct{ rdb *redis.Client }

func (c redisChecker) PingContext(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// RedisChecker adapts a *redis.Client into a Checker.
func RedisChecker(rdb *redis.Client) Checker { return redisChecker{rdb: rdb} }

// Server is the chi-routed health/metrics surface. It has no dependency on
// any other engine package beyond the narrow Checker interface, so it can
// be started independently of which vector/incident store backend the
// worker process chose.
type Server struct {
	Router    *chi.Mux
	startedAt time.Time
}

// NewServer builds a Server with liveness/readiness/metrics endpoints
// mounted. checks are run on every /readyz call; a nil registry omits the
// /metrics endpoint.
func NewServer(logger logr.Logger, registry *prometheus.Registry, checks map[string]Checker) *Server {
	s := &Server{Router: chi.NewRouter(), startedAt: time.Now()}

	s.Router.Use(middleware.Recoverer)
	s.Router.Use(requestLogger(logger))
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz(checks))
	if registry != nil {
		s.Router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return s
}

func requestLogger(logger logr.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.V(1).Info("ops request",
				"method", r.Method, "path", r.URL.Path,
				"status", ww.Status(), "duration_ms", time.Since(start).Milliseconds())
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ServeHTTP implements http.Handler, letting a Server be used directly with
// net/http.Server or in tests via httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleReadyz(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		results := make([]checkResult, 0, len(checks))
		allOK := true
		for name, checker := range checks {
			if err := checker.PingContext(ctx); err != nil {
				results = append(results, checkResult{Name: name, Status: "fail", Error: err.Error()})
				allOK = false
				continue
			}
			results = append(results, checkResult{Name: name, Status: "ok"})
		}

		status := http.StatusOK
		overall := "ready"
		if !allOK {
			status = http.StatusServiceUnavailable
			overall = "unavailable"
		}
		respondJSON(w, status, map[string]interface{}{"status": overall, "checks": results})
	}
}
