// Package api exposes the orchestrator over HTTP: enqueue, status, cancel,
// queue stats, the decision gate, and risk assessment.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"recon-orchestrator/internal/config"
	"recon-orchestrator/internal/monitor"
	"recon-orchestrator/internal/runner"
	"recon-orchestrator/internal/storage"
)

// Server is the orchestrator's HTTP server.
type Server struct {
	http    *http.Server
	started time.Time
}

// middleware composes wrappers so the first in the list is the outermost.
func chain(h http.Handler, wrappers ...func(http.Handler) http.Handler) http.Handler {
	for i := len(wrappers) - 1; i >= 0; i-- {
		h = wrappers[i](h)
	}
	return h
}

// NewServer wires routes and the middleware stack. Health and metrics stay
// outside auth so probes and scrapers need no key.
func NewServer(cfg *config.Config, handlers *Handlers, backend runner.Backend, db *storage.DB, metrics *monitor.Metrics) *Server {
	s := &Server{started: time.Now()}

	if len(cfg.Security.AllowedKeys) == 0 {
		if cfg.Security.AllowUnauthenticated {
			log.Warn().Msg("no API keys configured — allow_unauthenticated is true, all requests will be accepted")
		} else {
			log.Warn().Msg("no API keys configured and allow_unauthenticated is false — all requests will be rejected")
		}
	}

	protected := http.NewServeMux()
	protected.HandleFunc("POST /executions", handlers.HandleEnqueue)
	protected.HandleFunc("GET /executions", handlers.HandleListExecutions)
	protected.HandleFunc("GET /executions/{id}", handlers.HandleGetExecution)
	protected.HandleFunc("DELETE /executions/{id}", handlers.HandleCancel)
	protected.HandleFunc("GET /queue/stats", handlers.HandleStats)
	protected.HandleFunc("POST /decide", handlers.HandleDecide)
	protected.HandleFunc("POST /risk/assessment", handlers.HandleRiskAssessment)
	protected.HandleFunc("GET /projects/{id}/risk", handlers.HandleProjectRisk)

	auth := AuthMiddleware(cfg.Security.APIKeyHeader, cfg.Security.AllowedKeys, cfg.Security.AllowUnauthenticated)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", s.handleHealth(db, backend))
	if cfg.Metrics.Enabled {
		root.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}
	root.Handle("/", auth(protected))

	s.http = &http.Server{
		Addr: cfg.Address(),
		Handler: chain(root,
			RecoveryMiddleware,
			RequestIDMiddleware,
			LoggingMiddleware,
			MaxBodyMiddleware(cfg.Server.MaxRequestBody),
			RateLimitMiddleware(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst),
			MetricsMiddleware(metrics),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start begins listening for requests.
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(db *storage.DB, backend runner.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Database: db == nil || db.Healthy(r.Context()),
			Runner:   backend != nil,
			Uptime:   time.Since(s.started).Round(time.Second).String(),
		}

		code := http.StatusOK
		if !resp.Database {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
