// Package server implements the RiskCast HTTP API: signal ingest,
// reconciliation, risk assessment, decisioning, outcome recording, the
// audit trail, and pipeline monitoring (spec.md §6), routed with
// github.com/go-chi/chi/v5.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/riskcast/core/internal/audit"
	"github.com/riskcast/core/internal/auth"
	"github.com/riskcast/core/internal/cache"
	"github.com/riskcast/core/internal/decision"
	"github.com/riskcast/core/internal/flywheel"
	"github.com/riskcast/core/internal/ingest"
	"github.com/riskcast/core/internal/ledger"
	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/monitor"
	"github.com/riskcast/core/internal/outcome"
	"github.com/riskcast/core/internal/ratelimit"
	"github.com/riskcast/core/internal/reconcile"
	"github.com/riskcast/core/internal/risk"
	"github.com/riskcast/core/internal/storage"
	"github.com/riskcast/core/internal/telemetry/promexport"
)

// Server is the RiskCast HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     zerolog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Config holds every dependency and setting New needs to assemble the
// router. RateLimiter and Cache are nil-safe (nil disables the feature).
type Config struct {
	DB          *storage.DB
	JWTMgr      *auth.JWTManager
	Ingest      *ingest.Pipeline
	Reconciler  *reconcile.Reconciler
	Ledger      *ledger.Ledger
	Risk        *risk.Engine
	Decision    *decision.Engine
	Outcomes    *outcome.Recorder
	Accuracy    *outcome.AccuracyReporter
	ROI         *outcome.ROICalculator
	AuditLog    *audit.Log
	Monitor     *monitor.Monitor
	Flywheel    *flywheel.Engine
	Cache       *cache.Cache
	RateLimiter ratelimit.Limiter
	Broker      *Broker
	BruteForce  *ratelimit.BruteForceProtection
	Logger      zerolog.Logger

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64
	CORSAllowedOrigins  []string
}

// New assembles the chi router and wraps it in the standard middleware
// chain: request ID → security headers → CORS → logging → recovery →
// auth → rate limit (both per route group) → handler (spec.md §6,
// SPEC_FULL.md §7).
func New(cfg Config) *Server {
	h := &handlers{
		db:       cfg.DB,
		jwtMgr:   cfg.JWTMgr,
		ingest:   cfg.Ingest,
		reconcile: cfg.Reconciler,
		risk:     cfg.Risk,
		decision: cfg.Decision,
		outcomes: cfg.Outcomes,
		accuracy: cfg.Accuracy,
		roi:      cfg.ROI,
		audit:    cfg.AuditLog,
		monitor:  cfg.Monitor,
		cache:    cfg.Cache,
		broker:   cfg.Broker,
		bruteForce: cfg.BruteForce,
		logger:   cfg.Logger,
		maxBody:  cfg.MaxRequestBodyBytes,
	}
	if h.maxBody <= 0 {
		h.maxBody = 1 << 20 // 1 MiB default
	}

	r := chi.NewRouter()

	r.Get("/health", h.handleLiveness)
	r.Handle("/metrics", promexport.Handler())

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return authAPIKey(cfg.DB.GetAPIKeysByPrefix, cfg.Logger, next)
		})
		if cfg.RateLimiter != nil {
			r.Use(func(next http.Handler) http.Handler {
				return rateLimitMiddleware(cfg.RateLimiter, cfg.Logger, next)
			})
		}
		r.Post("/signals/ingest", h.handleIngest)
		r.Post("/reconcile/run", h.handleReconcileRun)
		r.Get("/reconcile/status/{date}", h.handleReconcileStatus)
		r.Get("/reconcile/history/{date}", h.handleReconcileHistory)
	})

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return authBearer(cfg.JWTMgr, cfg.Logger, next)
		})
		if cfg.RateLimiter != nil {
			r.Use(func(next http.Handler) http.Handler {
				return rateLimitMiddleware(cfg.RateLimiter, cfg.Logger, next)
			})
		}

		r.Get("/v1/assessments/{entity_type}/{entity_id}", h.handleGetAssessment)
		r.Post("/v1/decisions/{entity_type}/{entity_id}", h.handleGenerateDecision)
		r.Get("/v1/decisions/{entity_type}", h.handleGenerateDecisionsForEntities)

		r.Post("/outcomes", h.handleRecordOutcome)
		r.Get("/outcomes/accuracy", h.handleAccuracyReport)
		r.Get("/outcomes/roi", h.handleROIReport)

		r.Get("/audit-trail", h.handleAuditTrail)
		r.Get("/audit-trail/integrity", h.handleAuditIntegrity)

		r.Get("/v1/monitor/health", h.handlePipelineHealth)
		r.Get("/v1/monitor/integrity", h.handleMonitorIntegrity)
		r.Get("/v1/monitor/trace/signal/{signal_id}", h.handleTraceSignal)
		r.Get("/v1/monitor/trace/decision/{decision_id}", h.handleTraceDecision)
		r.Get("/v1/monitor/coverage", h.handleCoverage)

		r.Get("/v1/subscribe", h.handleSubscribe)

		r.Get("/v1/export/audit-trail", h.handleExportAuditTrail)
		r.Get("/v1/export/outcomes", h.handleExportOutcomes)

		r.Post("/auth/token/scoped", adminOnly(cfg.Logger, h.handleIssueScopedToken))
		r.Route("/v1/api-keys", func(r chi.Router) {
			r.Use(requireRole(cfg.Logger, model.RoleAdmin))
			r.Post("/", h.handleCreateAPIKey)
			r.Get("/", h.handleListAPIKeys)
			r.Delete("/{key_id}", h.handleRevokeAPIKey)
		})
	})

	r.Post("/auth/token", h.handleIssueToken)

	var handler http.Handler = r
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  2 * cfg.ReadTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

func adminOnly(logger zerolog.Logger, next http.HandlerFunc) http.Handler {
	return requireRole(logger, model.RoleAdmin)(next)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("server: http server starting")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("server: http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
