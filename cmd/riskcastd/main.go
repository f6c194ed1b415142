package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/riskcast/core/internal/audit"
	"github.com/riskcast/core/internal/auth"
	"github.com/riskcast/core/internal/cache"
	"github.com/riskcast/core/internal/config"
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
	"github.com/riskcast/core/internal/server"
	"github.com/riskcast/core/internal/storage"
	"github.com/riskcast/core/internal/telemetry"
	"github.com/riskcast/core/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bootstrapLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := run(ctx, bootstrapLogger); err != nil {
		bootstrapLogger.Error().Err(err).Msg("fatal error")
		return 1
	}
	return 0
}

func run(ctx context.Context, bootstrapLogger zerolog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := bootstrapLogger.Level(parseLogLevel(cfg.LogLevel))

	logger.Info().Str("version", version).Int("port", cfg.Port).Msg("riskcastd starting")

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := storage.New(ctx, cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer func() { _ = db.Close(context.Background()) }()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Redis backs both the rate limiter and the assessment freshness cache
	// (spec.md §4.5 C5, §7). Neither is required for correctness: a Redis
	// outage degrades the limiter to a fail-open no-op and the cache to an
	// always-miss, so connect once and share the client between both.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable at startup, continuing degraded")
		}
		defer func() { _ = redisClient.Close() }()
	}

	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient, logger, "riskcast:ratelimit", cfg.RateLimitRequestsPerMinute, time.Minute, false)
		logger.Info().Int("rpm", cfg.RateLimitRequestsPerMinute).Msg("rate limiting: redis")
	} else {
		limiter = ratelimit.NewMemoryLimiter(float64(cfg.RateLimitRequestsPerMinute)/60.0, cfg.RateLimitBurst)
		logger.Info().Msg("rate limiting: in-process memory (no REDIS_URL)")
	}
	defer func() { _ = limiter.Close() }()

	var snapshotCache *cache.Cache
	if redisClient != nil {
		snapshotCache = cache.New(redisClient, logger)
	}

	// Wire the seven-stage pipeline (spec.md §4): ledger -> ingest -> risk
	// -> decision, plus audit logging, reconciliation, monitoring and the
	// flywheel learning loop, all sharing the one Postgres-backed store.
	ledgerSvc := ledger.New(db)
	auditLog := audit.New(db, logger)
	ingestPipeline := ingest.New(db, ledgerSvc, auditLog, ingestAlertHook(logger), logger)
	reconciler := reconcile.New(db, ledgerSvc, ingestPipeline, logger)
	// Stage G's calibrator starts as an unfitted Platt scaler (identity
	// behavior) and is trained in place every time an accuracy report is
	// generated, so the risk engine picks up the fit on its very next
	// assessment without any extra wiring (spec.md §4.6 Stage G, §4.8).
	calibrator := risk.NewPlattScaler()
	riskEngine := risk.New(db, calibrator, logger)
	decisionEngine := decision.New(riskEngine, db, decisionAlertHook(logger), logger)
	outcomeRecorder := outcome.New(db, logger)
	accuracyReporter := outcome.NewAccuracyReporter(db, calibrator)
	roiCalculator := outcome.NewROICalculator(db)
	mon := monitor.New(db, ledgerSvc, logger)
	flywheelEngine := flywheel.New(db, logger)

	broker := server.NewBroker(db, logger)
	go broker.Start(ctx)

	bruteForce := ratelimit.NewBruteForceProtection()

	srv := server.New(server.Config{
		DB:                  db,
		JWTMgr:              jwtMgr,
		Ingest:              ingestPipeline,
		Reconciler:          reconciler,
		Ledger:              ledgerSvc,
		Risk:                riskEngine,
		Decision:            decisionEngine,
		Outcomes:            outcomeRecorder,
		Accuracy:            accuracyReporter,
		ROI:                 roiCalculator,
		AuditLog:            auditLog,
		Monitor:             mon,
		Flywheel:            flywheelEngine,
		Cache:               snapshotCache,
		RateLimiter:         limiter,
		Broker:              broker,
		BruteForce:          bruteForce,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	})

	// Background loops: reconciliation (C4, per tenant) and the flywheel
	// learning cycle (C12, fans out internally). Both are best-effort —
	// a failed cycle logs and waits for the next tick rather than crashing
	// the process (spec.md §4.8, §4.9 "never blocks the request path").
	go reconcileLoop(ctx, db, reconciler, logger, cfg.ReconcileInterval, cfg.ReconcileLookbackDays)
	go flywheelLoop(ctx, flywheelEngine, logger, cfg.FlywheelInterval)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info().Msg("riskcastd shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}

	logger.Info().Msg("riskcastd stopped")
	return nil
}

func parseLogLevel(raw string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// ingestAlertHook and decisionAlertHook are best-effort alert hooks that
// just log. A real deployment wires these to pager/Slack; spec.md §4.9
// only requires that high-severity signals and costly decisions surface
// somewhere, not that they reach a specific channel.
func ingestAlertHook(logger zerolog.Logger) ingest.AlertHook {
	return func(_ context.Context, tenantID uuid.UUID, s model.Signal) error {
		logger.Warn().Str("tenant_id", tenantID.String()).Str("signal_id", s.SignalID).Float64("probability", s.Probability).Msg("high severity signal ingested")
		return nil
	}
}

func decisionAlertHook(logger zerolog.Logger) decision.AlertHook {
	return func(_ context.Context, tenantID uuid.UUID, d model.Decision) error {
		logger.Warn().Str("tenant_id", tenantID.String()).Str("decision_id", d.DecisionID).Float64("inaction_cost", d.InactionCost).Msg("costly decision generated")
		return nil
	}
}

// reconcileLoop runs reconcile.Reconciler.Run once per known tenant on
// every tick. Unlike the flywheel cycle, reconciliation is scoped to one
// tenant per call, so the loop must enumerate tenants itself.
func reconcileLoop(ctx context.Context, db *storage.DB, reconciler *reconcile.Reconciler, logger zerolog.Logger, interval time.Duration, lookbackDays int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runReconcileCycle(ctx, db, reconciler, logger, lookbackDays)
		}
	}
}

func runReconcileCycle(ctx context.Context, db *storage.DB, reconciler *reconcile.Reconciler, logger zerolog.Logger, lookbackDays int) {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	tenants, err := db.ListTenants(opCtx)
	if err != nil {
		logger.Warn().Err(err).Msg("reconcile loop: list tenants failed")
		return
	}

	for _, t := range tenants {
		if _, err := reconciler.Run(opCtx, t.ID, lookbackDays); err != nil {
			logger.Warn().Err(err).Str("tenant_id", t.ID.String()).Msg("reconcile cycle failed")
		}
	}
}

// flywheelLoop runs one flywheel.Engine.RunCycle per tick. RunCycle fans
// out across every (tenant, entity_type) pair with recent outcomes on its
// own, so this loop needs no tenant enumeration (spec.md §4.8 C12).
func flywheelLoop(ctx context.Context, engine *flywheel.Engine, logger zerolog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			updated, err := engine.RunCycle(opCtx, 90)
			cancel()
			if err != nil {
				logger.Warn().Err(err).Msg("flywheel cycle failed")
				continue
			}
			if len(updated) > 0 {
				logger.Info().Int("pairs_updated", len(updated)).Msg("flywheel cycle complete")
			}
		}
	}
}
