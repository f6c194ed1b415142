package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riskcast/core/internal/apperrors"
	"github.com/riskcast/core/internal/audit"
	"github.com/riskcast/core/internal/auth"
	"github.com/riskcast/core/internal/cache"
	"github.com/riskcast/core/internal/decision"
	"github.com/riskcast/core/internal/ingest"
	"github.com/riskcast/core/internal/monitor"
	"github.com/riskcast/core/internal/outcome"
	"github.com/riskcast/core/internal/ratelimit"
	"github.com/riskcast/core/internal/reconcile"
	"github.com/riskcast/core/internal/risk"
	"github.com/riskcast/core/internal/storage"
	"github.com/riskcast/core/internal/tenant"
)

// handlers holds every dependency the route handlers call into. A thin
// struct rather than free functions, matching the teacher's Handlers
// shape in internal/server/handlers.go.
type handlers struct {
	db         *storage.DB
	jwtMgr     *auth.JWTManager
	ingest     *ingest.Pipeline
	reconcile  *reconcile.Reconciler
	risk       *risk.Engine
	decision   *decision.Engine
	outcomes   *outcome.Recorder
	accuracy   *outcome.AccuracyReporter
	roi        *outcome.ROICalculator
	audit      *audit.Log
	monitor    *monitor.Monitor
	cache      *cache.Cache
	broker     *Broker
	bruteForce *ratelimit.BruteForceProtection
	logger     zerolog.Logger
	maxBody    int64
}

// tenantUUID resolves the request's scoped tenant ID into a uuid.UUID —
// the type the C1-C12 engine layer takes, while internal/tenant carries
// it as a plain string through the request context (I1).
func tenantUUID(ctx context.Context) (uuid.UUID, error) {
	raw, err := tenant.FromContext(ctx)
	if err != nil {
		return uuid.UUID{}, apperrors.Auth("request has no tenant scope")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, apperrors.Internal(err, "tenant id is not a valid uuid")
	}
	return id, nil
}

// handleLiveness is the unauthenticated process health check — it reports
// only that the process can answer HTTP, not that any tenant's pipeline
// is healthy (that's GET /v1/monitor/health).
func (h *handlers) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RequestIDFromContext(r.Context()), map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
