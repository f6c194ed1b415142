package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcast/core/internal/audit"
	"github.com/riskcast/core/internal/auth"
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
	"github.com/riskcast/core/internal/testutil"
)

// These are integration tests against a real Postgres (testcontainers,
// started through internal/testutil). The endpoints tested here are
// exercised end to end rather than through handler-level mocks, since
// every handler closes over a concrete *storage.DB.

var testContainer *testutil.TestContainer
var testDB *storage.DB

func TestMain(m *testing.M) {
	testContainer = testutil.MustStartPostgres()
	defer testContainer.Terminate()

	var err error
	testDB, err = testContainer.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		panic(err)
	}
	defer func() { _ = testDB.Close(context.Background()) }()

	os.Exit(m.Run())
}

// newTestServer wires a full Server against testDB, with a fresh tenant
// and an admin API key seeded for the caller to authenticate with.
func newTestServer(t *testing.T) (*Server, model.Tenant, string) {
	t.Helper()
	logger := testutil.TestLogger()

	tenantRow, err := testDB.CreateTenant(context.Background(), model.Tenant{
		Slug: "test-" + uuid.NewString(),
		Name: "Test Tenant",
	})
	require.NoError(t, err)

	rawKey := "rck_" + uuid.NewString()
	hashed, err := auth.HashAPIKey(rawKey)
	require.NoError(t, err)
	_, err = testDB.CreateAPIKey(context.Background(), model.APIKey{
		TenantID:  tenantRow.ID.String(),
		Prefix:    auth.KeyPrefix(rawKey),
		HashedKey: hashed,
		Role:      model.RoleAdmin,
		Label:     "test admin key",
	})
	require.NoError(t, err)

	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	ledgerSvc := ledger.New(testDB)
	auditLog := audit.New(testDB, logger)
	ingestPipeline := ingest.New(testDB, ledgerSvc, auditLog, nil, logger)
	reconciler := reconcile.New(testDB, ledgerSvc, ingestPipeline, logger)
	riskEngine := risk.New(testDB, risk.IdentityCalibrator{}, logger)
	decisionEngine := decision.New(riskEngine, testDB, nil, logger)
	outcomeRecorder := outcome.New(testDB, logger)
	accuracyReporter := outcome.NewAccuracyReporter(testDB, nil)
	roiCalculator := outcome.NewROICalculator(testDB)
	mon := monitor.New(testDB, ledgerSvc, logger)
	flywheelEngine := flywheel.New(testDB, logger)
	bruteForce := ratelimit.NewBruteForceProtection()

	srv := New(Config{
		DB:                  testDB,
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
		BruteForce:          bruteForce,
		Logger:              logger,
		Port:                0,
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        5 * time.Second,
		MaxRequestBodyBytes: 1 << 20,
	})
	return srv, tenantRow, rawKey
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIssueToken_ValidAPIKeyReturnsBearerToken(t *testing.T) {
	srv, _, rawKey := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	req.Header.Set("Authorization", "ApiKey "+rawKey)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	data, ok := body.Data.(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, data["access_token"])
	assert.Equal(t, "Bearer", data["token_type"])
}

func TestIssueToken_InvalidAPIKeyRejected(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	req.Header.Set("Authorization", "ApiKey rck_not_a_real_key")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngest_NewSignalThenDuplicateReturnsConflict(t *testing.T) {
	srv, _, rawKey := newTestServer(t)

	signalID := "sig-" + uuid.NewString()
	body := map[string]any{
		"schema_version": "1.0",
		"signal_id":      signalID,
		"signal": map[string]any{
			"signal_id":        signalID,
			"title":            "Port congestion at Rotterdam",
			"category":         "logistics",
			"probability":      0.4,
			"confidence_score": 0.6,
			"generated_at":     time.Now().UTC().Format(time.RFC3339),
		},
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	doIngest := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/signals/ingest", jsonReader(raw))
		req.Header.Set("Authorization", "ApiKey "+rawKey)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	first := doIngest()
	assert.Equal(t, http.StatusOK, first.Code)

	second := doIngest()
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestAuditTrail_ScopedToCallerTenant(t *testing.T) {
	srv, tenantRow, rawKey := newTestServer(t)

	// Ingest a signal so there is at least one audit entry for this tenant.
	signalID := "sig-" + uuid.NewString()
	body := map[string]any{
		"schema_version": "1.0",
		"signal_id":      signalID,
		"signal": map[string]any{
			"signal_id":        signalID,
			"title":            "Currency volatility spike",
			"category":         "finance",
			"probability":      0.5,
			"confidence_score": 0.5,
			"generated_at":     time.Now().UTC().Format(time.RFC3339),
		},
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	ingestReq := httptest.NewRequest(http.MethodPost, "/signals/ingest", jsonReader(raw))
	ingestReq.Header.Set("Authorization", "ApiKey "+rawKey)
	ingestRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(ingestRec, ingestReq)
	require.Equal(t, http.StatusOK, ingestRec.Code)

	tokenReq := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	tokenReq.Header.Set("Authorization", "ApiKey "+rawKey)
	tokenRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(tokenRec, tokenReq)
	require.Equal(t, http.StatusOK, tokenRec.Code)
	var tokenBody model.APIResponse
	require.NoError(t, json.Unmarshal(tokenRec.Body.Bytes(), &tokenBody))
	accessToken := tokenBody.Data.(map[string]any)["access_token"].(string)

	auditReq := httptest.NewRequest(http.MethodGet, "/audit-trail", nil)
	auditReq.Header.Set("Authorization", "Bearer "+accessToken)
	auditRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(auditRec, auditReq)

	require.Equal(t, http.StatusOK, auditRec.Code)
	var entries []model.AuditEntry
	require.NoError(t, json.Unmarshal(mustDataJSON(t, auditRec.Body.Bytes()), &entries))
	for _, e := range entries {
		assert.Equal(t, tenantRow.ID.String(), e.TenantID)
	}
}

func TestExportAuditTrail_ScopedToCallerTenant(t *testing.T) {
	srv, tenantRow, rawKey := newTestServer(t)

	signalID := "sig-" + uuid.NewString()
	body := map[string]any{
		"schema_version": "1.0",
		"signal_id":      signalID,
		"signal": map[string]any{
			"signal_id":        signalID,
			"title":            "Supplier credit downgrade",
			"category":         "finance",
			"probability":      0.3,
			"confidence_score": 0.7,
			"generated_at":     time.Now().UTC().Format(time.RFC3339),
		},
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	ingestReq := httptest.NewRequest(http.MethodPost, "/signals/ingest", jsonReader(raw))
	ingestReq.Header.Set("Authorization", "ApiKey "+rawKey)
	ingestRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(ingestRec, ingestReq)
	require.Equal(t, http.StatusOK, ingestRec.Code)

	tokenReq := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	tokenReq.Header.Set("Authorization", "ApiKey "+rawKey)
	tokenRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(tokenRec, tokenReq)
	require.Equal(t, http.StatusOK, tokenRec.Code)
	var tokenBody model.APIResponse
	require.NoError(t, json.Unmarshal(tokenRec.Body.Bytes(), &tokenBody))
	accessToken := tokenBody.Data.(map[string]any)["access_token"].(string)

	exportReq := httptest.NewRequest(http.MethodGet, "/v1/export/audit-trail", nil)
	exportReq.Header.Set("Authorization", "Bearer "+accessToken)
	exportRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(exportRec, exportReq)

	require.Equal(t, http.StatusOK, exportRec.Code)
	assert.Equal(t, "application/x-ndjson", exportRec.Header().Get("Content-Type"))
	entries := decodeNDJSONAuditEntries(t, exportRec.Body.Bytes())
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Equal(t, tenantRow.ID.String(), e.TenantID)
	}
}

func TestExportOutcomes_StreamsRecordedOutcomes(t *testing.T) {
	srv, tenantRow, rawKey := newTestServer(t)

	err := testDB.InsertOutcome(context.Background(), model.OutcomeRecord{
		OutcomeID:         "out_" + uuid.NewString(),
		DecisionID:        "dec_" + uuid.NewString(),
		TenantID:          tenantRow.ID.String(),
		EntityType:        "supplier",
		EntityID:          "supplier-1",
		PredictedRiskScore: 0.6,
		PredictedAction:    model.ActionEscalate,
		OutcomeType:        model.OutcomeLossAvoided,
		RecordedAt:         time.Now().UTC(),
	})
	require.NoError(t, err)

	tokenReq := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	tokenReq.Header.Set("Authorization", "ApiKey "+rawKey)
	tokenRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(tokenRec, tokenReq)
	require.Equal(t, http.StatusOK, tokenRec.Code)
	var tokenBody model.APIResponse
	require.NoError(t, json.Unmarshal(tokenRec.Body.Bytes(), &tokenBody))
	accessToken := tokenBody.Data.(map[string]any)["access_token"].(string)

	exportReq := httptest.NewRequest(http.MethodGet, "/v1/export/outcomes", nil)
	exportReq.Header.Set("Authorization", "Bearer "+accessToken)
	exportRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(exportRec, exportReq)

	require.Equal(t, http.StatusOK, exportRec.Code)
	var records []model.OutcomeRecord
	for _, line := range bytes.Split(bytes.TrimSpace(exportRec.Body.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var rec model.OutcomeRecord
		require.NoError(t, json.Unmarshal(line, &rec))
		records = append(records, rec)
	}
	require.Len(t, records, 1)
	assert.Equal(t, tenantRow.ID.String(), records[0].TenantID)
}

func decodeNDJSONAuditEntries(t *testing.T, raw []byte) []model.AuditEntry {
	t.Helper()
	var entries []model.AuditEntry
	for _, line := range bytes.Split(bytes.TrimSpace(raw), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var e model.AuditEntry
		require.NoError(t, json.Unmarshal(line, &e))
		entries = append(entries, e)
	}
	return entries
}

func jsonReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

func mustDataJSON(t *testing.T, raw []byte) []byte {
	t.Helper()
	var env model.APIResponse
	require.NoError(t, json.Unmarshal(raw, &env))
	reencoded, err := json.Marshal(env.Data)
	require.NoError(t, err)
	return reencoded
}
