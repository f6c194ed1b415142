package riskcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockServer creates an httptest server that mimics riskcastd. A
// POST /auth/token handler is always registered unless the caller supplies
// its own, mirroring every real handler's dependence on a bearer token.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	if _, ok := handlers["POST /auth/token"]; !ok {
		mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"access_token": "test-token-xyz",
					"token_type":   "Bearer",
					"expires_at":   time.Now().Add(1 * time.Hour).Format(time.RFC3339),
				},
			})
		})
	}
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	return httptest.NewServer(mux)
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: serverURL, APIKey: "test-key", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresBaseURLAndAPIKey(t *testing.T) {
	_, err := NewClient(Config{APIKey: "k"})
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "http://localhost"})
	assert.Error(t, err)

	c, err := NewClient(Config{BaseURL: "http://localhost", APIKey: "k"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestIngestSignal_SendsAPIKeyNotBearerToken(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /signals/ingest": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "ApiKey test-key", r.Header.Get("Authorization"))
			writeTestJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ack_id": "ack_123"}})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, err := c.IngestSignal(context.Background(), SignalEvent{
		SchemaVersion: "1.0",
		SignalID:      "sig-1",
		Signal:        SignalPayload{SignalID: "sig-1", Title: "t", Category: "finance", GeneratedAt: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, "ack_123", result.AckID)
	assert.False(t, result.Duplicate)
}

func TestIngestSignal_DuplicateIsNotAnError(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /signals/ingest": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusConflict, map[string]any{"data": map[string]any{"ack_id": "ack_1", "duplicate": true}})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, err := c.IngestSignal(context.Background(), SignalEvent{SignalID: "sig-1"})
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
}

func TestGetAssessment_UsesBearerToken(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/assessments/supplier/acme": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer test-token-xyz", r.Header.Get("Authorization"))
			writeTestJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
				"tenant_id": "t1", "entity_type": "supplier", "entity_id": "acme",
				"risk_score": 62.5, "severity_label": "high",
			}})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	a, err := c.GetAssessment(context.Background(), "supplier", "acme")
	require.NoError(t, err)
	assert.Equal(t, 62.5, a.RiskScore)
	assert.Equal(t, SeverityHigh, a.Severity)
}

func TestTokenManager_CachesUnexpiredToken(t *testing.T) {
	var authCalls int32
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /auth/token": func(w http.ResponseWriter, r *http.Request) {
			authCalls++
			expiresAt := time.Now().Add(1 * time.Hour)
			if authCalls > 1 {
				expiresAt = time.Now().Add(1 * time.Hour)
			}
			writeTestJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
				"access_token": "token-1", "token_type": "Bearer", "expires_at": expiresAt.Format(time.RFC3339),
			}})
		},
		"GET /audit-trail": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusOK, map[string]any{"data": []any{}})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.AuditTrail(context.Background(), AuditTrailOptions{})
	require.NoError(t, err)
	_, err = c.AuditTrail(context.Background(), AuditTrailOptions{})
	require.NoError(t, err)

	assert.EqualValues(t, 1, authCalls, "a cached, unexpired token must not trigger a second /auth/token call")
}

func TestRecordOutcome_ConflictReturnsPriorOutcome(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /outcomes": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusConflict, map[string]any{"data": map[string]any{
				"outcome_id": "out_1", "decision_id": "dec_1", "outcome_type": "loss_avoided",
			}})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	rec, err := c.RecordOutcome(context.Background(), OutcomeRecordRequest{DecisionID: "dec_1", OutcomeType: OutcomeLossAvoided})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	require.NotNil(t, rec)
	assert.Equal(t, "out_1", rec.OutcomeID)
}

func TestExportAuditTrail_DecodesNDJSONStream(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/export/audit-trail": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
			enc := json.NewEncoder(w)
			_ = enc.Encode(AuditEntry{EntryID: "e1", Action: "signal.ingest"})
			_ = enc.Encode(AuditEntry{EntryID: "e2", Action: "decision.generate"})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	entries, err := c.ExportAuditTrail(context.Background(), ExportAuditTrailOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e1", entries[0].EntryID)
	assert.Equal(t, "e2", entries[1].EntryID)
}

func TestErrorHelpers_MatchStatusCode(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /audit-trail/integrity": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusForbidden, map[string]any{"error": map[string]any{
				"code": "forbidden", "message": "audit chain integrity is an admin-only endpoint",
			}})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.AuditIntegrity(context.Background())
	require.Error(t, err)
	assert.True(t, IsForbidden(err))
	assert.False(t, IsNotFound(err))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestHealth_DoesNotRequireAuth(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /health": func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			writeTestJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		},
	})
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "whatever-garbage"})
	require.NoError(t, err)
	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
}
