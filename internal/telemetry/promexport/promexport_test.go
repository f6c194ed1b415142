package promexport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandler_ExposesRegisteredMetrics(t *testing.T) {
	RecordSignalIngested("webhook", "accepted")
	RecordDecision("recommended")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "riskcast_ingest_signals_total"))
	assert.True(t, strings.Contains(body, "riskcast_decision_generated_total"))
}

func TestCanonicalPath_CollapsesIDs(t *testing.T) {
	assert.Equal(t, "/", canonicalPath("/"))
	assert.Equal(t, "/v1/decisions/:id", canonicalPath("/v1/decisions/dec_abc123"))
	assert.Equal(t, "/v1/health", canonicalPath("/v1/health"))
}

func TestInstrument_SkipsMetricsPathAndRecordsOthers(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	wrapped := Instrument(next, "/metrics")

	req := httptest.NewRequest(http.MethodPost, "/v1/decisions", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)

	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	scrape := httptest.NewRecorder()
	Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	assert.Contains(t, body, `riskcast_http_requests_total{method="POST",path="/v1/decisions",status="201"} 1`)
	assert.NotContains(t, body, `path="/metrics"`)
}
