package riskcast

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the riskcastd server (e.g. "http://localhost:8080").
	BaseURL string

	// APIKey is the tenant-scoped secret exchanged for bearer tokens
	// (Authorization: ApiKey <key>).
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default
	// client with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the RiskCast risk-decision API. All methods
// are safe for concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager
}

// NewClient creates a Client from the given configuration. Returns an
// error if BaseURL or APIKey is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("riskcast: BaseURL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("riskcast: APIKey is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  baseURL,
		client:   httpClient,
		tokenMgr: newTokenManager(baseURL, cfg.APIKey, httpClient),
	}, nil
}

// ---------------------------------------------------------------------------
// Signal ingest
// ---------------------------------------------------------------------------

// IngestSignal submits a signal to POST /signals/ingest. This endpoint is
// authenticated directly with the API key (not a bearer token), since
// ingest is the signal-producer path spec.md §6 keeps separate from the
// assessment/decision/outcome surface.
func (c *Client) IngestSignal(ctx context.Context, event SignalEvent) (*IngestResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/signals/ingest", event)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "ApiKey "+c.tokenMgr.apiKey)

	var result IngestResult
	if _, err := c.doAuthenticated(req, &result); err != nil {
		if apiErr, ok := err.(*Error); ok && apiErr.StatusCode == http.StatusConflict {
			result.Duplicate = true
			return &result, nil
		}
		return nil, err
	}
	return &result, nil
}

// ---------------------------------------------------------------------------
// Risk assessment and decisions
// ---------------------------------------------------------------------------

// GetAssessment retrieves the current risk assessment for an entity.
func (c *Client) GetAssessment(ctx context.Context, entityType, entityID string) (*Assessment, error) {
	var resp Assessment
	req, err := c.newRequestBearer(ctx, http.MethodGet, "/v1/assessments/"+entityType+"/"+entityID, nil)
	if err != nil {
		return nil, err
	}
	if _, err := c.doAuthenticated(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateDecision generates (and audit-logs) a decision for one entity.
// exposureUSD is optional; pass nil to let the server use its own default.
func (c *Client) GenerateDecision(ctx context.Context, entityType, entityID string, exposureUSD *float64) (*Decision, error) {
	path := "/v1/decisions/" + entityType + "/" + entityID
	if exposureUSD != nil {
		path += "?exposure_usd=" + strconv.FormatFloat(*exposureUSD, 'f', -1, 64)
	}
	req, err := c.newRequestBearer(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}
	var resp Decision
	if _, err := c.doAuthenticated(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateDecisionsForEntitiesOptions filters the fan-out decision endpoint.
type GenerateDecisionsForEntitiesOptions struct {
	MinSeverity float64
	Limit       int
}

// GenerateDecisionsForEntities generates decisions for every active entity
// of entityType above MinSeverity, up to Limit.
func (c *Client) GenerateDecisionsForEntities(ctx context.Context, entityType string, opts GenerateDecisionsForEntitiesOptions) ([]Decision, error) {
	params := url.Values{}
	if opts.MinSeverity > 0 {
		params.Set("min_severity", strconv.FormatFloat(opts.MinSeverity, 'f', -1, 64))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/v1/decisions/" + entityType
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	req, err := c.newRequestBearer(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var resp []Decision
	if _, err := c.doAuthenticated(req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ---------------------------------------------------------------------------
// Outcomes
// ---------------------------------------------------------------------------

// RecordOutcome submits POST /outcomes. Outcomes are write-once: a second
// call for the same DecisionID returns an *Error with IsConflict(err) true
// and the prior recorded outcome decoded into the result.
func (c *Client) RecordOutcome(ctx context.Context, out OutcomeRecordRequest) (*OutcomeRecord, error) {
	req, err := c.newRequestBearer(ctx, http.MethodPost, "/outcomes", out)
	if err != nil {
		return nil, err
	}
	var resp OutcomeRecord
	if _, err := c.doAuthenticated(req, &resp); err != nil {
		if apiErr, ok := err.(*Error); ok && apiErr.StatusCode == http.StatusConflict {
			return &resp, err
		}
		return nil, err
	}
	return &resp, nil
}

// ReportOptions filters the accuracy/ROI report endpoints.
type ReportOptions struct {
	// Period is a display label (defaults to "30d" server-side).
	Period string
	// DaysBack bounds how far back outcomes are aggregated (defaults to 30).
	DaysBack int
}

func (o ReportOptions) query() string {
	params := url.Values{}
	if o.Period != "" {
		params.Set("period", o.Period)
	}
	if o.DaysBack > 0 {
		params.Set("days_back", strconv.Itoa(o.DaysBack))
	}
	if len(params) == 0 {
		return ""
	}
	return "?" + params.Encode()
}

// AccuracyReport retrieves GET /outcomes/accuracy.
func (c *Client) AccuracyReport(ctx context.Context, opts ReportOptions) (*AccuracyReport, error) {
	req, err := c.newRequestBearer(ctx, http.MethodGet, "/outcomes/accuracy"+opts.query(), nil)
	if err != nil {
		return nil, err
	}
	var resp AccuracyReport
	if _, err := c.doAuthenticated(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ROIReport retrieves GET /outcomes/roi.
func (c *Client) ROIReport(ctx context.Context, opts ReportOptions) (*ROIReport, error) {
	req, err := c.newRequestBearer(ctx, http.MethodGet, "/outcomes/roi"+opts.query(), nil)
	if err != nil {
		return nil, err
	}
	var resp ROIReport
	if _, err := c.doAuthenticated(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Audit trail
// ---------------------------------------------------------------------------

// AuditTrailOptions pages through GET /audit-trail.
type AuditTrailOptions struct {
	After time.Time
	Limit int
}

// AuditTrail retrieves a page of the tamper-evident audit log, scoped to
// the caller's tenant (admins see every tenant).
func (c *Client) AuditTrail(ctx context.Context, opts AuditTrailOptions) ([]AuditEntry, error) {
	params := url.Values{}
	if !opts.After.IsZero() {
		params.Set("after", opts.After.UTC().Format(time.RFC3339))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/audit-trail"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	req, err := c.newRequestBearer(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var resp []AuditEntry
	if _, err := c.doAuthenticated(req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// AuditIntegrity walks the whole hash chain server-side and reports the
// first breaks found. Admin-only.
func (c *Client) AuditIntegrity(ctx context.Context) (*VerifyResult, error) {
	req, err := c.newRequestBearer(ctx, http.MethodGet, "/audit-trail/integrity", nil)
	if err != nil {
		return nil, err
	}
	var resp VerifyResult
	if _, err := c.doAuthenticated(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Compliance export (NDJSON streams)
// ---------------------------------------------------------------------------

// ExportAuditTrailOptions bounds GET /v1/export/audit-trail.
type ExportAuditTrailOptions struct {
	From time.Time
	To   time.Time
}

// ExportAuditTrail streams and fully decodes the NDJSON audit-trail export,
// holding every decoded entry in memory before it returns.
func (c *Client) ExportAuditTrail(ctx context.Context, opts ExportAuditTrailOptions) ([]AuditEntry, error) {
	params := url.Values{}
	if !opts.From.IsZero() {
		params.Set("from", opts.From.UTC().Format(time.RFC3339))
	}
	if !opts.To.IsZero() {
		params.Set("to", opts.To.UTC().Format(time.RFC3339))
	}
	path := "/v1/export/audit-trail"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var entries []AuditEntry
	err := c.streamNDJSON(ctx, path, func(line []byte) error {
		var e AuditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// ExportOutcomesOptions bounds GET /v1/export/outcomes.
type ExportOutcomesOptions struct {
	Since      time.Time
	EntityType string
	// TenantID lets an admin export another tenant's outcomes.
	TenantID string
}

// ExportOutcomes streams and fully decodes the NDJSON outcomes export.
func (c *Client) ExportOutcomes(ctx context.Context, opts ExportOutcomesOptions) ([]OutcomeRecord, error) {
	params := url.Values{}
	if !opts.Since.IsZero() {
		params.Set("since", opts.Since.UTC().Format(time.RFC3339))
	}
	if opts.EntityType != "" {
		params.Set("entity_type", opts.EntityType)
	}
	if opts.TenantID != "" {
		params.Set("tenant_id", opts.TenantID)
	}
	path := "/v1/export/outcomes"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var records []OutcomeRecord
	err := c.streamNDJSON(ctx, path, func(line []byte) error {
		var r OutcomeRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		records = append(records, r)
		return nil
	})
	return records, err
}

func (c *Client) streamNDJSON(ctx context.Context, path string, onLine func(line []byte) error) error {
	req, err := c.newRequestBearer(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	token, err := c.tokenMgr.getToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("riskcast: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := onLine(line); err != nil {
			return fmt.Errorf("riskcast: decode ndjson line: %w", err)
		}
	}
	return scanner.Err()
}

// ---------------------------------------------------------------------------
// API key administration (admin role only)
// ---------------------------------------------------------------------------

// CreateAPIKey provisions a new tenant-scoped API key. The returned Key is
// the plaintext secret, shown exactly once.
func (c *Client) CreateAPIKey(ctx context.Context, tenantID string, role Role, label string) (*CreatedAPIKey, error) {
	body := map[string]any{"tenant_id": tenantID, "role": role, "label": label}
	req, err := c.newRequestBearer(ctx, http.MethodPost, "/v1/api-keys/", body)
	if err != nil {
		return nil, err
	}
	var resp CreatedAPIKey
	if _, err := c.doAuthenticated(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAPIKeys lists every API key provisioned for tenantID.
func (c *Client) ListAPIKeys(ctx context.Context, tenantID string) ([]APIKey, error) {
	params := url.Values{"tenant_id": {tenantID}}
	req, err := c.newRequestBearer(ctx, http.MethodGet, "/v1/api-keys/?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var resp []APIKey
	if _, err := c.doAuthenticated(req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// RevokeAPIKey revokes an API key. Returns nil on success (204 No Content).
func (c *Client) RevokeAPIKey(ctx context.Context, tenantID, keyID string) error {
	params := url.Values{"tenant_id": {tenantID}}
	req, err := c.newRequestBearer(ctx, http.MethodDelete, "/v1/api-keys/"+keyID+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	_, err = c.doAuthenticated(req, nil)
	return err
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// Health checks the server's liveness. This endpoint does not require
// authentication and works even with an invalid API key.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("riskcast: create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("riskcast: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp)
	}
	var result HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("riskcast: decode health response: %w", err)
	}
	return &result, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper (model.APIResponse).
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper
// (model.APIError).
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newRequestBearer builds a request and attaches a fresh bearer token,
// refreshing it first if the cached one is stale or absent.
func (c *Client) newRequestBearer(ctx context.Context, method, path string, body any) (*http.Request, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	token, err := c.tokenMgr.getToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("riskcast: marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("riskcast: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doAuthenticated executes an already-authenticated request, decoding a
// successful response's unwrapped "data" field into dest.
func (c *Client) doAuthenticated(req *http.Request, dest any) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("riskcast: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("riskcast: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var envelope apiErrorEnvelope
		if err := json.Unmarshal(bodyBytes, &envelope); err == nil && envelope.Error.Message != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		} else {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = string(bodyBytes)
		}
		if dest != nil && len(bodyBytes) > 0 {
			// The 409-on-record-outcome path re-exposes the prior outcome
			// even though it's also a conflict, so always try to decode.
			var envelope apiEnvelope
			if err := json.Unmarshal(bodyBytes, &envelope); err == nil && envelope.Data != nil {
				_ = json.Unmarshal(envelope.Data, dest)
			}
		}
		return resp, apiErr
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return resp, nil
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return resp, fmt.Errorf("riskcast: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return resp, json.Unmarshal(bodyBytes, dest)
	}
	return resp, json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(resp *http.Response) *Error {
	apiErr := &Error{StatusCode: resp.StatusCode}
	bodyBytes, _ := io.ReadAll(resp.Body)

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(resp.StatusCode)
		apiErr.Message = string(bodyBytes)
	}
	return apiErr
}
