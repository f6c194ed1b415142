package riskcast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// tokenManager exchanges the client's API key for a short-lived bearer
// token and caches it until shortly before expiry, so callers don't pay an
// extra round trip per request. Safe for concurrent use.
type tokenManager struct {
	baseURL string
	apiKey  string
	client  *http.Client
	margin  time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenManager(baseURL, apiKey string, client *http.Client) *tokenManager {
	return &tokenManager{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
		margin:  30 * time.Second,
	}
}

func (tm *tokenManager) getToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != "" && time.Now().Before(tm.expiresAt.Add(-tm.margin)) {
		return tm.token, nil
	}
	if err := tm.refresh(ctx); err != nil {
		return "", err
	}
	return tm.token, nil
}

// tokenEnvelope matches model.APIResponse wrapping handleIssueToken's body.
type tokenEnvelope struct {
	Data struct {
		AccessToken string    `json:"access_token"`
		TokenType   string    `json:"token_type"`
		ExpiresAt   time.Time `json:"expires_at"`
	} `json:"data"`
}

func (tm *tokenManager) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.baseURL+"/auth/token", nil)
	if err != nil {
		return fmt.Errorf("riskcast: create auth request: %w", err)
	}
	req.Header.Set("Authorization", "ApiKey "+tm.apiKey)

	resp, err := tm.client.Do(req)
	if err != nil {
		return fmt.Errorf("riskcast: auth request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	var envelope tokenEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("riskcast: decode auth response: %w", err)
	}

	tm.token = envelope.Data.AccessToken
	tm.expiresAt = envelope.Data.ExpiresAt
	return nil
}
