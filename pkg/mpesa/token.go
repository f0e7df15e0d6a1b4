package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

const (
	tokenPath         = "/oauth/v1/generate"
	tokenFlightKey    = "access_token"
	tokenFetchTimeout = 15 * time.Second
)

// TokenManager caches the gateway access token and refreshes it on expiry.
// Concurrent callers that find the cache empty or stale share a single exchange.
type TokenManager struct {
	http           *resty.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
	now            func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewTokenManager creates a token manager for the Daraja OAuth endpoint at baseURL.
func NewTokenManager(httpClient *resty.Client, baseURL, consumerKey, consumerSecret string) *TokenManager {
	return &TokenManager{
		http:           httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		now:            time.Now,
	}
}

type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   seconds `json:"expires_in"`
}

// seconds accepts a JSON number or a numeric string; Daraja sends expires_in as a string.
type seconds int64

func (s *seconds) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*s = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expires_in %q: %w", raw, err)
	}
	*s = seconds(v)
	return nil
}

// Acquire returns a valid access token, exchanging credentials when the cached one
// is missing or expired.
func (m *TokenManager) Acquire(ctx context.Context) (string, error) {
	if token, ok := m.cached(); ok {
		return token, nil
	}

	// The exchange is detached from any single caller so one cancelled request
	// does not fail every waiter sharing the flight.
	ch := m.group.DoChan(tokenFlightKey, func() (interface{}, error) {
		if token, ok := m.cached(); ok {
			return token, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenFetchTimeout)
		defer cancel()
		return m.exchange(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next Acquire performs a fresh exchange.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()
}

func (m *TokenManager) cached() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" || !m.now().Before(m.expiresAt) {
		return "", false
	}
	return m.token, true
}

func (m *TokenManager) exchange(ctx context.Context) (string, error) {
	resp, err := m.http.R().
		SetContext(ctx).
		SetBasicAuth(m.consumerKey, m.consumerSecret).
		SetHeader("Accept", "application/json").
		SetQueryParam("grant_type", "client_credentials").
		Get(m.baseURL + tokenPath)
	if err != nil {
		log.Printf("level=warn component=mpesa_client op=token msg=\"token request failed\" err=%v", err)
		return "", &AuthError{Err: err}
	}
	if resp.IsError() {
		log.Printf("level=warn component=mpesa_client op=token status=%d msg=\"non-2xx token response\"", resp.StatusCode())
		return "", &AuthError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("unexpected response: %s", strings.TrimSpace(resp.String()))}
	}

	var body tokenResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", &AuthError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("decode token response: %w", err)}
	}
	if body.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode(), Err: errors.New("empty access token")}
	}

	m.mu.Lock()
	m.token = body.AccessToken
	m.expiresAt = m.now().Add(time.Duration(body.ExpiresIn) * time.Second)
	m.mu.Unlock()

	return body.AccessToken, nil
}
