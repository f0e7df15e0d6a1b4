package mpesa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newTokenServer serves the OAuth endpoint, counting exchanges.
func newTokenServer(t *testing.T, calls *int32, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/v1/generate" || r.URL.Query().Get("grant_type") != "client_credentials" {
			http.NotFound(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := atomic.AddInt32(calls, 1)
		if delay > 0 {
			time.Sleep(delay)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token-%d","expires_in":"3599"}`, n)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestTokenManager(baseURL string, clock *fakeClock) *TokenManager {
	m := NewTokenManager(NewHTTPClient(5*time.Second), baseURL, "key", "secret")
	if clock != nil {
		m.now = clock.Now
	}
	return m
}

func TestTokenManager_ReusesTokenWithinLifetime(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls, 0)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := newTestTokenManager(srv.URL, clock)

	first, err := m.Acquire(context.Background())
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	second, err := m.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestTokenManager_RefreshesAfterExpiry(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls, 0)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := newTestTokenManager(srv.URL, clock)

	first, err := m.Acquire(context.Background())
	require.NoError(t, err)
	clock.Advance(3599 * time.Second)
	second, err := m.Acquire(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestTokenManager_ConcurrentCallersShareOneExchange(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls, 100*time.Millisecond)
	m := newTestTokenManager(srv.URL, nil)

	const callers = 25
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.Acquire(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, tokens[0], tokens[i])
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestTokenManager_FailureIsNotCached(t *testing.T) {
	var (
		calls int32
		fail  atomic.Bool
	)
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if fail.Load() {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"errorCode":"400.008.01","errorMessage":"Invalid Authentication passed"}`)
			return
		}
		fmt.Fprint(w, `{"access_token":"recovered","expires_in":3599}`)
	}))
	t.Cleanup(srv.Close)
	m := newTestTokenManager(srv.URL, nil)

	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGatewayAuth))

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)

	fail.Store(false)
	token, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "recovered", token)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestTokenManager_InvalidateForcesExchange(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls, 0)
	m := newTestTokenManager(srv.URL, nil)

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	m.Invalidate()
	_, err = m.Acquire(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestTokenManager_TransportErrorIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	m := newTestTokenManager(url, nil)
	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGatewayAuth)
}
