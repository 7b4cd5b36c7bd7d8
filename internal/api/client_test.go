package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowit/knowit/internal/credentials"
	"github.com/knowit/knowit/internal/domain"
)

// fakeBackend is a minimal KnowIt API: /data requires the current
// access token, /auth/refresh mints the next one.
type fakeBackend struct {
	mu           sync.Mutex
	validToken   string
	refreshOK    bool
	refreshDelay time.Duration

	dataCalls    atomic.Int32
	refreshCalls atomic.Int32
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		b.dataCalls.Add(1)
		b.mu.Lock()
		valid := "Bearer " + b.validToken
		b.mu.Unlock()
		if r.Header.Get("Authorization") != valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		if b.refreshDelay > 0 {
			time.Sleep(b.refreshDelay)
		}
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !b.refreshOK {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.TokenPair{
			AccessToken:      "fresh-access",
			RefreshToken:     "fresh-refresh",
			TokenType:        "Bearer",
			ExpiresInSeconds: 900,
		})
	})
	return mux
}

func newTestClient(t *testing.T, backend *fakeBackend) (*Client, *credentials.Memory, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	store := credentials.NewMemory()
	client := New(Config{BaseURL: srv.URL}, store, nil)
	return client, store, srv
}

func seedTokens(t *testing.T, store *credentials.Memory, access, refresh string) {
	t.Helper()
	require.NoError(t, store.SaveTokenPair(context.Background(), domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}))
}

func TestDoSuccessWithoutRefresh(t *testing.T) {
	backend := &fakeBackend{validToken: "good-access", refreshOK: true}
	client, store, _ := newTestClient(t, backend)
	seedTokens(t, store, "good-access", "good-refresh")

	raw, err := client.Do(context.Background(), http.MethodGet, "/data", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"ok"}`, string(raw))
	assert.EqualValues(t, 0, backend.refreshCalls.Load(), "no refresh expected for a valid token")
}

func TestDoRefreshesAndRetriesOnce(t *testing.T) {
	backend := &fakeBackend{validToken: "fresh-access", refreshOK: true}
	client, store, _ := newTestClient(t, backend)
	seedTokens(t, store, "stale-access", "good-refresh")

	raw, err := client.Do(context.Background(), http.MethodGet, "/data", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"ok"}`, string(raw))
	assert.EqualValues(t, 1, backend.refreshCalls.Load())
	assert.EqualValues(t, 2, backend.dataCalls.Load(), "original call plus one retry")

	pair, err := store.TokenPair(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, "fresh-access", pair.AccessToken)
	assert.Equal(t, "fresh-refresh", pair.RefreshToken)
}

func TestConcurrentCallersShareOneRefresh(t *testing.T) {
	backend := &fakeBackend{validToken: "fresh-access", refreshOK: true, refreshDelay: 50 * time.Millisecond}
	client, store, _ := newTestClient(t, backend)
	seedTokens(t, store, "stale-access", "good-refresh")

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Do(context.Background(), http.MethodGet, "/data", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.EqualValues(t, 1, backend.refreshCalls.Load(), "all callers must share a single refresh")
}

func TestSecondUnauthorizedIsNotRetriedAgain(t *testing.T) {
	// The refresh succeeds but the backend keeps rejecting the data
	// call, so the retry's 401 must come back as the final result.
	backend := &fakeBackend{validToken: "never-matches", refreshOK: true}
	client, store, _ := newTestClient(t, backend)
	seedTokens(t, store, "stale-access", "good-refresh")

	_, err := client.Do(context.Background(), http.MethodGet, "/data", nil)
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindRequestFailed, apiErr.Kind)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.EqualValues(t, 1, backend.refreshCalls.Load())
	assert.EqualValues(t, 2, backend.dataCalls.Load())
}

func TestRefreshFailureClearsTokens(t *testing.T) {
	backend := &fakeBackend{validToken: "fresh-access", refreshOK: false}
	client, store, _ := newTestClient(t, backend)
	seedTokens(t, store, "stale-access", "expired-refresh")

	_, err := client.Do(context.Background(), http.MethodGet, "/data", nil)
	require.Error(t, err)
	assert.Equal(t, KindAuthRequired, KindOf(err))
	assert.True(t, IsAuthRequired(err))

	pair, storeErr := store.TokenPair(context.Background())
	require.NoError(t, storeErr)
	assert.Nil(t, pair, "tokens must be cleared after a failed refresh")
}

func TestMissingRefreshTokenFailsImmediately(t *testing.T) {
	backend := &fakeBackend{validToken: "fresh-access", refreshOK: true}
	client, store, _ := newTestClient(t, backend)
	seedTokens(t, store, "stale-access", "")

	_, err := client.Do(context.Background(), http.MethodGet, "/data", nil)
	require.Error(t, err)
	assert.Equal(t, KindNoRefreshToken, KindOf(err))
	assert.True(t, IsAuthRequired(err))
	assert.EqualValues(t, 0, backend.refreshCalls.Load(), "no refresh call without a refresh token")
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	client := New(Config{BaseURL: srv.URL}, credentials.NewMemory(), nil)

	_, err := client.Do(context.Background(), http.MethodGet, "/slow", nil, WithTimeout(30*time.Millisecond))
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, IsRetryable(err))
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	client := New(Config{BaseURL: srv.URL}, credentials.NewMemory(), nil)
	_, err := client.Do(context.Background(), http.MethodGet, "/data", nil)
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.True(t, IsRetryable(err))
}

func TestServerFailureCarriesCodeAndMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"invalid_rating","message":"rating must be forgot, hard or good"}`))
	}))
	t.Cleanup(srv.Close)
	client := New(Config{BaseURL: srv.URL}, credentials.NewMemory(), nil)

	_, err := client.Do(context.Background(), http.MethodPost, "/review", map[string]string{"rating": "easy"}, WithoutAuth())
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindRequestFailed, apiErr.Kind)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "invalid_rating", apiErr.Code)
	assert.Equal(t, "rating must be forgot, hard or good", apiErr.Message)
}

func TestRateLimitedIsDetectable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	client := New(Config{BaseURL: srv.URL}, credentials.NewMemory(), nil)

	_, err := client.Do(context.Background(), http.MethodGet, "/data", nil, WithoutAuth())
	require.Error(t, err)
	assert.Equal(t, KindRequestFailed, KindOf(err))
	assert.True(t, IsRateLimited(err))
}

func TestNoContentIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	client := New(Config{BaseURL: srv.URL}, credentials.NewMemory(), nil)

	raw, err := client.Do(context.Background(), http.MethodDelete, "/flashcards/abc", nil, WithoutAuth())
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestWithoutAuthOmitsHeader(t *testing.T) {
	var sawAuth atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			sawAuth.Store(true)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	store := credentials.NewMemory()
	seedTokens(t, store, "acc", "ref")
	client := New(Config{BaseURL: srv.URL}, store, nil)

	_, err := client.Do(context.Background(), http.MethodPost, "/auth/login", map[string]string{"email": "e"}, WithoutAuth())
	require.NoError(t, err)
	assert.False(t, sawAuth.Load(), "login must not carry an Authorization header")
}

func TestMissingAccessTokenStillSendsRequest(t *testing.T) {
	// A missing access token omits the header and lets the server
	// decide; it is not a client-side error.
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client := New(Config{BaseURL: srv.URL}, credentials.NewMemory(), nil)
	_, err := client.Do(context.Background(), http.MethodGet, "/public", nil)
	require.NoError(t, err)
	assert.Empty(t, authHeader)
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("some other failure")))
	assert.False(t, IsAuthRequired(errors.New("nope")))
}
