package eventhive_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	eventhive "github.com/eventhive/eventhive-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const refreshURL = "https://api.test/auth/refresh-token"

type capturedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   string
}

// scriptedTransport records every request and answers through a handler.
type scriptedTransport struct {
	mu       sync.Mutex
	handler  func(req *http.Request) (*http.Response, error)
	requests []capturedRequest
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		req.Body.Close()
		body = string(data)
	}

	s.mu.Lock()
	s.requests = append(s.requests, capturedRequest{
		Method: req.Method,
		Path:   req.URL.Path,
		Auth:   req.Header.Get("Authorization"),
		Body:   body,
	})
	handler := s.handler
	s.mu.Unlock()

	return handler(req)
}

func (s *scriptedTransport) captured() []capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]capturedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func seededStore(t *testing.T) *eventhive.MemoryStore {
	t.Helper()
	store := eventhive.NewMemoryStore()
	require.NoError(t, store.Save(testTokens(), testProfile(eventhive.UserTypeUser)))
	return store
}

func TestTransportAttachesBearerToken(t *testing.T) {
	script := &scriptedTransport{
		handler: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{}`), nil
		},
	}

	tr := eventhive.NewTransport(seededStore(t), refreshURL,
		eventhive.WithTransportBase(script),
	)

	req, _ := http.NewRequest(http.MethodGet, "https://api.test/users/me", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	captured := script.captured()
	require.Len(t, captured, 1)
	assert.Equal(t, "Bearer access-token-1", captured[0].Auth)
}

func TestTransportNoStoredTokenSendsNoHeader(t *testing.T) {
	script := &scriptedTransport{
		handler: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{}`), nil
		},
	}

	tr := eventhive.NewTransport(eventhive.NewMemoryStore(), refreshURL,
		eventhive.WithTransportBase(script),
	)

	req, _ := http.NewRequest(http.MethodGet, "https://api.test/events", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	captured := script.captured()
	require.Len(t, captured, 1)
	assert.Empty(t, captured[0].Auth)
}

func TestTransportPreservesCallerAuthorization(t *testing.T) {
	script := &scriptedTransport{
		handler: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{}`), nil
		},
	}

	tr := eventhive.NewTransport(seededStore(t), refreshURL,
		eventhive.WithTransportBase(script),
	)

	req, _ := http.NewRequest(http.MethodGet, "https://api.test/users/me", nil)
	req.Header.Set("Authorization", "Bearer caller-supplied")

	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	captured := script.captured()
	require.Len(t, captured, 1)
	assert.Equal(t, "Bearer caller-supplied", captured[0].Auth)
}

func TestTransportRefreshesAndRetriesOnce(t *testing.T) {
	script := &scriptedTransport{}
	script.handler = func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/auth/refresh-token" {
			return jsonResponse(http.StatusOK, `{"accessToken":"access-token-2"}`), nil
		}
		if req.Header.Get("Authorization") == "Bearer access-token-2" {
			return jsonResponse(http.StatusOK, `{"email":"pepe.rone@example.com"}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"message":"token expired","status":401}`), nil
	}

	store := seededStore(t)
	expired := false

	tr := eventhive.NewTransport(store, refreshURL,
		eventhive.WithTransportBase(script),
	)
	tr.SetSessionExpiredHandler(func() { expired = true })

	req, _ := http.NewRequest(http.MethodGet, "https://api.test/users/me", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, expired)

	captured := script.captured()
	require.Len(t, captured, 3)

	assert.Equal(t, "/users/me", captured[0].Path)
	assert.Equal(t, "Bearer access-token-1", captured[0].Auth)

	// The refresh call carries the refresh token in the body, never as a
	// bearer credential.
	assert.Equal(t, "/auth/refresh-token", captured[1].Path)
	assert.Empty(t, captured[1].Auth)
	assert.JSONEq(t, `{"refreshToken":"refresh-token-1"}`, captured[1].Body)

	assert.Equal(t, "/users/me", captured[2].Path)
	assert.Equal(t, "Bearer access-token-2", captured[2].Auth)

	tokens, user := store.Load()
	require.NotNil(t, tokens)
	assert.Equal(t, "access-token-2", tokens.AccessToken)
	assert.Equal(t, "refresh-token-1", tokens.RefreshToken)
	require.NotNil(t, user)
	assert.Equal(t, "pepe.rone@example.com", user.Email)
}

func TestTransportAdoptsRotatedRefreshToken(t *testing.T) {
	script := &scriptedTransport{}
	script.handler = func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/auth/refresh-token" {
			return jsonResponse(http.StatusOK,
				`{"accessToken":"access-token-2","refreshToken":"refresh-token-2"}`), nil
		}
		if req.Header.Get("Authorization") == "Bearer access-token-2" {
			return jsonResponse(http.StatusOK, `{}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"message":"token expired","status":401}`), nil
	}

	store := seededStore(t)
	tr := eventhive.NewTransport(store, refreshURL,
		eventhive.WithTransportBase(script),
	)

	req, _ := http.NewRequest(http.MethodGet, "https://api.test/users/me", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	tokens, _ := store.Load()
	require.NotNil(t, tokens)
	assert.Equal(t, "refresh-token-2", tokens.RefreshToken)
}

func TestTransportNoRefreshTokenClearsSession(t *testing.T) {
	script := &scriptedTransport{
		handler: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusUnauthorized, `{"message":"unauthorized","status":401}`), nil
		},
	}

	store := eventhive.NewMemoryStore()
	require.NoError(t, store.Save(eventhive.TokenPair{AccessToken: "access-only"}, nil))

	expired := false
	tr := eventhive.NewTransport(store, refreshURL,
		eventhive.WithTransportBase(script),
	)
	tr.SetSessionExpiredHandler(func() { expired = true })

	req, _ := http.NewRequest(http.MethodGet, "https://api.test/users/me", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, expired)

	// No refresh round trip happened.
	captured := script.captured()
	require.Len(t, captured, 1)
	assert.Equal(t, "/users/me", captured[0].Path)

	tokens, _ := store.Load()
	assert.Nil(t, tokens)
}

func TestTransportStopsAfterSecondUnauthorized(t *testing.T) {
	script := &scriptedTransport{}
	script.handler = func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/auth/refresh-token" {
			return jsonResponse(http.StatusOK, `{"accessToken":"access-token-2"}`), nil
		}
		// The resource rejects even the refreshed token.
		return jsonResponse(http.StatusUnauthorized, `{"message":"unauthorized","status":401}`), nil
	}

	store := seededStore(t)
	expired := false

	tr := eventhive.NewTransport(store, refreshURL,
		eventhive.WithTransportBase(script),
	)
	tr.SetSessionExpiredHandler(func() { expired = true })

	req, _ := http.NewRequest(http.MethodGet, "https://api.test/users/me", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, expired)

	// Exactly one refresh attempt: original, refresh, retry. Never a second
	// refresh cycle.
	captured := script.captured()
	require.Len(t, captured, 3)
	assert.Equal(t, "/auth/refresh-token", captured[1].Path)

	tokens, _ := store.Load()
	assert.Nil(t, tokens)
}

func TestTransportRefreshRejectionPropagatesOriginal401(t *testing.T) {
	script := &scriptedTransport{}
	script.handler = func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/auth/refresh-token" {
			return jsonResponse(http.StatusUnauthorized, `{"message":"invalid refresh token","status":401}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"message":"token expired","status":401}`), nil
	}

	store := seededStore(t)
	expired := false

	tr := eventhive.NewTransport(store, refreshURL,
		eventhive.WithTransportBase(script),
	)
	tr.SetSessionExpiredHandler(func() { expired = true })

	req, _ := http.NewRequest(http.MethodGet, "https://api.test/users/me", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, expired)

	tokens, user := store.Load()
	assert.Nil(t, tokens)
	assert.Nil(t, user)
}

func TestTransportNetworkErrorNeverRefreshes(t *testing.T) {
	script := &scriptedTransport{
		handler: func(req *http.Request) (*http.Response, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}

	store := seededStore(t)
	tr := eventhive.NewTransport(store, refreshURL,
		eventhive.WithTransportBase(script),
	)

	req, _ := http.NewRequest(http.MethodGet, "https://api.test/users/me", nil)
	resp, err := tr.RoundTrip(req)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, eventhive.IsNetworkError(err))

	// A transport failure is not a 401; the session survives.
	captured := script.captured()
	require.Len(t, captured, 1)
	tokens, _ := store.Load()
	assert.NotNil(t, tokens)
}

func TestTransportReplaysRequestBodyOnRetry(t *testing.T) {
	script := &scriptedTransport{}
	script.handler = func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/auth/refresh-token" {
			return jsonResponse(http.StatusOK, `{"accessToken":"access-token-2"}`), nil
		}
		if req.Header.Get("Authorization") == "Bearer access-token-2" {
			return jsonResponse(http.StatusOK, `{}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"message":"token expired","status":401}`), nil
	}

	tr := eventhive.NewTransport(seededStore(t), refreshURL,
		eventhive.WithTransportBase(script),
	)

	payload := `{"name":"GopherCon"}`
	req, _ := http.NewRequest(http.MethodPost, "https://api.test/events",
		bytes.NewReader([]byte(payload)))

	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	captured := script.captured()
	require.Len(t, captured, 3)
	assert.Equal(t, payload, captured[0].Body)
	assert.Equal(t, payload, captured[2].Body)
}

func TestTransportCoalescesConcurrentRefreshes(t *testing.T) {
	var mu sync.Mutex
	refreshCalls := 0

	script := &scriptedTransport{}
	script.handler = func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/auth/refresh-token" {
			mu.Lock()
			refreshCalls++
			mu.Unlock()
			return jsonResponse(http.StatusOK, `{"accessToken":"access-token-2"}`), nil
		}
		if req.Header.Get("Authorization") == "Bearer access-token-2" {
			return jsonResponse(http.StatusOK, `{}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"message":"token expired","status":401}`), nil
	}

	tr := eventhive.NewTransport(seededStore(t), refreshURL,
		eventhive.WithTransportBase(script),
	)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]int, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet,
				fmt.Sprintf("https://api.test/users/me?worker=%d", n), nil)
			resp, err := tr.RoundTrip(req)
			if err != nil {
				return
			}
			defer resp.Body.Close()
			results[n] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	for i, status := range results {
		assert.Equalf(t, http.StatusOK, status, "worker %d", i)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, refreshCalls)
}

func TestTransportRefreshResponseDecoded(t *testing.T) {
	script := &scriptedTransport{}
	script.handler = func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/auth/refresh-token" {
			body, _ := json.Marshal(eventhive.RefreshResponse{AccessToken: "access-token-2"})
			return jsonResponse(http.StatusOK, string(body)), nil
		}
		if req.Header.Get("Authorization") == "Bearer access-token-2" {
			return jsonResponse(http.StatusOK, `{}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"message":"token expired","status":401}`), nil
	}

	store := seededStore(t)
	tr := eventhive.NewTransport(store, refreshURL,
		eventhive.WithTransportBase(script),
	)

	req, _ := http.NewRequest(http.MethodGet, "https://api.test/users/me", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	tokens, _ := store.Load()
	require.NotNil(t, tokens)
	assert.Equal(t, "access-token-2", tokens.AccessToken)
}
