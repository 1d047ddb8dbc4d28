package eventhive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"
)

type retriedKey struct{}

func markRetried(req *http.Request) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), retriedKey{}, true))
}

func isRetried(req *http.Request) bool {
	v, _ := req.Context().Value(retriedKey{}).(bool)
	return v
}

// Transport is the single choke point for outbound API calls. It attaches the
// stored access token as a bearer credential and recovers from a 401 by
// refreshing the pair exactly once per logical request. Concurrent 401s from
// parallel in-flight requests coalesce into one refresh call whose result all
// waiters share.
//
// The refresh token is only ever sent in the body of the refresh call, never
// as a bearer credential. Transport-level failures (no response received) are
// surfaced as normalized network errors and never trigger a refresh.
type Transport struct {
	base       http.RoundTripper
	store      TokenStore
	refreshURL string
	scheme     string
	logger     Logger

	sf singleflight.Group

	mu        sync.Mutex
	onExpired func()
}

var _ http.RoundTripper = (*Transport)(nil)

type TransportOption func(*Transport)

// WithTransportBase overrides the underlying round tripper.
func WithTransportBase(rt http.RoundTripper) TransportOption {
	return func(t *Transport) {
		if rt != nil {
			t.base = rt
		}
	}
}

// WithTransportLogger sets the logger used for refresh diagnostics.
func WithTransportLogger(l Logger) TransportOption {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithTransportAuthScheme overrides the Authorization scheme. Default Bearer.
func WithTransportAuthScheme(scheme string) TransportOption {
	return func(t *Transport) {
		if scheme != "" {
			t.scheme = scheme
		}
	}
}

// NewTransport creates the request pipeline. refreshURL is the absolute URL
// of the token refresh endpoint.
func NewTransport(store TokenStore, refreshURL string, opts ...TransportOption) *Transport {
	t := &Transport{
		base:       http.DefaultTransport,
		store:      store,
		refreshURL: refreshURL,
		scheme:     "Bearer",
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// SetSessionExpiredHandler registers a hook invoked after the stored session
// has been cleared because a 401 could not be recovered.
func (t *Transport) SetSessionExpiredHandler(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpired = fn
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req
	if r.Header.Get("Authorization") == "" {
		if pair, _ := t.store.Load(); pair != nil && pair.AccessToken != "" {
			r = req.Clone(req.Context())
			r.Header.Set("Authorization", t.scheme+" "+pair.AccessToken)
		}
	}

	resp, err := t.base.RoundTrip(r)
	if err != nil {
		return nil, WrapNetworkError(err)
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// A request that already went through one refresh cycle never triggers
	// another; the failure propagates and the session ends here.
	if isRetried(req) {
		t.expireSession()
		return resp, nil
	}

	pair, user := t.store.Load()
	if pair == nil || pair.RefreshToken == "" {
		t.logger.Info("401 with no refresh token stored, clearing session")
		t.expireSession()
		return resp, nil
	}

	usedAccess := strings.TrimPrefix(r.Header.Get("Authorization"), t.scheme+" ")

	token, err := t.refresh(req.Context(), usedAccess, pair.RefreshToken, user)
	if err != nil {
		t.logger.Warn("token refresh failed", "error", err)
		t.expireSession()
		return resp, nil
	}

	retry, ok := rewindRequest(req)
	if !ok {
		t.logger.Warn("request body cannot be replayed, propagating 401",
			"method", req.Method, "url", req.URL.Path)
		return resp, nil
	}

	drain(resp)

	retry = markRetried(retry)
	retry.Header.Set("Authorization", t.scheme+" "+token)
	return t.RoundTrip(retry)
}

// refresh exchanges the refresh token for a new access token and persists the
// result. Concurrent callers share a single in-flight exchange; a caller that
// lost the race to an already completed refresh reuses the stored token
// instead of spending the rotated refresh token again.
func (t *Transport) refresh(ctx context.Context, staleAccess, refreshToken string, user *UserProfile) (string, error) {
	v, err, _ := t.sf.Do("refresh", func() (any, error) {
		if pair, _ := t.store.Load(); pair != nil && pair.AccessToken != "" && pair.AccessToken != staleAccess {
			return pair.AccessToken, nil
		}

		body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.refreshURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, WrapNetworkError(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, WrapNetworkError(err)
		}

		if resp.StatusCode != http.StatusOK {
			return nil, ErrSessionExpired.WithMetadata(map[string]any{"status": resp.StatusCode})
		}

		var out RefreshResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "invalid refresh response")
		}
		if out.AccessToken == "" {
			return nil, errors.New("refresh response missing access token", errors.CategoryInternal)
		}

		next := TokenPair{
			AccessToken:  out.AccessToken,
			RefreshToken: refreshToken,
		}
		if out.RefreshToken != "" {
			next.RefreshToken = out.RefreshToken
		}

		if err := t.store.Save(next, user); err != nil {
			t.logger.Error("failed to persist refreshed tokens", "error", err)
		}

		return out.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (t *Transport) expireSession() {
	if err := t.store.Clear(); err != nil {
		t.logger.Error("failed to clear session store", "error", err)
	}

	t.mu.Lock()
	fn := t.onExpired
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// rewindRequest clones req with a replayable body. Requests whose body cannot
// be rebuilt are not retried.
func rewindRequest(req *http.Request) (*http.Request, bool) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return out, true
	}
	if req.GetBody == nil {
		return nil, false
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	out.Body = body
	return out, true
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
