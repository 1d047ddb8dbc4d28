package eventhive

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResponder struct {
	status int
	body   string
}

func (s staticResponder) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: s.status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(s.body)),
	}, nil
}

func TestRefreshRejectionYieldsSessionExpiredError(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(TokenPair{
		AccessToken:  "stale-access",
		RefreshToken: "refresh-1",
	}, nil))

	tr := NewTransport(store, "https://api.test/auth/refresh-token",
		WithTransportBase(staticResponder{
			status: http.StatusUnauthorized,
			body:   `{"message":"refresh token revoked","status":401}`,
		}))

	_, err := tr.refresh(context.Background(), "stale-access", "refresh-1", nil)
	require.Error(t, err)

	var richErr *errors.Error
	require.True(t, errors.As(err, &richErr))
	assert.Equal(t, ErrSessionExpired.TextCode, richErr.TextCode)
	assert.Equal(t, errors.CategoryAuth, richErr.Category)
	assert.Equal(t, http.StatusUnauthorized, richErr.Metadata["status"])
}
