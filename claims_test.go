package eventhive_test

import (
	"testing"
	"time"

	eventhive "github.com/eventhive/eventhive-go"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedAccessToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "b3b4a1c2-8c1f-4e2a-9a3d-0f1e2d3c4b5a",
		"uid":  "b3b4a1c2-8c1f-4e2a-9a3d-0f1e2d3c4b5a",
		"role": "USER",
		"type": "access",
		"exp":  expiresAt.Unix(),
	})

	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return signed
}

func TestPeekAccessClaims(t *testing.T) {
	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := signedAccessToken(t, expires)

	claims, err := eventhive.PeekAccessClaims(raw)
	require.NoError(t, err)

	assert.Equal(t, "b3b4a1c2-8c1f-4e2a-9a3d-0f1e2d3c4b5a", claims.UID)
	assert.Equal(t, "USER", claims.UserRole)
	assert.Equal(t, "access", claims.Type)
	assert.Equal(t, expires.Unix(), claims.Expires().Unix())
	assert.False(t, claims.IsExpired(time.Now()))
	assert.True(t, claims.IsExpired(expires.Add(time.Minute)))
}

func TestPeekAccessClaimsRejectsGarbage(t *testing.T) {
	_, err := eventhive.PeekAccessClaims("not.a.token")
	assert.Error(t, err)

	_, err = eventhive.PeekAccessClaims("")
	assert.Error(t, err)
}

func TestClaimsWithoutExpiryNeverExpire(t *testing.T) {
	claims := &eventhive.AccessClaims{}
	assert.True(t, claims.Expires().IsZero())
	assert.False(t, claims.IsExpired(time.Now().Add(100*time.Hour)))
}
