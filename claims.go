package eventhive

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the decoded, unverified payload of an access token. The SDK
// treats tokens as opaque credentials; decoding exists purely for local
// introspection such as expiry diagnostics. Verification happens server side.
type AccessClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	UserRole string `json:"role,omitempty"`
	Type     string `json:"type,omitempty"`
}

// Expires returns the expiration time, zero when absent
func (c *AccessClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IsExpired checks the exp claim against now. A token without an exp claim
// never counts as expired.
func (c *AccessClaims) IsExpired(now time.Time) bool {
	exp := c.Expires()
	return !exp.IsZero() && exp.Before(now)
}

// PeekAccessClaims decodes a token without verifying its signature.
func PeekAccessClaims(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
