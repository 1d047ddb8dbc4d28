package fake

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// MintClaims is the claim set the fake backend signs into its tokens.
type MintClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid"`
	UserRole string `json:"role"`
	Type     string `json:"type"`
	Gen      int64  `json:"gen"`
}

// TokenMint signs and validates the backend's access and refresh tokens.
// Generations let tests revoke every outstanding token of a kind at once,
// which is how a forced 401 is staged.
type TokenMint struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	accessGen  atomic.Int64
	refreshGen atomic.Int64
}

func NewTokenMint(signingKey []byte, issuer string, accessTTL, refreshTTL time.Duration) *TokenMint {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * time.Hour
	}
	return &TokenMint{
		signingKey: signingKey,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// SignAccess issues a short-lived access token for the account.
func (m *TokenMint) SignAccess(account *Account) (string, error) {
	return m.sign(account, tokenTypeAccess, m.accessTTL, m.accessGen.Load())
}

// SignRefresh issues a long-lived refresh token for the account.
func (m *TokenMint) SignRefresh(account *Account) (string, error) {
	return m.sign(account, tokenTypeRefresh, m.refreshTTL, m.refreshGen.Load())
}

func (m *TokenMint) sign(account *Account, tokenType string, ttl time.Duration, gen int64) (string, error) {
	if account == nil {
		return "", errors.New("account must not be nil", errors.CategoryInternal)
	}

	now := time.Now()
	claims := &MintClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   account.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:      account.ID.String(),
		UserRole: account.UserType,
		Type:     tokenType,
		Gen:      gen,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// Validate parses a raw token, checks its signature and expiry, and enforces
// that it is of the wanted kind and of the current generation.
func (m *TokenMint) Validate(raw, wantType string) (*MintClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 1)
	if m.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &MintClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.signingKey, nil
	}, parserOptions...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, "invalid token")
	}

	claims, ok := token.Claims.(*MintClaims)
	if !ok || !token.Valid {
		return nil, errors.New("could not decode token claims", errors.CategoryAuth)
	}

	if claims.Type != wantType {
		return nil, errors.New("wrong token type", errors.CategoryAuth).
			WithMetadata(map[string]any{"want": wantType, "got": claims.Type})
	}

	if claims.Gen != m.generation(wantType) {
		return nil, errors.New("token has been revoked", errors.CategoryAuth)
	}

	return claims, nil
}

func (m *TokenMint) generation(tokenType string) int64 {
	if tokenType == tokenTypeRefresh {
		return m.refreshGen.Load()
	}
	return m.accessGen.Load()
}

// RevokeAccessTokens invalidates every access token issued so far.
func (m *TokenMint) RevokeAccessTokens() {
	m.accessGen.Add(1)
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (m *TokenMint) RevokeRefreshTokens() {
	m.refreshGen.Add(1)
}
