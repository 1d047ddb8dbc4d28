package eventhive

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// TokenStore is the durable home of the token pair and the cached profile.
// Implementations never perform network calls.
type TokenStore interface {
	// Save overwrites any previously stored entry. The token shape is not
	// validated here.
	Save(tokens TokenPair, user *UserProfile) error

	// Load returns nil for either value when absent. A stored profile that
	// fails to deserialize is treated as absent, never as a fatal error.
	Load() (*TokenPair, *UserProfile)

	// Clear removes tokens and profile unconditionally. Idempotent.
	Clear() error
}

// AuthAPI is the REST collaborator the session manager talks to.
type AuthAPI interface {
	Login(ctx context.Context, creds Credentials) (*AuthResponse, error)
	RegisterUser(ctx context.Context, form RegistrationForm) (*RegistrationReceipt, error)
	RegisterOrganization(ctx context.Context, form RegistrationForm) (*RegistrationReceipt, error)
	RegisterAdmin(ctx context.Context, form RegistrationForm) (*RegistrationReceipt, error)
	VerifyOTP(ctx context.Context, req OTPRequest) (*AuthResponse, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	Logout(ctx context.Context) error
}

// Config holds client options
type Config interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetAuthScheme() string
	GetStorePath() string
	GetSignInPath() string
	GetSignUpPath() string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
}

// StaticConfig is a plain-value Config for applications that do not bring
// their own configuration layer.
type StaticConfig struct {
	BaseURL              string
	RequestTimeout       time.Duration
	AuthScheme           string
	StorePath            string
	SignInPath           string
	SignUpPath           string
	RejectedRouteKey     string
	RejectedRouteDefault string
}

func (c StaticConfig) GetBaseURL() string { return c.BaseURL }

func (c StaticConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout == 0 {
		return 30 * time.Second
	}
	return c.RequestTimeout
}

func (c StaticConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return "Bearer"
	}
	return c.AuthScheme
}

func (c StaticConfig) GetStorePath() string { return c.StorePath }

func (c StaticConfig) GetSignInPath() string {
	if c.SignInPath == "" {
		return SignInPath
	}
	return c.SignInPath
}

func (c StaticConfig) GetSignUpPath() string {
	if c.SignUpPath == "" {
		return SignUpPath
	}
	return c.SignUpPath
}

func (c StaticConfig) GetRejectedRouteKey() string {
	if c.RejectedRouteKey == "" {
		return "eventhive_rejected_route"
	}
	return c.RejectedRouteKey
}

func (c StaticConfig) GetRejectedRouteDefault() string {
	if c.RejectedRouteDefault == "" {
		return PublicHomePath
	}
	return c.RejectedRouteDefault
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] EVENTHIVE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] EVENTHIVE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] EVENTHIVE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] EVENTHIVE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
