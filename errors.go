package eventhive

import (
	"context"
	"net"
	"net/url"

	"github.com/goliatone/go-errors"
)

const (
	textCodeInvalidUserType = "INVALID_USER_TYPE"
	textCodeSessionExpired  = "SESSION_EXPIRED"
	textCodeNoRefreshToken  = "NO_REFRESH_TOKEN"
	textCodeNetworkError    = "NETWORK_ERROR"
	textCodeBadCredentials  = "AUTHENTICATION_FAILED"
)

// ErrInvalidUserType is returned when a registration names an account type
// outside the supported set.
var ErrInvalidUserType = errors.New("invalid user type", errors.CategoryValidation).
	WithTextCode(textCodeInvalidUserType).
	WithCode(errors.CodeBadRequest)

// ErrSessionExpired is returned by the refresh exchange when the backend
// rejects the stored refresh token. The transport clears the session on that
// path before propagating the original unauthorized response.
var ErrSessionExpired = errors.New("session expired", errors.CategoryAuth).
	WithTextCode(textCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrNoRefreshToken is the shape of a 401 that cannot be recovered because no
// refresh token is stored. The transport ends the session on that path and
// hands back the original response rather than an error, so this value exists
// for callers that need to construct or match the condition themselves.
var ErrNoRefreshToken = errors.New("no refresh token available", errors.CategoryAuth).
	WithTextCode(textCodeNoRefreshToken).
	WithCode(errors.CodeUnauthorized)

// ErrAuthenticationFailed covers rejected credentials and rejected OTP codes.
// Errors decoded from a 401 API envelope carry its text code, so callers can
// match on it without inspecting status metadata.
var ErrAuthenticationFailed = errors.New("authentication failed", errors.CategoryAuth).
	WithTextCode(textCodeBadCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrNetwork is the normalized form of a request that produced no response.
// It never triggers a token refresh; callers decide whether to retry.
var ErrNetwork = errors.New("network error, no response received", errors.CategoryOperation).
	WithTextCode(textCodeNetworkError)

// IsNetworkError reports whether err represents a transport-level failure
// where no HTTP response was received.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == textCodeNetworkError {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// WrapNetworkError normalizes a transport-level failure.
func WrapNetworkError(err error) *errors.Error {
	return errors.Wrap(err, errors.CategoryOperation, "network error, no response received").
		WithTextCode(textCodeNetworkError)
}

// NormalizeError coerces any error into a rich error so UI layers always see
// the same {message, status, errors} shape. nil stays nil.
func NormalizeError(err error) *errors.Error {
	if err == nil {
		return nil
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}

	if IsNetworkError(err) {
		return WrapNetworkError(err)
	}

	return errors.Wrap(err, errors.CategoryInternal, "unexpected error").
		WithCode(errors.CodeInternal)
}

// categoryForStatus maps an HTTP status on an API response to an error
// category. Statuses outside the mapped set count as internal failures.
func categoryForStatus(status int) (errors.Category, int) {
	switch status {
	case 400:
		return errors.CategoryBadInput, errors.CodeBadRequest
	case 401:
		return errors.CategoryAuth, errors.CodeUnauthorized
	case 403:
		return errors.CategoryAuthz, errors.CodeForbidden
	case 404:
		return errors.CategoryNotFound, errors.CodeNotFound
	case 409:
		return errors.CategoryConflict, errors.CodeConflict
	case 422:
		return errors.CategoryValidation, errors.CodeBadRequest
	default:
		return errors.CategoryInternal, errors.CodeInternal
	}
}
