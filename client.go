package eventhive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// API endpoint paths, relative to the configured base URL.
const (
	PathRegisterUser         = "/auth/register/user"
	PathRegisterOrganization = "/auth/register/organization"
	PathRegisterAdmin        = "/auth/register/admin"
	PathLogin                = "/auth/login"
	PathVerifyOTP            = "/auth/verify-otp"
	PathForgotPassword       = "/auth/forgot-password"
	PathResetPassword        = "/auth/reset-password"
	PathRefreshToken         = "/auth/refresh-token"
	PathLogout               = "/auth/logout"
)

// apiErrorEnvelope is the backend's error body shape.
type apiErrorEnvelope struct {
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Client talks to the EventHive REST API. All requests flow through a
// Transport, so bearer attachment and refresh-and-retry come for free.
type Client struct {
	baseURL       string
	http          *http.Client
	transport     *Transport
	transportBase http.RoundTripper
	logger        Logger
	debug         bool
}

var _ AuthAPI = (*Client)(nil)

type ClientOption func(*Client)

// WithClientLogger sets a structured logger for the client.
func WithClientLogger(l Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClientDebug enables payload dumps on every request.
func WithClientDebug(debug bool) ClientOption {
	return func(c *Client) { c.debug = debug }
}

// WithClientHTTP replaces the HTTP client. The pipeline is installed on it
// unless it already carries its own round tripper.
func WithClientHTTP(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClientTransportBase swaps the round tripper underneath the pipeline.
// Bearer attachment and refresh-and-retry still apply on top of it.
func WithClientTransportBase(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		if rt != nil {
			c.transportBase = rt
		}
	}
}

// NewClient builds a client whose pipeline persists and refreshes tokens
// through store.
func NewClient(cfg Config, store TokenStore, opts ...ClientOption) *Client {
	base := strings.TrimRight(cfg.GetBaseURL(), "/")

	c := &Client{
		baseURL: base,
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	tropts := []TransportOption{
		WithTransportAuthScheme(cfg.GetAuthScheme()),
		WithTransportLogger(c.logger),
	}
	if c.transportBase != nil {
		tropts = append(tropts, WithTransportBase(c.transportBase))
	}
	c.transport = NewTransport(store, base+PathRefreshToken, tropts...)

	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.GetRequestTimeout()}
	}
	if c.http.Transport == nil {
		c.http.Transport = c.transport
	}

	return c
}

// Transport exposes the request pipeline so session owners can register an
// expiry hook.
func (c *Client) Transport() *Transport { return c.transport }

// Do issues an API request with a JSON body and decodes a JSON response into
// out when out is non-nil. Any non-2xx response becomes a rich error carrying
// the backend's {message, status, errors} envelope.
func (c *Client) Do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to encode request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.debug {
		c.logger.Debug("api request", "method", method, "path", path,
			"body", print.MaybePrettyJSON(body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// The transport already normalizes transport-level failures; the
		// http client wraps them in a url.Error on the way out.
		return NormalizeError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return WrapNetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to decode response body")
		}
	}

	return nil
}

func (c *Client) errorFromResponse(status int, data []byte) *errors.Error {
	envelope := apiErrorEnvelope{}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Message == "" {
		envelope.Message = fmt.Sprintf("request failed with status %d", status)
	}

	category, code := categoryForStatus(status)

	richErr := errors.New(envelope.Message, category).WithCode(code)
	if status == http.StatusUnauthorized {
		richErr = richErr.WithTextCode(textCodeBadCredentials)
	}

	meta := map[string]any{"status": status}
	if len(envelope.Errors) > 0 {
		meta["errors"] = envelope.Errors
	}
	return richErr.WithMetadata(meta)
}

// Login exchanges credentials for a token pair and profile.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	out := &AuthResponse{}
	if err := c.Do(ctx, http.MethodPost, PathLogin, creds, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterUser creates an attendee account. No tokens are issued; the
// account activates through OTP verification.
func (c *Client) RegisterUser(ctx context.Context, form RegistrationForm) (*RegistrationReceipt, error) {
	return c.register(ctx, PathRegisterUser, form)
}

// RegisterOrganization creates an organization account.
func (c *Client) RegisterOrganization(ctx context.Context, form RegistrationForm) (*RegistrationReceipt, error) {
	return c.register(ctx, PathRegisterOrganization, form)
}

// RegisterAdmin creates an administrator account.
func (c *Client) RegisterAdmin(ctx context.Context, form RegistrationForm) (*RegistrationReceipt, error) {
	return c.register(ctx, PathRegisterAdmin, form)
}

func (c *Client) register(ctx context.Context, path string, form RegistrationForm) (*RegistrationReceipt, error) {
	out := &RegistrationReceipt{}
	if err := c.Do(ctx, http.MethodPost, path, form, out); err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyOTP exchanges a one-time code for a token pair and profile.
func (c *Client) VerifyOTP(ctx context.Context, req OTPRequest) (*AuthResponse, error) {
	out := &AuthResponse{}
	if err := c.Do(ctx, http.MethodPost, PathVerifyOTP, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ForgotPassword requests a reset email for the account.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.Do(ctx, http.MethodPost, PathForgotPassword, ForgotPasswordRequest{Email: email}, nil)
}

// ResetPassword finalizes a password reset.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	return c.Do(ctx, http.MethodPost, PathResetPassword, req, nil)
}

// Logout asks the backend to invalidate the session server side.
func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, PathLogout, nil, nil)
}
