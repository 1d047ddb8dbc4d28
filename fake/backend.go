// Package fake hosts an in-memory EventHive backend used by the test suite
// and by local development. It implements the auth surface the client talks
// to, backed by a throwaway sqlite database, and is reachable without a
// network socket through its RoundTripper.
package fake

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	eventhive "github.com/eventhive/eventhive-go"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt at minimum cost; the fake trades hash strength for test speed.
const passwordHashCost = bcrypt.MinCost

// Backend is the in-memory EventHive API.
type Backend struct {
	app      *fiber.App
	db       *bun.DB
	accounts *Accounts
	mint     *TokenMint
	logger   eventhive.Logger

	mu     sync.Mutex
	otps   map[string]string
	resets map[string]string
}

type Option func(*Backend)

// WithLogger sets a logger for request diagnostics.
func WithLogger(l eventhive.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTokenMint replaces the token mint, letting tests control TTLs.
func WithTokenMint(m *TokenMint) Option {
	return func(b *Backend) {
		if m != nil {
			b.mint = m
		}
	}
}

// New builds a backend with a fresh sqlite database and registers its routes.
func New(opts ...Option) (*Backend, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open sqlite")
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	b := &Backend{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		db:       db,
		accounts: NewAccountsRepository(db),
		mint:     NewTokenMint([]byte("fake-backend-signing-key"), "eventhive-fake", 15*time.Minute, 24*time.Hour),
		logger:   nopLogger{},
		otps:     map[string]string{},
		resets:   map[string]string{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	if _, err := db.NewCreateTable().
		Model((*Account)(nil)).
		IfNotExists().
		Exec(context.Background()); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create accounts table")
	}

	b.routes()

	return b, nil
}

// Close releases the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Mint exposes the token mint so tests can revoke outstanding tokens.
func (b *Backend) Mint() *TokenMint { return b.mint }

// Accounts exposes the account repository for test fixtures.
func (b *Backend) Repo() *Accounts { return b.accounts }

// LastOTP returns the code most recently issued to email.
func (b *Backend) LastOTP(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.otps[normalizeEmail(email)]
}

// LastResetToken returns the reset token most recently issued to email.
func (b *Backend) LastResetToken(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for token, e := range b.resets {
		if e == normalizeEmail(email) {
			return token
		}
	}
	return ""
}

// RoundTripper returns a transport that dispatches requests straight into the
// app, no socket involved. Plug it into a client via WithTransportBase.
func (b *Backend) RoundTripper() http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return b.app.Test(req, -1)
	})
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func (b *Backend) routes() {
	b.app.Post(eventhive.PathRegisterUser, b.register(eventhive.UserTypeUser))
	b.app.Post(eventhive.PathRegisterOrganization, b.register(eventhive.UserTypeOrganization))
	b.app.Post(eventhive.PathRegisterAdmin, b.register(eventhive.UserTypeAdmin))
	b.app.Post(eventhive.PathLogin, b.login)
	b.app.Post(eventhive.PathVerifyOTP, b.verifyOTP)
	b.app.Post(eventhive.PathForgotPassword, b.forgotPassword)
	b.app.Post(eventhive.PathResetPassword, b.resetPassword)
	b.app.Post(eventhive.PathRefreshToken, b.refreshToken)
	b.app.Post(eventhive.PathLogout, b.logout)

	b.app.Get("/users/me", b.me)
}

// errJSON writes the backend's {message, status, errors} error envelope.
func errJSON(c *fiber.Ctx, status int, message string, fieldErrors map[string]string) error {
	body := fiber.Map{
		"message": message,
		"status":  status,
	}
	if len(fieldErrors) > 0 {
		body["errors"] = fieldErrors
	}
	return c.Status(status).JSON(body)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (b *Backend) register(userType eventhive.UserType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		form := eventhive.RegistrationForm{}
		if err := c.BodyParser(&form); err != nil {
			return errJSON(c, fiber.StatusBadRequest, "invalid request body", nil)
		}

		if err := form.Validate(); err != nil {
			return errJSON(c, fiber.StatusBadRequest, "validation failed",
				eventhive.FormatValidationErrorToMap(err))
		}

		if userType == eventhive.UserTypeOrganization && form.OrganizationName == "" {
			return errJSON(c, fiber.StatusBadRequest, "validation failed",
				map[string]string{"organizationname": "cannot be blank"})
		}

		email := normalizeEmail(form.Email)
		ctx := c.UserContext()

		if _, err := b.accounts.GetByEmail(ctx, email); err == nil {
			return errJSON(c, fiber.StatusConflict, "an account with this email already exists", nil)
		} else if !repository.IsRecordNotFound(err) {
			b.logger.Error("register lookup failed", "error", err)
			return errJSON(c, fiber.StatusInternalServerError, "something went wrong", nil)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), passwordHashCost)
		if err != nil {
			return errJSON(c, fiber.StatusInternalServerError, "something went wrong", nil)
		}

		account := &Account{
			UserType:     string(userType),
			DisplayName:  form.DisplayName,
			Email:        email,
			Phone:        normalizePhone(form.Phone),
			PasswordHash: string(hash),
			Permissions:  defaultPermissions(userType),
		}
		if userType == eventhive.UserTypeOrganization {
			account.OrganizationName = form.OrganizationName
		}

		if id, err := hashid.NewUUID(email); err == nil {
			account.ID = id
		} else {
			account.ID = uuid.New()
		}

		if _, err := b.accounts.Create(ctx, account); err != nil {
			b.logger.Error("register create failed", "error", err)
			return errJSON(c, fiber.StatusInternalServerError, "something went wrong", nil)
		}

		code := b.issueOTP(email)
		b.logger.Debug("issued OTP", "email", email, "otp", code)

		return c.Status(fiber.StatusCreated).JSON(eventhive.RegistrationReceipt{
			ID:       account.ID.String(),
			Email:    email,
			UserType: userType,
			Message:  "verification code sent",
		})
	}
}

func (b *Backend) login(c *fiber.Ctx) error {
	creds := eventhive.Credentials{}
	if err := c.BodyParser(&creds); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	account, err := b.accounts.GetByEmail(c.UserContext(), creds.Email)
	if err != nil {
		return errJSON(c, fiber.StatusUnauthorized, "invalid credentials", nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(creds.Password)); err != nil {
		return errJSON(c, fiber.StatusUnauthorized, "invalid credentials", nil)
	}

	if creds.UserType != "" && string(creds.UserType) != account.UserType {
		return errJSON(c, fiber.StatusUnauthorized, "invalid credentials", nil)
	}

	if !account.EmailVerified {
		return errJSON(c, fiber.StatusForbidden, "email not verified", nil)
	}

	return b.issueSession(c, account)
}

func (b *Backend) verifyOTP(c *fiber.Ctx) error {
	req := eventhive.OTPRequest{}
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	email := normalizeEmail(req.Email)

	b.mu.Lock()
	want, ok := b.otps[email]
	b.mu.Unlock()

	if !ok || req.OTP == "" || req.OTP != want {
		return errJSON(c, fiber.StatusUnauthorized, "invalid verification code", nil)
	}

	account, err := b.accounts.GetByEmail(c.UserContext(), email)
	if err != nil {
		return errJSON(c, fiber.StatusUnauthorized, "invalid verification code", nil)
	}

	if err := b.accounts.MarkVerified(c.UserContext(), account.ID); err != nil {
		b.logger.Error("verify update failed", "error", err)
		return errJSON(c, fiber.StatusInternalServerError, "something went wrong", nil)
	}
	account.EmailVerified = true

	b.mu.Lock()
	delete(b.otps, email)
	b.mu.Unlock()

	return b.issueSession(c, account)
}

func (b *Backend) forgotPassword(c *fiber.Ctx) error {
	req := eventhive.ForgotPasswordRequest{}
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	email := normalizeEmail(req.Email)

	// Same response whether or not the account exists.
	if _, err := b.accounts.GetByEmail(c.UserContext(), email); err == nil {
		token := uuid.NewString()
		b.mu.Lock()
		b.resets[token] = email
		b.mu.Unlock()
		b.logger.Debug("issued reset token", "email", email, "token", token)
	}

	return c.JSON(fiber.Map{"message": "if the account exists, a reset email has been sent"})
}

func (b *Backend) resetPassword(c *fiber.Ctx) error {
	req := eventhive.ResetPasswordRequest{}
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	email := normalizeEmail(req.Email)

	b.mu.Lock()
	owner, ok := b.resets[req.Token]
	b.mu.Unlock()

	if !ok || owner != email {
		return errJSON(c, fiber.StatusBadRequest, "invalid or expired reset token", nil)
	}

	if req.NewPassword == "" || req.NewPassword != req.ConfirmPassword {
		return errJSON(c, fiber.StatusBadRequest, "validation failed",
			map[string]string{"confirmpassword": "values must match"})
	}

	account, err := b.accounts.GetByEmail(c.UserContext(), email)
	if err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid or expired reset token", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), passwordHashCost)
	if err != nil {
		return errJSON(c, fiber.StatusInternalServerError, "something went wrong", nil)
	}

	if err := b.accounts.UpdatePassword(c.UserContext(), account.ID, string(hash)); err != nil {
		b.logger.Error("reset update failed", "error", err)
		return errJSON(c, fiber.StatusInternalServerError, "something went wrong", nil)
	}

	b.mu.Lock()
	delete(b.resets, req.Token)
	b.mu.Unlock()

	return c.JSON(fiber.Map{"message": "password updated"})
}

func (b *Backend) refreshToken(c *fiber.Ctx) error {
	req := struct {
		RefreshToken string `json:"refreshToken"`
	}{}
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	claims, err := b.mint.Validate(req.RefreshToken, tokenTypeRefresh)
	if err != nil {
		return errJSON(c, fiber.StatusUnauthorized, "invalid refresh token", nil)
	}

	account, err := b.findByID(c.UserContext(), claims.UID)
	if err != nil {
		return errJSON(c, fiber.StatusUnauthorized, "invalid refresh token", nil)
	}

	access, err := b.mint.SignAccess(account)
	if err != nil {
		return errJSON(c, fiber.StatusInternalServerError, "something went wrong", nil)
	}

	return c.JSON(eventhive.RefreshResponse{AccessToken: access})
}

func (b *Backend) logout(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "signed out"})
}

// me is a privileged endpoint so the retry pipeline has something to hit.
func (b *Backend) me(c *fiber.Ctx) error {
	account, err := b.bearerAccount(c)
	if err != nil {
		return errJSON(c, fiber.StatusUnauthorized, "authentication required", nil)
	}
	return c.JSON(account.Profile())
}

func (b *Backend) issueSession(c *fiber.Ctx, account *Account) error {
	access, err := b.mint.SignAccess(account)
	if err != nil {
		return errJSON(c, fiber.StatusInternalServerError, "something went wrong", nil)
	}
	refresh, err := b.mint.SignRefresh(account)
	if err != nil {
		return errJSON(c, fiber.StatusInternalServerError, "something went wrong", nil)
	}

	return c.JSON(eventhive.AuthResponse{
		User: account.Profile(),
		Tokens: eventhive.TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
		},
	})
}

func (b *Backend) bearerAccount(c *fiber.Ctx) (*Account, error) {
	header := c.Get(fiber.HeaderAuthorization)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, errors.New("missing bearer token", errors.CategoryAuth)
	}

	claims, err := b.mint.Validate(parts[1], tokenTypeAccess)
	if err != nil {
		return nil, err
	}

	return b.findByID(c.UserContext(), claims.UID)
}

func (b *Backend) findByID(ctx context.Context, id string) (*Account, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, "invalid subject")
	}

	account := &Account{}
	if err := b.db.NewSelect().
		Model(account).
		Where("?TableAlias.id = ?", uid).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, err
	}
	return account, nil
}

// issueOTP mints a six digit code bound to email.
func (b *Backend) issueOTP(email string) string {
	u := uuid.New()
	code := fmt.Sprintf("%06d", binary.BigEndian.Uint32(u[0:4])%1_000_000)

	b.mu.Lock()
	b.otps[normalizeEmail(email)] = code
	b.mu.Unlock()

	return code
}

func normalizePhone(phone string) string {
	if phone == "" {
		return ""
	}
	num, err := phonenumbers.Parse(phone, "ZZ")
	if err != nil {
		return phone
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
