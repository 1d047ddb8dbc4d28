package eventhive

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// Session is an immutable snapshot of the current authentication state.
// Guards and views read this; only the SessionManager writes it.
type Session struct {
	State           SessionState
	User            *UserProfile
	IsAuthenticated bool
	IsLoading       bool
	UserType        UserType
}

// HasRole checks if the signed-in account has the given type
func (s Session) HasRole(t UserType) bool {
	return s.IsAuthenticated && s.UserType == t
}

// HasPermission checks the cached permission set. False whenever nobody is
// signed in or the permission is absent.
func (s Session) HasPermission(p string) bool {
	if !s.IsAuthenticated {
		return false
	}
	return s.User.HasPermission(p)
}

// ActionResult is the discriminated outcome of a session action. Actions
// never raise; failures carry a normalized rich error.
type ActionResult struct {
	Success bool
	Message string
	Err     *errors.Error
}

// AuthResult is an ActionResult that also carries the affected profile.
type AuthResult struct {
	ActionResult
	User *UserProfile
}

// RegisterResult is an ActionResult carrying the registration receipt.
type RegisterResult struct {
	ActionResult
	Receipt *RegistrationReceipt
}

func failureResult(err error) ActionResult {
	richErr := NormalizeError(err)
	return ActionResult{
		Success: false,
		Message: richErr.Message,
		Err:     richErr,
	}
}

func successResult(message string) ActionResult {
	return ActionResult{Success: true, Message: message}
}

// SessionManager is the single source of truth for who is signed in and with
// what role. State mutations are serialized behind a mutex; network calls run
// outside of it so reads never block on the API.
type SessionManager struct {
	api   AuthAPI
	store TokenStore

	mu      sync.Mutex
	state   SessionState
	user    *UserProfile
	loading bool

	logger Logger
	clock  func() time.Time
	sink   ActivitySink
	debug  bool
}

type SessionOption func(*SessionManager)

// WithSessionLogger sets the manager's logger.
func WithSessionLogger(l Logger) SessionOption {
	return func(m *SessionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithSessionActivitySink sets the ActivitySink used to publish auth events.
func WithSessionActivitySink(sink ActivitySink) SessionOption {
	return func(m *SessionManager) {
		m.sink = normalizeActivitySink(sink)
	}
}

// WithSessionDebug enables verbose payload logging.
func WithSessionDebug(debug bool) SessionOption {
	return func(m *SessionManager) {
		m.debug = debug
	}
}

// transportProvider lets the manager register its forced-logout hook when the
// API client exposes its pipeline.
type transportProvider interface {
	Transport() *Transport
}

// NewSessionManager creates a manager in the initializing state. Call Boot to
// resolve the persisted session. When api exposes its Transport, the manager
// registers itself to observe unrecoverable refresh failures.
func NewSessionManager(api AuthAPI, store TokenStore, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		api:    api,
		store:  store,
		state:  SessionInitializing,
		logger: defLogger{},
		clock:  time.Now,
		sink:   noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if tp, ok := api.(transportProvider); ok && tp.Transport() != nil {
		tp.Transport().SetSessionExpiredHandler(m.HandleSessionExpired)
	}

	return m
}

// Boot resolves the persisted session. When both tokens and a cached profile
// are present the session becomes authenticated optimistically, without a
// verification round trip; the first privileged request corrects a stale
// token through the refresh path. Boot is idempotent after the first call.
func (m *SessionManager) Boot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != SessionInitializing {
		return m.snapshotLocked()
	}

	tokens, user := m.store.Load()
	if tokens == nil || tokens.AccessToken == "" || user == nil {
		m.setStateLocked(SessionAnonymous, nil)
		return m.snapshotLocked()
	}

	if claims, err := PeekAccessClaims(tokens.AccessToken); err == nil {
		if claims.IsExpired(m.clock()) {
			m.logger.Debug("cached access token expired, first request will refresh",
				"expires", claims.Expires())
		}
	}

	m.setStateLocked(SessionAuthenticated, user)
	return m.snapshotLocked()
}

// Snapshot returns the current session state.
func (m *SessionManager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// HasRole checks if the signed-in account has the given type
func (m *SessionManager) HasRole(t UserType) bool {
	return m.Snapshot().HasRole(t)
}

// HasPermission checks the cached permission set
func (m *SessionManager) HasPermission(p string) bool {
	return m.Snapshot().HasPermission(p)
}

// Login authenticates with email and password. On success tokens and profile
// are persisted and the session becomes authenticated. On failure the session
// returns to anonymous and the result carries the normalized error.
func (m *SessionManager) Login(ctx context.Context, creds Credentials) AuthResult {
	if err := creds.Validate(); err != nil {
		return AuthResult{ActionResult: failureResult(
			errors.Wrap(err, errors.CategoryValidation, "invalid credentials payload").
				WithCode(errors.CodeBadRequest),
		)}
	}

	m.setLoading(true)
	defer m.setLoading(false)

	if m.debug {
		m.logger.Debug("login attempt", "payload", print.MaybePrettyJSON(map[string]any{
			"email":    creds.Email,
			"userType": creds.UserType,
		}))
	}

	resp, err := m.api.Login(ctx, creds)
	if err != nil {
		m.becomeAnonymous()
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Metadata:  map[string]any{"email": creds.Email, "error": err.Error()},
		})
		return AuthResult{ActionResult: failureResult(err)}
	}

	return m.establishSession(ctx, resp, ActivityEventLoginSuccess)
}

// Register creates an account of the given type. It never authenticates the
// caller; activation happens through VerifyOTP. An unsupported type fails
// without touching the network.
func (m *SessionManager) Register(ctx context.Context, form RegistrationForm, userType UserType) RegisterResult {
	if !userType.IsValid() {
		return RegisterResult{ActionResult: failureResult(
			ErrInvalidUserType.WithMetadata(map[string]any{"userType": string(userType)}),
		)}
	}

	if err := form.Validate(); err != nil {
		return RegisterResult{ActionResult: failureResult(
			errors.Wrap(err, errors.CategoryValidation, "invalid registration payload").
				WithCode(errors.CodeBadRequest).
				WithMetadata(map[string]any{"errors": FormatValidationErrorToMap(err)}),
		)}
	}

	m.setLoading(true)
	defer m.setLoading(false)

	var receipt *RegistrationReceipt
	var err error

	switch userType {
	case UserTypeUser:
		receipt, err = m.api.RegisterUser(ctx, form)
	case UserTypeOrganization:
		receipt, err = m.api.RegisterOrganization(ctx, form)
	case UserTypeAdmin:
		receipt, err = m.api.RegisterAdmin(ctx, form)
	}

	if err != nil {
		return RegisterResult{ActionResult: failureResult(err)}
	}

	return RegisterResult{
		ActionResult: successResult("registration created, verification pending"),
		Receipt:      receipt,
	}
}

// VerifyOTP exchanges a one-time code for a token pair. Success behaves
// exactly like a successful login.
func (m *SessionManager) VerifyOTP(ctx context.Context, req OTPRequest) AuthResult {
	if err := req.Validate(); err != nil {
		return AuthResult{ActionResult: failureResult(
			errors.Wrap(err, errors.CategoryValidation, "invalid verification payload").
				WithCode(errors.CodeBadRequest),
		)}
	}

	m.setLoading(true)
	defer m.setLoading(false)

	resp, err := m.api.VerifyOTP(ctx, req)
	if err != nil {
		m.becomeAnonymous()
		return AuthResult{ActionResult: failureResult(err)}
	}

	return m.establishSession(ctx, resp, ActivityEventOTPVerified)
}

// ForgotPassword requests a reset email. It reports the outcome and never
// mutates session state.
func (m *SessionManager) ForgotPassword(ctx context.Context, email string) ActionResult {
	req := ForgotPasswordRequest{Email: email}
	if err := req.Validate(); err != nil {
		return failureResult(
			errors.Wrap(err, errors.CategoryValidation, "invalid email").
				WithCode(errors.CodeBadRequest),
		)
	}

	if err := m.api.ForgotPassword(ctx, email); err != nil {
		return failureResult(err)
	}
	return successResult("password reset email sent")
}

// ResetPassword finalizes a password reset. It reports the outcome and never
// mutates session state.
func (m *SessionManager) ResetPassword(ctx context.Context, req ResetPasswordRequest) ActionResult {
	if err := req.Validate(); err != nil {
		return failureResult(
			errors.Wrap(err, errors.CategoryValidation, "invalid reset payload").
				WithCode(errors.CodeBadRequest).
				WithMetadata(map[string]any{"errors": FormatValidationErrorToMap(err)}),
		)
	}

	if err := m.api.ResetPassword(ctx, req); err != nil {
		return failureResult(err)
	}
	return successResult("password updated")
}

// Logout notifies the backend best-effort, then unconditionally clears the
// store and resets the session. Calling it while anonymous is a no-op that
// still clears (already empty) storage.
func (m *SessionManager) Logout(ctx context.Context) ActionResult {
	if err := m.api.Logout(ctx); err != nil {
		// Server-side invalidation is best effort; local teardown proceeds.
		m.logger.Warn("logout notification failed", "error", err)
	}

	if err := m.store.Clear(); err != nil {
		m.logger.Error("failed to clear session store", "error", err)
	}

	var userID string
	m.mu.Lock()
	if m.user != nil {
		userID = m.user.ID
	}
	m.setStateLocked(SessionAnonymous, nil)
	m.mu.Unlock()

	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLogout,
		UserID:    userID,
	})

	return successResult("signed out")
}

// UpdateUser merges the patch into the cached profile and re-persists it.
// No network call is made; the authoritative record is updated elsewhere.
func (m *SessionManager) UpdateUser(patch ProfilePatch) AuthResult {
	m.mu.Lock()

	if m.state != SessionAuthenticated || m.user == nil {
		m.mu.Unlock()
		return AuthResult{ActionResult: failureResult(
			errors.New("no authenticated user to update", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized),
		)}
	}

	merged := patch.Apply(m.user)
	m.user = merged
	m.mu.Unlock()

	if tokens, _ := m.store.Load(); tokens != nil {
		if err := m.store.Save(*tokens, merged); err != nil {
			m.logger.Error("failed to persist updated profile", "error", err)
		}
	}

	m.recordActivity(context.Background(), ActivityEvent{
		EventType: ActivityEventProfileUpdated,
		UserID:    merged.ID,
		UserType:  merged.UserType,
	})

	return AuthResult{
		ActionResult: successResult("profile updated"),
		User:         merged.Clone(),
	}
}

// HandleSessionExpired resets the session after an unrecoverable refresh
// failure. The transport has already cleared the store by the time this runs.
func (m *SessionManager) HandleSessionExpired() {
	m.mu.Lock()
	var userID string
	if m.user != nil {
		userID = m.user.ID
	}
	alreadyAnonymous := m.state == SessionAnonymous
	m.setStateLocked(SessionAnonymous, nil)
	m.mu.Unlock()

	if alreadyAnonymous {
		return
	}

	m.logger.Info("session expired, forcing sign out", "user", userID)
	m.recordActivity(context.Background(), ActivityEvent{
		EventType: ActivityEventSessionExpired,
		UserID:    userID,
	})
}

func (m *SessionManager) establishSession(ctx context.Context, resp *AuthResponse, event ActivityEventType) AuthResult {
	if resp == nil || resp.User == nil || resp.Tokens.AccessToken == "" {
		m.becomeAnonymous()
		return AuthResult{ActionResult: failureResult(
			errors.New("authentication response missing user or tokens", errors.CategoryInternal).
				WithCode(errors.CodeInternal),
		)}
	}

	if err := m.store.Save(resp.Tokens, resp.User); err != nil {
		m.logger.Error("failed to persist session", "error", err)
	}

	m.mu.Lock()
	m.setStateLocked(SessionAuthenticated, resp.User.Clone())
	m.mu.Unlock()

	m.recordActivity(ctx, ActivityEvent{
		EventType: event,
		UserID:    resp.User.ID,
		UserType:  resp.User.UserType,
	})

	return AuthResult{
		ActionResult: successResult("authenticated"),
		User:         resp.User.Clone(),
	}
}

func (m *SessionManager) becomeAnonymous() {
	m.mu.Lock()
	m.setStateLocked(SessionAnonymous, nil)
	m.mu.Unlock()
}

func (m *SessionManager) setStateLocked(next SessionState, user *UserProfile) {
	if !canTransition(m.state, next) {
		// The manager owns every transition, so this is a programming error.
		panic(ErrInvalidSessionTransition.WithMetadata(map[string]any{
			"from": string(m.state),
			"to":   string(next),
		}))
	}
	m.state = next
	m.user = user
}

func (m *SessionManager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

func (m *SessionManager) snapshotLocked() Session {
	s := Session{
		State:     m.state,
		IsLoading: m.loading,
	}
	if m.state == SessionAuthenticated && m.user != nil {
		s.IsAuthenticated = true
		s.User = m.user.Clone()
		s.UserType = m.user.UserType
	}
	return s
}

func (m *SessionManager) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.clock()
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	sink := normalizeActivitySink(m.sink)
	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}
