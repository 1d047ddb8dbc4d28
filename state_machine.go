package eventhive

import (
	"github.com/goliatone/go-errors"
)

const textCodeInvalidSessionTransition = "INVALID_SESSION_TRANSITION"

// ErrInvalidSessionTransition is the panic value raised when a requested
// session state change is not allowed. The manager owns every transition, so
// observing it means a programming error, not a user-facing failure.
var ErrInvalidSessionTransition = errors.New("invalid session state transition", errors.CategoryConflict).
	WithTextCode(textCodeInvalidSessionTransition).
	WithCode(errors.CodeConflict)

// SessionState identifies where the session is in its lifecycle.
type SessionState string

const (
	// SessionInitializing is the boot state, before the persisted session
	// has been consulted.
	SessionInitializing SessionState = "initializing"
	// SessionAnonymous means nobody is signed in.
	SessionAnonymous SessionState = "anonymous"
	// SessionAuthenticated means a cached profile is active.
	SessionAuthenticated SessionState = "authenticated"
)

// sessionTransitions is the allowed-transition table. Authenticated maps to
// itself so profile updates stay in state.
var sessionTransitions = map[SessionState]map[SessionState]struct{}{
	SessionInitializing: {
		SessionAnonymous:     {},
		SessionAuthenticated: {},
	},
	SessionAnonymous: {
		SessionAnonymous:     {},
		SessionAuthenticated: {},
	},
	SessionAuthenticated: {
		SessionAnonymous:     {},
		SessionAuthenticated: {},
	},
}

func canTransition(from, to SessionState) bool {
	if allowed, ok := sessionTransitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}
