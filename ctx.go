package eventhive

import (
	"context"
)

var userCtxKey = &contextKey{"user"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithContext sets the UserProfile in the given context
func WithContext(r context.Context, user *UserProfile) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*UserProfile, bool) {
	raw, ok := ctx.Value(userCtxKey).(*UserProfile)
	return raw, ok
}

// WithSessionContext sets the session snapshot in the given context
func WithSessionContext(r context.Context, session Session) context.Context {
	return context.WithValue(r, sessionCtxKey, session)
}

// SessionFromContext finds the session snapshot from the context.
func SessionFromContext(ctx context.Context) (Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(Session)
	return raw, ok
}

// Can is a convenience permission check against the context session.
func Can(ctx context.Context, permission string) bool {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return false
	}
	return session.HasPermission(permission)
}
