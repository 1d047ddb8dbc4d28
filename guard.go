package eventhive

import "slices"

// RouteRequirement is the declared auth/role constraint attached to a
// navigable view. It is consumed only by guard decisions, never persisted.
type RouteRequirement struct {
	RequireAuth  bool
	AllowedRoles []UserType
}

// GuardAction is the kind of decision a guard evaluation produces.
type GuardAction string

const (
	// GuardShowLoading defers the decision while the session initializes,
	// avoiding a redirect flicker.
	GuardShowLoading GuardAction = "show-loading"
	// GuardRender lets the requested view through unchanged.
	GuardRender GuardAction = "render"
	// GuardRedirectSignIn sends an anonymous visitor to the sign-in page.
	GuardRedirectSignIn GuardAction = "redirect-sign-in"
	// GuardRedirectDashboard sends a signed-in account to its canonical
	// dashboard.
	GuardRedirectDashboard GuardAction = "redirect-dashboard"
)

// GuardDecision is the outcome of evaluating a route against a session.
type GuardDecision struct {
	Action GuardAction
	// RedirectTo is set for the redirect actions.
	RedirectTo string
	// ReturnTo preserves the originally requested location so sign-in can
	// come back to it.
	ReturnTo string
}

// anonOnlyPaths are auth pages a signed-in account must not reach.
var anonOnlyPaths = []string{SignInPath, SignUpPath}

// Decide evaluates a route requirement against a session snapshot. It is a
// pure function: identical inputs always produce the identical decision.
// Rules run in order, first match wins:
//
//  1. initializing session: show a neutral loading state
//  2. auth required, anonymous: redirect to sign-in, preserving currentPath
//  3. auth required, authenticated, role excluded: redirect to the account's
//     canonical dashboard
//  4. authenticated on an anonymous-only page: redirect to the dashboard
//  5. otherwise: render
func Decide(req RouteRequirement, session Session, currentPath string) GuardDecision {
	if session.State == SessionInitializing {
		return GuardDecision{Action: GuardShowLoading}
	}

	if req.RequireAuth && !session.IsAuthenticated {
		return GuardDecision{
			Action:     GuardRedirectSignIn,
			RedirectTo: SignInPath,
			ReturnTo:   currentPath,
		}
	}

	if req.RequireAuth && session.IsAuthenticated && len(req.AllowedRoles) > 0 {
		if !slices.Contains(req.AllowedRoles, session.UserType) {
			return GuardDecision{
				Action:     GuardRedirectDashboard,
				RedirectTo: session.UserType.DashboardPath(),
			}
		}
	}

	if session.IsAuthenticated && slices.Contains(anonOnlyPaths, currentPath) {
		return GuardDecision{
			Action:     GuardRedirectDashboard,
			RedirectTo: session.UserType.DashboardPath(),
		}
	}

	return GuardDecision{Action: GuardRender}
}
