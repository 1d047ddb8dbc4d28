package eventhive

import (
	"net/http"
	"time"

	"github.com/goliatone/go-router"
)

// RouteGuard applies guard decisions as go-router middleware for
// server-rendered consumers of the SDK. Redirect targets and the rejected
// route cookie come from the Config.
type RouteGuard struct {
	sessions *SessionManager
	cfg      Config
	Logger   Logger
}

// NewRouteGuard wires the session manager into navigable routes.
func NewRouteGuard(sessions *SessionManager, cfg Config) *RouteGuard {
	return &RouteGuard{
		sessions: sessions,
		cfg:      cfg,
		Logger:   defLogger{},
	}
}

// WithLogger overrides the guard logger.
func (g *RouteGuard) WithLogger(l Logger) *RouteGuard {
	if l != nil {
		g.Logger = l
	}
	return g
}

// Middleware evaluates the requirement on every request. Rendered routes get
// the session and profile injected into the request context.
func (g *RouteGuard) Middleware(requirement RouteRequirement) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			session := g.sessions.Snapshot()
			if session.State == SessionInitializing {
				session = g.sessions.Boot()
			}

			decision := Decide(requirement, session, ctx.Path())

			switch decision.Action {
			case GuardRedirectSignIn:
				g.Logger.Info("redirecting anonymous visitor to sign-in",
					"path", ctx.Path())
				g.SetRedirect(ctx)
				return ctx.Redirect(g.cfg.GetSignInPath(), redirectStatus(ctx))

			case GuardRedirectDashboard:
				g.Logger.Info("redirecting to role dashboard",
					"path", ctx.Path(), "target", decision.RedirectTo)
				return ctx.Redirect(decision.RedirectTo, redirectStatus(ctx))

			default:
				c := WithSessionContext(ctx.Context(), session)
				if session.User != nil {
					c = WithContext(c, session.User)
				}
				ctx.SetContext(c)
				return hf(ctx)
			}
		}
	}
}

// SetRedirect remembers the rejected route so sign-in can return to it.
func (g *RouteGuard) SetRedirect(ctx router.Context) {
	rejectedRoute := g.cfg.GetRejectedRouteKey()

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// GetRedirect pops the remembered route, falling back to def.
func (g *RouteGuard) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := g.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		if len(def) > 0 {
			return def[0]
		}
		return g.cfg.GetRejectedRouteDefault()
	}
	g.cookieDel(ctx, rejectedRoute)
	return r
}

// GetRedirectOrDefault pops the remembered route, then the referer, then the
// configured default.
func (g *RouteGuard) GetRedirectOrDefault(ctx router.Context) string {
	rejectedRoute := g.cfg.GetRejectedRouteKey()
	refererHeader := string(ctx.Referer())

	r := ctx.Cookies(rejectedRoute, refererHeader)
	if r == "" {
		r = g.cfg.GetRejectedRouteDefault()
	}
	g.cookieDel(ctx, rejectedRoute)
	return r
}

func (g *RouteGuard) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func redirectStatus(c router.Context) int {
	if c.Method() == string(router.GET) {
		return http.StatusFound
	}
	return http.StatusSeeOther
}
