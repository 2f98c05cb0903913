// Package routeguard adapts route authorization decisions to go-router
// middleware. It evaluates the current session snapshot against a route's
// requirement and either lets the request through or redirects the browser
// to the appropriate page, remembering the rejected route in a cookie so a
// successful login can send the user back.
package routeguard

import (
	"net/http"
	"time"

	"github.com/goliatone/go-router"

	authclient "github.com/goliatone/go-auth-client"
)

// DefaultRedirectKey names the cookie that remembers the route a visitor
// was denied so they can be returned there after logging in.
const DefaultRedirectKey = "rejected_route"

// Config drives the guard middleware.
type Config struct {
	// Session supplies snapshots and, when Hydrate is set, restores
	// persisted credentials before the first decision.
	Session *authclient.Session

	// Requirement is the access rule for the guarded routes.
	Requirement authclient.Requirement

	// Routes holds the redirect targets. Zero value falls back to
	// authclient.DefaultGuardRoutes.
	Routes authclient.GuardRoutes

	// RedirectKey overrides the rejected-route cookie name.
	RedirectKey string

	// Hydrate makes the guard restore a persisted session synchronously
	// when the session has not settled yet, instead of bouncing the
	// request to the login page.
	Hydrate bool

	Logger authclient.Logger
}

func (c Config) redirectKey() string {
	if c.RedirectKey != "" {
		return c.RedirectKey
	}
	return DefaultRedirectKey
}

// New builds the guard middleware for a set of routes sharing one
// requirement.
func New(cfg Config) router.MiddlewareFunc {
	routes := cfg.Routes
	if routes.Login == "" {
		routes = authclient.DefaultGuardRoutes()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = authclient.DefaultLogger()
	}

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			snap := cfg.Session.Snapshot()

			if snap.IsLoading() && cfg.Hydrate {
				snap = cfg.Session.Hydrate(ctx.Context())
			}

			decision := authclient.EvaluateRoute(snap, cfg.Requirement, ctx.OriginalURL(), routes)

			switch decision.Kind {
			case authclient.DecisionRender:
				return ctx.Next()
			case authclient.DecisionShowLoading, authclient.DecisionRedirectLogin:
				logger.Debug("guard rejected %s, sending to login", ctx.OriginalURL())
				SetRedirect(ctx, cfg.redirectKey())
				return redirect(ctx, routes.Login)
			default:
				logger.Debug("guard rejected %s, sending to %s", ctx.OriginalURL(), decision.Target)
				return redirect(ctx, decision.Target)
			}
		}
	}
}

// SetRedirect records the current route in the rejected-route cookie.
func SetRedirect(ctx router.Context, key string) {
	ctx.Cookie(&router.Cookie{
		Name:     key,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
	})
}

// GetRedirect consumes the rejected-route cookie, returning def when no
// route was recorded. Login handlers use it to send the user back to the
// page they originally asked for.
func GetRedirect(ctx router.Context, key, def string) string {
	r := ctx.Cookies(key)
	if r == "" {
		return def
	}
	clearCookie(ctx, key)
	return r
}

func redirect(ctx router.Context, target string) error {
	status := http.StatusSeeOther
	if ctx.Method() == http.MethodGet {
		status = http.StatusFound
	}
	return ctx.Redirect(target, status)
}

func clearCookie(ctx router.Context, name string) {
	ctx.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
	})
}
