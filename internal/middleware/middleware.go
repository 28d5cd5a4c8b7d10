// Package middleware provides the edge route guard: fast routing decisions
// made from the auth_status cookie alone, without token validation. Actual
// authentication still happens at the API; this only decides which page a
// request should land on.
package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/syauth/syauth-go/internal/cookie"
	"github.com/syauth/syauth-go/internal/log"
	"github.com/syauth/syauth-go/internal/urlutil"
)

// redirectLoopThreshold is the number of consecutive guard redirects after
// which the guard fails open instead of bouncing the user forever.
const redirectLoopThreshold = 5

// Options configures the route guard
type Options struct {
	// ProtectedRoutes are path prefixes that require authentication.
	ProtectedRoutes []string

	// AuthRoutes are path prefixes (login, register pages) that
	// authenticated users are bounced away from.
	AuthRoutes []string

	// LoginURL receives unauthenticated users. Defaults to "/auth/login".
	LoginURL string

	// DefaultProtectedRoute receives authenticated users who hit an auth
	// route. Defaults to "/dashboard".
	DefaultProtectedRoute string

	// CallbackPath is always allowed through regardless of auth state.
	// Defaults to "/auth/callback".
	CallbackPath string

	// AuthCookieName is the cookie consulted for the routing decision.
	// Defaults to the auth_status mirror.
	AuthCookieName string
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.LoginURL == "" {
		opts.LoginURL = "/auth/login"
	}
	if opts.DefaultProtectedRoute == "" {
		opts.DefaultProtectedRoute = "/dashboard"
	}
	if opts.CallbackPath == "" {
		opts.CallbackPath = "/auth/callback"
	}
	if opts.AuthCookieName == "" {
		opts.AuthCookieName = cookie.AuthStatus
	}
	return opts
}

// WithAuth returns a middleware enforcing the route guard contract:
// unauthenticated requests to protected routes are redirected to the login
// URL with a return_to parameter, authenticated requests to auth routes are
// redirected to the default protected route, and the callback path always
// passes through. A counter cookie caps consecutive redirects so a
// misconfigured cookie domain cannot trap the user in a loop.
func WithAuth(options Options) func(http.Handler) http.Handler {
	opts := options.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path

			if path == opts.CallbackPath {
				next.ServeHTTP(w, r)
				return
			}

			authenticated := cookie.Get(r, opts.AuthCookieName) == "true"

			if !authenticated && matchesAny(path, opts.ProtectedRoutes) {
				redirectOrFailOpen(w, r, next, loginTarget(opts.LoginURL, path))
				return
			}

			if authenticated && matchesAny(path, opts.AuthRoutes) {
				// Honor a requested destination when it passes the
				// open-redirect check
				target := urlutil.SafeRedirect(r.URL.Query().Get("return_to"), opts.DefaultProtectedRoute)
				redirectOrFailOpen(w, r, next, target)
				return
			}

			clearLoopCounter(w, r)
			next.ServeHTTP(w, r)
		})
	}
}

// loginTarget appends the requested path as return_to so login can resume
// where the user was headed. Unsafe paths are simply omitted.
func loginTarget(loginURL, path string) string {
	if !urlutil.IsValidRedirect(path) {
		return loginURL
	}
	separator := "?"
	if strings.Contains(loginURL, "?") {
		separator = "&"
	}
	return loginURL + separator + "return_to=" + url.QueryEscape(path)
}

// redirectOrFailOpen issues the guard redirect unless the loop counter says
// we have been here too many times, in which case the request passes
// through so the user is never stuck.
func redirectOrFailOpen(w http.ResponseWriter, r *http.Request, next http.Handler, target string) {
	count := 0
	if raw := cookie.Get(r, cookie.RedirectCount); raw != "" {
		count, _ = strconv.Atoi(raw)
	}

	if count >= redirectLoopThreshold {
		log.LogWarnWithFields("middleware", "Redirect loop detected, failing open", map[string]any{
			"path":   r.URL.Path,
			"target": target,
		})
		cookie.Clear(w, cookie.RedirectCount)
		next.ServeHTTP(w, r)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookie.RedirectCount,
		Value:    strconv.Itoa(count + 1),
		Path:     "/",
		MaxAge:   30,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func clearLoopCounter(w http.ResponseWriter, r *http.Request) {
	if cookie.Has(r, cookie.RedirectCount) {
		cookie.Clear(w, cookie.RedirectCount)
	}
}

// matchesAny reports whether path falls under any of the given prefixes,
// on segment boundaries ("/dash" does not match "/dashboard").
func matchesAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix {
			return true
		}
		if strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}
