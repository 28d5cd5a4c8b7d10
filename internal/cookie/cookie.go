package cookie

import (
	"net/http"
	"time"

	"github.com/syauth/syauth-go/internal/envutil"
)

// Cookie names used across the SDK. Names and semantics are part of the
// public contract: edge middleware and server handlers both read them.
const (
	// AuthStatus mirrors token presence. Non-sensitive, readable by
	// scripts, consumed by edge middleware for fast routing decisions.
	AuthStatus = "auth_status"

	// Client-side PKCE session triple.
	CodeVerifier = "syauth_code_verifier"
	State        = "syauth_state"
	RedirectTo   = "syauth_redirect_to"

	// PKCESessionID points at a server-held PKCE session.
	PKCESessionID = "syauth_pkce_session_id"

	// OAuthSession holds the sealed server-side session blob.
	OAuthSession = "syauth_oauth_session"

	// RedirectCount is the middleware redirect loop guard counter.
	RedirectCount = "redirect_count"
)

// SessionTTL bounds the PKCE session cookies. A login attempt that takes
// longer than this has to start over.
const SessionTTL = 10 * time.Minute

// AuthStatusTTL bounds the auth_status mirror cookie.
const AuthStatusTTL = time.Hour

// SetPKCE sets a PKCE session cookie. These must stay readable by the page
// (not HttpOnly) and survive the authorization redirect (SameSite=Lax).
func SetPKCE(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: false,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionTTL.Seconds()),
	})
}

// SetSealed sets the server-side sealed session cookie. Unlike the PKCE
// triple it is HttpOnly: only the server ever reads it.
func SetSealed(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     OAuthSession,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionTTL.Seconds()),
	})
}

// SetAuthStatus synchronizes the auth_status mirror with token presence
func SetAuthStatus(w http.ResponseWriter, authenticated bool) {
	if !authenticated {
		Clear(w, AuthStatus)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AuthStatus,
		Value:    "true",
		Path:     "/",
		HttpOnly: false,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(AuthStatusTTL.Seconds()),
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// Get retrieves a cookie value from the request. Returns the empty string
// when the cookie is absent.
func Get(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// Has reports whether the request carries a non-empty cookie
func Has(r *http.Request, name string) bool {
	return Get(r, name) != ""
}
