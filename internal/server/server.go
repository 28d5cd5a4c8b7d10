// Package server mounts the auth flow over HTTP: login initiation, the
// OAuth callback, logout, and a session validation endpoint for frontends.
package server

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/syauth/syauth-go/internal/apierror"
	"github.com/syauth/syauth-go/internal/authclient"
	"github.com/syauth/syauth-go/internal/cookie"
	"github.com/syauth/syauth-go/internal/json"
	"github.com/syauth/syauth-go/internal/log"
)

// Server exposes the auth client over HTTP routes
type Server struct {
	client *authclient.Client

	// errorPath receives failed callback redirects, carrying a generic
	// error message as a query parameter.
	errorPath string
}

// New creates an HTTP server over the given auth client
func New(client *authclient.Client) *Server {
	return &Server{
		client:    client,
		errorPath: "/auth/error",
	}
}

// Routes returns the auth route tree, ready to mount under /auth
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/login", s.handleLogin)
	r.Get("/callback", s.handleCallback)
	r.Post("/logout", s.handleLogout)
	r.Get("/validate", s.handleValidate)
	return r
}

// handleLogin starts the authorization code flow. The optional return_to
// query parameter picks the post-login landing page.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := s.client.LoginWithRedirect(w, r, ""); err != nil {
		var configErr *apierror.ConfigError
		if errors.As(err, &configErr) {
			log.LogError("Login initiation misconfigured: %v", err)
			json.WriteInternalServerError(w, "authentication is not configured")
			return
		}
		log.LogError("Login initiation failed: %v", err)
		json.WriteInternalServerError(w, apierror.GenericAuthFailed)
	}
}

// handleCallback finishes the flow and navigates the browser onward:
// to the session's redirect target on success, to the error page on
// failure. Failure details go to logs, never to the query string.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	_, redirectTo, err := s.client.HandleOAuthCallback(w, r)
	if err != nil {
		var protocolErr *apierror.ProtocolError
		if errors.As(err, &protocolErr) {
			log.LogWarnWithFields("server", "OAuth callback rejected", map[string]any{
				"reason": protocolErr.Detail(),
			})
		} else {
			log.LogError("OAuth callback failed: %v", err)
		}
		target := s.errorPath + "?error=" + url.QueryEscape(apierror.GenericAuthFailed)
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	http.Redirect(w, r, redirectTo, http.StatusFound)
}

// handleLogout tears down the session and reports success regardless of
// whether the server-side revocation worked.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.client.Logout(r.Context())
	s.client.SyncAuthStatusCookie(w, r)
	cookie.Clear(w, cookie.OAuthSession)
	json.Write(w, map[string]string{"message": "logged out"})
}

// validateResponse is the shape returned by the validate endpoint
type validateResponse struct {
	Authenticated bool `json:"authenticated"`
	User          any  `json:"user,omitempty"`
}

// handleValidate reports whether the current session holds a usable token.
// The cached profile is returned when available; this endpoint never
// triggers a network fetch on its own.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accessToken, err := s.client.GetValidToken(ctx)
	if err != nil || accessToken == "" {
		s.client.SyncAuthStatusCookie(w, r)
		json.WriteResponse(w, http.StatusUnauthorized, validateResponse{Authenticated: false})
		return
	}

	s.client.SyncAuthStatusCookie(w, r)
	resp := validateResponse{Authenticated: true}
	if user := s.client.Tokens().User(ctx); user != nil {
		resp.User = user
	}
	json.Write(w, resp)
}
