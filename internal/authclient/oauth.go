package authclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/syauth/syauth-go/internal/apierror"
	"github.com/syauth/syauth-go/internal/cookie"
	"github.com/syauth/syauth-go/internal/log"
	"github.com/syauth/syauth-go/internal/pkce"
	"github.com/syauth/syauth-go/internal/session"
	"github.com/syauth/syauth-go/internal/token"
	"github.com/syauth/syauth-go/internal/urlutil"
	"golang.org/x/oauth2"
)

// LoginWithRedirect initiates the authorization code flow: generates PKCE
// parameters, persists the session, and writes a 302 to the authorization
// endpoint. redirectTo is where the user lands after the flow completes; an
// empty value falls back to the request's validated return_to parameter,
// then the configured default.
func (c *Client) LoginWithRedirect(w http.ResponseWriter, r *http.Request, redirectTo string) error {
	if c.config.RedirectURI == "" {
		return apierror.NewConfigError("redirectUri")
	}
	if c.config.AuthorizationEndpoint == "" {
		return apierror.NewConfigError("authorizationEndpoint")
	}

	if redirectTo == "" {
		redirectTo = r.URL.Query().Get("return_to")
	}
	redirectTo = urlutil.SafeRedirect(redirectTo, c.config.DefaultRedirectTo)

	state, err := pkce.GenerateState()
	if err != nil {
		return fmt.Errorf("generating state: %w", err)
	}

	var authURL string
	switch {
	case c.config.UseRemotePKCE:
		// Verifier custody stays with the backend; we only hold a pointer.
		remote, err := c.InitServerPKCE(r.Context())
		if err != nil {
			return err
		}
		c.clientSessions.StoreSessionID(w, remote.SessionID, state, redirectTo)
		authURL = c.oauth.AuthCodeURL(state,
			oauth2.SetAuthURLParam("code_challenge", remote.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", remote.CodeChallengeMethod),
			oauth2.SetAuthURLParam("pkce_session_id", remote.SessionID),
		)

	default:
		pair, err := pkce.GeneratePair()
		if err != nil {
			return fmt.Errorf("generating pkce pair: %w", err)
		}

		if c.serverSessions != nil {
			if err := c.serverSessions.Create(w, session.Data{
				State:        state,
				CodeVerifier: pair.Verifier,
				RedirectTo:   redirectTo,
			}); err != nil {
				return fmt.Errorf("creating oauth session: %w", err)
			}
		} else {
			c.clientSessions.Store(w, pair.Verifier, state, redirectTo)
		}

		authURL = c.oauth.AuthCodeURL(state,
			oauth2.SetAuthURLParam("code_challenge", pair.Challenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}

	log.LogInfoWithFields("authclient", "Initiating authorization code flow", map[string]any{
		"redirect_to": redirectTo,
	})

	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// HandleOAuthCallback processes the authorization server's redirect:
// validates state against the persisted session, exchanges the code for
// tokens, persists them, and fetches the profile.
//
// Session artifacts are cleared before any error propagates, and a
// processing guard ensures a duplicated callback invocation (UI re-render,
// fast refresh) exchanges the code/state pair at most once. Returns the
// profile and the validated post-login redirect path.
func (c *Client) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) (*token.User, string, error) {
	c.callbackMu.Lock()
	if c.callbackProcessing {
		c.callbackMu.Unlock()
		return nil, "", apierror.NewProtocolError("callback already being processed")
	}
	c.callbackProcessing = true
	c.callbackMu.Unlock()

	defer func() {
		c.callbackMu.Lock()
		c.callbackProcessing = false
		c.callbackMu.Unlock()
	}()

	query := r.URL.Query()

	clearSessions := func() {
		c.clientSessions.Clear(w)
		if c.serverSessions != nil {
			c.serverSessions.Clear(w)
		}
	}

	if errParam := query.Get("error"); errParam != "" {
		clearSessions()
		detail := query.Get("error_description")
		if detail == "" {
			detail = errParam
		}
		return nil, "", apierror.NewProtocolError("authorization server error: " + detail)
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		clearSessions()
		return nil, "", apierror.NewProtocolError("missing code or state parameter")
	}

	var verifier, sessionID, redirectTo string

	// A pkce_session_id pointer means the backend holds the verifier; that
	// strategy wins over a sealed server session even when both are
	// configured.
	if c.serverSessions != nil && !cookie.Has(r, cookie.PKCESessionID) {
		// Validate consumes the session; mismatches burn it.
		data := c.serverSessions.Validate(w, r, state)
		if data == nil {
			clearSessions()
			return nil, "", apierror.NewProtocolError("invalid or expired oauth session")
		}
		verifier = data.CodeVerifier
		redirectTo = data.RedirectTo
	} else {
		params := c.clientSessions.Retrieve(r, r.URL.Fragment)
		if params.State == "" {
			clearSessions()
			return nil, "", apierror.NewProtocolError("oauth session expired or missing")
		}
		if params.State != state {
			log.LogWarn("OAuth state mismatch, clearing session")
			clearSessions()
			return nil, "", apierror.NewProtocolError("state parameter mismatch")
		}
		verifier = params.Verifier
		sessionID = params.SessionID
		redirectTo = params.RedirectTo
	}

	if verifier == "" && sessionID == "" {
		clearSessions()
		return nil, "", apierror.NewProtocolError("no code verifier or pkce session available")
	}

	tok, err := c.exchangeCodeForToken(r.Context(), code, verifier, sessionID)
	if err != nil {
		clearSessions()
		return nil, "", err
	}

	if err := c.tokens.SetTokenSet(r.Context(), tok.AccessToken, tok.RefreshToken, tokenExpiry(tok)); err != nil {
		clearSessions()
		return nil, "", fmt.Errorf("persisting tokens: %w", err)
	}

	clearSessions()
	c.SyncAuthStatusCookie(w, r)

	user, err := c.GetProfile(r.Context())
	if err != nil {
		// Tokens are stored and valid; the profile can be fetched later.
		log.LogWarn("Profile fetch after login failed: %v", err)
	}

	redirectTo = urlutil.SafeRedirect(redirectTo, c.config.DefaultRedirectTo)

	if user != nil && c.config.OnLoginSuccess != nil {
		c.config.OnLoginSuccess(user)
	}

	log.LogInfoWithFields("authclient", "Authorization code flow completed", map[string]any{
		"redirect_to": redirectTo,
	})

	return user, redirectTo, nil
}

// tokenExpiry derives the absolute expiry for a token response. The
// authorization server is expected to send expires_in; a defensive default
// keeps a missing value from producing a never-expiring token.
func tokenExpiry(tok *oauth2.Token) time.Time {
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	return time.Now().Add(time.Hour)
}

// exchangeCodeForToken redeems an authorization code, proving possession
// with either the local code verifier or a backend pkce session id.
func (c *Client) exchangeCodeForToken(ctx context.Context, code, verifier, sessionID string) (*oauth2.Token, error) {
	if c.config.TokenEndpoint == "" {
		return nil, apierror.NewConfigError("tokenEndpoint")
	}

	opts := []oauth2.AuthCodeOption{}
	if sessionID != "" {
		opts = append(opts, oauth2.SetAuthURLParam("pkce_session_id", sessionID))
	} else {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.tokenClient)
	tok, err := c.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, exchangeError("token exchange", err)
	}
	return tok, nil
}

// RefreshAccessToken redeems the stored refresh token for a new token set.
// Only one refresh is ever in flight; concurrent callers share its result.
// A failed refresh clears all auth state; re-authentication is the only
// recovery and it is never retried automatically.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return nil, c.doRefresh(ctx)
	})
	return err
}

func (c *Client) doRefresh(ctx context.Context) error {
	refreshToken := c.tokens.RefreshToken(ctx)
	if refreshToken == "" {
		c.clearAuthState(ctx)
		return apierror.NewProtocolError("no refresh token available")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.tokenClient)
	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		log.LogWarn("Token refresh failed, clearing auth state: %v", err)
		c.clearAuthState(ctx)
		return exchangeError("token refresh", err)
	}

	// The server may rotate the refresh token; keep the old one otherwise
	rotated := ""
	if tok.RefreshToken != refreshToken {
		rotated = tok.RefreshToken
	}
	if err := c.tokens.SetTokenSet(ctx, tok.AccessToken, rotated, tokenExpiry(tok)); err != nil {
		return fmt.Errorf("persisting refreshed tokens: %w", err)
	}

	log.LogDebug("Access token refreshed")
	return nil
}

// clearAuthState tears down tokens and notifies observers that the client
// is anonymous again
func (c *Client) clearAuthState(ctx context.Context) {
	c.tokens.ClearAll(ctx)
	if c.config.OnLogout != nil {
		c.config.OnLogout()
	}
}

// GetValidToken returns the current access token, refreshing it first when
// it is expired (or about to expire). Concurrent callers that discover
// expiry simultaneously all await the same refresh.
func (c *Client) GetValidToken(ctx context.Context) (string, error) {
	if !c.tokens.IsTokenExpired(ctx) {
		return c.tokens.Token(ctx), nil
	}

	// Anonymous client: nothing to refresh, nothing to attach
	if c.tokens.Token(ctx) == "" && c.tokens.RefreshToken(ctx) == "" {
		return "", nil
	}

	if err := c.RefreshAccessToken(ctx); err != nil {
		return "", err
	}
	return c.tokens.Token(ctx), nil
}

// exchangeError maps token endpoint failures to the error taxonomy,
// preserving server-derived messages when present
func exchangeError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		message := retrieveErr.ErrorDescription
		if message == "" {
			message = apierror.Flatten(retrieveErr.Body, retrieveErr.ErrorCode)
		}
		statusCode := 0
		if retrieveErr.Response != nil {
			statusCode = retrieveErr.Response.StatusCode
		}
		return &apierror.ExchangeError{
			Op:         op,
			StatusCode: statusCode,
			Message:    message,
		}
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
