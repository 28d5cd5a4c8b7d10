// Package authclient implements the relying-party core: OAuth 2.0
// authorization code flow with PKCE, token persistence and refresh, and the
// REST surface of the auth backend.
//
// The client is headless: it has no UI framework dependency. Bindings
// observe state transitions through the OnLoginSuccess/OnLogout callbacks.
package authclient

import (
	"net/http"
	"sync"
	"time"

	"github.com/syauth/syauth-go/internal/apierror"
	"github.com/syauth/syauth-go/internal/cookie"
	"github.com/syauth/syauth-go/internal/session"
	"github.com/syauth/syauth-go/internal/storage"
	"github.com/syauth/syauth-go/internal/token"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// tokenTimeout bounds calls to the token endpoint so a refresh can never
// block callers indefinitely.
const tokenTimeout = 15 * time.Second

// defaultScopes requested when the config doesn't override them
var defaultScopes = []string{"openid", "profile", "email"}

// Config configures the auth client
type Config struct {
	// APIURL is the base URL of the auth backend REST API.
	APIURL string

	// APIKey authenticates registration calls (X-API-Key header).
	APIKey string

	// OAuthClientID is the public OAuth client identifier.
	OAuthClientID string

	// AuthorizationEndpoint is the authorization server's authorize URL.
	AuthorizationEndpoint string

	// TokenEndpoint is the authorization server's token URL.
	TokenEndpoint string

	// RedirectURI is this relying party's callback URL. Required before
	// LoginWithRedirect can be used.
	RedirectURI string

	// Scopes defaults to "openid profile email".
	Scopes []string

	// SessionSecret enables the server-side session strategy (sealed
	// HttpOnly cookie) when non-empty. Without it the client-side cookie
	// strategy is used alone.
	SessionSecret []byte

	// SessionTTL bounds the server-side session. Zero means the default
	// (10 minutes).
	SessionTTL time.Duration

	// UseRemotePKCE delegates verifier custody to the auth backend: login
	// initiation calls /oauth/pkce/init/ and the token exchange sends
	// pkce_session_id instead of code_verifier.
	UseRemotePKCE bool

	// DefaultRedirectTo is where users land after login when no explicit
	// destination was requested. Defaults to "/dashboard".
	DefaultRedirectTo string

	// Store persists tokens. Nil behaves like an environment without
	// durable storage (every read sees an anonymous client).
	Store storage.Store

	// HTTPClient is used for REST calls. Its transport is wrapped with
	// the bearer-token pipeline. Defaults to a fresh client.
	HTTPClient *http.Client

	// OnLoginSuccess is invoked with the fetched profile after every
	// successful login (both grant types).
	OnLoginSuccess func(user *token.User)

	// OnLogout is invoked when auth state is torn down, whether by an
	// explicit logout or an irrecoverable refresh failure.
	OnLogout func()

	// OnAuthStatusChange mirrors token presence for headless embedders.
	// HTTP handlers additionally sync the auth_status cookie themselves.
	OnAuthStatusChange func(authenticated bool)
}

// Client is the core auth state machine. One instance per process context;
// it owns its refresh-in-flight handle.
type Client struct {
	config Config
	oauth  oauth2.Config

	tokens         *token.Store
	clientSessions *session.ClientStore
	serverSessions *session.ServerStore

	httpClient  *http.Client // REST calls, with bearer transport
	tokenClient *http.Client // token endpoint calls, bounded timeout

	// refreshGroup collapses concurrent refreshes into a single flight.
	refreshGroup singleflight.Group

	// callbackMu guards callback processing so a duplicated callback
	// invocation cannot exchange the same code twice.
	callbackMu         sync.Mutex
	callbackProcessing bool
}

// New creates an auth client. Credentials required for every flow are
// validated here; flow-specific preconditions (like RedirectURI) are
// checked at call time.
func New(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, apierror.NewConfigError("apiKey")
	}
	if config.OAuthClientID == "" {
		return nil, apierror.NewConfigError("oauthClientId")
	}
	if config.APIURL == "" {
		return nil, apierror.NewConfigError("apiUrl")
	}

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	if config.DefaultRedirectTo == "" {
		config.DefaultRedirectTo = "/dashboard"
	}

	c := &Client{
		config: config,
		oauth: oauth2.Config{
			ClientID:    config.OAuthClientID,
			RedirectURL: config.RedirectURI,
			Scopes:      scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  config.AuthorizationEndpoint,
				TokenURL: config.TokenEndpoint,
				// Public client: credentials go in the form body, there
				// is no client secret for basic auth.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		tokens:         token.NewStore(config.Store),
		clientSessions: session.NewClientStore(),
		tokenClient:    &http.Client{Timeout: tokenTimeout},
	}

	if len(config.SessionSecret) > 0 {
		serverSessions, err := session.NewServerStore(config.SessionSecret, config.SessionTTL)
		if err != nil {
			return nil, err
		}
		c.serverSessions = serverSessions
	}

	if config.OnAuthStatusChange != nil {
		c.tokens.OnStatusChange(config.OnAuthStatusChange)
	}

	base := config.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	c.httpClient = &http.Client{
		Timeout: base.Timeout,
		Jar:     base.Jar,
		Transport: &Transport{
			Base:   base.Transport,
			client: c,
		},
	}

	return c, nil
}

// Tokens exposes the token store for embedders (middleware, handlers)
func (c *Client) Tokens() *token.Store {
	return c.tokens
}

// Sessions exposes the client-side session store
func (c *Client) Sessions() *session.ClientStore {
	return c.clientSessions
}

// ServerSessions returns the server-side session store, or nil when no
// session secret is configured
func (c *Client) ServerSessions() *session.ServerStore {
	return c.serverSessions
}

// DefaultRedirectTo returns the configured post-login landing path
func (c *Client) DefaultRedirectTo() string {
	return c.config.DefaultRedirectTo
}

// SyncAuthStatusCookie writes the auth_status mirror onto an HTTP response
// according to current token presence.
func (c *Client) SyncAuthStatusCookie(w http.ResponseWriter, r *http.Request) {
	cookie.SetAuthStatus(w, c.tokens.Token(r.Context()) != "")
}
