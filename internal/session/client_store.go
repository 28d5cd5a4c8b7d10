package session

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"

	"github.com/syauth/syauth-go/internal/cookie"
	"github.com/syauth/syauth-go/internal/log"
)

// fragmentPattern extracts the blob from a URL fragment like
// "pkce=<encoded>" or "foo=1&pkce=<encoded>".
var fragmentPattern = regexp.MustCompile(`pkce=([^&]+)`)

// fragmentBlob is the redundant copy of the PKCE parameters carried in the
// URL fragment. Short keys keep the fragment compact.
type fragmentBlob struct {
	Verifier   string `json:"v"`
	State      string `json:"s"`
	RedirectTo string `json:"r,omitempty"`
}

// ClientStore is the client-side session strategy: three readable cookies
// with a fragment fallback for environments where cookies are blocked
// (private browsing). The fragment is never transmitted to the server.
type ClientStore struct{}

// NewClientStore creates a client-side session store
func NewClientStore() *ClientStore {
	return &ClientStore{}
}

// Store writes the PKCE session cookies and returns the fragment string
// ("pkce=...") callers should place in the URL hash as the cookie fallback.
func (s *ClientStore) Store(w http.ResponseWriter, verifier, state, redirectTo string) string {
	cookie.SetPKCE(w, cookie.CodeVerifier, verifier)
	cookie.SetPKCE(w, cookie.State, state)
	if redirectTo != "" {
		cookie.SetPKCE(w, cookie.RedirectTo, redirectTo)
	}
	return EncodeFragment(verifier, state, redirectTo)
}

// StoreSessionID writes the server-session pointer variant: the session id
// and state cookies, without a local verifier.
func (s *ClientStore) StoreSessionID(w http.ResponseWriter, sessionID, state, redirectTo string) {
	cookie.SetPKCE(w, cookie.PKCESessionID, sessionID)
	cookie.SetPKCE(w, cookie.State, state)
	if redirectTo != "" {
		cookie.SetPKCE(w, cookie.RedirectTo, redirectTo)
	}
}

// Params is the retrieved client-side session. Fields are empty when absent.
type Params struct {
	Verifier   string
	State      string
	RedirectTo string
	SessionID  string
}

// Retrieve reads the session cookies, falling back to the URL fragment when
// the state cookie is missing. Idempotent: safe to call repeatedly before
// Clear.
func (s *ClientStore) Retrieve(r *http.Request, fragment string) Params {
	params := Params{
		Verifier:   cookie.Get(r, cookie.CodeVerifier),
		State:      cookie.Get(r, cookie.State),
		RedirectTo: cookie.Get(r, cookie.RedirectTo),
		SessionID:  cookie.Get(r, cookie.PKCESessionID),
	}

	if params.State == "" && fragment != "" {
		if blob, ok := DecodeFragment(fragment); ok {
			params.Verifier = blob.Verifier
			params.State = blob.State
			params.RedirectTo = blob.RedirectTo
		}
	}

	return params
}

// Clear deletes all session cookies. The caller is responsible for
// stripping any pkce fragment from the page URL.
func (s *ClientStore) Clear(w http.ResponseWriter) {
	cookie.Clear(w, cookie.CodeVerifier)
	cookie.Clear(w, cookie.State)
	cookie.Clear(w, cookie.RedirectTo)
	cookie.Clear(w, cookie.PKCESessionID)
}

// EncodeFragment builds the "pkce=..." fragment carrying a base64-JSON copy
// of the session parameters.
func EncodeFragment(verifier, state, redirectTo string) string {
	blob := fragmentBlob{
		Verifier:   verifier,
		State:      state,
		RedirectTo: redirectTo,
	}
	data, err := json.Marshal(blob)
	if err != nil {
		// A struct of strings cannot fail to marshal
		return ""
	}
	return "pkce=" + url.QueryEscape(base64.StdEncoding.EncodeToString(data))
}

// DecodeFragment parses a URL fragment for the pkce blob. Malformed blobs
// are ignored rather than surfaced.
func DecodeFragment(fragment string) (fragmentBlob, bool) {
	match := fragmentPattern.FindStringSubmatch(fragment)
	if match == nil {
		return fragmentBlob{}, false
	}

	unescaped, err := url.QueryUnescape(match[1])
	if err != nil {
		return fragmentBlob{}, false
	}
	data, err := base64.StdEncoding.DecodeString(unescaped)
	if err != nil {
		return fragmentBlob{}, false
	}

	var blob fragmentBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		log.LogTrace("Ignoring unparseable pkce fragment: %v", err)
		return fragmentBlob{}, false
	}
	return blob, true
}
