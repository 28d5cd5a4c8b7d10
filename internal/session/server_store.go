package session

import (
	"net/http"
	"time"

	"github.com/syauth/syauth-go/internal/cookie"
	"github.com/syauth/syauth-go/internal/crypto"
	"github.com/syauth/syauth-go/internal/log"
)

// ServerStore is the server-side session strategy: the whole session lives
// in a sealed HttpOnly cookie scoped to the server's own origin. Used for
// cross-origin redirect chains where an intermediate server-rendered domain
// cannot see the client's cookies.
type ServerStore struct {
	sealer crypto.Sealer
	ttl    time.Duration
}

// NewServerStore creates a server-side session store sealing with the given
// secret. A zero ttl falls back to the package default.
func NewServerStore(secret []byte, ttl time.Duration) (*ServerStore, error) {
	if ttl == 0 {
		ttl = TTL
	}
	sealer, err := crypto.NewSealer(secret, ttl)
	if err != nil {
		return nil, err
	}
	return &ServerStore{sealer: sealer, ttl: ttl}, nil
}

// Create seals the session and sets it as an HttpOnly cookie
func (s *ServerStore) Create(w http.ResponseWriter, data Data) error {
	data.CreatedAt = time.Now()

	// Per-session nonce so two sessions with identical parameters never
	// produce comparable blobs
	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		return err
	}
	data.Nonce = nonce

	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return err
	}

	cookie.SetSealed(w, sealed)
	return nil
}

// Validate unseals the session cookie and checks the state binding.
//
// Returns nil when the cookie is missing, undecryptable, expired, or when
// the state does not match — every failure looks identical to "session not
// found" so callers cannot be used as a validation oracle. A state mismatch
// additionally burns the session. On success the session is consumed: the
// cookie is cleared and subsequent requests see no session.
func (s *ServerStore) Validate(w http.ResponseWriter, r *http.Request, receivedState string) *Data {
	sealed := cookie.Get(r, cookie.OAuthSession)
	if sealed == "" {
		return nil
	}

	var data Data
	if err := s.sealer.Open(sealed, &data); err != nil {
		log.LogDebugWithFields("session", "Discarding invalid oauth session", map[string]any{
			"error": err.Error(),
		})
		return nil
	}

	if data.State != receivedState {
		log.LogWarn("OAuth session state mismatch, burning session")
		s.Clear(w)
		return nil
	}

	// Belt and braces beyond the sealed expiry claim
	if time.Since(data.CreatedAt) > s.ttl {
		s.Clear(w)
		return nil
	}

	s.Clear(w)
	return &data
}

// Clear deletes the session cookie
func (s *ServerStore) Clear(w http.ResponseWriter) {
	cookie.Clear(w, cookie.OAuthSession)
}
