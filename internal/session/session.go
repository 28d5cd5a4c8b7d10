// Package session persists PKCE parameters across the authorization
// redirect round-trip.
//
// Two interchangeable strategies exist: a client-side one (readable cookies
// plus a URL-fragment fallback blob) and a server-side one (a sealed blob in
// an HttpOnly cookie). Only one strategy is authoritative for a given flow.
package session

import "time"

// Data is the ephemeral per-login OAuth session. It is created at login
// initiation and consumed exactly once at callback time.
type Data struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectTo   string    `json:"redirect_to,omitempty"`
	Nonce        string    `json:"nonce,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TTL is the session lifetime. Sessions expire after this regardless of
// whether they were consumed.
const TTL = 10 * time.Minute
