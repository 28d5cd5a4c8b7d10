// Package token persists the token set (access token, refresh token,
// expiry) and the cached user profile in durable client storage.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/syauth/syauth-go/internal/log"
	"github.com/syauth/syauth-go/internal/storage"
)

// Storage keys. auth_token and auth_user match the legacy password-grant
// client so both flows share one token set.
const (
	keyToken        = "auth_token"
	keyRefreshToken = "auth_refresh_token"
	keyTokenExpiry  = "auth_token_expiry"
	keyUser         = "auth_user"
)

// ExpiryMargin is how long before the real expiry a token is already
// treated as expired, so a request never races an about-to-expire token.
const ExpiryMargin = 5 * time.Minute

// User is the server-sourced profile projection cached alongside tokens.
// The server stays the source of truth; this copy is refreshed
// opportunistically.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	EmailVerified bool   `json:"email_verified"`
	UserType      string `json:"user_type"`
	Company       string `json:"company"`
	JobTitle      string `json:"job_title"`
	PhoneNumber   string `json:"phone_number"`
	Country       string `json:"country"`
}

// Store wraps a storage port with token-set semantics. A nil backing store
// behaves like running without browser storage: reads return zero values and
// writes are dropped.
type Store struct {
	kv storage.Store

	// onStatusChange mirrors token presence outwards (the auth_status
	// cookie). Invoked on every login, refresh, and logout transition.
	onStatusChange func(authenticated bool)
}

// NewStore creates a token store over the given storage port
func NewStore(kv storage.Store) *Store {
	return &Store{kv: kv}
}

// OnStatusChange registers the auth-status mirror callback
func (s *Store) OnStatusChange(fn func(authenticated bool)) {
	s.onStatusChange = fn
}

func (s *Store) get(ctx context.Context, key string) string {
	if s.kv == nil {
		return ""
	}
	value, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.LogWarnWithFields("token", "Storage read failed", map[string]any{
				"key":   key,
				"error": err.Error(),
			})
		}
		return ""
	}
	return value
}

func (s *Store) set(ctx context.Context, key, value string) error {
	if s.kv == nil {
		return nil
	}
	return s.kv.Set(ctx, key, value)
}

// Token returns the stored access token, or empty
func (s *Store) Token(ctx context.Context) string {
	return s.get(ctx, keyToken)
}

// SetToken stores the access token
func (s *Store) SetToken(ctx context.Context, token string) error {
	return s.set(ctx, keyToken, token)
}

// RefreshToken returns the stored refresh token, or empty
func (s *Store) RefreshToken(ctx context.Context) string {
	return s.get(ctx, keyRefreshToken)
}

// SetRefreshToken stores the refresh token
func (s *Store) SetRefreshToken(ctx context.Context, token string) error {
	return s.set(ctx, keyRefreshToken, token)
}

// TokenExpiry returns the absolute expiry of the access token, or the zero
// time when unknown
func (s *Store) TokenExpiry(ctx context.Context) time.Time {
	raw := s.get(ctx, keyTokenExpiry)
	if raw == "" {
		return time.Time{}
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

// SetTokenExpiry stores the absolute expiry timestamp
func (s *Store) SetTokenExpiry(ctx context.Context, expiresAt time.Time) error {
	return s.set(ctx, keyTokenExpiry, strconv.FormatInt(expiresAt.Unix(), 10))
}

// IsTokenExpired reports whether the access token is missing, has expired,
// or will expire within ExpiryMargin. A token with no recorded expiry is
// treated as still valid; the 401 path recovers if it is not.
func (s *Store) IsTokenExpired(ctx context.Context) bool {
	if s.Token(ctx) == "" {
		return true
	}
	expiresAt := s.TokenExpiry(ctx)
	if expiresAt.IsZero() {
		return false
	}
	return !time.Now().Before(expiresAt.Add(-ExpiryMargin))
}

// User returns the cached profile, or nil
func (s *Store) User(ctx context.Context) *User {
	raw := s.get(ctx, keyUser)
	if raw == "" {
		return nil
	}
	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		log.LogWarn("Discarding unparseable cached user: %v", err)
		return nil
	}
	return &user
}

// SetUser caches the profile
func (s *Store) SetUser(ctx context.Context, user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshaling user: %w", err)
	}
	return s.set(ctx, keyUser, string(data))
}

// SetTokenSet stores a complete token set in one call. An empty refresh
// token keeps the previous one (the server may not rotate it).
func (s *Store) SetTokenSet(ctx context.Context, accessToken, refreshToken string, expiresAt time.Time) error {
	if err := s.SetToken(ctx, accessToken); err != nil {
		return err
	}
	if refreshToken != "" {
		if err := s.SetRefreshToken(ctx, refreshToken); err != nil {
			return err
		}
	}
	if err := s.SetTokenExpiry(ctx, expiresAt); err != nil {
		return err
	}
	s.SyncAuthStatus(ctx)
	return nil
}

// ClearAll removes the token set and cached user, and drops the
// auth_status mirror
func (s *Store) ClearAll(ctx context.Context) {
	if s.kv != nil {
		for _, key := range []string{keyToken, keyRefreshToken, keyTokenExpiry, keyUser} {
			if err := s.kv.Delete(ctx, key); err != nil {
				log.LogWarnWithFields("token", "Storage delete failed", map[string]any{
					"key":   key,
					"error": err.Error(),
				})
			}
		}
	}
	s.SyncAuthStatus(ctx)
}

// SyncAuthStatus pushes current token presence to the status mirror
func (s *Store) SyncAuthStatus(ctx context.Context) {
	if s.onStatusChange != nil {
		s.onStatusChange(s.Token(ctx) != "")
	}
}
