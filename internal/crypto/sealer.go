package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// TokenData wraps a caller payload with an expiry claim
type TokenData struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expires_at,omitempty"`
}

// Sealer provides authenticated encryption of JSON payloads with optional
// expiry. Sealed tokens keep their contents confidential, which matters when
// a token holds secrets like a PKCE code verifier.
type Sealer struct {
	key []byte
	ttl time.Duration
}

// NewSealer derives an AEAD key from the given secret. Any non-empty secret
// is accepted; it is hashed to the required key size.
func NewSealer(secret []byte, ttl time.Duration) (Sealer, error) {
	if len(secret) == 0 {
		return Sealer{}, fmt.Errorf("sealer secret must not be empty")
	}
	key := sha256.Sum256(secret)
	return Sealer{key: key[:], ttl: ttl}, nil
}

// Seal marshals v to JSON, encrypts it, and returns a base64-encoded token
func (s *Sealer) Seal(v any) (string, error) {
	userData, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}

	tokenData := TokenData{
		Data: userData,
	}
	if s.ttl > 0 {
		tokenData.ExpiresAt = time.Now().Add(s.ttl)
	}

	plaintext, err := json.Marshal(tokenData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token data: %w", err)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed token, checks expiry, and unmarshals the payload.
// Any decode, decryption, or expiry failure returns an error; callers must
// not distinguish between them.
func (s *Sealer) Open(token string, v any) error {
	sealed, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("failed to decode token: %w", err)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return fmt.Errorf("token too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("failed to decrypt token: %w", err)
	}

	var tokenData TokenData
	if err := json.Unmarshal(plaintext, &tokenData); err != nil {
		return fmt.Errorf("failed to unmarshal token data: %w", err)
	}

	if !tokenData.ExpiresAt.IsZero() && time.Now().After(tokenData.ExpiresAt) {
		return fmt.Errorf("token expired")
	}

	if err := json.Unmarshal(tokenData.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}

	return nil
}
