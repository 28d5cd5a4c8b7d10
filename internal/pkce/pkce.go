// Package pkce implements RFC 7636 (Proof Key for Code Exchange)
// parameter generation for OAuth 2.0 public clients.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// charset is the RFC 3986 unreserved character set permitted in code
// verifiers (RFC 7636 section 4.1).
const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

const (
	// VerifierLength is the maximum verifier length allowed by RFC 7636,
	// used for all generated verifiers.
	VerifierLength = 128

	// StateLength is the length of generated state parameters.
	StateLength = 32
)

// Pair holds a code verifier and its derived S256 challenge.
type Pair struct {
	Verifier  string
	Challenge string
}

// randomString draws length characters uniformly from charset using
// rejection sampling. The charset has 66 symbols, which does not divide 256
// evenly, so plain modulo indexing would bias some characters.
func randomString(length int) (string, error) {
	// Largest multiple of len(charset) below 256; bytes at or above it
	// are rejected to keep the distribution uniform.
	limit := byte(256 - (256 % len(charset)))

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, charset[int(b)%len(charset)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateCodeVerifier creates a fresh 128-character code verifier.
// Verifiers are never reused across login attempts.
func GenerateCodeVerifier() (string, error) {
	return randomString(VerifierLength)
}

// GenerateCodeChallenge derives the S256 code challenge for a verifier:
// base64url(sha256(verifier)) without padding.
func GenerateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateState creates a random state parameter for CSRF binding.
func GenerateState() (string, error) {
	return randomString(StateLength)
}

// GeneratePair creates a verifier and its challenge in one call.
func GeneratePair() (Pair, error) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		Verifier:  verifier,
		Challenge: GenerateCodeChallenge(verifier),
	}, nil
}
