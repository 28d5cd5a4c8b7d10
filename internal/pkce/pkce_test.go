package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCodeVerifier(t *testing.T) {
	verifier, err := GenerateCodeVerifier()
	require.NoError(t, err)

	assert.Len(t, verifier, VerifierLength)
	for _, c := range verifier {
		assert.True(t, strings.ContainsRune(charset, c), "unexpected character %q", c)
	}

	// RFC 7636 bounds
	assert.GreaterOrEqual(t, len(verifier), 43)
	assert.LessOrEqual(t, len(verifier), 128)
}

func TestGenerateCodeVerifier_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		verifier, err := GenerateCodeVerifier()
		require.NoError(t, err)
		assert.False(t, seen[verifier], "verifier collision")
		seen[verifier] = true
	}
}

func TestGenerateCodeChallenge(t *testing.T) {
	verifier, err := GenerateCodeVerifier()
	require.NoError(t, err)

	challenge := GenerateCodeChallenge(verifier)

	// Deterministic and equal to a fresh SHA-256/base64url computation
	sum := sha256.Sum256([]byte(verifier))
	expected := base64.RawURLEncoding.EncodeToString(sum[:])
	assert.Equal(t, expected, challenge)
	assert.Equal(t, challenge, GenerateCodeChallenge(verifier))

	// base64url without padding, 43 chars for a 32-byte digest
	assert.Len(t, challenge, 43)
	assert.NotContains(t, challenge, "=")
	assert.NotContains(t, challenge, "+")
	assert.NotContains(t, challenge, "/")
}

func TestGenerateCodeChallenge_KnownVector(t *testing.T) {
	// Appendix B of RFC 7636
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", GenerateCodeChallenge(verifier))
}

func TestGenerateState(t *testing.T) {
	state, err := GenerateState()
	require.NoError(t, err)
	assert.Len(t, state, StateLength)

	state2, err := GenerateState()
	require.NoError(t, err)
	assert.NotEqual(t, state, state2)
}

func TestGeneratePair(t *testing.T) {
	pair, err := GeneratePair()
	require.NoError(t, err)

	assert.Len(t, pair.Verifier, VerifierLength)
	assert.Equal(t, GenerateCodeChallenge(pair.Verifier), pair.Challenge)
}
