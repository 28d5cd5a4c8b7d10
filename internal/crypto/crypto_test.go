package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// Each call generates a unique token
	token2, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)

	// base64 encoding of 32 bytes should be at least 40 chars
	assert.GreaterOrEqual(t, len(token), 40)
}

type testPayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := NewSealer([]byte("session-secret"), time.Minute)
	require.NoError(t, err)

	token, err := sealer.Seal(testPayload{Name: "verifier", Count: 1})
	require.NoError(t, err)

	var out testPayload
	require.NoError(t, sealer.Open(token, &out))
	assert.Equal(t, testPayload{Name: "verifier", Count: 1}, out)

	// Sealing is randomized
	token2, err := sealer.Seal(testPayload{Name: "verifier", Count: 1})
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}

func TestSealer_Confidential(t *testing.T) {
	sealer, err := NewSealer([]byte("session-secret"), time.Minute)
	require.NoError(t, err)

	token, err := sealer.Seal(testPayload{Name: "super-secret-verifier"})
	require.NoError(t, err)

	assert.NotContains(t, token, "super-secret-verifier")
}

func TestSealer_Tampered(t *testing.T) {
	sealer, err := NewSealer([]byte("session-secret"), time.Minute)
	require.NoError(t, err)

	token, err := sealer.Seal(testPayload{Name: "a"})
	require.NoError(t, err)

	var out testPayload
	assert.Error(t, sealer.Open(token[:len(token)-4]+"AAAA", &out))
	assert.Error(t, sealer.Open("garbage", &out))
	assert.Error(t, sealer.Open("", &out))

	other, err := NewSealer([]byte("other-secret"), time.Minute)
	require.NoError(t, err)
	assert.Error(t, other.Open(token, &out))
}

func TestSealer_Expiry(t *testing.T) {
	sealer, err := NewSealer([]byte("session-secret"), -time.Second)
	require.NoError(t, err)

	token, err := sealer.Seal(testPayload{Name: "a"})
	require.NoError(t, err)

	var out testPayload
	assert.Error(t, sealer.Open(token, &out))
}

func TestNewSealer_EmptySecret(t *testing.T) {
	_, err := NewSealer(nil, time.Minute)
	assert.Error(t, err)
}
