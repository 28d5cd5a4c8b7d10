package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidRedirect(t *testing.T) {
	valid := []string{
		"/",
		"/dashboard",
		"/dashboard/settings?tab=2",
		"/profile#section",
	}
	for _, target := range valid {
		assert.True(t, IsValidRedirect(target), "expected %q to be valid", target)
	}

	invalid := []string{
		"",
		"//evil.example/x",
		"/\\evil.example",
		"javascript:alert(1)",
		"/path/javascript:alert(1)",
		"data:text/html,hi",
		"https://evil.example/",
		"dashboard",
		"../../etc/passwd",
	}
	for _, target := range invalid {
		assert.False(t, IsValidRedirect(target), "expected %q to be rejected", target)
	}
}

func TestSafeRedirect(t *testing.T) {
	assert.Equal(t, "/profile", SafeRedirect("/profile", "/dashboard"))
	assert.Equal(t, "/dashboard", SafeRedirect("//evil.example", "/dashboard"))
	assert.Equal(t, "/dashboard", SafeRedirect("", "/dashboard"))
}

func TestJoinPath(t *testing.T) {
	result, err := JoinPath("https://api.example.com/v1", "login/")
	assert.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1/login/", result)

	result, err = JoinPath("https://api.example.com", "user", "profile")
	assert.NoError(t, err)
	assert.Equal(t, "https://api.example.com/user/profile", result)
}
