package urlutil

import "strings"

// dangerousSchemes are rejected anywhere inside a redirect target, not just
// as a prefix, since browsers tolerate a surprising amount of junk around a
// scheme.
var dangerousSchemes = []string{"javascript:", "data:", "vbscript:", "file:", "about:"}

// IsValidRedirect reports whether target is safe to redirect to after
// authentication. Only same-origin relative paths are accepted: the path
// must start with a single "/" (protocol-relative "//host" is rejected) and
// must not embed a dangerous scheme.
func IsValidRedirect(target string) bool {
	if target == "" {
		return false
	}
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return false
	}
	// "/\" is treated as protocol-relative by some browsers
	if strings.HasPrefix(target, "/\\") {
		return false
	}
	lower := strings.ToLower(target)
	for _, scheme := range dangerousSchemes {
		if strings.Contains(lower, scheme) {
			return false
		}
	}
	return true
}

// SafeRedirect returns target when it passes validation, else fallback
func SafeRedirect(target, fallback string) string {
	if IsValidRedirect(target) {
		return target
	}
	return fallback
}
