// Package apierror defines the error taxonomy surfaced by the auth client:
// configuration errors, protocol errors, token exchange errors, and backend
// validation errors. Public client methods always return one of these (or a
// wrapped transport error), never a raw HTTP failure.
package apierror

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// GenericAuthFailed is the user-facing message for protocol failures.
// Detail stays in logs so flow internals don't leak to users.
const GenericAuthFailed = "authentication failed"

// ConfigError reports a missing or invalid client configuration value.
// Raised synchronously at call time, never silently degraded.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s is required", e.Field)
}

// NewConfigError creates a ConfigError for the given field
func NewConfigError(field string) *ConfigError {
	return &ConfigError{Field: field}
}

// ProtocolError reports an OAuth flow failure (state mismatch, missing
// parameters, expired session). Terminal for the current flow; session
// state must be cleared before it propagates. The user-facing message is
// always generic; Reason is for logs only.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return GenericAuthFailed
}

// Detail returns the log-only diagnostic
func (e *ProtocolError) Detail() string {
	return e.Reason
}

// NewProtocolError creates a ProtocolError with a log-only reason
func NewProtocolError(reason string) *ProtocolError {
	return &ProtocolError{Reason: reason}
}

// ExchangeError reports a token endpoint failure, distinguishing it from
// generic network failures. Message carries the server-derived description
// when one was available.
type ExchangeError struct {
	Op         string // "token exchange" or "token refresh"
	StatusCode int
	Message    string
}

func (e *ExchangeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s failed", e.Op)
}

// ValidationError carries a flattened backend validation payload
type ValidationError struct {
	StatusCode int
	Message    string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Flatten turns a backend validation payload into a human-readable message.
//
// Top-level "error", "message", and "detail" fields win over field-by-field
// assembly. Otherwise field-keyed messages are joined with commas, with
// non_field_errors entries left unprefixed. Falls back to the given message
// when the body is not structured JSON.
func Flatten(body []byte, fallback string) string {
	if len(body) == 0 {
		return fallback
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		// Plain string bodies are used as-is
		var s string
		if err := json.Unmarshal(body, &s); err == nil && s != "" {
			return s
		}
		return fallback
	}

	for _, key := range []string{"error", "message", "detail"} {
		if v, ok := data[key].(string); ok && v != "" {
			return v
		}
	}

	fields := make([]string, 0, len(data))
	for field := range data {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var parts []string
	for _, field := range fields {
		label := field + ": "
		if field == "non_field_errors" {
			label = ""
		}
		switch messages := data[field].(type) {
		case []any:
			for _, msg := range messages {
				if s, ok := msg.(string); ok {
					parts = append(parts, label+s)
				}
			}
		case string:
			parts = append(parts, label+messages)
		}
	}

	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	return fallback
}
