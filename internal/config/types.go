package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the token storage backend
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindBolt      StorageKind = "bolt"
	StorageKindFirestore StorageKind = "firestore"
)

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	BaseURL string `json:"baseURL"`
	Addr    string `json:"addr"`
}

// RoutesConfig configures the route guard middleware
type RoutesConfig struct {
	Protected             []string `json:"protected,omitempty"`
	Auth                  []string `json:"auth,omitempty"`
	LoginURL              string   `json:"loginUrl,omitempty"`
	DefaultProtectedRoute string   `json:"defaultProtectedRoute,omitempty"`
}

// AuthConfig holds the resolved auth backend settings.
//
// Environment variable references using {"$env": "VAR_NAME"} syntax are
// resolved at config load time. The explicit JSON syntax avoids accidental
// shell expansion of $VAR patterns and lets references be validated at
// parse time.
type AuthConfig struct {
	APIURL                string        `json:"apiUrl"`
	APIKey                Secret        `json:"apiKey"`
	OAuthClientID         string        `json:"oauthClientId"`
	AuthorizationEndpoint string        `json:"authorizationEndpoint"`
	TokenEndpoint         string        `json:"tokenEndpoint"`
	RedirectURI           string        `json:"redirectUri"`
	Scopes                []string      `json:"scopes,omitempty"`
	SessionSecret         Secret        `json:"sessionSecret,omitempty"`
	UseRemotePKCE         bool          `json:"useRemotePkce,omitempty"`
	DefaultRedirectTo     string        `json:"defaultRedirectTo,omitempty"`
	SessionTTL            time.Duration `json:"sessionTtl,omitempty"`

	Storage             StorageKind `json:"storage,omitempty"`
	BoltPath            string      `json:"boltPath,omitempty"`
	GCPProject          string      `json:"gcpProject,omitempty"`
	FirestoreDatabase   string      `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string      `json:"firestoreCollection,omitempty"`
}

// Config is the root configuration with resolved values
type Config struct {
	Server ServerConfig  `json:"server"`
	Auth   AuthConfig    `json:"auth"`
	Routes *RoutesConfig `json:"routes,omitempty"`
}

// RawConfigValue represents a value that could be a plain string or an env
// reference. Only used during parsing, never in the final config.
type RawConfigValue struct {
	value string
}

// ParseConfigValue parses a JSON value that could be a string or reference object
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	// Try reference object
	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	if envVar, ok := ref["$env"]; ok {
		value := os.Getenv(envVar)
		if value == "" {
			return nil, fmt.Errorf("environment variable %s not set", envVar)
		}
		// Strip surrounding quotes if present (only matching pairs)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		return &RawConfigValue{value: value}, nil
	}

	return nil, fmt.Errorf("unknown reference type in config value")
}
