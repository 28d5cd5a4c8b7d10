package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, "v1") {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// Parse directly into typed Config struct; the custom UnmarshalJSON
	// methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig validates the config structure before environment
// resolution. Secrets must arrive as env references, never as literals
// sitting in a config file.
func validateRawConfig(rawConfig map[string]any) error {
	auth, ok := rawConfig["auth"].(map[string]any)
	if !ok {
		return fmt.Errorf("auth section is required")
	}

	for _, name := range []string{"apiKey", "sessionSecret"} {
		value, exists := auth[name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s must use environment variable reference for security", name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", name)
			}
		}
	}

	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	auth := &config.Auth
	if auth.APIURL == "" {
		return fmt.Errorf("auth.apiUrl is required")
	}
	if auth.APIKey == "" {
		return fmt.Errorf("auth.apiKey is required")
	}
	if auth.OAuthClientID == "" {
		return fmt.Errorf("auth.oauthClientId is required")
	}
	if auth.AuthorizationEndpoint == "" {
		return fmt.Errorf("auth.authorizationEndpoint is required")
	}
	if auth.TokenEndpoint == "" {
		return fmt.Errorf("auth.tokenEndpoint is required")
	}
	if auth.RedirectURI == "" {
		return fmt.Errorf("auth.redirectUri is required")
	}

	switch auth.Storage {
	case "", StorageKindMemory:
		// In-process storage needs nothing else
	case StorageKindBolt:
		if auth.BoltPath == "" {
			return fmt.Errorf("auth.boltPath is required when using bolt storage")
		}
	case StorageKindFirestore:
		if auth.GCPProject == "" {
			return fmt.Errorf("auth.gcpProject is required when using firestore storage")
		}
		if auth.FirestoreDatabase == "" {
			auth.FirestoreDatabase = "(default)"
		}
		if auth.FirestoreCollection == "" {
			auth.FirestoreCollection = "syauth_state"
		}
	default:
		return fmt.Errorf("unknown storage kind: %s", auth.Storage)
	}

	return nil
}
