package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// UnmarshalJSON implements custom unmarshaling for AuthConfig, resolving
// env var references immediately so the rest of the program only ever sees
// resolved values.
func (a *AuthConfig) UnmarshalJSON(data []byte) error {
	type rawAuth struct {
		APIURL                json.RawMessage `json:"apiUrl"`
		APIKey                json.RawMessage `json:"apiKey"`
		OAuthClientID         json.RawMessage `json:"oauthClientId"`
		AuthorizationEndpoint json.RawMessage `json:"authorizationEndpoint"`
		TokenEndpoint         json.RawMessage `json:"tokenEndpoint"`
		RedirectURI           json.RawMessage `json:"redirectUri"`
		Scopes                []string        `json:"scopes,omitempty"`
		SessionSecret         json.RawMessage `json:"sessionSecret,omitempty"`
		UseRemotePKCE         bool            `json:"useRemotePkce,omitempty"`
		DefaultRedirectTo     string          `json:"defaultRedirectTo,omitempty"`
		SessionTTL            string          `json:"sessionTtl,omitempty"`
		Storage               StorageKind     `json:"storage,omitempty"`
		BoltPath              string          `json:"boltPath,omitempty"`
		GCPProject            string          `json:"gcpProject,omitempty"`
		FirestoreDatabase     string          `json:"firestoreDatabase,omitempty"`
		FirestoreCollection   string          `json:"firestoreCollection,omitempty"`
	}

	var raw rawAuth
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.Scopes = raw.Scopes
	a.UseRemotePKCE = raw.UseRemotePKCE
	a.DefaultRedirectTo = raw.DefaultRedirectTo
	a.Storage = raw.Storage
	a.BoltPath = raw.BoltPath
	a.GCPProject = raw.GCPProject
	a.FirestoreDatabase = raw.FirestoreDatabase
	a.FirestoreCollection = raw.FirestoreCollection

	if raw.SessionTTL != "" {
		ttl, err := time.ParseDuration(raw.SessionTTL)
		if err != nil {
			return fmt.Errorf("parsing sessionTtl: %w", err)
		}
		a.SessionTTL = ttl
	}

	stringFields := []struct {
		raw  json.RawMessage
		dst  *string
		name string
	}{
		{raw.APIURL, &a.APIURL, "apiUrl"},
		{raw.OAuthClientID, &a.OAuthClientID, "oauthClientId"},
		{raw.AuthorizationEndpoint, &a.AuthorizationEndpoint, "authorizationEndpoint"},
		{raw.TokenEndpoint, &a.TokenEndpoint, "tokenEndpoint"},
		{raw.RedirectURI, &a.RedirectURI, "redirectUri"},
	}
	for _, field := range stringFields {
		if field.raw == nil {
			continue
		}
		parsed, err := ParseConfigValue(field.raw)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", field.name, err)
		}
		*field.dst = parsed.value
	}

	if raw.APIKey != nil {
		parsed, err := ParseConfigValue(raw.APIKey)
		if err != nil {
			return fmt.Errorf("parsing apiKey: %w", err)
		}
		a.APIKey = Secret(parsed.value)
	}

	if raw.SessionSecret != nil {
		parsed, err := ParseConfigValue(raw.SessionSecret)
		if err != nil {
			return fmt.Errorf("parsing sessionSecret: %w", err)
		}
		a.SessionSecret = Secret(parsed.value)
	}

	if a.SessionSecret != "" && len(a.SessionSecret) < 32 {
		return fmt.Errorf("sessionSecret must be at least 32 bytes, got %d", len(a.SessionSecret))
	}

	return nil
}
