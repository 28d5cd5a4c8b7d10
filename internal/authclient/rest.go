package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/syauth/syauth-go/internal/apierror"
	"github.com/syauth/syauth-go/internal/log"
	"github.com/syauth/syauth-go/internal/token"
	"github.com/syauth/syauth-go/internal/urlutil"
)

// AuthResponse is the backend's response to a password-grant login
type AuthResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         *token.User `json:"user"`
}

// RegisterResponse is the backend's response to a registration call
type RegisterResponse struct {
	User    *token.User `json:"user"`
	Message string      `json:"message"`
}

// VerificationResponse is returned by the email verification endpoints
type VerificationResponse struct {
	Message string `json:"message"`
}

// PasswordResetResponse is returned by the password reset endpoints
type PasswordResetResponse struct {
	Message string `json:"message"`
}

// PKCESession is the backend-issued PKCE material for the remote strategy:
// the backend keeps the verifier, we forward the challenge and session id.
type PKCESession struct {
	SessionID           string `json:"session_id"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

// RegisterRequest is the payload for Register
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Company     string `json:"company,omitempty"`
	JobTitle    string `json:"job_title,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Country     string `json:"country,omitempty"`
}

// ProfileUpdate carries the mutable profile fields for UpdateProfile.
// Nil pointers are omitted so a partial update touches only what changed.
type ProfileUpdate struct {
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	Company     *string `json:"company,omitempty"`
	JobTitle    *string `json:"job_title,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Country     *string `json:"country,omitempty"`
}

// doJSON performs a JSON request against the backend REST API and decodes
// the response into out (when non-nil). Non-2xx responses become
// ValidationErrors carrying the flattened backend payload.
func (c *Client) doJSON(ctx context.Context, method, path string, headers map[string]string, payload, out any) error {
	endpoint, err := urlutil.JoinPath(c.config.APIURL, path)
	if err != nil {
		return fmt.Errorf("building request URL: %w", err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apierror.ValidationError{
			StatusCode: resp.StatusCode,
			Message:    apierror.Flatten(respBody, fmt.Sprintf("request failed with status %d", resp.StatusCode)),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// Login authenticates with email and password.
//
// Deprecated: the password grant exists for legacy integrations only. New
// integrations should use LoginWithRedirect.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	payload := map[string]string{"email": email, "password": password}

	var result AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "login/", nil, payload, &result); err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	if result.ExpiresIn == 0 {
		expiresAt = time.Now().Add(time.Hour)
	}
	if err := c.tokens.SetTokenSet(ctx, result.AccessToken, result.RefreshToken, expiresAt); err != nil {
		return nil, fmt.Errorf("persisting tokens: %w", err)
	}

	user := result.User
	if user == nil {
		user, _ = c.GetProfile(ctx)
	} else if err := c.tokens.SetUser(ctx, user); err != nil {
		log.LogWarn("Caching profile failed: %v", err)
	}

	if user != nil && c.config.OnLoginSuccess != nil {
		c.config.OnLoginSuccess(user)
	}

	log.LogInfoWithFields("authclient", "Password login completed", map[string]any{
		"email": email,
	})
	return &result, nil
}

// Logout revokes the session server-side on a best-effort basis and always
// clears local auth state. The server call failing never blocks the local
// teardown.
func (c *Client) Logout(ctx context.Context) {
	refreshToken := c.tokens.RefreshToken(ctx)
	if refreshToken != "" {
		payload := map[string]string{"refresh_token": refreshToken}
		if err := c.doJSON(ctx, http.MethodPost, "logout/", nil, payload, nil); err != nil {
			log.LogWarn("Server-side logout failed, clearing local state anyway: %v", err)
		}
	}
	c.clearAuthState(ctx)
	log.Logf("User logged out")
}

// Register creates a new account. Authenticated with the API key, not a
// bearer token: registration precedes having one.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	headers := map[string]string{"X-API-Key": c.config.APIKey}

	var result RegisterResponse
	if err := c.doJSON(ctx, http.MethodPost, "register/", headers, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifyEmail confirms an email address with the code sent to it
func (c *Client) VerifyEmail(ctx context.Context, email, code string) (*VerificationResponse, error) {
	payload := map[string]string{"email": email, "code": code}

	var result VerificationResponse
	if err := c.doJSON(ctx, http.MethodPost, "email/verify/", nil, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RequestVerificationCode asks the backend to re-send a verification code
func (c *Client) RequestVerificationCode(ctx context.Context, email string) (*VerificationResponse, error) {
	payload := map[string]string{"email": email}

	var result VerificationResponse
	if err := c.doJSON(ctx, http.MethodPost, "email/verify/resend/", nil, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RequestPasswordReset starts a password reset for the given email
func (c *Client) RequestPasswordReset(ctx context.Context, email string) (*PasswordResetResponse, error) {
	payload := map[string]string{"email": email}

	var result PasswordResetResponse
	if err := c.doJSON(ctx, http.MethodPost, "password/reset/", nil, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ConfirmPasswordReset completes a password reset with the emailed code
func (c *Client) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) (*PasswordResetResponse, error) {
	payload := map[string]string{
		"email":        email,
		"code":         code,
		"new_password": newPassword,
	}

	var result PasswordResetResponse
	if err := c.doJSON(ctx, http.MethodPost, "password/reset/confirm/", nil, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetProfile fetches the current user's profile and refreshes the local
// cache. A 401 means the session is gone for good (the transport already
// retried once), so local auth state is cleared.
func (c *Client) GetProfile(ctx context.Context) (*token.User, error) {
	var user token.User
	if err := c.doJSON(ctx, http.MethodGet, "user/profile/", nil, nil, &user); err != nil {
		var validationErr *apierror.ValidationError
		if errors.As(err, &validationErr) && validationErr.StatusCode == http.StatusUnauthorized {
			log.LogDebug("Profile fetch returned 401, clearing auth state")
			c.clearAuthState(ctx)
		}
		return nil, err
	}

	if err := c.tokens.SetUser(ctx, &user); err != nil {
		log.LogWarn("Caching profile failed: %v", err)
	}
	return &user, nil
}

// UpdateProfile applies a partial profile update and refreshes the cache
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*token.User, error) {
	var user token.User
	if err := c.doJSON(ctx, http.MethodPatch, "user/profile/", nil, update, &user); err != nil {
		return nil, err
	}

	if err := c.tokens.SetUser(ctx, &user); err != nil {
		log.LogWarn("Caching profile failed: %v", err)
	}
	return &user, nil
}

// UpdatePassword changes the current user's password
func (c *Client) UpdatePassword(ctx context.Context, currentPassword, newPassword string) error {
	payload := map[string]string{
		"current_password": currentPassword,
		"new_password":     newPassword,
	}
	return c.doJSON(ctx, http.MethodPost, "user/password/", nil, payload, nil)
}

// InitServerPKCE asks the backend to mint a PKCE session it keeps custody
// of. Used when UseRemotePKCE is set.
func (c *Client) InitServerPKCE(ctx context.Context) (*PKCESession, error) {
	headers := map[string]string{"X-API-Key": c.config.APIKey}
	payload := map[string]string{"client_id": c.config.OAuthClientID}

	var result PKCESession
	if err := c.doJSON(ctx, http.MethodPost, "oauth/pkce/init/", headers, payload, &result); err != nil {
		return nil, err
	}
	if result.SessionID == "" || result.CodeChallenge == "" {
		return nil, apierror.NewProtocolError("pkce init response missing session material")
	}
	if result.CodeChallengeMethod == "" {
		result.CodeChallengeMethod = "S256"
	}
	return &result, nil
}
