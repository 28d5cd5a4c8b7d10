package authclient

import (
	"io"
	"net/http"
	"strings"

	"github.com/syauth/syauth-go/internal/log"
)

// skipAuthPaths are endpoints that must never carry a bearer token: the
// token endpoint itself and the credential-establishing REST calls.
var skipAuthPaths = []string{
	"/oauth/token",
	"/oauth/pkce/init",
	"/login",
	"/register",
	"/password/reset",
	"/email/verify",
}

// Transport is the bearer-token pipeline. It attaches the current access
// token to outgoing requests, refreshing it first when expired, and on a
// 401 response refreshes once and replays the request. A second 401
// propagates unchanged.
type Transport struct {
	// Base is the underlying round tripper. Nil means http.DefaultTransport.
	Base http.RoundTripper

	client *Client
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if skipAuth(req.URL.Path) {
		return base.RoundTrip(req)
	}

	ctx := req.Context()

	accessToken, err := t.client.GetValidToken(ctx)
	if err != nil {
		// Proceed unauthenticated; the server decides whether the
		// request needs credentials.
		log.LogDebug("Proceeding without bearer token: %v", err)
		accessToken = ""
	}

	outReq := cloneRequest(req)
	if accessToken != "" {
		outReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := base.RoundTrip(outReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || accessToken == "" {
		return resp, nil
	}

	// The token was rejected server-side despite looking fresh locally.
	// Refresh once and replay; a refresh failure or a repeat 401 is final.
	if req.GetBody == nil && req.Body != nil {
		return resp, nil
	}

	if refreshErr := t.client.RefreshAccessToken(ctx); refreshErr != nil {
		return resp, nil
	}
	freshToken := t.client.tokens.Token(ctx)
	if freshToken == "" {
		return resp, nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	retryReq := cloneRequest(req)
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, bodyErr
		}
		retryReq.Body = body
	}
	retryReq.Header.Set("Authorization", "Bearer "+freshToken)

	log.LogDebug("Retrying request after 401 with refreshed token: %s %s", req.Method, req.URL.Path)
	return base.RoundTrip(retryReq)
}

func skipAuth(path string) bool {
	for _, prefix := range skipAuthPaths {
		if strings.Contains(path, prefix) {
			return true
		}
	}
	return false
}

// cloneRequest returns a shallow copy with deep-copied headers, per the
// RoundTripper contract that the original request is not modified.
func cloneRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	return clone
}
