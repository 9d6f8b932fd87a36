package gatesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ledgerly/agentgate/pkg/cryptox"
)

// Client is a client for the agentgate delegation broker.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new broker client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// PKCEChallenge holds a PKCE verifier and challenge pair. The verifier is
// kept secret by the client and the challenge is sent to the authorization
// endpoint.
type PKCEChallenge struct {
	// Verifier is the high-entropy random string (kept secret).
	Verifier string

	// Challenge is the base64url-encoded SHA256 hash of the verifier.
	Challenge string

	// Method is always "S256".
	Method string
}

// GeneratePKCEChallenge creates a new PKCE code verifier and challenge pair
// per RFC 7636.
func GeneratePKCEChallenge() (*PKCEChallenge, error) {
	verifier, err := cryptox.GenerateVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	return &PKCEChallenge{
		Verifier:  verifier,
		Challenge: cryptox.DeriveChallenge(verifier),
		Method:    cryptox.PKCEMethodS256,
	}, nil
}

// Register performs dynamic client registration against POST /oauth2/register.
func (c *Client) Register(ctx context.Context, req RegistrationRequest) (*RegistrationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registration request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/oauth2/register", bytes.NewReader(body), map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, err
	}

	var reg RegistrationResponse
	if err := decodeJSON(resp, &reg, http.StatusCreated); err != nil {
		return nil, err
	}
	return &reg, nil
}

// BuildAuthorizeURL constructs the authorization URL for the code flow. The
// caller should direct the user's browser to the returned URL.
//
// The state parameter is opaque to the broker and echoed back on the
// client's redirect URI; callers should use it for CSRF protection.
func (c *Client) BuildAuthorizeURL(
	clientID, redirectURI, state string,
	scopes []string,
	pkce *PKCEChallenge,
) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", clientID)
	params.Set("redirect_uri", redirectURI)

	if state != "" {
		params.Set("state", state)
	}
	if len(scopes) > 0 {
		params.Set("scope", strings.Join(scopes, " "))
	}
	if pkce != nil {
		params.Set("code_challenge", pkce.Challenge)
		params.Set("code_challenge_method", pkce.Method)
	}

	return fmt.Sprintf("%s/oauth2/authorize?%s", c.BaseURL, params.Encode())
}

// ParseAuthorizationCallback parses the redirect URL the broker sent the
// user's browser back to, extracting the authorization code and state.
//
// Returns an error if the callback carries an OAuth2 error response instead
// of a code. Callers must verify the returned state matches what they sent.
func ParseAuthorizationCallback(callbackURL string) (code, state string, err error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse callback URL: %w", err)
	}

	query := u.Query()
	if errorCode := query.Get("error"); errorCode != "" {
		return "", "", &OAuth2Error{
			StatusCode:  http.StatusBadRequest,
			Code:        errorCode,
			Description: query.Get("error_description"),
		}
	}

	code = query.Get("code")
	if code == "" {
		return "", "", fmt.Errorf("callback missing authorization code")
	}

	return code, query.Get("state"), nil
}

// ExchangeAuthorizationCode exchanges an authorization code for tokens.
// codeVerifier is the PKCE verifier from the original challenge; pass an
// empty string only if no challenge was sent on the authorize request.
func (c *Client) ExchangeAuthorizationCode(
	ctx context.Context,
	clientID, code, redirectURI, codeVerifier string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
	}
	if clientID != "" {
		data.Set("client_id", clientID)
	}
	if redirectURI != "" {
		data.Set("redirect_uri", redirectURI)
	}
	if codeVerifier != "" {
		data.Set("code_verifier", codeVerifier)
	}

	return c.requestToken(ctx, data)
}

// RefreshToken exchanges a refresh token for a fresh token set. scopes may
// narrow the requested scope; leave it empty to keep the original grant.
func (c *Client) RefreshToken(
	ctx context.Context,
	clientID, refreshToken string,
	scopes []string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	if clientID != "" {
		data.Set("client_id", clientID)
	}
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}

	return c.requestToken(ctx, data)
}

// Revoke posts a token to the revocation endpoint. The broker accepts the
// request for interface compatibility; revocation of upstream tokens is not
// supported, so this always succeeds for well-formed requests.
func (c *Client) Revoke(ctx context.Context, token string) error {
	data := url.Values{"token": {token}}

	resp, err := c.doRequest(ctx, http.MethodPost, "/oauth2/revoke",
		strings.NewReader(data.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return parseErrorResponse(resp, body)
}

// Metadata fetches the RFC 8414 server metadata document.
func (c *Client) Metadata(ctx context.Context) (*ServerMetadata, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/.well-known/oauth-authorization-server", nil, nil)
	if err != nil {
		return nil, err
	}

	var meta ServerMetadata
	if err := decodeJSON(resp, &meta, http.StatusOK); err != nil {
		return nil, err
	}
	return &meta, nil
}

// UserInfo returns the principal behind an access token via GET /v1/userinfo.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/userinfo", nil, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	if err != nil {
		return nil, err
	}

	var info UserInfo
	if err := decodeJSON(resp, &info, http.StatusOK); err != nil {
		return nil, err
	}
	return &info, nil
}

// Clients lists the registered clients via GET /v1/clients. Requires a
// bearer token carrying the write scope.
func (c *Client) Clients(ctx context.Context, accessToken string) (*ListClientsResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/clients", nil, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	if err != nil {
		return nil, err
	}

	var list ListClientsResponse
	if err := decodeJSON(resp, &list, http.StatusOK); err != nil {
		return nil, err
	}
	return &list, nil
}

// requestToken posts form data to the token endpoint and decodes the result.
func (c *Client) requestToken(ctx context.Context, data url.Values) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/oauth2/token",
		strings.NewReader(data.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	if err != nil {
		return nil, err
	}

	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokens, nil
}

func (c *Client) doRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// decodeJSON decodes a JSON response into target, returning a typed
// OAuth2Error when the status code does not match expectedStatus.
func decodeJSON(resp *http.Response, target any, expectedStatus int) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expectedStatus {
		return parseErrorResponse(resp, body)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
