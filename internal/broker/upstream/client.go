// Package upstream talks to the identity provider the broker delegates to.
// The broker plays an ordinary OAuth client on this leg: it sends users to
// the provider's authorize endpoint, exchanges and refreshes codes at its
// token endpoint, and resolves bearer tokens to identities at its whoami
// endpoint.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ledgerly/agentgate/internal/broker/domain"
	"github.com/ledgerly/agentgate/pkg/jwtx"
)

// Error is a failure reported by the upstream provider. Status is the HTTP
// status the provider answered with and Message carries its error body
// verbatim, so operators can see exactly what the provider said.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
}

// Config describes the upstream provider's endpoints and the broker's own
// client registration with it.
type Config struct {
	ClientID     string
	ClientSecret string

	AuthorizeURL string
	TokenURL     string
	WhoamiURL    string

	// RedirectURL is the broker's callback, registered with the provider.
	RedirectURL string

	// Timeout bounds every upstream HTTP call.
	Timeout time.Duration
}

// Client is an HTTP client for the upstream provider.
type Client struct {
	oauth  oauth2.Config
	whoami string
	http   *http.Client
}

// DefaultTimeout bounds upstream calls when the config does not say
// otherwise.
const DefaultTimeout = 15 * time.Second

// New creates an upstream client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		whoami: cfg.WhoamiURL,
		http:   &http.Client{Timeout: timeout},
	}
}

// GenerateVerifier returns a fresh PKCE verifier for the upstream leg.
func (c *Client) GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// AuthorizeURL builds the provider's authorization URL. state is the
// broker's correlation key and verifier is the broker's own PKCE verifier,
// sent as an S256 challenge.
func (c *Client) AuthorizeURL(state, verifier string, scopes []string) string {
	cfg := c.oauth
	cfg.Scopes = scopes
	return cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange redeems an upstream authorization code for a token set.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (domain.TokenSet, error) {
	ctx = contextWithHTTPClient(ctx, c.http)

	token, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return domain.TokenSet{}, mapOAuthError(err)
	}
	return tokenSetFromOAuth(token), nil
}

// Refresh exchanges a refresh token for a fresh token set. The optional
// scope narrows the grant; an empty slice keeps the original scope. This is
// a manual POST rather than oauth2.TokenSource because the scope parameter
// must be forwarded and the provider's error body surfaced verbatim.
func (c *Client) Refresh(ctx context.Context, refreshToken string, scopes []string) (domain.TokenSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.oauth.ClientID},
	}
	if c.oauth.ClientSecret != "" {
		form.Set("client_secret", c.oauth.ClientSecret)
	}
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauth.Endpoint.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return domain.TokenSet{}, &Error{Status: http.StatusGatewayTimeout, Message: "refresh request timed out"}
		}
		return domain.TokenSet{}, fmt.Errorf("upstream refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("failed to read upstream response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.TokenSet{}, &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var wire struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
		Scope        string `json:"scope"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return domain.TokenSet{}, fmt.Errorf("failed to decode upstream token response: %w", err)
	}

	set := domain.TokenSet{
		AccessToken:  wire.AccessToken,
		RefreshToken: wire.RefreshToken,
		TokenType:    wire.TokenType,
		Scope:        wire.Scope,
	}
	if wire.ExpiresIn > 0 {
		set.ExpiresAt = time.Now().Add(time.Duration(wire.ExpiresIn) * time.Second)
	} else {
		set.ExpiresAt = bestEffortExpiry(wire.AccessToken)
	}
	return set, nil
}

// Whoami resolves an access token to the principal it belongs to. An
// upstream 401/403 means the token is invalid; any other failure is an
// upstream error.
func (c *Client) Whoami(ctx context.Context, accessToken string) (domain.Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.whoami, nil)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("failed to create whoami request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return domain.Principal{}, &Error{Status: http.StatusGatewayTimeout, Message: "whoami request timed out"}
		}
		return domain.Principal{}, fmt.Errorf("upstream whoami request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Principal{}, fmt.Errorf("failed to read upstream response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.Principal{}, &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var wire struct {
		ID     string `json:"id"`
		UserID string `json:"user_id"`
		Sub    string `json:"sub"`
		Email  string `json:"email"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return domain.Principal{}, fmt.Errorf("failed to decode upstream whoami response: %w", err)
	}

	userID := wire.ID
	if userID == "" {
		userID = wire.UserID
	}
	if userID == "" {
		userID = wire.Sub
	}

	return domain.Principal{
		UserID:    userID,
		Email:     wire.Email,
		Scopes:    jwtx.PeekScope(accessToken),
		ExpiresAt: bestEffortExpiry(accessToken),
	}, nil
}

// IsInvalidToken reports whether err is an upstream rejection of the
// presented credentials rather than a provider failure.
func IsInvalidToken(err error) bool {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Status == http.StatusUnauthorized || ue.Status == http.StatusForbidden
	}
	return false
}

// fallbackTokenLifetime is assumed when the token carries no readable exp
// claim and the provider reported no expires_in.
const fallbackTokenLifetime = time.Hour

// bestEffortExpiry decodes the token's exp claim without verifying the
// signature. Trust in the token is established by the provider itself, the
// claim is only read for cache lifetimes.
func bestEffortExpiry(accessToken string) time.Time {
	if exp, ok := jwtx.PeekExpiry(accessToken); ok {
		return exp
	}
	return time.Now().Add(fallbackTokenLifetime)
}

func tokenSetFromOAuth(token *oauth2.Token) domain.TokenSet {
	set := domain.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.Expiry,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		set.Scope = scope
	}
	if set.ExpiresAt.IsZero() {
		set.ExpiresAt = bestEffortExpiry(token.AccessToken)
	}
	return set
}

func mapOAuthError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		msg := strings.TrimSpace(string(retrieveErr.Body))
		if msg == "" {
			msg = retrieveErr.ErrorCode
		}
		return &Error{
			Status:  retrieveErr.Response.StatusCode,
			Message: msg,
		}
	}
	if isTimeout(err) {
		return &Error{Status: http.StatusGatewayTimeout, Message: "token request timed out"}
	}
	return fmt.Errorf("upstream exchange failed: %w", err)
}

// isTimeout reports whether a transport error was caused by the request
// deadline rather than a provider response.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func contextWithHTTPClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}
