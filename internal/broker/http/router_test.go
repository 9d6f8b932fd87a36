package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerly/agentgate/internal/broker/domain"
	"github.com/ledgerly/agentgate/internal/broker/service"
	"github.com/ledgerly/agentgate/internal/broker/store/memory"
	"github.com/ledgerly/agentgate/internal/broker/upstream"
)

// stubUpstream implements service.UpstreamClient for handler tests.
type stubUpstream struct {
	exchangeErr error
	whoamiErr   error
	principal   domain.Principal
	tokens      domain.TokenSet
}

func (s *stubUpstream) GenerateVerifier() string { return "upstream-verifier" }

func (s *stubUpstream) AuthorizeURL(state, verifier string, scopes []string) string {
	return fmt.Sprintf("https://idp.example.com/oauth/authorize?state=%s&scope=%s",
		url.QueryEscape(state), url.QueryEscape(strings.Join(scopes, " ")))
}

func (s *stubUpstream) Exchange(context.Context, string, string) (domain.TokenSet, error) {
	if s.exchangeErr != nil {
		return domain.TokenSet{}, s.exchangeErr
	}
	return s.tokens, nil
}

func (s *stubUpstream) Refresh(_ context.Context, refreshToken string, scopes []string) (domain.TokenSet, error) {
	if refreshToken != "good-rt" {
		return domain.TokenSet{}, &upstream.Error{Status: http.StatusBadRequest, Message: "refresh rejected"}
	}
	return s.tokens, nil
}

func (s *stubUpstream) Whoami(context.Context, string) (domain.Principal, error) {
	if s.whoamiErr != nil {
		return domain.Principal{}, s.whoamiErr
	}
	return s.principal, nil
}

func testTokens() domain.TokenSet {
	return domain.TokenSet{
		AccessToken:  "up-at",
		RefreshToken: "up-rt",
		TokenType:    "Bearer",
		Scope:        "read write",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func newTestRouter(t *testing.T, fake *stubUpstream) (*Router, *service.ClientService) {
	t.Helper()

	st := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := NewRouter("https://gate.example.com", "test", st, logger)
	r.AuthorizeService = &service.AuthorizeService{Store: st, Upstream: fake}
	r.TokenService = &service.TokenService{Store: st, Upstream: fake}
	r.ClientService = &service.ClientService{Store: st}
	r.ApplyRoutes()

	return r, r.ClientService
}

func registerClient(t *testing.T, clients *service.ClientService) domain.Client {
	t.Helper()

	client, _, err := clients.Register(context.Background(), service.RegisterRequest{
		Name:         "test-agent",
		RedirectURIs: []string{"http://127.0.0.1:8976/callback"},
	})
	require.NoError(t, err)
	return client
}

func doRequest(r *Router, req *http.Request) *httptest.ResponseRecorder {
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func authorizeURL(clientID, redirectURI string, extra url.Values) string {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {redirectURI},
	}
	for k, vs := range extra {
		q[k] = vs
	}
	return "/oauth2/authorize?" + q.Encode()
}

func TestAuthorizeRedirectsUpstream(t *testing.T) {
	t.Parallel()

	r, clients := newTestRouter(t, &stubUpstream{tokens: testTokens()})
	client := registerClient(t, clients)

	rec := doRequest(r, httptest.NewRequest(http.MethodGet,
		authorizeURL(client.ID, client.RedirectURIs[0], url.Values{"state": {"st"}}), nil))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", loc.Host)
	assert.NotEmpty(t, loc.Query().Get("state"))
}

func TestAuthorizeRejectsBadResponseType(t *testing.T) {
	t.Parallel()

	r, clients := newTestRouter(t, &stubUpstream{})
	client := registerClient(t, clients)

	q := url.Values{
		"response_type": {"token"},
		"client_id":     {client.ID},
		"redirect_uri":  {client.RedirectURIs[0]},
	}
	rec := doRequest(r, httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+q.Encode(), nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported_response_type")
}

func TestAuthorizeRejectsUnknownRedirectURI(t *testing.T) {
	t.Parallel()

	r, clients := newTestRouter(t, &stubUpstream{})
	client := registerClient(t, clients)

	rec := doRequest(r, httptest.NewRequest(http.MethodGet,
		authorizeURL(client.ID, "http://evil.example.com/cb", nil), nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_redirect_uri")
}

// runFullFlow walks authorize + callback and returns the downstream code.
func runFullFlow(t *testing.T, r *Router, client domain.Client) string {
	t.Helper()

	rec := doRequest(r, httptest.NewRequest(http.MethodGet,
		authorizeURL(client.ID, client.RedirectURIs[0], url.Values{"state": {"client-state"}}), nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")

	cb := httptest.NewRequest(http.MethodGet,
		"/oauth2/callback?state="+url.QueryEscape(state)+"&code=up-code", nil)
	rec = doRequest(r, cb)
	require.Equal(t, http.StatusFound, rec.Code)

	redirect, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8976", redirect.Host)
	require.Equal(t, "client-state", redirect.Query().Get("state"))

	code := redirect.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func TestFullCodeFlow(t *testing.T) {
	t.Parallel()

	r, clients := newTestRouter(t, &stubUpstream{tokens: testTokens()})
	client := registerClient(t, clients)

	code := runFullFlow(t, r, client)

	form := url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := doRequest(r, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "up-at", resp.AccessToken)
	assert.Equal(t, "up-rt", resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Positive(t, resp.ExpiresIn)

	// The code is single use.
	req = httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = doRequest(r, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_grant")
}

func TestCallbackErrorParamRendersFailurePage(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, &stubUpstream{})

	rec := doRequest(r, httptest.NewRequest(http.MethodGet,
		"/oauth2/callback?error=access_denied&error_description=user+said+no", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "access_denied")
}

func TestCallbackUnknownStateRendersFailurePage(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, &stubUpstream{})

	rec := doRequest(r, httptest.NewRequest(http.MethodGet,
		"/oauth2/callback?state=forged&code=up-code", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestCallbackUpstreamFailureIsBadGateway(t *testing.T) {
	t.Parallel()

	fake := &stubUpstream{
		exchangeErr: &upstream.Error{Status: http.StatusBadRequest, Message: "invalid_grant"},
	}
	r, clients := newTestRouter(t, fake)
	client := registerClient(t, clients)

	rec := doRequest(r, httptest.NewRequest(http.MethodGet,
		authorizeURL(client.ID, client.RedirectURIs[0], nil), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	rec = doRequest(r, httptest.NewRequest(http.MethodGet,
		"/oauth2/callback?state="+url.QueryEscape(loc.Query().Get("state"))+"&code=up-code", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestTokenRejectsWrongContentType(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, &stubUpstream{})

	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := doRequest(r, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "x-www-form-urlencoded")
}

func TestTokenUnsupportedGrantType(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, &stubUpstream{})

	form := url.Values{"grant_type": {"password"}}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := doRequest(r, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported_grant_type")
}

func TestRefreshGrant(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, &stubUpstream{tokens: testTokens()})

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {"good-rt"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := doRequest(r, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRefreshGrantUpstreamRejection(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, &stubUpstream{tokens: testTokens()})

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {"dead-rt"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := doRequest(r, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_grant")
	assert.Contains(t, rec.Body.String(), "refresh rejected")
}

func TestRegisterEndpoint(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, &stubUpstream{})

	body := `{"client_name":"my-agent","redirect_uris":["http://127.0.0.1:9/cb"],"token_endpoint_auth_method":"client_secret_post"}`
	req := httptest.NewRequest(http.MethodPost, "/oauth2/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := doRequest(r, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ClientID)
	assert.NotEmpty(t, resp.ClientSecret)
}

func TestRegisterRejectsBadRedirectURI(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, &stubUpstream{})

	body := `{"client_name":"my-agent","redirect_uris":["/relative"]}`
	req := httptest.NewRequest(http.MethodPost, "/oauth2/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := doRequest(r, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_redirect_uri")
}

func TestRevokeAlwaysSucceeds(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, &stubUpstream{})

	form := url.Values{"token": {"whatever"}}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/revoke", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := doRequest(r, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetadataEndpoint(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, &stubUpstream{})

	rec := doRequest(r, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var meta struct {
		Issuer                string   `json:"issuer"`
		AuthorizationEndpoint string   `json:"authorization_endpoint"`
		GrantTypes            []string `json:"grant_types_supported"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, "https://gate.example.com", meta.Issuer)
	assert.Equal(t, "https://gate.example.com/oauth2/authorize", meta.AuthorizationEndpoint)
	assert.Contains(t, meta.GrantTypes, "authorization_code")
}

func TestUserInfo(t *testing.T) {
	t.Parallel()

	fake := &stubUpstream{
		principal: domain.Principal{
			UserID:    "user-1",
			Email:     "user@example.com",
			Scopes:    []string{"read"},
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}
	r, _ := newTestRouter(t, fake)

	req := httptest.NewRequest(http.MethodGet, "/v1/userinfo", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := doRequest(r, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var info struct {
		Subject string `json:"sub"`
		Email   string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "user-1", info.Subject)
	assert.Equal(t, "user@example.com", info.Email)
}

func TestUserInfoRejectsMissingToken(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, &stubUpstream{})

	rec := doRequest(r, httptest.NewRequest(http.MethodGet, "/v1/userinfo", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestUserInfoRejectsUpstreamRejectedToken(t *testing.T) {
	t.Parallel()

	fake := &stubUpstream{
		whoamiErr: &upstream.Error{Status: http.StatusUnauthorized, Message: "invalid_token"},
	}
	r, _ := newTestRouter(t, fake)

	req := httptest.NewRequest(http.MethodGet, "/v1/userinfo", nil)
	req.Header.Set("Authorization", "Bearer dead-token")
	rec := doRequest(r, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserInfoRequiresScope(t *testing.T) {
	t.Parallel()

	fake := &stubUpstream{
		principal: domain.Principal{
			UserID:    "user-1",
			Scopes:    []string{"admin"},
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}
	r, _ := newTestRouter(t, fake)

	req := httptest.NewRequest(http.MethodGet, "/v1/userinfo", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := doRequest(r, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_scope")
}

func TestListClients(t *testing.T) {
	t.Parallel()

	fake := &stubUpstream{
		principal: domain.Principal{
			UserID:    "operator-1",
			Scopes:    []string{"read", "write"},
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}
	r, clients := newTestRouter(t, fake)
	client := registerClient(t, clients)

	req := httptest.NewRequest(http.MethodGet, "/v1/clients", nil)
	req.Header.Set("Authorization", "Bearer operator-token")
	rec := doRequest(r, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Clients []struct {
			ID         string `json:"client_id"`
			Name       string `json:"client_name"`
			AuthMethod string `json:"token_endpoint_auth_method"`
			HasSecret  bool   `json:"has_secret"`
		} `json:"clients"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Clients, 1)
	assert.Equal(t, client.ID, resp.Clients[0].ID)
	assert.Equal(t, "test-agent", resp.Clients[0].Name)
	assert.Equal(t, "none", resp.Clients[0].AuthMethod)
	assert.False(t, resp.Clients[0].HasSecret)
	assert.NotContains(t, rec.Body.String(), "secret_hash")
}

func TestListClientsRequiresWriteScope(t *testing.T) {
	t.Parallel()

	fake := &stubUpstream{
		principal: domain.Principal{
			UserID:    "user-1",
			Scopes:    []string{"read"},
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}
	r, _ := newTestRouter(t, fake)

	req := httptest.NewRequest(http.MethodGet, "/v1/clients", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := doRequest(r, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_scope")
}

func TestHealthProbes(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, &stubUpstream{})

	rec := doRequest(r, httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = doRequest(r, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"ok"`)
}
