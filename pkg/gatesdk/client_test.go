package gatesdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerly/agentgate/pkg/cryptox"
)

func TestGeneratePKCEChallenge(t *testing.T) {
	t.Parallel()

	pkce, err := GeneratePKCEChallenge()
	require.NoError(t, err)

	assert.Equal(t, "S256", pkce.Method)
	assert.NotEmpty(t, pkce.Verifier)
	assert.True(t, cryptox.VerifyVerifier(pkce.Challenge, pkce.Method, pkce.Verifier))
}

func TestBuildAuthorizeURL(t *testing.T) {
	t.Parallel()

	c := NewClient("https://gate.example.com/")
	pkce := &PKCEChallenge{Verifier: "v", Challenge: "ch", Method: "S256"}

	raw := c.BuildAuthorizeURL("client-1", "http://127.0.0.1:9/cb", "st", []string{"read", "write"}, pkce)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/oauth2/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "http://127.0.0.1:9/cb", q.Get("redirect_uri"))
	assert.Equal(t, "st", q.Get("state"))
	assert.Equal(t, "read write", q.Get("scope"))
	assert.Equal(t, "ch", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
}

func TestParseAuthorizationCallback(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		code, state, err := ParseAuthorizationCallback("http://127.0.0.1:9/cb?code=abc&state=xyz")
		require.NoError(t, err)
		assert.Equal(t, "abc", code)
		assert.Equal(t, "xyz", state)
	})

	t.Run("error response", func(t *testing.T) {
		t.Parallel()

		_, _, err := ParseAuthorizationCallback("http://127.0.0.1:9/cb?error=access_denied&error_description=denied")
		require.Error(t, err)

		var oauthErr *OAuth2Error
		require.ErrorAs(t, err, &oauthErr)
		assert.Equal(t, ErrorCodeAccessDenied, oauthErr.Code)
	})

	t.Run("missing code", func(t *testing.T) {
		t.Parallel()

		_, _, err := ParseAuthorizationCallback("http://127.0.0.1:9/cb?state=xyz")
		require.Error(t, err)
	})
}

func TestExchangeAuthorizationCode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/oauth2/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.FormValue("grant_type"))
		require.Equal(t, "the-code", r.FormValue("code"))
		require.Equal(t, "the-verifier", r.FormValue("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600,"scope":"read write"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	tokens, err := c.ExchangeAuthorizationCode(context.Background(), "client-1", "the-code", "http://127.0.0.1:9/cb", "the-verifier")
	require.NoError(t, err)

	assert.Equal(t, "at", tokens.AccessToken)
	assert.Equal(t, "rt", tokens.RefreshToken)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, 3600, tokens.ExpiresIn)
}

func TestExchangeAuthorizationCodeError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code not found or already used"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ExchangeAuthorizationCode(context.Background(), "client-1", "bad", "", "")
	require.Error(t, err)

	var oauthErr *OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, ErrorCodeInvalidGrant, oauthErr.Code)
	assert.Equal(t, http.StatusBadRequest, oauthErr.StatusCode)
}

func TestRegister(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth2/register", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"client_id":"cid","client_name":"agent","redirect_uris":["http://127.0.0.1:9/cb"],"token_endpoint_auth_method":"none","client_id_issued_at":1700000000}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	reg, err := c.Register(context.Background(), RegistrationRequest{
		ClientName:   "agent",
		RedirectURIs: []string{"http://127.0.0.1:9/cb"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cid", reg.ClientID)
	assert.Empty(t, reg.ClientSecret)
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/.well-known/oauth-authorization-server", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"issuer":"https://gate.example.com","authorization_endpoint":"https://gate.example.com/oauth2/authorize","token_endpoint":"https://gate.example.com/oauth2/token","response_types_supported":["code"],"grant_types_supported":["authorization_code","refresh_token"],"code_challenge_methods_supported":["S256"],"token_endpoint_auth_methods_supported":["none"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	meta, err := c.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://gate.example.com", meta.Issuer)
	assert.Contains(t, meta.GrantTypesSupported, "refresh_token")
}

func TestOAuth2ErrorWithDescription(t *testing.T) {
	t.Parallel()

	custom := ErrInvalidGrant.WithDescription("authorization code not found or already used")
	assert.Equal(t, ErrInvalidGrant.Code, custom.Code)
	assert.Equal(t, ErrInvalidGrant.StatusCode, custom.StatusCode)
	assert.NotEqual(t, ErrInvalidGrant.Description, custom.Description)
	// The shared value is untouched.
	assert.Equal(t, "invalid or expired grant", ErrInvalidGrant.Description)
}
