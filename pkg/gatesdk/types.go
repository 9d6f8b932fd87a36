package gatesdk

// ErrorResponse represents a standard OAuth2 error response per RFC 6749.
// This is used internally for parsing HTTP error responses; client code
// should use the OAuth2Error type from errors.go instead.
type ErrorResponse struct {
	// Error is the OAuth2 error code (e.g. "invalid_request").
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error.
	ErrorDescription string `json:"error_description"`
}

// TokenResponse represents the OAuth2 token endpoint response per RFC 6749.
// Returned from POST /oauth2/token for both authorization_code and
// refresh_token grants.
type TokenResponse struct {
	// AccessToken is the token used to authenticate API requests.
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque refresh token used to obtain new access
	// tokens.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in"`

	// Scope is the space-delimited list of scopes granted to this token.
	Scope string `json:"scope,omitempty"`
}

// RegistrationRequest is the dynamic client registration request body,
// following the RFC 7591 field names the broker accepts.
type RegistrationRequest struct {
	// ClientName is a human-readable name for the client.
	ClientName string `json:"client_name"`

	// RedirectURIs lists the exact redirect URIs the client will use. At
	// least one is required.
	RedirectURIs []string `json:"redirect_uris"`

	// TokenEndpointAuthMethod is "none" for public clients (the default) or
	// "client_secret_post" for confidential clients.
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method,omitempty"`
}

// RegistrationResponse is the dynamic client registration response.
type RegistrationResponse struct {
	// ClientID is the broker-issued client identifier.
	ClientID string `json:"client_id"`

	// ClientSecret is the plaintext secret, present only for confidential
	// clients and only in this response.
	ClientSecret string `json:"client_secret,omitempty"`

	// ClientName echoes the registered name.
	ClientName string `json:"client_name"`

	// RedirectURIs echoes the registered redirect URIs.
	RedirectURIs []string `json:"redirect_uris"`

	// TokenEndpointAuthMethod echoes the negotiated auth method.
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method"`

	// ClientIDIssuedAt is the Unix timestamp of registration.
	ClientIDIssuedAt int64 `json:"client_id_issued_at"`
}

// ServerMetadata is the RFC 8414 authorization server metadata document
// served at /.well-known/oauth-authorization-server.
type ServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	RevocationEndpoint                string   `json:"revocation_endpoint,omitempty"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// UserInfo is the response from GET /v1/userinfo, describing the principal
// the presented access token belongs to.
type UserInfo struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email,omitempty"`
	Scopes  []string `json:"scopes,omitempty"`
}

// ClientInfo describes a registered client as returned by the listing
// endpoint. Secrets are never included, only whether one exists.
type ClientInfo struct {
	ID                      string   `json:"client_id"`
	Name                    string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	HasSecret               bool     `json:"has_secret"`
	CreatedAt               string   `json:"created_at"`
}

// ListClientsResponse is the response from GET /v1/clients.
type ListClientsResponse struct {
	Clients []ClientInfo `json:"clients"`
}

// HealthResponse is returned by the /livez and /readyz probes.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the state of the broker's dependencies.
type HealthChecks struct {
	Store string `json:"store"`
}
