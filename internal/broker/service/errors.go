package service

import "errors"

// Sentinel errors the HTTP layer maps onto RFC 6749 error responses.
var (
	// ErrInvalidClient covers unknown clients and failed client
	// authentication.
	ErrInvalidClient = errors.New("invalid_client")

	// ErrInvalidRedirectURI is returned when a redirect URI does not
	// exactly match one registered for the client.
	ErrInvalidRedirectURI = errors.New("invalid_redirect_uri")

	// ErrInvalidRequest covers malformed or incomplete requests.
	ErrInvalidRequest = errors.New("invalid_request")

	// ErrFlowNotFound is returned when a callback arrives with a state that
	// is unknown, already consumed, or expired. A replayed callback gets
	// this without any upstream call being made.
	ErrFlowNotFound = errors.New("authorization state not found or expired")

	// ErrCodeNotFound is returned when a token request presents a code that
	// is unknown, already redeemed, or expired.
	ErrCodeNotFound = errors.New("authorization code not found or already used")

	// ErrPKCEVerificationFailed is returned when the code_verifier does not
	// match the challenge bound to the code.
	ErrPKCEVerificationFailed = errors.New("pkce verification failed")

	// ErrInvalidToken is returned when the upstream provider rejects a
	// bearer token.
	ErrInvalidToken = errors.New("invalid or expired access token")

	// ErrSessionNotFound is returned when a serving session is unknown,
	// expired, or torn down because upstream revoked its grant.
	ErrSessionNotFound = errors.New("session not found or expired")
)
