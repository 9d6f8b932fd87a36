package domain

import "time"

// PendingAuthorization is a downstream authorization request waiting for the
// upstream provider to call back. The correlation key doubles as the state
// parameter on the upstream leg, so the callback can find this record.
//
// The record carries both halves of the correlated flow: the downstream
// client's PKCE challenge (verified later at the token endpoint) and the
// broker's own upstream PKCE verifier (spent during the upstream code
// exchange).
type PendingAuthorization struct {
	// CorrelationKey is the high-entropy value sent upstream as state.
	// Stored fingerprinted; the plaintext exists only in the upstream URL.
	CorrelationKey string

	ClientID    string
	RedirectURI string

	// State is the downstream client's own state, echoed back verbatim on
	// the final redirect.
	State string

	Scopes []string

	// CodeChallenge and CodeChallengeMethod are the downstream client's
	// PKCE parameters, carried forward to the issued code.
	CodeChallenge       string
	CodeChallengeMethod string

	// UpstreamVerifier is the broker's PKCE verifier for the upstream leg.
	UpstreamVerifier string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the pending authorization has outlived its TTL.
func (p PendingAuthorization) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
