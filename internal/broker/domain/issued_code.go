package domain

import "time"

// IssuedCode is a broker-minted authorization code bound to the token set
// obtained from the upstream provider. Single use: redemption removes the
// record atomically.
type IssuedCode struct {
	// CodeHash is the fingerprint of the plaintext code. The plaintext is
	// only ever present in the redirect back to the downstream client.
	CodeHash string

	ClientID    string
	RedirectURI string

	// CodeChallenge and CodeChallengeMethod are carried forward from the
	// pending authorization, to be checked against the code_verifier at the
	// token endpoint.
	CodeChallenge       string
	CodeChallengeMethod string

	// Tokens is the upstream token set the code redeems for.
	Tokens TokenSet

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the code has outlived its TTL.
func (c IssuedCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
