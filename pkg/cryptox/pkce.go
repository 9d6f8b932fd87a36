package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE challenge methods per RFC 7636.
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// verifierSize is the entropy (in bytes) behind a generated PKCE verifier.
// 32 bytes encode to 43 base64url characters, the RFC 7636 minimum length.
const verifierSize = 32

// GenerateVerifier produces a random PKCE code verifier satisfying the
// RFC 7636 length and charset constraints (43 URL-safe characters).
func GenerateVerifier() (string, error) {
	return GenerateToken(verifierSize)
}

// DeriveChallenge computes the S256 code challenge for a verifier: the
// base64url encoding, without padding, of its SHA-256 digest.
func DeriveChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyVerifier reports whether verifier satisfies the stored challenge
// under the given method. An empty challenge accepts any verifier (the flow
// was started without PKCE). Comparison is constant-time.
func VerifyVerifier(challenge, method, verifier string) bool {
	if challenge == "" {
		return true
	}
	if verifier == "" {
		return false
	}

	var derived string
	switch method {
	case PKCEMethodPlain:
		derived = verifier
	case PKCEMethodS256, "":
		derived = DeriveChallenge(verifier)
	default:
		return false
	}

	return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
}
