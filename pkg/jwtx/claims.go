// Package jwtx provides best-effort inspection of JWT claims without
// signature verification. The broker never trusts these values on their own:
// a token is only inspected after the upstream identity provider has already
// accepted it, so the decode is a hint (expiry, subject) rather than a trust
// decision.
package jwtx

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotDecodable reports a token that is not a structurally valid JWT.
var ErrNotDecodable = errors.New("jwtx: token is not a decodable JWT")

// unverifiedParser never validates signatures or claims; callers own the
// trust decision.
var unverifiedParser = jwt.NewParser(jwt.WithoutClaimsValidation())

// PeekClaims decodes a JWT's registered claims without verifying the
// signature. Opaque (non-JWT) tokens return ErrNotDecodable.
func PeekClaims(token string) (jwt.MapClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNotDecodable
	}

	claims := jwt.MapClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(token, claims); err != nil {
		return nil, ErrNotDecodable
	}
	return claims, nil
}

// PeekExpiry returns the token's exp claim. ok is false when the token is
// not a JWT or carries no usable expiry.
func PeekExpiry(token string) (time.Time, bool) {
	claims, err := PeekClaims(token)
	if err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// PeekScope returns the token's space-delimited scope claim split into
// fields, or nil when absent or not decodable.
func PeekScope(token string) []string {
	claims, err := PeekClaims(token)
	if err != nil {
		return nil
	}

	raw, ok := claims["scope"].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Fields(raw)
}
