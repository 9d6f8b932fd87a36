package domain

import (
	"strings"
	"time"
)

// TokenSet is the bundle of credentials obtained from the upstream provider
// and passed through to the downstream client unchanged.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresAt    time.Time
}

// ExpiresIn returns the remaining lifetime in whole seconds, clamped at
// zero.
func (t TokenSet) ExpiresIn(now time.Time) int {
	remaining := t.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds())
}

// ScopeList splits the space-delimited Scope field.
func (t TokenSet) ScopeList() []string {
	return strings.Fields(t.Scope)
}

// Principal is the upstream identity behind a verified access token.
type Principal struct {
	UserID    string
	Email     string
	Scopes    []string
	ExpiresAt time.Time
}

// Session is a serving session: a long-lived identifier bound to the token
// set obtained for a principal. The token set inside is refreshed in place
// as it nears expiry; the session itself lives until torn down or until
// ExpiresAt. TokenFingerprint indexes the session by its current access
// token so bearer verification can reuse it as a cache.
type Session struct {
	ID               string
	TokenFingerprint string
	Principal        Principal
	Tokens           TokenSet
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Expired reports whether the session itself has lapsed.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
