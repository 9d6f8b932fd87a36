package domain

import "time"

// Token endpoint authentication methods a client can register with.
const (
	AuthMethodNone             = "none"
	AuthMethodClientSecretPost = "client_secret_post"
)

// Client is a downstream client registered with the broker via dynamic
// registration. Public clients have no SecretHash.
type Client struct {
	ID           string
	Name         string
	RedirectURIs []string
	SecretHash   string
	AuthMethod   string
	CreatedAt    time.Time
}

// Confidential reports whether the client registered a secret.
func (c Client) Confidential() bool {
	return c.SecretHash != ""
}

// AllowsRedirectURI reports whether uri exactly matches one of the client's
// registered redirect URIs. Matching is byte-exact; no wildcard or prefix
// matching.
func (c Client) AllowsRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}
