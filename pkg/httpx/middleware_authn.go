package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ledgerly/agentgate/pkg/slogx"
)

// Identity is the result of verifying a bearer token.
type Identity struct {
	Subject   string
	Email     string
	Scopes    []string
	ExpiresAt time.Time
}

// TokenVerifier decides whether a bearer token is valid. Implementations may
// call out to an upstream identity provider, so they take a context.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// AuthnMiddleware enforces bearer authentication on every request: the token
// is passed to v and the request is rejected with 401 unless verification
// succeeds. The verified identity is attached to the request context.
func AuthnMiddleware(v TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			identity, err := v.Verify(ctx, raw)
			if err != nil {
				log.Warn("bearer token rejected", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithIdentity(ctx, identity)))
		})
	}
}

func contextWithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, CtxKeySubject, id.Subject)
	ctx = context.WithValue(ctx, CtxKeyScopes, id.Scopes)
	ctx = context.WithValue(ctx, CtxKeyIdentity, id)
	return ctx
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}
