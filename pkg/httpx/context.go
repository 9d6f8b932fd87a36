package httpx

import "context"

type ctxKey string

const (
	CtxKeySubject  ctxKey = "subject"
	CtxKeyScopes   ctxKey = "scopes"
	CtxKeyIdentity ctxKey = "identity"
)

// IdentityFromContext returns the verified identity attached by
// AuthnMiddleware, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(CtxKeyIdentity).(Identity)
	return id, ok
}

func scopesFromCtx(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxKeyScopes).([]string); ok {
		return v
	}
	return nil
}
