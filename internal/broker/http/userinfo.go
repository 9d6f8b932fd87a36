package http

import (
	"context"
	"net/http"

	"github.com/ledgerly/agentgate/internal/broker/service"
	"github.com/ledgerly/agentgate/pkg/gatesdk"
	"github.com/ledgerly/agentgate/pkg/httpx"
)

// tokenVerifier adapts TokenService.VerifyAccessToken to the middleware's
// TokenVerifier interface.
type tokenVerifier struct {
	TokenService *service.TokenService
}

func (v *tokenVerifier) Verify(ctx context.Context, token string) (httpx.Identity, error) {
	principal, err := v.TokenService.VerifyAccessToken(ctx, token)
	if err != nil {
		return httpx.Identity{}, err
	}
	return httpx.Identity{
		Subject:   principal.UserID,
		Email:     principal.Email,
		Scopes:    principal.Scopes,
		ExpiresAt: principal.ExpiresAt,
	}, nil
}

// UserInfoHandler serves GET /v1/userinfo for tokens already verified by
// the authentication middleware.
type UserInfoHandler struct{}

func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := httpx.IdentityFromContext(r.Context())
	if !ok {
		gatesdk.ErrInvalidToken.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, gatesdk.UserInfo{
		Subject: identity.Subject,
		Email:   identity.Email,
		Scopes:  identity.Scopes,
	})
}
