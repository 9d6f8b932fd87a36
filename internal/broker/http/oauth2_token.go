package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ledgerly/agentgate/internal/broker/domain"
	"github.com/ledgerly/agentgate/internal/broker/service"
	"github.com/ledgerly/agentgate/internal/broker/upstream"
	"github.com/ledgerly/agentgate/pkg/gatesdk"
	"github.com/ledgerly/agentgate/pkg/httpx"
)

var timeNow = time.Now

// TokenHandler serves POST /oauth2/token.
// Accepts application/x-www-form-urlencoded per RFC 6749.
type TokenHandler struct {
	TokenService  *service.TokenService
	ClientService *service.ClientService
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		gatesdk.ErrInvalidContentType.WriteError(w)
		return
	}

	if err := r.ParseForm(); err != nil {
		gatesdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	switch r.Form.Get("grant_type") {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(w, r, r.Form)
	case "refresh_token":
		h.handleRefreshGrant(w, r, r.Form)
	default:
		gatesdk.ErrUnsupportedGrantType.WriteError(w)
	}
}

func (h *TokenHandler) handleAuthorizationCodeGrant(
	w http.ResponseWriter,
	r *http.Request,
	form url.Values,
) {
	code := strings.TrimSpace(form.Get("code"))
	if code == "" {
		gatesdk.ErrInvalidRequest.WithDescription("code is required").WriteError(w)
		return
	}

	clientID := strings.TrimSpace(form.Get("client_id"))
	if clientID != "" {
		// Confidential clients must authenticate when they identify
		// themselves.
		if _, err := h.ClientService.Authenticate(r.Context(), clientID, form.Get("client_secret")); err != nil {
			writeTokenError(w, err)
			return
		}
	}

	tokens, err := h.TokenService.ExchangeAuthorizationCode(r.Context(), service.ExchangeRequest{
		Code:         code,
		ClientID:     clientID,
		RedirectURI:  strings.TrimSpace(form.Get("redirect_uri")),
		CodeVerifier: strings.TrimSpace(form.Get("code_verifier")),
	})
	if err != nil {
		writeTokenError(w, err)
		return
	}

	writeTokenResponse(w, tokens)
}

func (h *TokenHandler) handleRefreshGrant(
	w http.ResponseWriter,
	r *http.Request,
	form url.Values,
) {
	refreshToken := strings.TrimSpace(form.Get("refresh_token"))
	if refreshToken == "" {
		gatesdk.ErrInvalidRequest.WithDescription("refresh_token is required").WriteError(w)
		return
	}

	scopes := httpx.ParseSpaceDelimitedFields(form.Get("scope"))

	tokens, err := h.TokenService.ExchangeRefreshToken(r.Context(), refreshToken, scopes)
	if err != nil {
		writeTokenError(w, err)
		return
	}

	writeTokenResponse(w, tokens)
}

func writeTokenResponse(w http.ResponseWriter, tokens domain.TokenSet) {
	tokenType := tokens.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	httpx.WriteJSON(w, http.StatusOK, gatesdk.TokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokenType,
		ExpiresIn:    tokens.ExpiresIn(timeNow()),
		Scope:        tokens.Scope,
	})
}

// writeTokenError maps service errors onto RFC 6749 token endpoint
// responses. Upstream rejections of a refresh token surface as
// invalid_grant with the provider's status preserved in the description.
func writeTokenError(w http.ResponseWriter, err error) {
	var ue *upstream.Error
	switch {
	case errors.Is(err, service.ErrCodeNotFound):
		gatesdk.ErrInvalidGrant.WithDescription("authorization code not found or already used").WriteError(w)
	case errors.Is(err, service.ErrPKCEVerificationFailed):
		gatesdk.ErrInvalidGrant.WithDescription("code_verifier does not match the challenge").WriteError(w)
	case errors.Is(err, service.ErrInvalidClient):
		gatesdk.ErrInvalidClient.WriteError(w)
	case errors.Is(err, service.ErrInvalidRedirectURI):
		gatesdk.ErrInvalidGrant.WithDescription("redirect_uri does not match the authorization request").WriteError(w)
	case errors.Is(err, service.ErrInvalidRequest):
		gatesdk.ErrInvalidRequest.WriteError(w)
	case errors.As(err, &ue):
		if ue.Status >= 400 && ue.Status < 500 {
			gatesdk.ErrInvalidGrant.WithDescription(ue.Message).WriteError(w)
			return
		}
		gatesdk.ErrUpstreamUnavailable.WriteError(w)
	default:
		gatesdk.ErrServerError.WriteError(w)
	}
}
