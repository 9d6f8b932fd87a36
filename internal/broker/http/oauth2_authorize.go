package http

import (
	"errors"
	"net/http"

	"github.com/ledgerly/agentgate/internal/broker/service"
	"github.com/ledgerly/agentgate/pkg/gatesdk"
	"github.com/ledgerly/agentgate/pkg/httpx"
)

// AuthorizeHandler serves GET /oauth2/authorize. It opens a pending flow
// and redirects the user's browser to the upstream provider.
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
}

func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if rt := q.Get("response_type"); rt != "code" {
		gatesdk.ErrUnsupportedResponseType.WriteError(w)
		return
	}

	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	if clientID == "" || redirectURI == "" {
		gatesdk.ErrInvalidRequest.WithDescription("client_id and redirect_uri are required").WriteError(w)
		return
	}

	upstreamURL, err := h.AuthorizeService.Authorize(r.Context(), service.AuthorizeRequest{
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		State:               q.Get("state"),
		Scopes:              httpx.ParseSpaceDelimitedFields(q.Get("scope")),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	})
	if err != nil {
		writeAuthorizeError(w, err)
		return
	}

	httpx.NoCache(w)
	http.Redirect(w, r, upstreamURL, http.StatusFound)
}

// writeAuthorizeError answers in the response body rather than redirecting.
// The redirect URI is not trusted until it validated against the client's
// registration, and by then the only remaining errors are internal.
func writeAuthorizeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidClient):
		gatesdk.NewOAuth2Error(http.StatusBadRequest,
			gatesdk.ErrorCodeInvalidClient, "unknown client").WriteError(w)
	case errors.Is(err, service.ErrInvalidRedirectURI):
		gatesdk.ErrInvalidRedirectURI.WriteError(w)
	case errors.Is(err, service.ErrInvalidRequest):
		gatesdk.ErrInvalidRequest.WriteError(w)
	default:
		gatesdk.ErrServerError.WriteError(w)
	}
}
