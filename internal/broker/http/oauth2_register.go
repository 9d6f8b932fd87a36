package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ledgerly/agentgate/internal/broker/domain"
	"github.com/ledgerly/agentgate/internal/broker/service"
	"github.com/ledgerly/agentgate/pkg/gatesdk"
	"github.com/ledgerly/agentgate/pkg/httpx"
)

// RegisterHandler serves POST /oauth2/register, the RFC 7591-shaped dynamic
// client registration endpoint.
type RegisterHandler struct {
	ClientService *service.ClientService
}

func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/json") {
		gatesdk.ErrInvalidRequest.WithDescription("content-type must be application/json").WriteError(w)
		return
	}

	var req gatesdk.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		gatesdk.ErrInvalidRequest.WithDescription("invalid JSON body").WriteError(w)
		return
	}

	client, secret, err := h.ClientService.Register(r.Context(), service.RegisterRequest{
		Name:         req.ClientName,
		RedirectURIs: req.RedirectURIs,
		AuthMethod:   req.TokenEndpointAuthMethod,
	})
	if err != nil {
		writeRegisterError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, gatesdk.RegistrationResponse{
		ClientID:                client.ID,
		ClientSecret:            secret,
		ClientName:              client.Name,
		RedirectURIs:            client.RedirectURIs,
		TokenEndpointAuthMethod: client.AuthMethod,
		ClientIDIssuedAt:        client.CreatedAt.Unix(),
	})
}

func writeRegisterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRedirectURI):
		gatesdk.ErrInvalidRedirectURI.WithDescription("redirect_uris must contain absolute URIs without fragments").WriteError(w)
	case errors.Is(err, service.ErrInvalidRequest):
		gatesdk.ErrInvalidRequest.WithDescription("client_name is required and token_endpoint_auth_method must be one of "+
			domain.AuthMethodNone+", "+domain.AuthMethodClientSecretPost).WriteError(w)
	default:
		gatesdk.ErrServerError.WriteError(w)
	}
}
