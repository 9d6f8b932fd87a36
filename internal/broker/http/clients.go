package http

import (
	"net/http"
	"time"

	"github.com/ledgerly/agentgate/internal/broker/domain"
	"github.com/ledgerly/agentgate/internal/broker/service"
	"github.com/ledgerly/agentgate/pkg/gatesdk"
	"github.com/ledgerly/agentgate/pkg/httpx"
	"github.com/ledgerly/agentgate/pkg/slogx"
)

// ClientsHandler serves GET /v1/clients, listing registered clients for
// operators. Secret hashes never leave the service layer; the response only
// flags whether a secret exists.
type ClientsHandler struct {
	ClientService *service.ClientService
}

func (h *ClientsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clients, err := h.ClientService.List(ctx)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list clients", "error", err)
		gatesdk.ErrServerError.WriteError(w)
		return
	}

	infos := make([]gatesdk.ClientInfo, len(clients))
	for i, client := range clients {
		infos[i] = clientInfo(client)
	}

	httpx.WriteJSON(w, http.StatusOK, gatesdk.ListClientsResponse{Clients: infos})
}

func clientInfo(c domain.Client) gatesdk.ClientInfo {
	return gatesdk.ClientInfo{
		ID:                      c.ID,
		Name:                    c.Name,
		RedirectURIs:            c.RedirectURIs,
		TokenEndpointAuthMethod: c.AuthMethod,
		HasSecret:               c.SecretHash != "",
		CreatedAt:               c.CreatedAt.Format(time.RFC3339),
	}
}
