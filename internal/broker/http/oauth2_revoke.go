package http

import (
	"net/http"
	"strings"

	"github.com/ledgerly/agentgate/internal/broker/service"
	"github.com/ledgerly/agentgate/pkg/gatesdk"
	"github.com/ledgerly/agentgate/pkg/httpx"
)

// RevokeHandler serves POST /oauth2/revoke (RFC 7009 shape). The broker
// holds no token state, so a well-formed request always succeeds.
type RevokeHandler struct {
	TokenService *service.TokenService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		gatesdk.ErrInvalidContentType.WriteError(w)
		return
	}

	if err := r.ParseForm(); err != nil {
		gatesdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	token := strings.TrimSpace(r.Form.Get("token"))
	if token == "" {
		gatesdk.ErrInvalidRequest.WithDescription("token is required").WriteError(w)
		return
	}

	if err := h.TokenService.RevokeToken(r.Context(), token); err != nil {
		gatesdk.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusOK)
}
