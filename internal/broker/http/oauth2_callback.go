package http

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/ledgerly/agentgate/internal/broker/service"
	"github.com/ledgerly/agentgate/internal/broker/upstream"
	"github.com/ledgerly/agentgate/pkg/httpx"
)

// CallbackHandler serves GET /oauth2/callback, the redirect target the
// broker registers with the upstream provider. This endpoint faces the
// user's browser, so failures render an HTML page instead of JSON.
type CallbackHandler struct {
	AuthorizeService *service.AuthorizeService
}

var failurePage = template.Must(template.New("failure").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorization failed</title></head>
<body>
<h1>Authorization failed</h1>
<p>{{.Message}}</p>
<p>Close this window and try again from your application.</p>
</body>
</html>
`))

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// The provider reports denial or failure via the error parameter. The
	// pending flow is left to expire on its own.
	if errCode := q.Get("error"); errCode != "" {
		msg := errCode
		if desc := q.Get("error_description"); desc != "" {
			msg = errCode + ": " + desc
		}
		renderFailure(w, http.StatusBadRequest, "The identity provider reported an error ("+msg+").")
		return
	}

	state := q.Get("state")
	code := q.Get("code")
	if state == "" || code == "" {
		renderFailure(w, http.StatusBadRequest, "The callback is missing required parameters.")
		return
	}

	redirect, err := h.AuthorizeService.HandleUpstreamCallback(r.Context(), state, code)
	if err != nil {
		writeCallbackError(w, err)
		return
	}

	httpx.NoCache(w)
	http.Redirect(w, r, redirect, http.StatusFound)
}

func writeCallbackError(w http.ResponseWriter, err error) {
	var ue *upstream.Error
	switch {
	case errors.Is(err, service.ErrFlowNotFound):
		renderFailure(w, http.StatusBadRequest,
			"This authorization attempt is unknown, expired, or was already completed.")
	case errors.As(err, &ue):
		renderFailure(w, http.StatusBadGateway,
			"The identity provider rejected the authorization. Start over from your application.")
	default:
		renderFailure(w, http.StatusInternalServerError, "An internal error occurred.")
	}
}

func renderFailure(w http.ResponseWriter, status int, message string) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = failurePage.Execute(w, struct{ Message string }{Message: message})
}
