// Package http wires the broker's services to their HTTP surface: the
// OAuth2 endpoints, dynamic registration, discovery metadata, userinfo, and
// health probes.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ledgerly/agentgate/internal/broker/service"
	"github.com/ledgerly/agentgate/internal/broker/store"
	"github.com/ledgerly/agentgate/pkg/httpx"
	"github.com/ledgerly/agentgate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store            store.Store
	AuthorizeService *service.AuthorizeService
	TokenService     *service.TokenService
	ClientService    *service.ClientService
}

func NewRouter(issuer, buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerUserinfo()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	authorizeHandler := &AuthorizeHandler{AuthorizeService: r.AuthorizeService}

	// GET /oauth2/authorize - lenient limit, keyed by IP plus client_id so
	// one client cannot exhaust a shared egress IP.
	r.Mux.Handle("GET /oauth2/authorize",
		httpx.Chain(authorizeHandler,
			httpx.RateLimitByIPAndFormField(httpx.LenientLimit, "client_id"),
		),
	)

	// GET /oauth2/callback - lenient limit; the provider redirects the
	// user's browser here.
	callbackHandler := &CallbackHandler{AuthorizeService: r.AuthorizeService}
	r.Mux.Handle("GET /oauth2/callback",
		httpx.Chain(callbackHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /oauth2/token - strict limit, codes and refresh tokens are
	// redeemed here.
	tokenHandler := &TokenHandler{
		TokenService:  r.TokenService,
		ClientService: r.ClientService,
	}
	r.Mux.Handle("POST /oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /oauth2/revoke - moderate limit.
	revokeHandler := &RevokeHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /oauth2/revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /oauth2/register - moderate limit, open registration endpoint.
	registerHandler := &RegisterHandler{ClientService: r.ClientService}
	r.Mux.Handle("POST /oauth2/register",
		httpx.Chain(registerHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// Discovery metadata is public and cacheable by clients.
	r.Mux.Handle("GET /.well-known/oauth-authorization-server",
		httpx.Chain(MetadataHandler(r.issuer),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerUserinfo() {
	verifier := &tokenVerifier{TokenService: r.TokenService}
	h := &UserInfoHandler{}

	secured := httpx.Chain(h,
		httpx.AuthnMiddleware(verifier),
		httpx.RequireAnyScope("read"),
		httpx.RateLimitBySubject(httpx.LenientLimit),
	)

	r.Mux.Handle("GET /v1/userinfo", secured)

	// GET /v1/clients - operator listing, requires the write scope.
	clientsHandler := &ClientsHandler{ClientService: r.ClientService}
	r.Mux.Handle("GET /v1/clients",
		httpx.Chain(clientsHandler,
			httpx.AuthnMiddleware(verifier),
			httpx.RequireAnyScope("write"),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
