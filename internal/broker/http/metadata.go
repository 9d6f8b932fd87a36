package http

import (
	"net/http"
	"strings"

	"github.com/ledgerly/agentgate/internal/broker/domain"
	"github.com/ledgerly/agentgate/pkg/gatesdk"
	"github.com/ledgerly/agentgate/pkg/httpx"
)

// MetadataHandler serves the RFC 8414 authorization server metadata
// document so downstream clients can discover the broker's endpoints.
func MetadataHandler(issuer string) http.HandlerFunc {
	issuer = strings.TrimSuffix(issuer, "/")

	metadata := gatesdk.ServerMetadata{
		Issuer:                        issuer,
		AuthorizationEndpoint:         issuer + "/oauth2/authorize",
		TokenEndpoint:                 issuer + "/oauth2/token",
		RegistrationEndpoint:          issuer + "/oauth2/register",
		RevocationEndpoint:            issuer + "/oauth2/revoke",
		UserinfoEndpoint:              issuer + "/v1/userinfo",
		ResponseTypesSupported:        []string{"code"},
		GrantTypesSupported:           []string{"authorization_code", "refresh_token"},
		CodeChallengeMethodsSupported: []string{"S256", "plain"},
		TokenEndpointAuthMethodsSupported: []string{
			domain.AuthMethodNone,
			domain.AuthMethodClientSecretPost,
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, metadata)
	}
}
