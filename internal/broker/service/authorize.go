package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ledgerly/agentgate/internal/broker/domain"
	"github.com/ledgerly/agentgate/internal/broker/store"
	"github.com/ledgerly/agentgate/internal/broker/upstream"
	"github.com/ledgerly/agentgate/pkg/cryptox"
	"github.com/ledgerly/agentgate/pkg/slogx"
)

const (
	// DefaultPendingTTL bounds how long the user has to finish the upstream
	// leg before the flow is abandoned.
	DefaultPendingTTL = 10 * time.Minute

	// DefaultCodeTTL bounds how long a minted authorization code stays
	// redeemable.
	DefaultCodeTTL = 5 * time.Minute
)

// DefaultScopes is requested when the downstream client asks for none.
var DefaultScopes = []string{"read", "write"}

// UpstreamClient is the provider-facing surface the authorize and token
// services need.
type UpstreamClient interface {
	GenerateVerifier() string
	AuthorizeURL(state, verifier string, scopes []string) string
	Exchange(ctx context.Context, code, verifier string) (domain.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string, scopes []string) (domain.TokenSet, error)
	Whoami(ctx context.Context, accessToken string) (domain.Principal, error)
}

// AuthorizeService runs the two correlated halves of the code flow: it
// opens a pending authorization when a downstream client arrives, and
// closes it when the upstream provider calls back.
type AuthorizeService struct {
	Store    store.Store
	Upstream UpstreamClient

	PendingTTL time.Duration
	CodeTTL    time.Duration
}

// AuthorizeRequest is a validated downstream authorization request.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	State               string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Authorize validates the downstream request, records a pending
// authorization, and returns the upstream URL the user's browser should be
// redirected to. The correlation key travels upstream as state; only its
// fingerprint is stored.
func (s *AuthorizeService) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	l := slogx.FromContext(ctx)
	now := time.Now()

	client, err := s.Store.Clients().GetClientByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidClient
		}
		return "", err
	}

	if !client.AllowsRedirectURI(req.RedirectURI) {
		l.Info("authorize rejected: redirect_uri not registered",
			slog.String("client_id", req.ClientID),
			slog.String("redirect_uri", req.RedirectURI))
		return "", ErrInvalidRedirectURI
	}

	if req.CodeChallenge != "" {
		method := req.CodeChallengeMethod
		if method != "" && method != cryptox.PKCEMethodS256 && method != cryptox.PKCEMethodPlain {
			return "", ErrInvalidRequest
		}
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	correlationKey, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", fmt.Errorf("failed to generate correlation key: %w", err)
	}
	upstreamVerifier := s.Upstream.GenerateVerifier()

	pending := domain.PendingAuthorization{
		CorrelationKey:      cryptox.FingerprintToken(correlationKey),
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		State:               req.State,
		Scopes:              scopes,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		UpstreamVerifier:    upstreamVerifier,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.pendingTTL()),
	}
	if err := s.Store.PendingFlows().CreatePendingFlow(ctx, pending.CorrelationKey, pending); err != nil {
		return "", fmt.Errorf("failed to store pending authorization: %w", err)
	}

	l.Info("authorization flow opened",
		slog.String("client_id", req.ClientID),
		slog.String("scopes", strings.Join(scopes, " ")))

	return s.Upstream.AuthorizeURL(correlationKey, upstreamVerifier, scopes), nil
}

// HandleUpstreamCallback closes a pending flow: it consumes the pending
// record, exchanges the upstream code, mints a single-use downstream code
// bound to the obtained token set, and returns the redirect URL for the
// downstream client.
//
// The pending record is consumed before any network call, so a replayed
// callback fails fast with ErrFlowNotFound and never reaches the provider.
func (s *AuthorizeService) HandleUpstreamCallback(ctx context.Context, state, upstreamCode string) (string, error) {
	l := slogx.FromContext(ctx)
	now := time.Now()

	pending, err := s.Store.PendingFlows().TakePendingFlow(ctx, cryptox.FingerprintToken(state))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrFlowNotFound
		}
		return "", err
	}

	tokens, err := s.Upstream.Exchange(ctx, upstreamCode, pending.UpstreamVerifier)
	if err != nil {
		// The pending record is already gone: a failed exchange leaves no
		// redeemable state behind.
		var ue *upstream.Error
		if errors.As(err, &ue) {
			l.Warn("upstream code exchange failed",
				slog.String("client_id", pending.ClientID),
				slog.Int("upstream_status", ue.Status))
		}
		return "", err
	}

	code, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}

	issued := domain.IssuedCode{
		CodeHash:            cryptox.FingerprintToken(code),
		ClientID:            pending.ClientID,
		RedirectURI:         pending.RedirectURI,
		CodeChallenge:       pending.CodeChallenge,
		CodeChallengeMethod: pending.CodeChallengeMethod,
		Tokens:              tokens,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.codeTTL()),
	}
	if err := s.Store.IssuedCodes().CreateIssuedCode(ctx, issued); err != nil {
		return "", fmt.Errorf("failed to store authorization code: %w", err)
	}

	l.Info("authorization flow completed", slog.String("client_id", pending.ClientID))

	return buildCallbackRedirect(pending.RedirectURI, code, pending.State)
}

func (s *AuthorizeService) pendingTTL() time.Duration {
	if s.PendingTTL > 0 {
		return s.PendingTTL
	}
	return DefaultPendingTTL
}

func (s *AuthorizeService) codeTTL() time.Duration {
	if s.CodeTTL > 0 {
		return s.CodeTTL
	}
	return DefaultCodeTTL
}

func buildCallbackRedirect(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("stored redirect URI is not parseable: %w", err)
	}

	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
