package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ledgerly/agentgate/internal/broker/domain"
	"github.com/ledgerly/agentgate/internal/broker/store"
	"github.com/ledgerly/agentgate/internal/broker/upstream"
	"github.com/ledgerly/agentgate/pkg/cryptox"
	"github.com/ledgerly/agentgate/pkg/idx"
	"github.com/ledgerly/agentgate/pkg/slogx"
)

// PKCEPolicy selects who verifies the downstream PKCE challenge at
// redemption time.
type PKCEPolicy int

const (
	// PKCEEnforceLocal verifies the code_verifier against the stored
	// challenge during ExchangeAuthorizationCode. This is the default.
	PKCEEnforceLocal PKCEPolicy = iota

	// PKCEDelegateToHost skips local verification. The embedding host is
	// expected to pre-validate the verifier itself, using
	// ChallengeForAuthorizationCode to read the stored challenge.
	PKCEDelegateToHost
)

// TokenService redeems broker-minted codes, proxies refreshes upstream, and
// verifies bearer tokens against the provider with a local session cache.
// PKCE is a construction-time choice so hosts with their own validator can
// take over downstream verification.
type TokenService struct {
	Store    store.Store
	Upstream UpstreamClient
	PKCE     PKCEPolicy
}

// ExchangeRequest carries the token endpoint parameters for the
// authorization_code grant. Only Code is required: the code is itself a
// high-entropy single-use credential. ClientID and RedirectURI are checked
// when supplied.
type ExchangeRequest struct {
	Code         string
	ClientID     string
	RedirectURI  string
	CodeVerifier string
}

// ExchangeAuthorizationCode redeems a broker code for the upstream token
// set. Redemption is atomic: a second exchange of the same code returns
// ErrCodeNotFound.
func (s *TokenService) ExchangeAuthorizationCode(ctx context.Context, req ExchangeRequest) (domain.TokenSet, error) {
	l := slogx.FromContext(ctx)

	if req.Code == "" {
		return domain.TokenSet{}, ErrInvalidRequest
	}

	issued, err := s.Store.IssuedCodes().TakeIssuedCodeByHash(ctx, cryptox.FingerprintToken(req.Code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Info("token exchange rejected: code not redeemable")
			return domain.TokenSet{}, ErrCodeNotFound
		}
		return domain.TokenSet{}, err
	}

	if req.ClientID != "" && req.ClientID != issued.ClientID {
		return domain.TokenSet{}, ErrInvalidClient
	}
	if req.RedirectURI != "" && req.RedirectURI != issued.RedirectURI {
		return domain.TokenSet{}, ErrInvalidRedirectURI
	}

	if s.PKCE == PKCEEnforceLocal &&
		!cryptox.VerifyVerifier(issued.CodeChallenge, issued.CodeChallengeMethod, req.CodeVerifier) {
		l.Info("token exchange rejected: pkce verification failed",
			slog.String("client_id", issued.ClientID))
		return domain.TokenSet{}, ErrPKCEVerificationFailed
	}

	l.Info("authorization code redeemed", slog.String("client_id", issued.ClientID))
	return issued.Tokens, nil
}

// ChallengeForAuthorizationCode returns the PKCE challenge bound to a code
// without consuming it. Callers that need to pre-validate a verifier can do
// so and still leave the code redeemable.
func (s *TokenService) ChallengeForAuthorizationCode(ctx context.Context, code string) (challenge, method string, err error) {
	issued, err := s.Store.IssuedCodes().GetIssuedCodeByHash(ctx, cryptox.FingerprintToken(code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", "", ErrCodeNotFound
		}
		return "", "", err
	}
	return issued.CodeChallenge, issued.CodeChallengeMethod, nil
}

// ExchangeRefreshToken forwards a refresh grant to the upstream provider.
// The broker stores nothing: the new token set goes straight back to the
// client, and upstream failures surface as *upstream.Error.
func (s *TokenService) ExchangeRefreshToken(ctx context.Context, refreshToken string, scopes []string) (domain.TokenSet, error) {
	if refreshToken == "" {
		return domain.TokenSet{}, ErrInvalidRequest
	}
	return s.Upstream.Refresh(ctx, refreshToken, scopes)
}

// VerifyAccessToken resolves a bearer token to its principal. Verification
// is delegated to the provider's whoami endpoint; positive results are
// cached by token fingerprint until the token's expiry.
func (s *TokenService) VerifyAccessToken(ctx context.Context, accessToken string) (domain.Principal, error) {
	l := slogx.FromContext(ctx)

	if accessToken == "" {
		return domain.Principal{}, ErrInvalidToken
	}
	fingerprint := cryptox.FingerprintToken(accessToken)

	if cached, err := s.Store.Sessions().GetSessionByFingerprint(ctx, fingerprint); err == nil {
		return cached.Principal, nil
	}

	principal, err := s.Upstream.Whoami(ctx, accessToken)
	if err != nil {
		if upstream.IsInvalidToken(err) {
			// Drop any stale cache entry for a token upstream now rejects.
			_ = s.Store.Sessions().DeleteSessionByFingerprint(ctx, fingerprint)
			return domain.Principal{}, ErrInvalidToken
		}
		return domain.Principal{}, err
	}

	session := domain.Session{
		ID:               idx.New().String(),
		TokenFingerprint: fingerprint,
		Principal:        principal,
		CreatedAt:        time.Now(),
		ExpiresAt:        principal.ExpiresAt,
	}
	if err := s.Store.Sessions().CreateSession(ctx, session); err != nil {
		l.Warn("failed to cache verified session", slog.String("err", err.Error()))
	}

	return principal, nil
}

// RevokeToken accepts a revocation request for interface compatibility.
// The broker holds no token state of its own and the upstream provider
// offers no revocation endpoint, so this is a no-op that always succeeds.
func (s *TokenService) RevokeToken(ctx context.Context, token string) error {
	slogx.FromContext(ctx).Info("revocation request accepted (no-op)")
	return nil
}
