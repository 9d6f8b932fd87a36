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

const (
	// DefaultSessionTTL bounds a serving session's total lifetime.
	DefaultSessionTTL = 24 * time.Hour

	// DefaultRefreshSkew is how long before access token expiry a session
	// read triggers an in-place refresh.
	DefaultRefreshSkew = 30 * time.Second
)

// SessionService owns serving sessions: long-lived identifiers mapped to the
// token set delegated to them. Reading a session's tokens refreshes them in
// place when they are close to expiry, so callers always hold a usable
// access token without tracking refresh themselves.
type SessionService struct {
	Store    store.Store
	Upstream UpstreamClient

	// SessionTTL bounds the session lifetime; zero means DefaultSessionTTL.
	SessionTTL time.Duration

	// RefreshSkew is the remaining-lifetime threshold below which tokens
	// are refreshed on read; zero means DefaultRefreshSkew.
	RefreshSkew time.Duration
}

// BeginSession creates a serving session for a principal and the token set
// delegated to it, returning the stored session with its fresh identifier.
func (s *SessionService) BeginSession(ctx context.Context, principal domain.Principal, tokens domain.TokenSet) (domain.Session, error) {
	if tokens.AccessToken == "" {
		return domain.Session{}, ErrInvalidRequest
	}

	now := time.Now()
	session := domain.Session{
		ID:               idx.New().String(),
		TokenFingerprint: cryptox.FingerprintToken(tokens.AccessToken),
		Principal:        principal,
		Tokens:           tokens,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.sessionTTL()),
	}
	if err := s.Store.Sessions().CreateSession(ctx, session); err != nil {
		return domain.Session{}, err
	}

	slogx.FromContext(ctx).Info("serving session started",
		slog.String("session_id", session.ID),
		slog.String("user_id", principal.UserID))
	return session, nil
}

// SessionTokens returns the token set held by a session, refreshing it in
// place when the access token is within the refresh skew of expiry. When
// upstream rejects the refresh grant the session is torn down and
// ErrSessionNotFound is returned; on a transient upstream failure the
// current tokens are served as long as they are still valid.
func (s *SessionService) SessionTokens(ctx context.Context, sessionID string) (domain.TokenSet, error) {
	l := slogx.FromContext(ctx)

	session, err := s.Store.Sessions().GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenSet{}, ErrSessionNotFound
		}
		return domain.TokenSet{}, err
	}

	now := time.Now()
	if session.Tokens.ExpiresAt.After(now.Add(s.refreshSkew())) {
		return session.Tokens, nil
	}
	if session.Tokens.RefreshToken == "" {
		// Nothing to refresh with; serve the tokens until they lapse.
		if session.Tokens.ExpiresAt.After(now) {
			return session.Tokens, nil
		}
		return domain.TokenSet{}, ErrSessionNotFound
	}

	refreshed, err := s.Upstream.Refresh(ctx, session.Tokens.RefreshToken, nil)
	if err != nil {
		var ue *upstream.Error
		if errors.As(err, &ue) && ue.Status >= 400 && ue.Status < 500 {
			// The grant is gone upstream; the session cannot recover.
			_ = s.Store.Sessions().DeleteSessionByID(ctx, sessionID)
			l.Info("serving session torn down: upstream rejected refresh",
				slog.String("session_id", sessionID))
			return domain.TokenSet{}, ErrSessionNotFound
		}
		if session.Tokens.ExpiresAt.After(now) {
			l.Warn("token refresh failed, serving current tokens",
				slog.String("session_id", sessionID), slog.String("err", err.Error()))
			return session.Tokens, nil
		}
		return domain.TokenSet{}, err
	}

	if refreshed.RefreshToken == "" {
		// Provider did not rotate; keep the old refresh token.
		refreshed.RefreshToken = session.Tokens.RefreshToken
	}

	session.Tokens = refreshed
	session.TokenFingerprint = cryptox.FingerprintToken(refreshed.AccessToken)
	if err := s.Store.Sessions().UpdateSession(ctx, session); err != nil {
		return domain.TokenSet{}, err
	}

	l.Info("session tokens refreshed in place", slog.String("session_id", sessionID))
	return refreshed, nil
}

// EndSession tears a session down, discarding its token set.
func (s *SessionService) EndSession(ctx context.Context, sessionID string) error {
	if _, err := s.Store.Sessions().GetSessionByID(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if err := s.Store.Sessions().DeleteSessionByID(ctx, sessionID); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("serving session ended", slog.String("session_id", sessionID))
	return nil
}

func (s *SessionService) sessionTTL() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return DefaultSessionTTL
}

func (s *SessionService) refreshSkew() time.Duration {
	if s.RefreshSkew > 0 {
		return s.RefreshSkew
	}
	return DefaultRefreshSkew
}
