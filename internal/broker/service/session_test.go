package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerly/agentgate/internal/broker/domain"
	"github.com/ledgerly/agentgate/internal/broker/store/memory"
	"github.com/ledgerly/agentgate/internal/broker/upstream"
)

func newSessionService(fake *fakeUpstream) *SessionService {
	return &SessionService{Store: memory.New(), Upstream: fake}
}

func testPrincipal() domain.Principal {
	return domain.Principal{
		UserID: "user-1",
		Email:  "user@example.com",
		Scopes: []string{"read", "write"},
	}
}

func TestBeginAndEndSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeUpstream{}
	svc := newSessionService(fake)

	session, err := svc.BeginSession(ctx, testPrincipal(), defaultTokenSet())
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	assert.Equal(t, "user-1", session.Principal.UserID)

	// Fresh tokens come back unchanged, no refresh round trip.
	set, err := svc.SessionTokens(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "up-at", set.AccessToken)
	assert.Zero(t, fake.refreshCalls.Load())

	require.NoError(t, svc.EndSession(ctx, session.ID))

	_, err = svc.SessionTokens(ctx, session.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, svc.EndSession(ctx, session.ID), ErrSessionNotFound)
}

func TestBeginSessionRequiresAccessToken(t *testing.T) {
	t.Parallel()

	svc := newSessionService(&fakeUpstream{})
	_, err := svc.BeginSession(context.Background(), testPrincipal(), domain.TokenSet{})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSessionTokensRefreshInPlace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeUpstream{}
	svc := newSessionService(fake)

	nearExpiry := domain.TokenSet{
		AccessToken:  "up-at",
		RefreshToken: "good-rt",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(5 * time.Second),
	}
	session, err := svc.BeginSession(ctx, testPrincipal(), nearExpiry)
	require.NoError(t, err)

	set, err := svc.SessionTokens(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-at", set.AccessToken)
	assert.Equal(t, "rotated-rt", set.RefreshToken)
	require.Equal(t, int64(1), fake.refreshCalls.Load())

	// The refreshed set is persisted: the next read serves it without
	// another upstream call.
	again, err := svc.SessionTokens(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-at", again.AccessToken)
	assert.Equal(t, int64(1), fake.refreshCalls.Load())
}

func TestSessionTornDownWhenRefreshRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeUpstream{}
	svc := newSessionService(fake)

	expired := domain.TokenSet{
		AccessToken:  "up-at",
		RefreshToken: "dead-rt",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	session, err := svc.BeginSession(ctx, testPrincipal(), expired)
	require.NoError(t, err)

	_, err = svc.SessionTokens(ctx, session.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	// The session is gone, not just the read failing.
	require.ErrorIs(t, svc.EndSession(ctx, session.ID), ErrSessionNotFound)
}

func TestSessionServesCurrentTokensOnTransientFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeUpstream{
		refreshErr: &upstream.Error{Status: http.StatusServiceUnavailable, Message: "maintenance"},
	}
	svc := newSessionService(fake)

	nearExpiry := domain.TokenSet{
		AccessToken:  "up-at",
		RefreshToken: "good-rt",
		ExpiresAt:    time.Now().Add(5 * time.Second),
	}
	session, err := svc.BeginSession(ctx, testPrincipal(), nearExpiry)
	require.NoError(t, err)

	// Upstream is down but the current token is still valid; serve it.
	set, err := svc.SessionTokens(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "up-at", set.AccessToken)
	require.Equal(t, int64(1), fake.refreshCalls.Load())
}

func TestSessionTokensUnknownID(t *testing.T) {
	t.Parallel()

	svc := newSessionService(&fakeUpstream{})
	_, err := svc.SessionTokens(context.Background(), "nope")
	require.ErrorIs(t, err, ErrSessionNotFound)
}
