package jwtx

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return s
}

func TestPeekExpiry(t *testing.T) {
	t.Parallel()

	t.Run("returns exp claim", func(t *testing.T) {
		exp := time.Now().Add(45 * time.Minute).Truncate(time.Second)
		token := signedToken(t, jwt.MapClaims{"sub": "user-1", "exp": exp.Unix()})

		got, ok := PeekExpiry(token)
		require.True(t, ok)
		require.Equal(t, exp.Unix(), got.Unix())
	})

	t.Run("expired tokens still decode", func(t *testing.T) {
		// Peek is not validation; a past exp must come back as-is.
		exp := time.Now().Add(-time.Hour).Truncate(time.Second)
		token := signedToken(t, jwt.MapClaims{"exp": exp.Unix()})

		got, ok := PeekExpiry(token)
		require.True(t, ok)
		require.Equal(t, exp.Unix(), got.Unix())
	})

	t.Run("opaque token is not decodable", func(t *testing.T) {
		_, ok := PeekExpiry("opaque-random-token")
		require.False(t, ok)
	})

	t.Run("missing exp claim", func(t *testing.T) {
		token := signedToken(t, jwt.MapClaims{"sub": "user-1"})
		_, ok := PeekExpiry(token)
		require.False(t, ok)
	})
}

func TestPeekScope(t *testing.T) {
	t.Parallel()

	t.Run("splits space-delimited scope", func(t *testing.T) {
		token := signedToken(t, jwt.MapClaims{"scope": "read write"})
		require.Equal(t, []string{"read", "write"}, PeekScope(token))
	})

	t.Run("nil for opaque or scopeless tokens", func(t *testing.T) {
		require.Nil(t, PeekScope("not-a-jwt"))
		require.Nil(t, PeekScope(signedToken(t, jwt.MapClaims{"sub": "x"})))
	})
}

func TestPeekClaims(t *testing.T) {
	t.Parallel()

	_, err := PeekClaims("")
	require.ErrorIs(t, err, ErrNotDecodable)

	claims, err := PeekClaims(signedToken(t, jwt.MapClaims{"sub": "user-9"}))
	require.NoError(t, err)
	sub, err := claims.GetSubject()
	require.NoError(t, err)
	require.Equal(t, "user-9", sub)
}
