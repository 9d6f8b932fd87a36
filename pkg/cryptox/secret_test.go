package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashSecret(t *testing.T) {
	t.Parallel()

	hash, err := HashSecret("client-secret-value")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	t.Run("verifies matching secret", func(t *testing.T) {
		require.NoError(t, VerifySecret("client-secret-value", hash))
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		require.Error(t, VerifySecret("not-the-secret", hash))
	})

	t.Run("salts make hashes distinct", func(t *testing.T) {
		other, err := HashSecret("client-secret-value")
		require.NoError(t, err)
		require.NotEqual(t, hash, other)
	})

	t.Run("rejects malformed hash", func(t *testing.T) {
		require.Error(t, VerifySecret("x", "not-a-phc-string"))
		require.Error(t, VerifySecret("x", "$argon2i$v=19$m=1,t=1,p=1$abc$def"))
	})
}
