package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResetToken(t *testing.T) {
	plaintext, digest, err := NewResetToken()
	require.NoError(t, err)

	assert.Len(t, plaintext, 64, "32 random bytes hex-encoded")
	assert.Len(t, digest, 64, "sha-256 hex-encoded")
	assert.NotEqual(t, plaintext, digest)
	assert.Equal(t, Digest(plaintext), digest)
}

func TestNewResetTokenIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		plaintext, _, err := NewResetToken()
		require.NoError(t, err)
		require.False(t, seen[plaintext])
		seen[plaintext] = true
	}
}

func TestDigestIsDeterministic(t *testing.T) {
	assert.Equal(t, Digest("abc"), Digest("abc"))
	assert.NotEqual(t, Digest("abc"), Digest("abd"))
}
