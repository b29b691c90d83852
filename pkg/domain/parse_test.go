package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccountID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseAccountID("")
		require.Error(t, err)
	})

	t.Run("rejects whitespace-only", func(t *testing.T) {
		_, err := ParseAccountID("   ")
		require.Error(t, err)
	})

	t.Run("rejects embedded whitespace", func(t *testing.T) {
		_, err := ParseAccountID("acct alice")
		require.Error(t, err)
	})

	t.Run("rejects oversized ids", func(t *testing.T) {
		_, err := ParseAccountID(strings.Repeat("a", 129))
		require.Error(t, err)
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		id, err := ParseAccountID("  acct-alice  ")
		require.NoError(t, err)
		assert.Equal(t, AccountID("acct-alice"), id)
	})
}

func TestParseScriptHash(t *testing.T) {
	digest := HashScript([]byte{0x00, 0x14, 0xde, 0xad})

	t.Run("round trips through hex", func(t *testing.T) {
		parsed, err := ParseScriptHash(digest.String())
		require.NoError(t, err)
		assert.True(t, parsed.Equal(digest))
	})

	t.Run("rejects short digests", func(t *testing.T) {
		_, err := ParseScriptHash("deadbeef")
		require.Error(t, err)
	})

	t.Run("rejects non-hex input", func(t *testing.T) {
		_, err := ParseScriptHash(strings.Repeat("zz", 32))
		require.Error(t, err)
	})
}

func TestParseRole(t *testing.T) {
	for _, name := range []string{"governance", "pause_admin", "maintainer"} {
		role, err := ParseRole(name)
		require.NoError(t, err)
		assert.Equal(t, name, string(role))
	}

	_, err := ParseRole("superuser")
	require.Error(t, err)
}

func TestParseBasisPoints(t *testing.T) {
	bps, err := ParseBasisPoints(10_000)
	require.NoError(t, err)
	assert.Equal(t, BasisPoints(10_000), bps)

	_, err = ParseBasisPoints(10_001)
	require.Error(t, err)
}
