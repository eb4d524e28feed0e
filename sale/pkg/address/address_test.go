package address

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestSale_Address_Parse(t *testing.T) {
	t.Parallel()

	t.Run("round trips base58", func(t *testing.T) {
		t.Parallel()
		pk := New()
		got, err := Parse(pk.String())
		require.NoError(t, err)
		require.Equal(t, pk, got)
	})

	t.Run("rejects empty", func(t *testing.T) {
		t.Parallel()
		_, err := Parse("  ")
		require.Error(t, err)
	})

	t.Run("rejects bad alphabet", func(t *testing.T) {
		t.Parallel()
		_, err := Parse("0OIl")
		require.Error(t, err)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		t.Parallel()
		_, err := Parse("3yZe7d")
		require.ErrorContains(t, err, "expected 32 bytes")
	})
}

func TestSale_Address_Derive(t *testing.T) {
	t.Parallel()

	program := New()
	owner := New()

	a, err := Derive(program, KindReferral, owner, 0)
	require.NoError(t, err)
	again, err := Derive(program, KindReferral, owner, 0)
	require.NoError(t, err)
	require.Equal(t, a, again, "derivation must be deterministic")

	b, err := Derive(program, KindReferral, owner, 1)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	c, err := Derive(program, KindTimeLock, owner, 0)
	require.NoError(t, err)
	require.NotEqual(t, a, c)

	require.False(t, a.IsOnCurve(), "derived address must be off-curve")
	require.NotEqual(t, solana.PublicKey{}, a)
}
