package ledger

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/stagesale/sale/pkg/address"
	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
	saletesting "github.com/malbeclabs/stagesale/utils/pkg/testing"
)

type fixture struct {
	host  *txn.Host
	token *Token
	owner solana.PublicKey
}

func newFixture(t *testing.T, paused bool) *fixture {
	t.Helper()
	h, err := txn.NewHost(txn.HostConfig{Logger: saletesting.NewLogger()})
	require.NoError(t, err)
	owner := address.New()
	token, err := New(Config{Cap: 1000, Owner: owner, Paused: paused})
	require.NoError(t, err)
	return &fixture{host: h, token: token, owner: owner}
}

func (f *fixture) exec(t *testing.T, fn func(tx *txn.Tx) error) error {
	t.Helper()
	return f.host.Execute(context.Background(), t.Name(), fn)
}

func TestSale_Ledger_Config_Validate(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Owner: address.New()})
	require.Error(t, err)
	_, err = New(Config{Cap: 1})
	require.Error(t, err)
}

func TestSale_Ledger_Mint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	holder := address.New()

	require.NoError(t, f.exec(t, func(tx *txn.Tx) error {
		return f.token.Mint(tx, f.owner, holder, 400)
	}))
	require.Equal(t, uint64(400), f.token.BalanceOf(holder))
	require.Equal(t, uint64(400), f.token.TotalSupply())

	t.Run("not owner", func(t *testing.T) {
		err := f.exec(t, func(tx *txn.Tx) error {
			return f.token.Mint(tx, holder, holder, 1)
		})
		require.ErrorIs(t, err, saleerr.Authorization)
	})

	t.Run("cap", func(t *testing.T) {
		err := f.exec(t, func(tx *txn.Tx) error {
			return f.token.Mint(tx, f.owner, holder, 601)
		})
		require.ErrorIs(t, err, saleerr.Arithmetic)
		require.ErrorIs(t, err, saleerr.ErrCapExceeded)
		require.Equal(t, uint64(400), f.token.TotalSupply())
	})

	t.Run("rollback", func(t *testing.T) {
		err := f.exec(t, func(tx *txn.Tx) error {
			if err := f.token.Mint(tx, f.owner, holder, 100); err != nil {
				return err
			}
			return f.token.Mint(tx, f.owner, holder, 600)
		})
		require.Error(t, err)
		require.Equal(t, uint64(400), f.token.TotalSupply())
		require.Equal(t, uint64(400), f.token.BalanceOf(holder))
	})
}

func TestSale_Ledger_TransferBlockedWhilePaused(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	a, b := address.New(), address.New()
	require.NoError(t, f.exec(t, func(tx *txn.Tx) error {
		return f.token.Mint(tx, f.owner, a, 10)
	}))

	err := f.exec(t, func(tx *txn.Tx) error {
		return f.token.Transfer(tx, a, b, 5)
	})
	require.ErrorIs(t, err, saleerr.ErrPaused)

	require.NoError(t, f.exec(t, func(tx *txn.Tx) error {
		return f.token.Unpause(tx, f.owner)
	}))
	require.NoError(t, f.exec(t, func(tx *txn.Tx) error {
		return f.token.Transfer(tx, a, b, 5)
	}))
	require.Equal(t, uint64(5), f.token.BalanceOf(a))
	require.Equal(t, uint64(5), f.token.BalanceOf(b))

	err = f.exec(t, func(tx *txn.Tx) error {
		return f.token.Transfer(tx, a, b, 6)
	})
	require.ErrorIs(t, err, saleerr.ErrInsufficient)
}

func TestSale_Ledger_PauseAndOwnership(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	next := address.New()

	require.NoError(t, f.exec(t, func(tx *txn.Tx) error {
		return f.token.Pause(tx, f.owner)
	}))
	require.True(t, f.token.Paused())

	err := f.exec(t, func(tx *txn.Tx) error {
		return f.token.Pause(tx, f.owner)
	})
	require.ErrorIs(t, err, saleerr.State)

	require.NoError(t, f.exec(t, func(tx *txn.Tx) error {
		return f.token.TransferOwnership(tx, f.owner, next)
	}))
	require.Equal(t, next, f.token.Owner())

	err = f.exec(t, func(tx *txn.Tx) error {
		return f.token.Unpause(tx, f.owner)
	})
	require.ErrorIs(t, err, saleerr.Authorization)
	require.True(t, f.token.Paused())
}
