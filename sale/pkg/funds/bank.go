// Package funds is the native-currency account book that contributions move
// through. It is only touched inside host operations.
package funds

import (
	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
	"github.com/malbeclabs/stagesale/sale/pkg/units"
)

type Bank struct {
	balances map[solana.PublicKey]uint64
	supply   uint64
}

func NewBank() *Bank {
	return &Bank{balances: make(map[solana.PublicKey]uint64)}
}

func (b *Bank) Balance(account solana.PublicKey) uint64 {
	return b.balances[account]
}

// Supply is the total of every balance. Only Credit changes it.
func (b *Bank) Supply() uint64 {
	return b.supply
}

// Credit records funds that entered the book from outside.
func (b *Bank) Credit(tx *txn.Tx, account solana.PublicKey, amount uint64) error {
	if account.IsZero() {
		return saleerr.Statef("credit", saleerr.ErrZeroAddress, "")
	}
	supply, err := units.Add(b.supply, amount)
	if err != nil {
		return err
	}
	bal, err := units.Add(b.balances[account], amount)
	if err != nil {
		return err
	}
	b.set(tx, account, bal)
	prev := b.supply
	b.supply = supply
	tx.OnRollback(func() { b.supply = prev })
	return nil
}

// Transfer moves amount from one account to another. Zero amounts are no-ops.
func (b *Bank) Transfer(tx *txn.Tx, from, to solana.PublicKey, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	if to.IsZero() {
		return saleerr.Statef("transfer", saleerr.ErrZeroAddress, "")
	}
	fromBal := b.balances[from]
	if fromBal < amount {
		return saleerr.Statef("transfer", saleerr.ErrInsufficient, "%s has %d, needs %d", from, fromBal, amount)
	}
	toBal, err := units.Add(b.balances[to], amount)
	if err != nil {
		return err
	}
	b.set(tx, from, fromBal-amount)
	b.set(tx, to, toBal)
	return nil
}

func (b *Bank) set(tx *txn.Tx, account solana.PublicKey, amount uint64) {
	prev, had := b.balances[account]
	if amount == 0 {
		delete(b.balances, account)
	} else {
		b.balances[account] = amount
	}
	tx.OnRollback(func() {
		if had {
			b.balances[account] = prev
		} else {
			delete(b.balances, account)
		}
	})
}
