// Package ledger is the capped, pausable, ownable issuance primitive the
// campaign mints through.
package ledger

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
	"github.com/malbeclabs/stagesale/sale/pkg/units"
)

type Config struct {
	Cap    uint64
	Owner  solana.PublicKey
	Paused bool
}

func (cfg *Config) Validate() error {
	if cfg.Cap == 0 {
		return errors.New("cap must be greater than zero")
	}
	if cfg.Owner.IsZero() {
		return errors.New("owner is required")
	}
	return nil
}

type Token struct {
	cap      uint64
	supply   uint64
	owner    solana.PublicKey
	paused   bool
	balances map[solana.PublicKey]uint64
}

func New(cfg Config) (*Token, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Token{
		cap:      cfg.Cap,
		owner:    cfg.Owner,
		paused:   cfg.Paused,
		balances: make(map[solana.PublicKey]uint64),
	}, nil
}

func (t *Token) Cap() uint64 { return t.cap }

// TotalSupply is the total of issued units.
func (t *Token) TotalSupply() uint64 { return t.supply }

func (t *Token) Owner() solana.PublicKey { return t.owner }

func (t *Token) Paused() bool { return t.paused }

func (t *Token) BalanceOf(account solana.PublicKey) uint64 {
	return t.balances[account]
}

// Mint issues amount new units to account. Only the owner may mint, and the
// total never exceeds the cap.
func (t *Token) Mint(tx *txn.Tx, caller, to solana.PublicKey, amount uint64) error {
	if caller != t.owner {
		return saleerr.Unauthorized("mint")
	}
	if to.IsZero() {
		return saleerr.Statef("mint", saleerr.ErrZeroAddress, "")
	}
	supply, err := units.Add(t.supply, amount)
	if err != nil {
		return saleerr.WithOp("mint", err)
	}
	if supply > t.cap {
		return saleerr.ArithmeticErr("mint", saleerr.ErrCapExceeded)
	}
	bal, err := units.Add(t.balances[to], amount)
	if err != nil {
		return saleerr.WithOp("mint", err)
	}
	prev := t.supply
	t.supply = supply
	tx.OnRollback(func() { t.supply = prev })
	t.set(tx, to, bal)
	return nil
}

// Transfer moves units between holders. Transfers are refused while paused.
func (t *Token) Transfer(tx *txn.Tx, from, to solana.PublicKey, amount uint64) error {
	if t.paused {
		return saleerr.StateErr("transfer", saleerr.ErrPaused)
	}
	if to.IsZero() {
		return saleerr.Statef("transfer", saleerr.ErrZeroAddress, "")
	}
	fromBal := t.balances[from]
	if fromBal < amount {
		return saleerr.Statef("transfer", saleerr.ErrInsufficient, "%s holds %d, needs %d", from, fromBal, amount)
	}
	if amount == 0 || from == to {
		return nil
	}
	toBal, err := units.Add(t.balances[to], amount)
	if err != nil {
		return saleerr.WithOp("transfer", err)
	}
	t.set(tx, from, fromBal-amount)
	t.set(tx, to, toBal)
	return nil
}

func (t *Token) Pause(tx *txn.Tx, caller solana.PublicKey) error {
	return t.setPaused(tx, caller, "pause", true)
}

func (t *Token) Unpause(tx *txn.Tx, caller solana.PublicKey) error {
	return t.setPaused(tx, caller, "unpause", false)
}

func (t *Token) TransferOwnership(tx *txn.Tx, caller, newOwner solana.PublicKey) error {
	if caller != t.owner {
		return saleerr.Unauthorized("transferOwnership")
	}
	if newOwner.IsZero() {
		return saleerr.Statef("transferOwnership", saleerr.ErrZeroAddress, "")
	}
	prev := t.owner
	t.owner = newOwner
	tx.OnRollback(func() { t.owner = prev })
	return nil
}

func (t *Token) setPaused(tx *txn.Tx, caller solana.PublicKey, op string, paused bool) error {
	if caller != t.owner {
		return saleerr.Unauthorized(op)
	}
	if t.paused == paused {
		return saleerr.Statef(op, nil, "paused is already %t", paused)
	}
	t.paused = paused
	tx.OnRollback(func() { t.paused = !paused })
	return nil
}

func (t *Token) set(tx *txn.Tx, account solana.PublicKey, amount uint64) {
	prev, had := t.balances[account]
	if amount == 0 {
		delete(t.balances, account)
	} else {
		t.balances[account] = amount
	}
	tx.OnRollback(func() {
		if had {
			t.balances[account] = prev
		} else {
			delete(t.balances, account)
		}
	})
}
