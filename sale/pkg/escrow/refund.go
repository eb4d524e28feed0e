// Package escrow holds contributions until the funding goal is resolved.
package escrow

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/funds"
	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
	"github.com/malbeclabs/stagesale/sale/pkg/units"
)

type State int

const (
	StateActive State = iota
	StateRefunding
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRefunding:
		return "refunding"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{StateActive, StateRefunding, StateClosed} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown escrow state %q", b)
}

type RefundConfig struct {
	Bank *funds.Bank
	// Vault is the bank account deposits are held in.
	Vault       solana.PublicKey
	Beneficiary solana.PublicKey
}

func (cfg *RefundConfig) Validate() error {
	if cfg.Bank == nil {
		return errors.New("bank is required")
	}
	if cfg.Vault.IsZero() {
		return errors.New("vault address is required")
	}
	if cfg.Beneficiary.IsZero() {
		return errors.New("beneficiary is required")
	}
	return nil
}

// RefundEscrow records deposits per contributor. Once closed the beneficiary
// may take everything; once refunding each contributor may take back its own
// deposit.
type RefundEscrow struct {
	cfg      RefundConfig
	state    State
	deposits map[solana.PublicKey]uint64
}

func NewRefundEscrow(cfg RefundConfig) (*RefundEscrow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RefundEscrow{
		cfg:      cfg,
		deposits: make(map[solana.PublicKey]uint64),
	}, nil
}

func (e *RefundEscrow) State() State { return e.state }

func (e *RefundEscrow) Vault() solana.PublicKey { return e.cfg.Vault }

// Held is the balance currently in the vault.
func (e *RefundEscrow) Held() uint64 { return e.cfg.Bank.Balance(e.cfg.Vault) }

func (e *RefundEscrow) DepositsOf(contributor solana.PublicKey) uint64 {
	return e.deposits[contributor]
}

// Deposit moves amount from payer into the vault, credited to contributor.
func (e *RefundEscrow) Deposit(tx *txn.Tx, payer, contributor solana.PublicKey, amount uint64) error {
	if e.state != StateActive {
		return saleerr.Statef("deposit", saleerr.ErrEscrowState, "escrow is %s", e.state)
	}
	bal, err := units.Add(e.deposits[contributor], amount)
	if err != nil {
		return saleerr.WithOp("deposit", err)
	}
	e.setDeposit(tx, contributor, bal)
	if err := e.cfg.Bank.Transfer(tx, payer, e.cfg.Vault, amount); err != nil {
		return err
	}
	tx.Emit(events.KindDeposited, events.Deposited{Contributor: contributor, Amount: amount})
	return nil
}

// Withdraw pays payee its recorded deposit. The record is cleared before the
// payment so a second call pays nothing.
func (e *RefundEscrow) Withdraw(tx *txn.Tx, payee solana.PublicKey) (uint64, error) {
	if e.state != StateRefunding {
		return 0, saleerr.Statef("withdraw", saleerr.ErrEscrowState, "escrow is %s", e.state)
	}
	payment := e.deposits[payee]
	e.setDeposit(tx, payee, 0)
	if err := e.cfg.Bank.Transfer(tx, e.cfg.Vault, payee, payment); err != nil {
		return 0, err
	}
	tx.Emit(events.KindWithdrawn, events.Withdrawn{Payee: payee, Amount: payment})
	return payment, nil
}

func (e *RefundEscrow) EnableRefunds(tx *txn.Tx) error {
	if e.state != StateActive {
		return saleerr.Statef("enableRefunds", saleerr.ErrEscrowState, "escrow is %s", e.state)
	}
	e.setState(tx, StateRefunding)
	tx.Emit(events.KindRefundsEnabled, events.RefundsEnabled{})
	return nil
}

func (e *RefundEscrow) Close(tx *txn.Tx) error {
	if e.state != StateActive {
		return saleerr.Statef("close", saleerr.ErrEscrowState, "escrow is %s", e.state)
	}
	e.setState(tx, StateClosed)
	tx.Emit(events.KindRefundsClosed, events.RefundsClosed{})
	return nil
}

// BeneficiaryWithdraw releases the whole vault to the beneficiary.
func (e *RefundEscrow) BeneficiaryWithdraw(tx *txn.Tx) (uint64, error) {
	if e.state != StateClosed {
		return 0, saleerr.Statef("beneficiaryWithdraw", saleerr.ErrEscrowState, "escrow is %s", e.state)
	}
	amount := e.Held()
	if err := e.cfg.Bank.Transfer(tx, e.cfg.Vault, e.cfg.Beneficiary, amount); err != nil {
		return 0, err
	}
	return amount, nil
}

func (e *RefundEscrow) setState(tx *txn.Tx, s State) {
	prev := e.state
	e.state = s
	tx.OnRollback(func() { e.state = prev })
}

func (e *RefundEscrow) setDeposit(tx *txn.Tx, contributor solana.PublicKey, amount uint64) {
	prev, had := e.deposits[contributor]
	if amount == 0 {
		delete(e.deposits, contributor)
	} else {
		e.deposits[contributor] = amount
	}
	tx.OnRollback(func() {
		if had {
			e.deposits[contributor] = prev
		} else {
			delete(e.deposits, contributor)
		}
	})
}
