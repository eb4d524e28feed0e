package escrow

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/funds"
	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
)

// Goal reports the campaign outcome the escrow settles against.
type Goal interface {
	MinGoalReached() bool
	IsFinalized() bool
}

type Config struct {
	Admin  solana.PublicKey
	Wallet solana.PublicKey
	Vault  solana.PublicKey
	Bank   *funds.Bank
	Goal   Goal
}

func (cfg *Config) Validate() error {
	if cfg.Admin.IsZero() {
		return errors.New("admin is required")
	}
	if cfg.Wallet.IsZero() {
		return errors.New("wallet is required")
	}
	if cfg.Vault.IsZero() {
		return errors.New("vault address is required")
	}
	if cfg.Bank == nil {
		return errors.New("bank is required")
	}
	if cfg.Goal == nil {
		return errors.New("goal is required")
	}
	return nil
}

// GoalEscrow escrows contributions until the funding goal is known. When the
// goal is reached the vault is released to the wallet and later deposits go
// straight to it. When it is missed contributors claim refunds.
type GoalEscrow struct {
	cfg       Config
	refund    *RefundEscrow
	claimed   bool
	finalized bool
}

func New(cfg Config) (*GoalEscrow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	refund, err := NewRefundEscrow(RefundConfig{
		Bank:        cfg.Bank,
		Vault:       cfg.Vault,
		Beneficiary: cfg.Wallet,
	})
	if err != nil {
		return nil, err
	}
	return &GoalEscrow{cfg: cfg, refund: refund}, nil
}

func (g *GoalEscrow) IsVaultClaimed() bool { return g.claimed }

func (g *GoalEscrow) State() State { return g.refund.State() }

func (g *GoalEscrow) Vault() solana.PublicKey { return g.cfg.Vault }

func (g *GoalEscrow) Held() uint64 { return g.refund.Held() }

func (g *GoalEscrow) DepositsOf(contributor solana.PublicKey) uint64 {
	return g.refund.DepositsOf(contributor)
}

// Deposit takes a contribution from payer on behalf of contributor.
func (g *GoalEscrow) Deposit(tx *txn.Tx, payer, contributor solana.PublicKey, amount uint64) error {
	if g.claimed {
		return g.cfg.Bank.Transfer(tx, payer, g.cfg.Wallet, amount)
	}
	return g.refund.Deposit(tx, payer, contributor, amount)
}

// ClaimVault releases the escrowed funds to the wallet once the goal is reached.
func (g *GoalEscrow) ClaimVault(tx *txn.Tx, caller solana.PublicKey) (uint64, error) {
	if caller != g.cfg.Admin {
		return 0, saleerr.Unauthorized("claimVault")
	}
	return g.claimVault(tx)
}

func (g *GoalEscrow) claimVault(tx *txn.Tx) (uint64, error) {
	if !g.cfg.Goal.MinGoalReached() {
		return 0, saleerr.StateErr("claimVault", saleerr.ErrGoalNotReached)
	}
	if g.claimed {
		return 0, saleerr.StateErr("claimVault", saleerr.ErrVaultClaimed)
	}
	g.claimed = true
	tx.OnRollback(func() { g.claimed = false })

	if err := g.refund.Close(tx); err != nil {
		return 0, err
	}
	amount, err := g.refund.BeneficiaryWithdraw(tx)
	if err != nil {
		return 0, err
	}
	tx.Emit(events.KindVaultClaimed, events.VaultClaimed{Wallet: g.cfg.Wallet, Amount: amount})
	return amount, nil
}

// ClaimRefund returns contributor's deposit after a failed campaign. Repeat
// calls pay zero.
func (g *GoalEscrow) ClaimRefund(tx *txn.Tx, contributor solana.PublicKey) (uint64, error) {
	if !g.cfg.Goal.IsFinalized() {
		return 0, saleerr.StateErr("claimRefund", saleerr.ErrNotFinalized)
	}
	if g.cfg.Goal.MinGoalReached() {
		return 0, saleerr.StateErr("claimRefund", saleerr.ErrGoalReached)
	}
	return g.refund.Withdraw(tx, contributor)
}

// Finalization resolves the escrow. It runs once, from the campaign's finalize.
func (g *GoalEscrow) Finalization(tx *txn.Tx) error {
	if g.finalized {
		return saleerr.StateErr("finalization", saleerr.ErrAlreadyFinalized)
	}
	g.finalized = true
	tx.OnRollback(func() { g.finalized = false })

	if !g.cfg.Goal.MinGoalReached() {
		return g.refund.EnableRefunds(tx)
	}
	if !g.claimed {
		_, err := g.claimVault(tx)
		return err
	}
	return nil
}
