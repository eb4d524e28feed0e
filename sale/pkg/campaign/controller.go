// Package campaign is the staged sale controller. It composes the stage
// configuration, the funding-goal escrow and the referral registry, and runs
// every purchase through a fixed validation and delivery pipeline.
package campaign

import (
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/stagesale/sale/pkg/address"
	"github.com/malbeclabs/stagesale/sale/pkg/escrow"
	"github.com/malbeclabs/stagesale/sale/pkg/referral"
	"github.com/malbeclabs/stagesale/sale/pkg/timelock"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
)

// Controller holds all campaign state. It is not safe for concurrent use; the
// Service serializes access through a txn.Host.
type Controller struct {
	log *slog.Logger
	cfg Config

	hardCap   uint64
	stage     Stage
	finalized bool
	weiRaised uint64

	escrow    *escrow.GoalEscrow
	registry  *referral.Registry
	timelocks *timelock.Factory
}

func New(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		log:     cfg.Logger,
		cfg:     cfg,
		hardCap: cfg.Ledger.Cap(),
		stage:   Stage{Rate: cfg.InitialRate},
	}

	vault, err := address.Derive(cfg.Address, address.KindVault, cfg.Wallet, 0)
	if err != nil {
		return nil, err
	}
	c.escrow, err = escrow.New(escrow.Config{
		Admin:  cfg.Admin,
		Wallet: cfg.Wallet,
		Vault:  vault,
		Bank:   cfg.Bank,
		Goal:   c,
	})
	if err != nil {
		return nil, err
	}
	c.registry, err = referral.NewRegistry(referral.Config{
		Controller: cfg.Address,
		Admin:      cfg.Admin,
		Bank:       cfg.Bank,
		Purchaser:  c,
		Minter:     rewardMinter{c},
	})
	if err != nil {
		return nil, err
	}
	c.timelocks, err = timelock.NewFactory(timelock.Config{
		Program: cfg.Address,
		Ledger:  cfg.Ledger,
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("campaign: created",
		"address", cfg.Address,
		"opening", cfg.OpeningTime.UTC().Format(time.RFC3339),
		"closing", cfg.ClosingTime.UTC().Format(time.RFC3339),
		"soft_goal", cfg.SoftGoal,
		"hard_cap", c.hardCap,
		"initial_rate", cfg.InitialRate,
	)
	return c, nil
}

func (c *Controller) Address() solana.PublicKey { return c.cfg.Address }
func (c *Controller) Admin() solana.PublicKey   { return c.cfg.Admin }
func (c *Controller) Wallet() solana.PublicKey  { return c.cfg.Wallet }
func (c *Controller) OpeningTime() time.Time    { return c.cfg.OpeningTime }
func (c *Controller) ClosingTime() time.Time    { return c.cfg.ClosingTime }
func (c *Controller) SoftGoal() uint64          { return c.cfg.SoftGoal }
func (c *Controller) HardCap() uint64           { return c.hardCap }
func (c *Controller) InitialRate() uint64       { return c.cfg.InitialRate }
func (c *Controller) Stage() Stage              { return c.stage }
func (c *Controller) WeiRaised() uint64         { return c.weiRaised }

func (c *Controller) Escrow() *escrow.GoalEscrow   { return c.escrow }
func (c *Controller) Registry() *referral.Registry { return c.registry }
func (c *Controller) TimeLocks() *timelock.Factory { return c.timelocks }
func (c *Controller) Ledger() Ledger               { return c.cfg.Ledger }

// IsFinalized implements escrow.Goal.
func (c *Controller) IsFinalized() bool { return c.finalized }

// MinGoalReached compares total issuance, admin mints and referral bonuses
// included, against the soft goal. Issuance only grows, so once true it stays
// true.
func (c *Controller) MinGoalReached() bool {
	return c.cfg.Ledger.TotalSupply() >= c.cfg.SoftGoal
}

// RemainingTokens is what can still be issued under the cap.
func (c *Controller) RemainingTokens() uint64 {
	supply := c.cfg.Ledger.TotalSupply()
	if supply >= c.hardCap {
		return 0
	}
	return c.hardCap - supply
}

// HasClosed reports whether now is past the closing time.
func (c *Controller) HasClosed(now time.Time) bool {
	return now.After(c.cfg.ClosingTime)
}

// IsOpen reports whether now is inside the campaign window, bounds included.
func (c *Controller) IsOpen(now time.Time) bool {
	return !now.Before(c.cfg.OpeningTime) && !now.After(c.cfg.ClosingTime)
}

// rewardMinter lets the registry mint referral bonuses as the ledger owner.
type rewardMinter struct {
	c *Controller
}

func (m rewardMinter) MintReward(tx *txn.Tx, to solana.PublicKey, amount uint64) error {
	return m.c.cfg.Ledger.Mint(tx, m.c.cfg.Address, to, amount)
}
