package campaign

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/metrics"
	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
	"github.com/malbeclabs/stagesale/sale/pkg/units"
)

func (c *Controller) requireAdmin(op string, caller solana.PublicKey) error {
	if caller != c.cfg.Admin {
		return saleerr.Unauthorized(op)
	}
	return nil
}

// StartStage replaces the active stage.
func (c *Controller) StartStage(tx *txn.Tx, caller solana.PublicKey, p StageParams) error {
	const op = "startStage"
	if err := c.requireAdmin(op, caller); err != nil {
		return err
	}
	if p.Rate == 0 {
		return saleerr.Validationf(op, "rate must be greater than zero")
	}
	capacity, err := units.Mul(p.Limit, p.Rate)
	if err != nil {
		return saleerr.Validationf(op, "limit %d at rate %d overflows", p.Limit, p.Rate)
	}
	if remaining := c.RemainingTokens(); capacity > remaining {
		return saleerr.Validationf(op, "stage capacity %d exceeds remaining tokens %d", capacity, remaining)
	}
	if p.OpeningTime.Before(c.cfg.OpeningTime) {
		return saleerr.Validationf(op, "stage opens before the campaign")
	}
	if p.ClosingTime.After(c.cfg.ClosingTime) {
		return saleerr.Validationf(op, "stage closes after the campaign")
	}
	if !p.OpeningTime.Before(p.ClosingTime) {
		return saleerr.Validationf(op, "stage opening time must be before closing time")
	}

	c.setStage(tx, Stage{
		OpeningTime:        p.OpeningTime,
		ClosingTime:        p.ClosingTime,
		Rate:               p.Rate,
		RemainingAllowance: p.Limit,
	})
	tx.Emit(events.KindStageStarted, events.StageStarted{
		OpeningTime: p.OpeningTime,
		ClosingTime: p.ClosingTime,
		Rate:        p.Rate,
		Limit:       p.Limit,
	})
	return nil
}

// StopStage suspends public sales until the next StartStage. The window is kept.
func (c *Controller) StopStage(tx *txn.Tx, caller solana.PublicKey) error {
	const op = "stopStage"
	if err := c.requireAdmin(op, caller); err != nil {
		return err
	}
	next := c.stage
	next.Rate = c.cfg.InitialRate
	next.RemainingAllowance = 0
	c.setStage(tx, next)
	tx.Emit(events.KindStageStopped, events.StageStopped{Rate: c.cfg.InitialRate})
	return nil
}

func (c *Controller) setStage(tx *txn.Tx, s Stage) {
	prev := c.stage
	c.stage = s
	tx.OnRollback(func() { c.stage = prev })
}

// MintTokens issues units directly, outside any stage accounting.
func (c *Controller) MintTokens(tx *txn.Tx, caller, to solana.PublicKey, amount uint64) error {
	const op = "mintTokens"
	if err := c.requireAdmin(op, caller); err != nil {
		return err
	}
	if c.HasClosed(tx.Now()) {
		return saleerr.StateErr(op, saleerr.ErrCampaignClosed)
	}
	if err := c.cfg.Ledger.Mint(tx, c.cfg.Address, to, amount); err != nil {
		return err
	}
	c.recordIssuance(tx)
	return nil
}

// MintTokensToTimelock issues units into a new grant for to that releases at
// releaseTime, and returns the grant address.
func (c *Controller) MintTokensToTimelock(tx *txn.Tx, caller, to solana.PublicKey, amount uint64, releaseTime time.Time) (solana.PublicKey, error) {
	const op = "mintTokensToTimelock"
	if err := c.requireAdmin(op, caller); err != nil {
		return solana.PublicKey{}, err
	}
	if c.HasClosed(tx.Now()) {
		return solana.PublicKey{}, saleerr.StateErr(op, saleerr.ErrCampaignClosed)
	}
	grant, err := c.timelocks.Create(tx, to, releaseTime)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := c.cfg.Ledger.Mint(tx, c.cfg.Address, grant, amount); err != nil {
		return solana.PublicKey{}, err
	}
	tx.Emit(events.KindTimeLockGrantCreated, events.TimeLockGrantCreated{
		Beneficiary: to,
		Address:     grant,
		ReleaseTime: releaseTime,
		Amount:      amount,
	})
	c.recordIssuance(tx)
	return grant, nil
}

// Finalize closes the campaign once it is over: the escrow is resolved and the
// ledger is unpaused and handed to the wallet.
func (c *Controller) Finalize(tx *txn.Tx, caller solana.PublicKey) error {
	const op = "finalize"
	if err := c.requireAdmin(op, caller); err != nil {
		return err
	}
	if c.finalized {
		return saleerr.StateErr(op, saleerr.ErrAlreadyFinalized)
	}
	if !c.HasClosed(tx.Now()) {
		return saleerr.StateErr(op, saleerr.ErrCampaignNotOver)
	}

	c.finalized = true
	tx.OnRollback(func() { c.finalized = false })

	if err := c.escrow.Finalization(tx); err != nil {
		return err
	}
	if err := c.cfg.Ledger.Unpause(tx, c.cfg.Address); err != nil {
		return err
	}
	if err := c.cfg.Ledger.TransferOwnership(tx, c.cfg.Address, c.cfg.Wallet); err != nil {
		return err
	}
	tx.Emit(events.KindFinalized, events.Finalized{
		GoalReached: c.MinGoalReached(),
		TotalIssued: c.cfg.Ledger.TotalSupply(),
		WeiRaised:   c.weiRaised,
	})
	return nil
}

// ClaimVault releases the escrow to the wallet once the goal is reached.
func (c *Controller) ClaimVault(tx *txn.Tx, caller solana.PublicKey) (uint64, error) {
	return c.escrow.ClaimVault(tx, caller)
}

// ClaimRefund returns the caller's escrowed contributions after a failed
// campaign.
func (c *Controller) ClaimRefund(tx *txn.Tx, caller solana.PublicKey) (uint64, error) {
	return c.escrow.ClaimRefund(tx, caller)
}

// CreateReferral opens a referral channel for advertiser.
func (c *Controller) CreateReferral(tx *txn.Tx, caller, advertiser solana.PublicKey, bonusPercent uint64) (solana.PublicKey, error) {
	return c.registry.CreateReferral(tx, caller, advertiser, bonusPercent)
}

func (c *Controller) RemoveReferral(tx *txn.Tx, caller, advertiser solana.PublicKey) error {
	return c.registry.RemoveReferral(tx, caller, advertiser)
}

func (c *Controller) RemoveReferralByChannel(tx *txn.Tx, caller, channel solana.PublicKey) error {
	return c.registry.RemoveReferralByChannel(tx, caller, channel)
}

// ReleaseTimeLock pays out a grant whose release time has passed.
func (c *Controller) ReleaseTimeLock(tx *txn.Tx, grant solana.PublicKey) (uint64, error) {
	return c.timelocks.Release(tx, grant)
}

// TransferOwnership always fails: the admin is fixed for the campaign's life.
func (c *Controller) TransferOwnership(_ *txn.Tx, _, _ solana.PublicKey) error {
	return saleerr.StateErr("transferOwnership", saleerr.ErrOwnershipLocked)
}

// RenounceOwnership always fails: the admin is fixed for the campaign's life.
func (c *Controller) RenounceOwnership(_ *txn.Tx, _ solana.PublicKey) error {
	return saleerr.StateErr("renounceOwnership", saleerr.ErrOwnershipLocked)
}

// Credit records external funds arriving in account.
func (c *Controller) Credit(tx *txn.Tx, caller, account solana.PublicKey, amount uint64) error {
	const op = "credit"
	if err := c.requireAdmin(op, caller); err != nil {
		return err
	}
	if amount == 0 {
		return saleerr.Invalid(op, saleerr.ErrZeroAmount)
	}
	return c.cfg.Bank.Credit(tx, account, amount)
}

func (c *Controller) recordIssuance(tx *txn.Tx) {
	tx.OnCommit(func() { metrics.TokensIssued.Set(float64(c.cfg.Ledger.TotalSupply())) })
}
