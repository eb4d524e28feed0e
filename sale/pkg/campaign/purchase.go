package campaign

import (
	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/metrics"
	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
	"github.com/malbeclabs/stagesale/sale/pkg/units"
)

// purchase carries one contribution through the pipeline.
type purchase struct {
	call        txn.Call
	beneficiary solana.PublicKey
	tokens      uint64
}

// BuyTokens is the purchase entrypoint. call.Sender is the immediate caller:
// the contributor, or a referral channel forwarding on its behalf.
func (c *Controller) BuyTokens(tx *txn.Tx, call txn.Call, beneficiary solana.PublicKey) error {
	p := &purchase{call: call, beneficiary: beneficiary}
	for _, step := range []func(*txn.Tx, *purchase) error{
		c.checkNonZero,
		c.checkAllowance,
		c.checkStageWindow,
		c.checkCap,
		c.checkCampaignWindow,
		c.updateState,
		c.deliver,
		c.forwardFunds,
		c.rewardReferral,
	} {
		if err := step(tx, p); err != nil {
			return saleerr.WithOp("buyTokens", err)
		}
	}

	route := "direct"
	if _, ok := c.registry.Channel(call.Sender); ok {
		route = "channel"
	}
	tx.OnCommit(func() {
		metrics.PurchasesTotal.WithLabelValues(route).Inc()
		metrics.FundsRaised.Set(float64(c.weiRaised))
		metrics.TokensIssued.Set(float64(c.cfg.Ledger.TotalSupply()))
	})
	return nil
}

func (c *Controller) checkNonZero(_ *txn.Tx, p *purchase) error {
	if p.beneficiary.IsZero() {
		return saleerr.Invalid("", saleerr.ErrZeroAddress)
	}
	if p.call.Value == 0 {
		return saleerr.Invalid("", saleerr.ErrZeroAmount)
	}
	return nil
}

func (c *Controller) checkAllowance(_ *txn.Tx, p *purchase) error {
	if p.call.Value > c.stage.RemainingAllowance {
		return saleerr.ArithmeticErr("", saleerr.ErrAllowance)
	}
	return nil
}

func (c *Controller) checkStageWindow(tx *txn.Tx, _ *purchase) error {
	if !c.stage.Open(tx.Now()) {
		return saleerr.StateErr("", saleerr.ErrStageClosed)
	}
	return nil
}

func (c *Controller) checkCap(_ *txn.Tx, p *purchase) error {
	tokens, err := units.Mul(p.call.Value, c.stage.Rate)
	if err != nil {
		return err
	}
	if tokens > c.RemainingTokens() {
		return saleerr.ArithmeticErr("", saleerr.ErrCapExceeded)
	}
	p.tokens = tokens
	return nil
}

func (c *Controller) checkCampaignWindow(tx *txn.Tx, _ *purchase) error {
	if !c.IsOpen(tx.Now()) {
		return saleerr.StateErr("", saleerr.ErrCampaignNotOpen)
	}
	return nil
}

// updateState consumes the allowance and counts the funds before any
// collaborator sees the purchase.
func (c *Controller) updateState(tx *txn.Tx, p *purchase) error {
	allowance, err := units.Sub(c.stage.RemainingAllowance, p.call.Value)
	if err != nil {
		return err
	}
	raised, err := units.Add(c.weiRaised, p.call.Value)
	if err != nil {
		return err
	}
	prevAllowance, prevRaised := c.stage.RemainingAllowance, c.weiRaised
	c.stage.RemainingAllowance = allowance
	c.weiRaised = raised
	tx.OnRollback(func() {
		c.stage.RemainingAllowance = prevAllowance
		c.weiRaised = prevRaised
	})
	return nil
}

func (c *Controller) deliver(tx *txn.Tx, p *purchase) error {
	if err := c.cfg.Bank.Transfer(tx, p.call.Sender, c.cfg.Address, p.call.Value); err != nil {
		return err
	}
	if err := c.cfg.Ledger.Mint(tx, c.cfg.Address, p.beneficiary, p.tokens); err != nil {
		return err
	}
	tx.Emit(events.KindTokensPurchased, events.TokensPurchased{
		Purchaser:   p.call.Sender,
		Beneficiary: p.beneficiary,
		Value:       p.call.Value,
		Amount:      p.tokens,
		Rate:        c.stage.Rate,
	})
	return nil
}

// forwardFunds hands the contribution to the escrow. Purchases forwarded by a
// channel are credited to the beneficiary, others to the sender.
func (c *Controller) forwardFunds(tx *txn.Tx, p *purchase) error {
	contributor := p.call.Sender
	if _, ok := c.registry.Channel(p.call.Sender); ok {
		contributor = p.beneficiary
	}
	return c.escrow.Deposit(tx, c.cfg.Address, contributor, p.call.Value)
}

func (c *Controller) rewardReferral(tx *txn.Tx, p *purchase) error {
	return c.registry.AfterPurchase(tx, p.call.Sender, p.tokens)
}

// Transfer routes a bare transfer of funds to a known account: the controller
// buys for the sender, a channel forwards for the sender.
func (c *Controller) Transfer(tx *txn.Tx, call txn.Call, to solana.PublicKey) error {
	if to == c.cfg.Address {
		return c.BuyTokens(tx, call, call.Sender)
	}
	if ch, ok := c.registry.Channel(to); ok {
		return ch.Receive(tx, call)
	}
	return saleerr.NotFoundf("transfer", "no receiver at %s", to)
}
