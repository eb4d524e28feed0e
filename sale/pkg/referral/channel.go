// Package referral maps advertisers to forwarding channels and rewards them
// for purchases routed through their channel.
package referral

import (
	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/stagesale/sale/pkg/funds"
	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
	"github.com/malbeclabs/stagesale/sale/pkg/units"
)

// Purchaser is the campaign's purchase entrypoint.
type Purchaser interface {
	BuyTokens(tx *txn.Tx, call txn.Call, beneficiary solana.PublicKey) error
}

type Stats struct {
	EtherCollected     uint64 `json:"ether_collected"`
	TokensCollected    uint64 `json:"tokens_collected"`
	RewardTokensEarned uint64 `json:"reward_tokens_earned"`
}

// ChannelInfo is a point-in-time view of a channel.
type ChannelInfo struct {
	Address      solana.PublicKey `json:"address"`
	Advertiser   solana.PublicKey `json:"advertiser"`
	Controller   solana.PublicKey `json:"controller"`
	BonusPercent uint64           `json:"bonus_percent"`
	Disabled     bool             `json:"disabled"`
	Stats        Stats            `json:"stats"`
}

// Channel forwards contributions into the campaign on behalf of an advertiser.
type Channel struct {
	address      solana.PublicKey
	controller   solana.PublicKey
	admin        solana.PublicKey
	advertiser   solana.PublicKey
	bonusPercent uint64

	stats    Stats
	disabled bool

	bank      *funds.Bank
	purchaser Purchaser
}

func (c *Channel) Address() solana.PublicKey    { return c.address }
func (c *Channel) Advertiser() solana.PublicKey { return c.advertiser }
func (c *Channel) BonusPercent() uint64         { return c.bonusPercent }
func (c *Channel) Disabled() bool               { return c.disabled }
func (c *Channel) Stats() Stats                 { return c.stats }

func (c *Channel) Info() ChannelInfo {
	return ChannelInfo{
		Address:      c.address,
		Advertiser:   c.advertiser,
		Controller:   c.controller,
		BonusPercent: c.bonusPercent,
		Disabled:     c.disabled,
		Stats:        c.stats,
	}
}

// BuyTokens takes call.Value from the sender and forwards it to the campaign
// with the channel as the immediate caller.
func (c *Channel) BuyTokens(tx *txn.Tx, call txn.Call, beneficiary solana.PublicKey) error {
	if beneficiary == c.advertiser {
		return saleerr.StateErr("channelBuyTokens", saleerr.ErrSelfReferral)
	}
	if c.disabled {
		return saleerr.StateErr("channelBuyTokens", saleerr.ErrChannelDisabled)
	}
	collected, err := units.Add(c.stats.EtherCollected, call.Value)
	if err != nil {
		return saleerr.WithOp("channelBuyTokens", err)
	}
	prev := c.stats.EtherCollected
	c.stats.EtherCollected = collected
	tx.OnRollback(func() { c.stats.EtherCollected = prev })

	if err := c.bank.Transfer(tx, call.Sender, c.address, call.Value); err != nil {
		return err
	}
	return c.purchaser.BuyTokens(tx, txn.Call{Sender: c.address, Value: call.Value}, beneficiary)
}

// Receive handles a bare transfer to the channel: the sender buys for itself.
func (c *Channel) Receive(tx *txn.Tx, call txn.Call) error {
	return c.BuyTokens(tx, call, call.Sender)
}

// Disable stops the channel permanently.
func (c *Channel) Disable(tx *txn.Tx, caller solana.PublicKey) error {
	if caller != c.admin {
		return saleerr.Unauthorized("disable")
	}
	if c.disabled {
		return nil
	}
	c.disabled = true
	tx.OnRollback(func() { c.disabled = false })
	return nil
}

// TokensPurchasedCallback accumulates statistics. It never moves funds.
func (c *Channel) TokensPurchasedCallback(tx *txn.Tx, caller solana.PublicKey, tokens, reward uint64) error {
	if caller != c.admin {
		return saleerr.Unauthorized("tokensPurchasedCallback")
	}
	collected, err := units.Add(c.stats.TokensCollected, tokens)
	if err != nil {
		return saleerr.WithOp("tokensPurchasedCallback", err)
	}
	earned, err := units.Add(c.stats.RewardTokensEarned, reward)
	if err != nil {
		return saleerr.WithOp("tokensPurchasedCallback", err)
	}
	prev := c.stats
	c.stats.TokensCollected = collected
	c.stats.RewardTokensEarned = earned
	tx.OnRollback(func() { c.stats = prev })
	return nil
}
