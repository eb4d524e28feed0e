package referral

import (
	"errors"
	"sort"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/stagesale/sale/pkg/address"
	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/funds"
	"github.com/malbeclabs/stagesale/sale/pkg/metrics"
	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
	"github.com/malbeclabs/stagesale/sale/pkg/units"
)

// MaxBonusPercent bounds a channel's bonus.
const MaxBonusPercent = 100

// Minter issues referral rewards.
type Minter interface {
	MintReward(tx *txn.Tx, to solana.PublicKey, amount uint64) error
}

type Config struct {
	// Controller owns the channels and seeds their addresses.
	Controller solana.PublicKey
	Admin      solana.PublicKey
	Bank       *funds.Bank
	Purchaser  Purchaser
	Minter     Minter
}

func (cfg *Config) Validate() error {
	if cfg.Controller.IsZero() {
		return errors.New("controller address is required")
	}
	if cfg.Admin.IsZero() {
		return errors.New("admin is required")
	}
	if cfg.Bank == nil {
		return errors.New("bank is required")
	}
	if cfg.Purchaser == nil {
		return errors.New("purchaser is required")
	}
	if cfg.Minter == nil {
		return errors.New("minter is required")
	}
	return nil
}

// Registry keeps the advertiser to channel mapping. Both directions are
// always updated together. Removed channels stay in channels, disabled.
type Registry struct {
	cfg          Config
	nonce        uint64
	byAdvertiser map[solana.PublicKey]solana.PublicKey
	byChannel    map[solana.PublicKey]solana.PublicKey
	channels     map[solana.PublicKey]*Channel
}

func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Registry{
		cfg:          cfg,
		byAdvertiser: make(map[solana.PublicKey]solana.PublicKey),
		byChannel:    make(map[solana.PublicKey]solana.PublicKey),
		channels:     make(map[solana.PublicKey]*Channel),
	}, nil
}

// CreateReferral opens a channel for advertiser and returns its address.
func (r *Registry) CreateReferral(tx *txn.Tx, caller, advertiser solana.PublicKey, bonusPercent uint64) (solana.PublicKey, error) {
	if caller != r.cfg.Admin {
		return solana.PublicKey{}, saleerr.Unauthorized("createReferral")
	}
	if advertiser.IsZero() {
		return solana.PublicKey{}, saleerr.Validationf("createReferral", "advertiser is required")
	}
	if bonusPercent > MaxBonusPercent {
		return solana.PublicKey{}, saleerr.Validationf("createReferral", "bonus percent %d exceeds %d", bonusPercent, MaxBonusPercent)
	}
	if existing, ok := r.byAdvertiser[advertiser]; ok {
		return solana.PublicKey{}, saleerr.Statef("createReferral", saleerr.ErrReferralExists, "%s has channel %s", advertiser, existing)
	}

	addr, err := address.Derive(r.cfg.Controller, address.KindReferral, advertiser, r.nonce)
	if err != nil {
		return solana.PublicKey{}, err
	}
	r.nonce++
	tx.OnRollback(func() { r.nonce-- })

	r.channels[addr] = &Channel{
		address:      addr,
		controller:   r.cfg.Controller,
		admin:        r.cfg.Controller,
		advertiser:   advertiser,
		bonusPercent: bonusPercent,
		bank:         r.cfg.Bank,
		purchaser:    r.cfg.Purchaser,
	}
	r.byAdvertiser[advertiser] = addr
	r.byChannel[addr] = advertiser
	tx.OnRollback(func() {
		delete(r.channels, addr)
		delete(r.byAdvertiser, advertiser)
		delete(r.byChannel, addr)
	})

	tx.Emit(events.KindReferralCreated, events.ReferralCreated{
		Advertiser:   advertiser,
		Channel:      addr,
		BonusPercent: bonusPercent,
	})
	return addr, nil
}

func (r *Registry) RemoveReferral(tx *txn.Tx, caller, advertiser solana.PublicKey) error {
	if caller != r.cfg.Admin {
		return saleerr.Unauthorized("removeReferral")
	}
	channel, ok := r.byAdvertiser[advertiser]
	if !ok {
		return saleerr.Statef("removeReferral", saleerr.ErrNoReferral, "advertiser %s", advertiser)
	}
	return r.remove(tx, advertiser, channel)
}

func (r *Registry) RemoveReferralByChannel(tx *txn.Tx, caller, channel solana.PublicKey) error {
	if caller != r.cfg.Admin {
		return saleerr.Unauthorized("removeReferralByChannel")
	}
	advertiser, ok := r.byChannel[channel]
	if !ok {
		return saleerr.Statef("removeReferralByChannel", saleerr.ErrNoReferral, "channel %s", channel)
	}
	return r.remove(tx, advertiser, channel)
}

func (r *Registry) remove(tx *txn.Tx, advertiser, channel solana.PublicKey) error {
	delete(r.byAdvertiser, advertiser)
	delete(r.byChannel, channel)
	tx.OnRollback(func() {
		r.byAdvertiser[advertiser] = channel
		r.byChannel[channel] = advertiser
	})
	if err := r.channels[channel].Disable(tx, r.cfg.Controller); err != nil {
		return err
	}
	tx.Emit(events.KindReferralRemoved, events.ReferralRemoved{Advertiser: advertiser, Channel: channel})
	return nil
}

// AfterPurchase pays the referral bonus when caller is an active channel.
// Purchases from anyone else are ignored.
func (r *Registry) AfterPurchase(tx *txn.Tx, caller solana.PublicKey, tokens uint64) error {
	advertiser, ok := r.byChannel[caller]
	if !ok {
		return nil
	}
	ch := r.channels[caller]
	bonus, err := units.Percent(tokens, ch.bonusPercent)
	if err != nil {
		return saleerr.WithOp("referralBonus", err)
	}
	if err := ch.TokensPurchasedCallback(tx, r.cfg.Controller, tokens, bonus); err != nil {
		return err
	}
	if bonus > 0 {
		if err := r.cfg.Minter.MintReward(tx, advertiser, bonus); err != nil {
			return err
		}
	}
	tx.Emit(events.KindReferralRewarded, events.ReferralRewarded{
		Advertiser: advertiser,
		Channel:    caller,
		Amount:     bonus,
	})
	tx.OnCommit(func() { metrics.ReferralBonusTotal.Add(float64(bonus)) })
	return nil
}

// ReferralAddress returns the active channel of advertiser.
func (r *Registry) ReferralAddress(advertiser solana.PublicKey) (solana.PublicKey, bool) {
	ch, ok := r.byAdvertiser[advertiser]
	return ch, ok
}

// ReferralAdvertiser returns the advertiser behind an active channel.
func (r *Registry) ReferralAdvertiser(channel solana.PublicKey) (solana.PublicKey, bool) {
	adv, ok := r.byChannel[channel]
	return adv, ok
}

func (r *Registry) IsValidReferralAddress(channel solana.PublicKey) bool {
	_, ok := r.byChannel[channel]
	return ok
}

// Channel returns any channel the registry ever created, including disabled ones.
func (r *Registry) Channel(addr solana.PublicKey) (*Channel, bool) {
	ch, ok := r.channels[addr]
	return ch, ok
}

// Channels returns every channel ordered by address.
func (r *Registry) Channels() []ChannelInfo {
	out := make([]ChannelInfo, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.String() < out[j].Address.String()
	})
	return out
}
