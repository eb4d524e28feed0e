package campaign

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/stagesale/sale/pkg/escrow"
	"github.com/malbeclabs/stagesale/sale/pkg/referral"
	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/timelock"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
)

type ServiceConfig struct {
	Logger     *slog.Logger
	Host       *txn.Host
	Controller *Controller
}

func (cfg *ServiceConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Host == nil {
		return errors.New("host is required")
	}
	if cfg.Controller == nil {
		return errors.New("controller is required")
	}
	return nil
}

// Service runs campaign operations one at a time through the host.
type Service struct {
	log  *slog.Logger
	host *txn.Host
	c    *Controller
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		log:  cfg.Logger,
		host: cfg.Host,
		c:    cfg.Controller,
	}, nil
}

func (s *Service) exec(ctx context.Context, op string, fn func(tx *txn.Tx) error) error {
	start := time.Now()
	err := s.host.Execute(ctx, op, fn)
	if err != nil {
		level := slog.LevelInfo
		if saleerr.KindOf(err) == saleerr.KindUnknown {
			level = slog.LevelError
		}
		s.log.Log(ctx, level, "campaign: operation rejected", "op", op, "kind", saleerr.KindOf(err).String(), "error", err)
		return err
	}
	s.log.Debug("campaign: operation committed", "op", op, "duration", time.Since(start))
	return nil
}

// BuyTokens buys directly from the campaign.
func (s *Service) BuyTokens(ctx context.Context, call txn.Call, beneficiary solana.PublicKey) error {
	return s.exec(ctx, "buyTokens", func(tx *txn.Tx) error {
		return s.c.BuyTokens(tx, call, beneficiary)
	})
}

// BuyTokensVia buys through a referral channel.
func (s *Service) BuyTokensVia(ctx context.Context, channel solana.PublicKey, call txn.Call, beneficiary solana.PublicKey) error {
	return s.exec(ctx, "channelBuyTokens", func(tx *txn.Tx) error {
		ch, ok := s.c.registry.Channel(channel)
		if !ok {
			return saleerr.NotFoundf("", "no channel at %s", channel)
		}
		return ch.BuyTokens(tx, call, beneficiary)
	})
}

// Transfer sends funds to the campaign or a channel without instructions.
func (s *Service) Transfer(ctx context.Context, call txn.Call, to solana.PublicKey) error {
	return s.exec(ctx, "transfer", func(tx *txn.Tx) error {
		return s.c.Transfer(tx, call, to)
	})
}

func (s *Service) ClaimRefund(ctx context.Context, caller solana.PublicKey) (uint64, error) {
	var paid uint64
	err := s.exec(ctx, "claimRefund", func(tx *txn.Tx) error {
		var err error
		paid, err = s.c.ClaimRefund(tx, caller)
		return err
	})
	return paid, err
}

func (s *Service) ReleaseTimeLock(ctx context.Context, grant solana.PublicKey) (uint64, error) {
	var released uint64
	err := s.exec(ctx, "release", func(tx *txn.Tx) error {
		var err error
		released, err = s.c.ReleaseTimeLock(tx, grant)
		return err
	})
	return released, err
}

func (s *Service) StartStage(ctx context.Context, caller solana.PublicKey, p StageParams) error {
	return s.exec(ctx, "startStage", func(tx *txn.Tx) error {
		return s.c.StartStage(tx, caller, p)
	})
}

func (s *Service) StopStage(ctx context.Context, caller solana.PublicKey) error {
	return s.exec(ctx, "stopStage", func(tx *txn.Tx) error {
		return s.c.StopStage(tx, caller)
	})
}

func (s *Service) MintTokens(ctx context.Context, caller, to solana.PublicKey, amount uint64) error {
	return s.exec(ctx, "mintTokens", func(tx *txn.Tx) error {
		return s.c.MintTokens(tx, caller, to, amount)
	})
}

func (s *Service) MintTokensToTimelock(ctx context.Context, caller, to solana.PublicKey, amount uint64, releaseTime time.Time) (solana.PublicKey, error) {
	var grant solana.PublicKey
	err := s.exec(ctx, "mintTokensToTimelock", func(tx *txn.Tx) error {
		var err error
		grant, err = s.c.MintTokensToTimelock(tx, caller, to, amount, releaseTime)
		return err
	})
	return grant, err
}

func (s *Service) CreateReferral(ctx context.Context, caller, advertiser solana.PublicKey, bonusPercent uint64) (solana.PublicKey, error) {
	var channel solana.PublicKey
	err := s.exec(ctx, "createReferral", func(tx *txn.Tx) error {
		var err error
		channel, err = s.c.CreateReferral(tx, caller, advertiser, bonusPercent)
		return err
	})
	return channel, err
}

func (s *Service) RemoveReferral(ctx context.Context, caller, advertiser solana.PublicKey) error {
	return s.exec(ctx, "removeReferral", func(tx *txn.Tx) error {
		return s.c.RemoveReferral(tx, caller, advertiser)
	})
}

func (s *Service) RemoveReferralByChannel(ctx context.Context, caller, channel solana.PublicKey) error {
	return s.exec(ctx, "removeReferralByChannel", func(tx *txn.Tx) error {
		return s.c.RemoveReferralByChannel(tx, caller, channel)
	})
}

func (s *Service) ClaimVault(ctx context.Context, caller solana.PublicKey) (uint64, error) {
	var amount uint64
	err := s.exec(ctx, "claimVault", func(tx *txn.Tx) error {
		var err error
		amount, err = s.c.ClaimVault(tx, caller)
		return err
	})
	return amount, err
}

func (s *Service) Finalize(ctx context.Context, caller solana.PublicKey) error {
	return s.exec(ctx, "finalize", func(tx *txn.Tx) error {
		return s.c.Finalize(tx, caller)
	})
}

func (s *Service) TransferOwnership(ctx context.Context, caller, newOwner solana.PublicKey) error {
	return s.exec(ctx, "transferOwnership", func(tx *txn.Tx) error {
		return s.c.TransferOwnership(tx, caller, newOwner)
	})
}

func (s *Service) RenounceOwnership(ctx context.Context, caller solana.PublicKey) error {
	return s.exec(ctx, "renounceOwnership", func(tx *txn.Tx) error {
		return s.c.RenounceOwnership(tx, caller)
	})
}

func (s *Service) Credit(ctx context.Context, caller, account solana.PublicKey, amount uint64) error {
	return s.exec(ctx, "credit", func(tx *txn.Tx) error {
		return s.c.Credit(tx, caller, account, amount)
	})
}

// Status is a consistent snapshot of the campaign.
type Status struct {
	Address     solana.PublicKey `json:"address"`
	Admin       solana.PublicKey `json:"admin"`
	Wallet      solana.PublicKey `json:"wallet"`
	Vault       solana.PublicKey `json:"vault"`
	Now         time.Time        `json:"now"`
	OpeningTime time.Time        `json:"opening_time"`
	ClosingTime time.Time        `json:"closing_time"`
	SoftGoal    uint64           `json:"soft_goal"`
	HardCap     uint64           `json:"hard_cap"`
	InitialRate uint64           `json:"initial_rate"`

	TotalIssued     uint64 `json:"total_issued"`
	RemainingTokens uint64 `json:"remaining_tokens"`
	WeiRaised       uint64 `json:"wei_raised"`
	Stage           Stage  `json:"stage"`
	StageOpen       bool   `json:"stage_open"`

	IsOpen         bool `json:"is_open"`
	HasClosed      bool `json:"has_closed"`
	IsFinalized    bool `json:"is_finalized"`
	MinGoalReached bool `json:"min_goal_reached"`

	EscrowState  escrow.State `json:"escrow_state"`
	EscrowHeld   uint64       `json:"escrow_held"`
	VaultClaimed bool         `json:"vault_claimed"`

	LedgerPaused bool             `json:"ledger_paused"`
	LedgerOwner  solana.PublicKey `json:"ledger_owner"`
	Channels     int              `json:"channels"`
}

func (s *Service) Status() Status {
	var st Status
	s.host.View(func(now time.Time) {
		c := s.c
		st = Status{
			Address:         c.cfg.Address,
			Admin:           c.cfg.Admin,
			Wallet:          c.cfg.Wallet,
			Vault:           c.escrow.Vault(),
			Now:             now,
			OpeningTime:     c.cfg.OpeningTime,
			ClosingTime:     c.cfg.ClosingTime,
			SoftGoal:        c.cfg.SoftGoal,
			HardCap:         c.hardCap,
			InitialRate:     c.cfg.InitialRate,
			TotalIssued:     c.cfg.Ledger.TotalSupply(),
			RemainingTokens: c.RemainingTokens(),
			WeiRaised:       c.weiRaised,
			Stage:           c.stage,
			StageOpen:       c.stage.Open(now) && c.stage.RemainingAllowance > 0,
			IsOpen:          c.IsOpen(now),
			HasClosed:       c.HasClosed(now),
			IsFinalized:     c.finalized,
			MinGoalReached:  c.MinGoalReached(),
			EscrowState:     c.escrow.State(),
			EscrowHeld:      c.escrow.Held(),
			VaultClaimed:    c.escrow.IsVaultClaimed(),
			LedgerPaused:    c.cfg.Ledger.Paused(),
			LedgerOwner:     c.cfg.Ledger.Owner(),
			Channels:        len(c.registry.Channels()),
		}
	})
	return st
}

// Balances is what an account holds across the ledger, the bank and the escrow.
type Balances struct {
	Address solana.PublicKey `json:"address"`
	Tokens  uint64           `json:"tokens"`
	Funds   uint64           `json:"funds"`
	Deposit uint64           `json:"deposit"`
}

func (s *Service) Balances(account solana.PublicKey) Balances {
	var b Balances
	s.host.View(func(time.Time) {
		b = Balances{
			Address: account,
			Tokens:  s.c.cfg.Ledger.BalanceOf(account),
			Funds:   s.c.cfg.Bank.Balance(account),
			Deposit: s.c.escrow.DepositsOf(account),
		}
	})
	return b
}

func (s *Service) RemainingTokens() uint64 {
	var v uint64
	s.host.View(func(time.Time) { v = s.c.RemainingTokens() })
	return v
}

func (s *Service) MinGoalReached() bool {
	var v bool
	s.host.View(func(time.Time) { v = s.c.MinGoalReached() })
	return v
}

func (s *Service) ReferralAddress(advertiser solana.PublicKey) (solana.PublicKey, bool) {
	var ch solana.PublicKey
	var ok bool
	s.host.View(func(time.Time) { ch, ok = s.c.registry.ReferralAddress(advertiser) })
	return ch, ok
}

func (s *Service) ReferralAdvertiser(channel solana.PublicKey) (solana.PublicKey, bool) {
	var adv solana.PublicKey
	var ok bool
	s.host.View(func(time.Time) { adv, ok = s.c.registry.ReferralAdvertiser(channel) })
	return adv, ok
}

func (s *Service) IsValidReferralAddress(channel solana.PublicKey) bool {
	var ok bool
	s.host.View(func(time.Time) { ok = s.c.registry.IsValidReferralAddress(channel) })
	return ok
}

func (s *Service) Channel(addr solana.PublicKey) (referral.ChannelInfo, bool) {
	var info referral.ChannelInfo
	var ok bool
	s.host.View(func(time.Time) {
		var ch *referral.Channel
		if ch, ok = s.c.registry.Channel(addr); ok {
			info = ch.Info()
		}
	})
	return info, ok
}

func (s *Service) Channels() []referral.ChannelInfo {
	var out []referral.ChannelInfo
	s.host.View(func(time.Time) { out = s.c.registry.Channels() })
	return out
}

func (s *Service) Grant(addr solana.PublicKey) (timelock.Grant, bool) {
	var g timelock.Grant
	var ok bool
	s.host.View(func(time.Time) { g, ok = s.c.timelocks.Get(addr) })
	return g, ok
}

func (s *Service) Grants() []timelock.Grant {
	var out []timelock.Grant
	s.host.View(func(time.Time) { out = s.c.timelocks.Grants() })
	return out
}

// FundsSupply is the total of every bank balance.
func (s *Service) FundsSupply() uint64 {
	var v uint64
	s.host.View(func(time.Time) { v = s.c.cfg.Bank.Supply() })
	return v
}
