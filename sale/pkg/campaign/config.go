package campaign

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/stagesale/sale/pkg/funds"
	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
)

// Ledger is the issuance primitive the campaign controls until finalization.
type Ledger interface {
	Cap() uint64
	TotalSupply() uint64
	Paused() bool
	Owner() solana.PublicKey
	BalanceOf(account solana.PublicKey) uint64
	Mint(tx *txn.Tx, caller, to solana.PublicKey, amount uint64) error
	Transfer(tx *txn.Tx, from, to solana.PublicKey, amount uint64) error
	Unpause(tx *txn.Tx, caller solana.PublicKey) error
	TransferOwnership(tx *txn.Tx, caller, newOwner solana.PublicKey) error
}

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	// Address is the controller's own account. It must own the ledger.
	Address solana.PublicKey
	Admin   solana.PublicKey
	Wallet  solana.PublicKey

	OpeningTime time.Time
	ClosingTime time.Time
	SoftGoal    uint64
	InitialRate uint64

	Ledger Ledger
	Bank   *funds.Bank
}

// Validate checks wiring with plain errors and campaign parameters with
// validation errors.
func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if cfg.Bank == nil {
		return errors.New("bank is required")
	}

	const op = "newCampaign"
	if cfg.Address.IsZero() {
		return saleerr.Validationf(op, "controller address is required")
	}
	if cfg.Admin.IsZero() {
		return saleerr.Validationf(op, "admin is required")
	}
	if cfg.Wallet.IsZero() {
		return saleerr.Validationf(op, "wallet is required")
	}
	if !cfg.Ledger.Paused() {
		return saleerr.Validationf(op, "ledger must be paused")
	}
	if cfg.OpeningTime.Before(cfg.Clock.Now()) {
		return saleerr.Validationf(op, "opening time %s is in the past", cfg.OpeningTime.UTC().Format(time.RFC3339))
	}
	if !cfg.ClosingTime.After(cfg.OpeningTime) {
		return saleerr.Validationf(op, "closing time must be after opening time")
	}
	if cfg.InitialRate == 0 {
		return saleerr.Validationf(op, "initial rate must be greater than zero")
	}
	if cfg.SoftGoal == 0 {
		return saleerr.Validationf(op, "soft goal must be greater than zero")
	}
	if cfg.SoftGoal > cfg.Ledger.Cap() {
		return saleerr.Validationf(op, "soft goal %d exceeds cap %d", cfg.SoftGoal, cfg.Ledger.Cap())
	}
	return nil
}
