package campaign

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/stagesale/sale/pkg/address"
	"github.com/malbeclabs/stagesale/sale/pkg/funds"
	"github.com/malbeclabs/stagesale/sale/pkg/ledger"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
)

type DeployConfig struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Publisher txn.Publisher
	// StartSeq continues signal numbering after a restart.
	StartSeq uint64

	// Address defaults to an address derived from Wallet and Admin.
	Address solana.PublicKey
	Admin   solana.PublicKey
	Wallet  solana.PublicKey

	OpeningTime time.Time
	ClosingTime time.Time
	SoftGoal    uint64
	HardCap     uint64
	InitialRate uint64
}

func (cfg *DeployConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Admin.IsZero() {
		return errors.New("admin is required")
	}
	if cfg.Wallet.IsZero() {
		return errors.New("wallet is required")
	}
	if cfg.HardCap == 0 {
		return errors.New("hard cap must be greater than zero")
	}
	if cfg.Address.IsZero() {
		addr, err := address.Derive(cfg.Wallet, address.KindCampaign, cfg.Admin, 0)
		if err != nil {
			return err
		}
		cfg.Address = addr
	}
	return nil
}

// Deployment is a campaign wired to its own paused ledger, bank and host.
type Deployment struct {
	Host       *txn.Host
	Bank       *funds.Bank
	Token      *ledger.Token
	Controller *Controller
	Service    *Service
}

// Deploy builds a ledger capped at HardCap, paused and owned by the
// controller, then the controller and its service.
func Deploy(cfg DeployConfig) (*Deployment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	host, err := txn.NewHost(txn.HostConfig{Logger: cfg.Logger, Clock: cfg.Clock, Publisher: cfg.Publisher, StartSeq: cfg.StartSeq})
	if err != nil {
		return nil, err
	}
	token, err := ledger.New(ledger.Config{Cap: cfg.HardCap, Owner: cfg.Address, Paused: true})
	if err != nil {
		return nil, err
	}
	bank := funds.NewBank()

	controller, err := New(Config{
		Logger:      cfg.Logger,
		Clock:       cfg.Clock,
		Address:     cfg.Address,
		Admin:       cfg.Admin,
		Wallet:      cfg.Wallet,
		OpeningTime: cfg.OpeningTime,
		ClosingTime: cfg.ClosingTime,
		SoftGoal:    cfg.SoftGoal,
		InitialRate: cfg.InitialRate,
		Ledger:      token,
		Bank:        bank,
	})
	if err != nil {
		return nil, err
	}
	svc, err := NewService(ServiceConfig{Logger: cfg.Logger, Host: host, Controller: controller})
	if err != nil {
		return nil, err
	}

	return &Deployment{
		Host:       host,
		Bank:       bank,
		Token:      token,
		Controller: controller,
		Service:    svc,
	}, nil
}
