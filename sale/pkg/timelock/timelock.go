// Package timelock holds minted units for a beneficiary until a release time.
package timelock

import (
	"errors"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/stagesale/sale/pkg/address"
	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
)

// Ledger is the part of the issuance primitive a grant releases through.
type Ledger interface {
	BalanceOf(account solana.PublicKey) uint64
	Transfer(tx *txn.Tx, from, to solana.PublicKey, amount uint64) error
}

type Grant struct {
	Address     solana.PublicKey `json:"address"`
	Beneficiary solana.PublicKey `json:"beneficiary"`
	ReleaseTime time.Time        `json:"release_time"`
	Released    uint64           `json:"released"`
}

type Config struct {
	// Program is the address grant addresses are derived under.
	Program solana.PublicKey
	Ledger  Ledger
}

func (cfg *Config) Validate() error {
	if cfg.Program.IsZero() {
		return errors.New("program address is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	return nil
}

type Factory struct {
	cfg    Config
	nonce  uint64
	grants map[solana.PublicKey]*Grant
}

func NewFactory(cfg Config) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Factory{
		cfg:    cfg,
		grants: make(map[solana.PublicKey]*Grant),
	}, nil
}

// Create registers a new empty grant and returns its address.
func (f *Factory) Create(tx *txn.Tx, beneficiary solana.PublicKey, releaseTime time.Time) (solana.PublicKey, error) {
	if beneficiary.IsZero() {
		return solana.PublicKey{}, saleerr.Validationf("createTimeLock", "beneficiary is required")
	}
	if !releaseTime.After(tx.Now()) {
		return solana.PublicKey{}, saleerr.Validationf("createTimeLock", "release time %s is not in the future", releaseTime.UTC().Format(time.RFC3339))
	}
	addr, err := address.Derive(f.cfg.Program, address.KindTimeLock, beneficiary, f.nonce)
	if err != nil {
		return solana.PublicKey{}, err
	}
	f.nonce++
	tx.OnRollback(func() { f.nonce-- })

	f.grants[addr] = &Grant{
		Address:     addr,
		Beneficiary: beneficiary,
		ReleaseTime: releaseTime,
	}
	tx.OnRollback(func() { delete(f.grants, addr) })
	return addr, nil
}

// Release pays the grant's whole balance to its beneficiary once the release
// time has passed. Anyone may trigger it.
func (f *Factory) Release(tx *txn.Tx, grant solana.PublicKey) (uint64, error) {
	g, ok := f.grants[grant]
	if !ok {
		return 0, saleerr.NotFoundf("release", "no timelock grant at %s", grant)
	}
	if tx.Now().Before(g.ReleaseTime) {
		return 0, saleerr.StateErr("release", saleerr.ErrNotReleasable)
	}
	amount := f.cfg.Ledger.BalanceOf(grant)
	if amount == 0 {
		return 0, saleerr.StateErr("release", saleerr.ErrNothingToRelease)
	}
	prev := g.Released
	g.Released += amount
	tx.OnRollback(func() { g.Released = prev })

	if err := f.cfg.Ledger.Transfer(tx, grant, g.Beneficiary, amount); err != nil {
		return 0, err
	}
	tx.Emit(events.KindTimeLockReleased, events.TimeLockReleased{
		Address:     grant,
		Beneficiary: g.Beneficiary,
		Amount:      amount,
	})
	return amount, nil
}

func (f *Factory) Get(grant solana.PublicKey) (Grant, bool) {
	g, ok := f.grants[grant]
	if !ok {
		return Grant{}, false
	}
	return *g, true
}

// Grants returns every grant ordered by release time.
func (f *Factory) Grants() []Grant {
	out := make([]Grant, 0, len(f.grants))
	for _, g := range f.grants {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReleaseTime.Equal(out[j].ReleaseTime) {
			return out[i].Address.String() < out[j].Address.String()
		}
		return out[i].ReleaseTime.Before(out[j].ReleaseTime)
	})
	return out
}
