package campaign

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/stagesale/sale/pkg/address"
	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/funds"
	"github.com/malbeclabs/stagesale/sale/pkg/ledger"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
	saletesting "github.com/malbeclabs/stagesale/utils/pkg/testing"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

const (
	testSoftGoal    = 1000
	testHardCap     = 5000
	testInitialRate = 1
	fundedAmount    = 10_000
)

// failingLedger refuses mints to one account.
type failingLedger struct {
	*ledger.Token
	refuse solana.PublicKey
}

func (l *failingLedger) Mint(tx *txn.Tx, caller, to solana.PublicKey, amount uint64) error {
	if to == l.refuse {
		return errRefused
	}
	return l.Token.Mint(tx, caller, to, amount)
}

type harness struct {
	t          *testing.T
	clock      *clockwork.FakeClock
	host       *txn.Host
	dispatcher *events.Dispatcher
	bank       *funds.Bank
	token      *ledger.Token
	ledger     *failingLedger
	c          *Controller
	svc        *Service

	admin  solana.PublicKey
	wallet solana.PublicKey
	self   solana.PublicKey
	buyers []solana.PublicKey
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := saletesting.NewLogger()
	clock := clockwork.NewFakeClockAt(t0)

	dispatcher, err := events.NewDispatcher(events.DispatcherConfig{Logger: log})
	require.NoError(t, err)
	host, err := txn.NewHost(txn.HostConfig{Logger: log, Clock: clock, Publisher: dispatcher})
	require.NoError(t, err)

	h := &harness{
		t:          t,
		clock:      clock,
		host:       host,
		dispatcher: dispatcher,
		bank:       funds.NewBank(),
		admin:      address.New(),
		wallet:     address.New(),
		self:       address.New(),
	}
	h.token, err = ledger.New(ledger.Config{Cap: testHardCap, Owner: h.self, Paused: true})
	require.NoError(t, err)
	h.ledger = &failingLedger{Token: h.token}

	h.c, err = New(Config{
		Logger:      log,
		Clock:       clock,
		Address:     h.self,
		Admin:       h.admin,
		Wallet:      h.wallet,
		OpeningTime: t0.Add(time.Hour),
		ClosingTime: t0.Add(30 * 24 * time.Hour),
		SoftGoal:    testSoftGoal,
		InitialRate: testInitialRate,
		Ledger:      h.ledger,
		Bank:        h.bank,
	})
	require.NoError(t, err)

	h.svc, err = NewService(ServiceConfig{Logger: log, Host: host, Controller: h.c})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		buyer := address.New()
		require.NoError(t, h.svc.Credit(context.Background(), h.admin, buyer, fundedAmount))
		h.buyers = append(h.buyers, buyer)
	}
	return h
}

func (h *harness) ctx() context.Context {
	return context.Background()
}

// openStage starts a stage covering the whole campaign and moves the clock
// into it.
func (h *harness) openStage(rate, limit uint64) {
	h.t.Helper()
	require.NoError(h.t, h.svc.StartStage(h.ctx(), h.admin, StageParams{
		OpeningTime: h.c.OpeningTime(),
		ClosingTime: h.c.ClosingTime(),
		Rate:        rate,
		Limit:       limit,
	}))
	if h.clock.Now().Before(h.c.OpeningTime()) {
		h.clock.Advance(h.c.OpeningTime().Sub(h.clock.Now()))
	}
}

func (h *harness) buy(buyer solana.PublicKey, value uint64) error {
	return h.svc.BuyTokens(h.ctx(), txn.Call{Sender: buyer, Value: value}, buyer)
}

func (h *harness) closeCampaign() {
	h.clock.Advance(h.c.ClosingTime().Sub(h.clock.Now()) + time.Second)
}

// accounted sums every bank balance the campaign can move funds between.
func (h *harness) accounted() uint64 {
	total := h.bank.Balance(h.self) + h.bank.Balance(h.wallet) + h.bank.Balance(h.c.Escrow().Vault())
	for _, b := range h.buyers {
		total += h.bank.Balance(b)
	}
	for _, ch := range h.c.Registry().Channels() {
		total += h.bank.Balance(ch.Address)
	}
	return total
}

func (h *harness) signals() []events.Signal {
	return h.dispatcher.Log().Since(0, 0)
}
