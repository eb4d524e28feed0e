package referral

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/stagesale/sale/pkg/address"
	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/funds"
	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
	saletesting "github.com/malbeclabs/stagesale/utils/pkg/testing"
)

type purchase struct {
	call        txn.Call
	beneficiary solana.PublicKey
}

// mockPurchaser collects forwarded value into the controller account and
// reports a fixed number of tokens per unit back through the registry.
type mockPurchaser struct {
	bank       *funds.Bank
	controller solana.PublicKey
	registry   *Registry
	rate       uint64
	err        error
	calls      []purchase
}

func (m *mockPurchaser) BuyTokens(tx *txn.Tx, call txn.Call, beneficiary solana.PublicKey) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, purchase{call: call, beneficiary: beneficiary})
	if err := m.bank.Transfer(tx, call.Sender, m.controller, call.Value); err != nil {
		return err
	}
	return m.registry.AfterPurchase(tx, call.Sender, call.Value*m.rate)
}

type mockMinter struct {
	err    error
	minted map[solana.PublicKey]uint64
}

func (m *mockMinter) MintReward(tx *txn.Tx, to solana.PublicKey, amount uint64) error {
	if m.err != nil {
		return m.err
	}
	prev := m.minted[to]
	m.minted[to] = prev + amount
	tx.OnRollback(func() { m.minted[to] = prev })
	return nil
}

type publisher struct {
	signals []events.Signal
}

func (p *publisher) Publish(signals []events.Signal) {
	p.signals = append(p.signals, signals...)
}

type fixture struct {
	host       *txn.Host
	pub        *publisher
	bank       *funds.Bank
	registry   *Registry
	purchaser  *mockPurchaser
	minter     *mockMinter
	admin      solana.PublicKey
	controller solana.PublicKey
	buyer      solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pub := &publisher{}
	h, err := txn.NewHost(txn.HostConfig{Logger: saletesting.NewLogger(), Publisher: pub})
	require.NoError(t, err)

	f := &fixture{
		host:       h,
		pub:        pub,
		bank:       funds.NewBank(),
		minter:     &mockMinter{minted: make(map[solana.PublicKey]uint64)},
		admin:      address.New(),
		controller: address.New(),
		buyer:      address.New(),
	}
	f.purchaser = &mockPurchaser{bank: f.bank, controller: f.controller, rate: 10}
	f.registry, err = NewRegistry(Config{
		Controller: f.controller,
		Admin:      f.admin,
		Bank:       f.bank,
		Purchaser:  f.purchaser,
		Minter:     f.minter,
	})
	require.NoError(t, err)
	f.purchaser.registry = f.registry

	require.NoError(t, f.try(func(tx *txn.Tx) error {
		return f.bank.Credit(tx, f.buyer, 1_000)
	}))
	return f
}

func (f *fixture) try(fn func(tx *txn.Tx) error) error {
	return f.host.Execute(context.Background(), "test", fn)
}

func (f *fixture) create(t *testing.T, advertiser solana.PublicKey, bonus uint64) solana.PublicKey {
	t.Helper()
	var ch solana.PublicKey
	require.NoError(t, f.try(func(tx *txn.Tx) error {
		var err error
		ch, err = f.registry.CreateReferral(tx, f.admin, advertiser, bonus)
		return err
	}))
	return ch
}

func (f *fixture) buyThrough(ch solana.PublicKey, sender, beneficiary solana.PublicKey, value uint64) error {
	return f.try(func(tx *txn.Tx) error {
		c, ok := f.registry.Channel(ch)
		if !ok {
			return errors.New("unknown channel")
		}
		return c.BuyTokens(tx, txn.Call{Sender: sender, Value: value}, beneficiary)
	})
}

func TestSale_Referral_CreateReferral(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	advertiser := address.New()

	ch := f.create(t, advertiser, 10)
	require.False(t, ch.IsOnCurve())

	got, ok := f.registry.ReferralAddress(advertiser)
	require.True(t, ok)
	require.Equal(t, ch, got)
	adv, ok := f.registry.ReferralAdvertiser(ch)
	require.True(t, ok)
	require.Equal(t, advertiser, adv)
	require.True(t, f.registry.IsValidReferralAddress(ch))

	require.Len(t, f.pub.signals, 1)
	require.Equal(t, events.KindReferralCreated, f.pub.signals[0].Kind)
	require.Equal(t, events.ReferralCreated{Advertiser: advertiser, Channel: ch, BonusPercent: 10}, f.pub.signals[0].Payload)

	t.Run("twice fails", func(t *testing.T) {
		err := f.try(func(tx *txn.Tx) error {
			_, err := f.registry.CreateReferral(tx, f.admin, advertiser, 5)
			return err
		})
		require.ErrorIs(t, err, saleerr.State)
		require.ErrorIs(t, err, saleerr.ErrReferralExists)
		require.Len(t, f.registry.Channels(), 1)
	})

	t.Run("non-admin", func(t *testing.T) {
		err := f.try(func(tx *txn.Tx) error {
			_, err := f.registry.CreateReferral(tx, f.buyer, address.New(), 5)
			return err
		})
		require.ErrorIs(t, err, saleerr.Authorization)
	})

	t.Run("bonus above 100", func(t *testing.T) {
		err := f.try(func(tx *txn.Tx) error {
			_, err := f.registry.CreateReferral(tx, f.admin, address.New(), 101)
			return err
		})
		require.ErrorIs(t, err, saleerr.Validation)
	})

	t.Run("zero advertiser", func(t *testing.T) {
		err := f.try(func(tx *txn.Tx) error {
			_, err := f.registry.CreateReferral(tx, f.admin, solana.PublicKey{}, 5)
			return err
		})
		require.ErrorIs(t, err, saleerr.Validation)
	})
}

func TestSale_Referral_RemoveReferral(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	advertiser := address.New()
	ch := f.create(t, advertiser, 10)

	require.NoError(t, f.try(func(tx *txn.Tx) error {
		return f.registry.RemoveReferral(tx, f.admin, advertiser)
	}))
	_, ok := f.registry.ReferralAddress(advertiser)
	require.False(t, ok)
	require.False(t, f.registry.IsValidReferralAddress(ch))

	c, ok := f.registry.Channel(ch)
	require.True(t, ok)
	require.True(t, c.Disabled())

	err := f.try(func(tx *txn.Tx) error {
		return f.registry.RemoveReferral(tx, f.admin, advertiser)
	})
	require.ErrorIs(t, err, saleerr.ErrNoReferral)

	err = f.buyThrough(ch, f.buyer, f.buyer, 10)
	require.ErrorIs(t, err, saleerr.ErrChannelDisabled)

	// A new channel can be opened after removal and gets a fresh address.
	next := f.create(t, advertiser, 20)
	require.NotEqual(t, ch, next)
}

func TestSale_Referral_RemoveReferralByChannel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	advertiser := address.New()
	ch := f.create(t, advertiser, 10)

	err := f.try(func(tx *txn.Tx) error {
		return f.registry.RemoveReferralByChannel(tx, f.buyer, ch)
	})
	require.ErrorIs(t, err, saleerr.Authorization)

	require.NoError(t, f.try(func(tx *txn.Tx) error {
		return f.registry.RemoveReferralByChannel(tx, f.admin, ch)
	}))
	_, ok := f.registry.ReferralAdvertiser(ch)
	require.False(t, ok)

	last := f.pub.signals[len(f.pub.signals)-1]
	require.Equal(t, events.KindReferralRemoved, last.Kind)
	require.Equal(t, events.ReferralRemoved{Advertiser: advertiser, Channel: ch}, last.Payload)

	err = f.try(func(tx *txn.Tx) error {
		return f.registry.RemoveReferralByChannel(tx, f.admin, ch)
	})
	require.ErrorIs(t, err, saleerr.State)
}

// Advertiser A with a 10% channel: 200 tokens bought through it pays A 20.
func TestSale_Referral_BonusThroughChannel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	advertiser := address.New()
	ch := f.create(t, advertiser, 10)

	require.NoError(t, f.buyThrough(ch, f.buyer, f.buyer, 20))

	require.Len(t, f.purchaser.calls, 1)
	require.Equal(t, ch, f.purchaser.calls[0].call.Sender)
	require.Equal(t, uint64(20), f.purchaser.calls[0].call.Value)
	require.Equal(t, f.buyer, f.purchaser.calls[0].beneficiary)

	require.Equal(t, uint64(20), f.minter.minted[advertiser])
	require.Zero(t, f.minter.minted[f.buyer])
	require.Equal(t, uint64(980), f.bank.Balance(f.buyer))
	require.Equal(t, uint64(20), f.bank.Balance(f.controller))
	require.Zero(t, f.bank.Balance(ch))

	c, _ := f.registry.Channel(ch)
	require.Equal(t, Stats{EtherCollected: 20, TokensCollected: 200, RewardTokensEarned: 20}, c.Stats())

	last := f.pub.signals[len(f.pub.signals)-1]
	require.Equal(t, events.KindReferralRewarded, last.Kind)
	require.Equal(t, events.ReferralRewarded{Advertiser: advertiser, Channel: ch, Amount: 20}, last.Payload)
}

func TestSale_Referral_BonusRoundsDown(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	advertiser := address.New()
	ch := f.create(t, advertiser, 7)
	f.purchaser.rate = 1

	require.NoError(t, f.buyThrough(ch, f.buyer, f.buyer, 99))
	require.Equal(t, uint64(6), f.minter.minted[advertiser])

	// A bonus that floors to zero mints nothing but still counts tokens.
	require.NoError(t, f.buyThrough(ch, f.buyer, f.buyer, 10))
	require.Equal(t, uint64(6), f.minter.minted[advertiser])
	c, _ := f.registry.Channel(ch)
	require.Equal(t, uint64(109), c.Stats().TokensCollected)
}

func TestSale_Referral_SelfReferralFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	advertiser := address.New()
	ch := f.create(t, advertiser, 10)

	err := f.buyThrough(ch, f.buyer, advertiser, 10)
	require.ErrorIs(t, err, saleerr.ErrSelfReferral)

	// A bare transfer from the advertiser is a self-referral too.
	err = f.try(func(tx *txn.Tx) error {
		if err := f.bank.Credit(tx, advertiser, 10); err != nil {
			return err
		}
		c, _ := f.registry.Channel(ch)
		return c.Receive(tx, txn.Call{Sender: advertiser, Value: 10})
	})
	require.ErrorIs(t, err, saleerr.ErrSelfReferral)
	require.Zero(t, f.bank.Balance(advertiser))
}

func TestSale_Referral_ReceiveBuysForSender(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ch := f.create(t, address.New(), 0)

	require.NoError(t, f.try(func(tx *txn.Tx) error {
		c, _ := f.registry.Channel(ch)
		return c.Receive(tx, txn.Call{Sender: f.buyer, Value: 5})
	}))
	require.Equal(t, f.buyer, f.purchaser.calls[0].beneficiary)
	require.Empty(t, f.minter.minted)
}

func TestSale_Referral_MintFailureRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	advertiser := address.New()
	ch := f.create(t, advertiser, 10)
	before := len(f.pub.signals)

	f.minter.err = saleerr.ArithmeticErr("mint", saleerr.ErrCapExceeded)
	err := f.buyThrough(ch, f.buyer, f.buyer, 20)
	require.ErrorIs(t, err, saleerr.Arithmetic)

	c, _ := f.registry.Channel(ch)
	require.Equal(t, Stats{}, c.Stats())
	require.Equal(t, uint64(1_000), f.bank.Balance(f.buyer))
	require.Zero(t, f.bank.Balance(f.controller))
	require.Len(t, f.pub.signals, before)
}

func TestSale_Referral_DirectPurchaseIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	advertiser := address.New()
	f.create(t, advertiser, 10)

	require.NoError(t, f.try(func(tx *txn.Tx) error {
		return f.registry.AfterPurchase(tx, f.buyer, 500)
	}))
	require.Empty(t, f.minter.minted)
}

func TestSale_Referral_ChannelAdminOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ch := f.create(t, address.New(), 10)
	c, _ := f.registry.Channel(ch)

	err := f.try(func(tx *txn.Tx) error {
		return c.Disable(tx, f.admin)
	})
	require.ErrorIs(t, err, saleerr.Authorization)

	err = f.try(func(tx *txn.Tx) error {
		return c.TokensPurchasedCallback(tx, f.buyer, 1, 1)
	})
	require.ErrorIs(t, err, saleerr.Authorization)
	require.False(t, c.Disabled())
}
