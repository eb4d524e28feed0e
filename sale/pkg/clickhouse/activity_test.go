package clickhouse_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/stagesale/sale/pkg/clickhouse"
	"github.com/malbeclabs/stagesale/sale/pkg/events"
	clickhousetesting "github.com/malbeclabs/stagesale/sale/pkg/clickhouse/testing"
	saletesting "github.com/malbeclabs/stagesale/utils/pkg/testing"
)

var at = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func signal(seq uint64, kind events.Kind, payload any) events.Signal {
	return events.Signal{Seq: seq, ID: uuid.New(), Op: "buyTokens", Kind: kind, Time: at, Payload: payload}
}

func TestSale_ClickHouse_ActivityFromSignal(t *testing.T) {
	t.Parallel()

	buyer := solana.NewWallet().PublicKey()
	channel := solana.NewWallet().PublicKey()

	row, ok := clickhouse.ActivityFromSignal(signal(7, events.KindTokensPurchased, events.TokensPurchased{
		Purchaser: channel, Beneficiary: buyer, Value: 10, Amount: 30, Rate: 3,
	}))
	require.True(t, ok)
	require.Equal(t, uint64(7), row.Seq)
	require.Equal(t, buyer.String(), row.Account)
	require.Equal(t, channel.String(), row.Counterparty)
	require.Equal(t, uint64(10), row.Value)
	require.Equal(t, uint64(30), row.Amount)

	row, ok = clickhouse.ActivityFromSignal(signal(8, events.KindDeposited, events.Deposited{Contributor: buyer, Amount: 10}))
	require.True(t, ok)
	require.Empty(t, row.Counterparty)
	require.Equal(t, uint64(10), row.Value)

	_, ok = clickhouse.ActivityFromSignal(signal(9, events.KindStageStarted, events.StageStarted{Rate: 1}))
	require.False(t, ok)
	_, ok = clickhouse.ActivityFromSignal(signal(10, events.KindRefundsEnabled, events.RefundsEnabled{}))
	require.False(t, ok)
}

func TestSale_ClickHouse_ActivityFromSignal_StoredPayload(t *testing.T) {
	t.Parallel()

	buyer := solana.NewWallet().PublicKey()
	raw, err := json.Marshal(events.TokensPurchased{Purchaser: buyer, Beneficiary: buyer, Value: 4, Amount: 12, Rate: 3})
	require.NoError(t, err)

	row, ok := clickhouse.ActivityFromSignal(signal(11, events.KindTokensPurchased, json.RawMessage(raw)))
	require.True(t, ok)
	require.Equal(t, buyer.String(), row.Account)
	require.Equal(t, uint64(4), row.Value)
	require.Equal(t, uint64(12), row.Amount)

	_, ok = clickhouse.ActivityFromSignal(signal(12, events.KindTokensPurchased, json.RawMessage(`{"value":"x"}`)))
	require.False(t, ok)
}

func TestSale_ClickHouse_ActivitySink_Config_Validate(t *testing.T) {
	t.Parallel()

	_, err := clickhouse.NewActivitySink(clickhouse.ActivitySinkConfig{})
	require.ErrorContains(t, err, "logger is required")

	_, err = clickhouse.NewActivitySink(clickhouse.ActivitySinkConfig{Logger: saletesting.NewLogger()})
	require.ErrorContains(t, err, "client is required")
}

func TestSale_ClickHouse_ActivitySink_WriteAndTotals(t *testing.T) {
	info := clickhousetesting.NewTestClient(t, testDB)
	sink, err := clickhouse.NewActivitySink(clickhouse.ActivitySinkConfig{
		Logger: saletesting.NewLogger(),
		Client: info.Client,
	})
	require.NoError(t, err)
	require.Equal(t, "clickhouse", sink.Name())

	buyer := solana.NewWallet().PublicKey()
	advertiser := solana.NewWallet().PublicKey()
	channel := solana.NewWallet().PublicKey()

	batch := []events.Signal{
		signal(1, events.KindStageStarted, events.StageStarted{Rate: 2, Limit: 100}),
		signal(2, events.KindTokensPurchased, events.TokensPurchased{Purchaser: channel, Beneficiary: buyer, Value: 10, Amount: 20, Rate: 2}),
		signal(3, events.KindDeposited, events.Deposited{Contributor: buyer, Amount: 10}),
		signal(4, events.KindReferralRewarded, events.ReferralRewarded{Advertiser: advertiser, Channel: channel, Amount: 2}),
		signal(5, events.KindTokensPurchased, events.TokensPurchased{Purchaser: buyer, Beneficiary: buyer, Value: 5, Amount: 10, Rate: 2}),
	}

	ctx := clickhouse.ContextWithSyncInsert(t.Context())
	require.NoError(t, sink.Write(ctx, batch))
	// A replayed batch collapses on seq.
	require.NoError(t, sink.Write(ctx, batch))

	totals, err := sink.Totals(t.Context())
	require.NoError(t, err)
	require.Equal(t, []clickhouse.KindTotal{
		{Kind: events.KindDeposited, Count: 1, Value: 10, Amount: 0},
		{Kind: events.KindReferralRewarded, Count: 1, Value: 0, Amount: 2},
		{Kind: events.KindTokensPurchased, Count: 2, Value: 15, Amount: 30},
	}, totals)
}

func TestSale_ClickHouse_Migrations_Version(t *testing.T) {
	info := clickhousetesting.NewTestClient(t, testDB)
	version, err := clickhouse.Version(t.Context(), saletesting.NewLogger(), testDB.ClientConfig(info.Database))
	require.NoError(t, err)
	require.Equal(t, int64(1), version)
}
