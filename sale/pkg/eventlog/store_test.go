package eventlog_test

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/stagesale/sale/pkg/eventlog"
	"github.com/malbeclabs/stagesale/sale/pkg/events"
	saletesting "github.com/malbeclabs/stagesale/utils/pkg/testing"
)

var at = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func signal(seq uint64, kind events.Kind, payload any) events.Signal {
	return events.Signal{
		Seq:     seq,
		ID:      uuid.New(),
		Op:      "buyTokens",
		Kind:    kind,
		Time:    at.Add(time.Duration(seq) * time.Second),
		Payload: payload,
	}
}

func TestSale_EventLog_Config_Validate(t *testing.T) {
	t.Parallel()

	cfg := eventlog.Config{ConnStr: "postgres://x"}
	require.ErrorContains(t, cfg.Validate(), "logger is required")

	cfg = eventlog.Config{Logger: saletesting.NewLogger()}
	require.ErrorContains(t, cfg.Validate(), "connection string is required")

	cfg = eventlog.Config{Logger: saletesting.NewLogger(), ConnStr: "postgres://x"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, int32(10), cfg.MaxConns)
}

func TestSale_EventLog_WriteAndSince(t *testing.T) {
	store := newStore(t)
	buyer := solana.NewWallet().PublicKey()

	batch := []events.Signal{
		signal(1, events.KindStageStarted, events.StageStarted{Rate: 2, Limit: 100}),
		signal(2, events.KindTokensPurchased, events.TokensPurchased{Purchaser: buyer, Beneficiary: buyer, Value: 10, Amount: 20, Rate: 2}),
		signal(3, events.KindDeposited, events.Deposited{Contributor: buyer, Amount: 10}),
	}
	require.NoError(t, store.Write(t.Context(), batch))

	got, err := store.Since(t.Context(), 1, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint64(2), got[0].Seq)
	require.Equal(t, batch[1].ID, got[0].ID)
	require.Equal(t, events.KindTokensPurchased, got[0].Kind)
	require.Equal(t, "buyTokens", got[0].Op)
	require.True(t, batch[1].Time.Equal(got[0].Time))

	purchased, ok := got[0].Payload.(events.TokensPurchased)
	require.True(t, ok, "payload %T", got[0].Payload)
	require.Equal(t, buyer, purchased.Beneficiary)
	require.Equal(t, uint64(20), purchased.Amount)

	last, err := store.LastSeq(t.Context())
	require.NoError(t, err)
	require.Equal(t, uint64(3), last)
}

func TestSale_EventLog_WriteIsIdempotent(t *testing.T) {
	store := newStore(t)

	batch := []events.Signal{
		signal(1, events.KindRefundsEnabled, events.RefundsEnabled{}),
		signal(2, events.KindRefundsClosed, events.RefundsClosed{}),
	}
	require.NoError(t, store.Write(t.Context(), batch))
	require.NoError(t, store.Write(t.Context(), batch))

	got, err := store.Since(t.Context(), 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestSale_EventLog_WriteReportsSeqGaps(t *testing.T) {
	store := newStore(t)

	batch := func(from, to uint64) []events.Signal {
		var out []events.Signal
		for seq := from; seq <= to; seq++ {
			out = append(out, signal(seq, events.KindStageStopped, events.StageStopped{Rate: 1}))
		}
		return out
	}

	require.NoError(t, store.Write(t.Context(), batch(1, 3)))
	require.NoError(t, store.Write(t.Context(), batch(1, 3)))
	require.Zero(t, store.Gaps())

	require.NoError(t, store.Write(t.Context(), batch(6, 7)))
	require.Equal(t, uint64(1), store.Gaps())

	got, err := store.Since(t.Context(), 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 5)

	// A second store picks up from the table.
	reopened, err := eventlog.Open(t.Context(), eventlog.Config{Logger: saletesting.NewLogger(), ConnStr: testDB.ConnStr()})
	require.NoError(t, err)
	t.Cleanup(reopened.Close)
	require.NoError(t, reopened.Write(t.Context(), batch(8, 8)))
	require.Zero(t, reopened.Gaps())
}

func TestSale_EventLog_SinceRespectsLimit(t *testing.T) {
	store := newStore(t)

	var batch []events.Signal
	for seq := uint64(1); seq <= 5; seq++ {
		batch = append(batch, signal(seq, events.KindStageStopped, events.StageStopped{Rate: 1}))
	}
	require.NoError(t, store.Write(t.Context(), batch))

	got, err := store.Since(t.Context(), 0, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, uint64(3), got[2].Seq)

	empty, err := store.Since(t.Context(), 5, 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestSale_EventLog_EmptyTable(t *testing.T) {
	store := newStore(t)

	last, err := store.LastSeq(t.Context())
	require.NoError(t, err)
	require.Zero(t, last)
	require.NoError(t, store.Write(t.Context(), nil))
	require.NoError(t, store.Ping(t.Context()))
	require.Equal(t, "postgres", store.Name())
}
