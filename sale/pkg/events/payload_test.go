package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestSale_Events_DecodePayload(t *testing.T) {
	t.Parallel()

	grantee := solana.NewWallet().PublicKey()
	release := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	for kind, payload := range map[Kind]any{
		KindStageStarted:         StageStarted{OpeningTime: release, ClosingTime: release.Add(time.Hour), Rate: 3, Limit: 9},
		KindTimeLockGrantCreated: TimeLockGrantCreated{Beneficiary: grantee, Address: grantee, ReleaseTime: release, Amount: 7},
		KindReferralRewarded:     ReferralRewarded{Advertiser: grantee, Channel: grantee, Amount: 2},
		KindFinalized:            Finalized{GoalReached: true, TotalIssued: 100, WeiRaised: 40},
		KindRefundsEnabled:       RefundsEnabled{},
	} {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		got, err := DecodePayload(kind, raw)
		require.NoError(t, err, kind)
		require.Equal(t, payload, got, kind)
	}
	require.Len(t, payloadDecoders, 14)
}

func TestSale_Events_DecodePayload_UnknownKindStaysRaw(t *testing.T) {
	t.Parallel()

	got, err := DecodePayload(Kind("Upgraded"), []byte(`{"v":2}`))
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`{"v":2}`), got)

	_, err = DecodePayload(KindDeposited, []byte(`{"amount":"many"}`))
	require.ErrorContains(t, err, "failed to decode Deposited payload")
}

func TestSale_Events_Signal_Typed(t *testing.T) {
	t.Parallel()

	typed, err := Signal{Seq: 1, Kind: KindWithdrawn, Payload: json.RawMessage(`{"amount":5}`)}.Typed()
	require.NoError(t, err)
	require.Equal(t, Withdrawn{Amount: 5}, typed.Payload)

	live := Signal{Seq: 2, Kind: KindWithdrawn, Payload: Withdrawn{Amount: 6}}
	same, err := live.Typed()
	require.NoError(t, err)
	require.Equal(t, live, same)
}
