package notify_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/notify"
	saletesting "github.com/malbeclabs/stagesale/utils/pkg/testing"
)

type webhook struct {
	mu     sync.Mutex
	bodies []map[string]any
	status int
}

func (w *webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var msg map[string]any
	_ = json.Unmarshal(body, &msg)
	w.mu.Lock()
	w.bodies = append(w.bodies, msg)
	w.mu.Unlock()
	if w.status != 0 {
		rw.WriteHeader(w.status)
		return
	}
	_, _ = rw.Write([]byte("ok"))
}

func newSink(t *testing.T, hook *webhook) *notify.SlackSink {
	t.Helper()
	srv := httptest.NewServer(hook)
	t.Cleanup(srv.Close)
	sink, err := notify.NewSlackSink(notify.Config{
		Logger:     saletesting.NewLogger(),
		WebhookURL: srv.URL,
		Campaign:   "spring sale",
	})
	require.NoError(t, err)
	return sink
}

func TestSale_Notify_Config_Validate(t *testing.T) {
	t.Parallel()

	_, err := notify.NewSlackSink(notify.Config{WebhookURL: "http://x"})
	require.ErrorContains(t, err, "logger is required")
	_, err = notify.NewSlackSink(notify.Config{Logger: saletesting.NewLogger()})
	require.ErrorContains(t, err, "webhook url is required")

	cfg := notify.Config{Logger: saletesting.NewLogger(), WebhookURL: "http://x"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, notify.DefaultKinds, cfg.Kinds)
	require.NotNil(t, cfg.HTTPClient)
}

func TestSale_Notify_PostsNotableSignals(t *testing.T) {
	t.Parallel()

	hook := &webhook{}
	sink := newSink(t, hook)
	wallet := solana.NewWallet().PublicKey()

	err := sink.Write(t.Context(), []events.Signal{
		{Seq: 1, Kind: events.KindTokensPurchased, Payload: events.TokensPurchased{Value: 1, Amount: 1}},
		{Seq: 2, Kind: events.KindVaultClaimed, Payload: events.VaultClaimed{Wallet: wallet, Amount: 40}},
		{Seq: 3, Kind: events.KindFinalized, Payload: events.Finalized{GoalReached: true, TotalIssued: 90, WeiRaised: 40}},
	})
	require.NoError(t, err)

	require.Len(t, hook.bodies, 1)
	text, _ := hook.bodies[0]["text"].(string)
	require.Contains(t, text, "spring sale")
	require.Contains(t, text, "Vault claimed")
	require.Contains(t, text, "goal reached")
	require.NotContains(t, text, "TokensPurchased")
	require.NotNil(t, hook.bodies[0]["blocks"])
}

func TestSale_Notify_SkipsQuietBatches(t *testing.T) {
	t.Parallel()

	hook := &webhook{}
	sink := newSink(t, hook)

	err := sink.Write(t.Context(), []events.Signal{
		{Seq: 1, Kind: events.KindDeposited, Payload: events.Deposited{Amount: 1}},
	})
	require.NoError(t, err)
	require.Empty(t, hook.bodies)
}

func TestSale_Notify_WebhookFailure(t *testing.T) {
	t.Parallel()

	hook := &webhook{status: http.StatusInternalServerError}
	sink := newSink(t, hook)

	err := sink.Write(t.Context(), []events.Signal{
		{Seq: 1, Kind: events.KindRefundsEnabled, Payload: events.RefundsEnabled{}},
	})
	require.ErrorContains(t, err, "failed to post webhook")
}

func TestSale_Notify_Describe(t *testing.T) {
	t.Parallel()

	open := time.Date(2026, 6, 1, 13, 0, 0, 0, time.UTC)
	line := notify.Describe(events.Signal{Kind: events.KindStageStarted, Payload: events.StageStarted{
		OpeningTime: open, ClosingTime: open.Add(time.Hour), Rate: 3, Limit: 100,
	}})
	require.Equal(t, "*Stage started* at rate 3, limit 100, 2026-06-01T13:00:00Z to 2026-06-01T14:00:00Z", line)

	require.Equal(t, "*Finalized* (goal missed): 5 units issued, 2 raised",
		notify.Describe(events.Signal{Kind: events.KindFinalized, Payload: events.Finalized{TotalIssued: 5, WeiRaised: 2}}))
	require.Equal(t, "*RefundsClosed* (seq 9)",
		notify.Describe(events.Signal{Seq: 9, Kind: events.KindRefundsClosed, Payload: events.RefundsClosed{}}))
}
