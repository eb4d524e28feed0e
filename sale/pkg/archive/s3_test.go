package archive_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/stagesale/sale/pkg/archive"
	"github.com/malbeclabs/stagesale/sale/pkg/events"
	saletesting "github.com/malbeclabs/stagesale/utils/pkg/testing"
)

type putCall struct {
	bucket, key, contentType string
	body                     []byte
}

type mockPutter struct {
	calls []putCall
	err   error
}

func (m *mockPutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.calls = append(m.calls, putCall{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		body:        body,
	})
	return &s3.PutObjectOutput{}, nil
}

var now = time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)

func newSink(t *testing.T, putter *mockPutter) *archive.Sink {
	t.Helper()
	sink, err := archive.NewSink(archive.Config{
		Logger:   saletesting.NewLogger(),
		Clock:    clockwork.NewFakeClockAt(now),
		Client:   putter,
		Bucket:   "sale-reports",
		Prefix:   "reports",
		Campaign: "spring",
		Snapshot: func() any { return map[string]uint64{"wei_raised": 40} },
	})
	require.NoError(t, err)
	return sink
}

func TestSale_Archive_Config_Validate(t *testing.T) {
	t.Parallel()

	_, err := archive.NewSink(archive.Config{Client: &mockPutter{}, Bucket: "b"})
	require.ErrorContains(t, err, "logger is required")
	_, err = archive.NewSink(archive.Config{Logger: saletesting.NewLogger(), Bucket: "b"})
	require.ErrorContains(t, err, "s3 client is required")
	_, err = archive.NewSink(archive.Config{Logger: saletesting.NewLogger(), Client: &mockPutter{}})
	require.ErrorContains(t, err, "bucket is required")
}

func TestSale_Archive_UploadsFinalizationReport(t *testing.T) {
	t.Parallel()

	putter := &mockPutter{}
	sink := newSink(t, putter)
	require.Equal(t, "s3", sink.Name())

	finalized := events.Signal{Seq: 42, Op: "finalize", Kind: events.KindFinalized, Time: now,
		Payload: events.Finalized{GoalReached: true, TotalIssued: 90, WeiRaised: 40}}
	require.NoError(t, sink.Write(t.Context(), []events.Signal{
		{Seq: 41, Kind: events.KindVaultClaimed, Payload: events.VaultClaimed{Amount: 40}},
		finalized,
	}))

	require.Len(t, putter.calls, 1)
	call := putter.calls[0]
	require.Equal(t, "sale-reports", call.bucket)
	require.Equal(t, "reports/spring/finalized-00000000000000000042.json", call.key)
	require.Equal(t, "application/json", call.contentType)

	var report struct {
		Campaign        string            `json:"campaign"`
		ArchivedAt      time.Time         `json:"archived_at"`
		Finalized       map[string]any    `json:"finalized"`
		StatusAtArchive map[string]uint64 `json:"status_at_archive"`
	}
	require.NoError(t, json.Unmarshal(call.body, &report))
	require.Equal(t, "spring", report.Campaign)
	require.True(t, now.Equal(report.ArchivedAt))
	require.Equal(t, float64(42), report.Finalized["seq"])
	require.Equal(t, uint64(40), report.StatusAtArchive["wei_raised"])

	committed, ok := report.Finalized["payload"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(90), committed["total_issued"])
	require.NotContains(t, string(call.body), `"status":`)
}

func TestSale_Archive_IgnoresOtherSignals(t *testing.T) {
	t.Parallel()

	putter := &mockPutter{}
	sink := newSink(t, putter)
	require.NoError(t, sink.Write(t.Context(), []events.Signal{
		{Seq: 1, Kind: events.KindTokensPurchased, Payload: events.TokensPurchased{}},
	}))
	require.Empty(t, putter.calls)
}

func TestSale_Archive_PutFailure(t *testing.T) {
	t.Parallel()

	putter := &mockPutter{err: errors.New("access denied")}
	sink := newSink(t, putter)
	err := sink.Write(t.Context(), []events.Signal{{Seq: 3, Kind: events.KindFinalized, Payload: events.Finalized{}}})
	require.ErrorContains(t, err, "access denied")
}
