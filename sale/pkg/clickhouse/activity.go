package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/stagesale/sale/pkg/events"
)

// Activity is one row of sale_activity: a fund or unit movement taken from a
// committed signal.
type Activity struct {
	Seq          uint64
	EventID      string
	Op           string
	Kind         events.Kind
	OccurredAt   time.Time
	Account      string
	Counterparty string
	Value        uint64
	Amount       uint64
}

// KindTotal aggregates activity of one kind.
type KindTotal struct {
	Kind   events.Kind `json:"kind"`
	Count  uint64      `json:"count"`
	Value  uint64      `json:"value"`
	Amount uint64      `json:"amount"`
}

type ActivitySinkConfig struct {
	Logger *slog.Logger
	Client Client
}

func (cfg *ActivitySinkConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("client is required")
	}
	return nil
}

// ActivitySink flattens purchase, escrow, referral and grant signals into
// sale_activity for reporting. Signals without a fund or unit movement are
// skipped.
type ActivitySink struct {
	log *slog.Logger
	cfg ActivitySinkConfig
}

func NewActivitySink(cfg ActivitySinkConfig) (*ActivitySink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ActivitySink{log: cfg.Logger, cfg: cfg}, nil
}

func (s *ActivitySink) Name() string { return "clickhouse" }

func (s *ActivitySink) Write(ctx context.Context, signals []events.Signal) error {
	rows := make([]Activity, 0, len(signals))
	for _, sig := range signals {
		sig, err := sig.Typed()
		if err != nil {
			s.log.Warn("clickhouse: skipping undecodable signal", "seq", sig.Seq, "kind", sig.Kind, "error", err)
			continue
		}
		if row, ok := ActivityFromSignal(sig); ok {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	batch, err := conn.PrepareBatch(ctx, "INSERT INTO sale_activity")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(
			r.Seq, r.EventID, r.Op, string(r.Kind), r.OccurredAt,
			r.Account, r.Counterparty, r.Value, r.Amount,
		); err != nil {
			return fmt.Errorf("failed to append activity %d: %w", r.Seq, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.log.Debug("clickhouse: wrote activity", "rows", len(rows))
	return nil
}

// Totals aggregates all stored activity by kind.
func (s *ActivitySink) Totals(ctx context.Context) ([]KindTotal, error) {
	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, `
		SELECT kind, count() AS n, sum(value) AS v, sum(amount) AS a
		FROM sale_activity FINAL
		GROUP BY kind
		ORDER BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer rows.Close()

	var out []KindTotal
	for rows.Next() {
		var (
			kind string
			t    KindTotal
		)
		if err := rows.Scan(&kind, &t.Count, &t.Value, &t.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan totals: %w", err)
		}
		t.Kind = events.Kind(kind)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read totals: %w", err)
	}
	return out, nil
}

// ActivityFromSignal maps a signal to a row. ok is false for signals that
// move nothing. Raw JSON payloads, as read back from the event log, are
// decoded by kind first.
func ActivityFromSignal(sig events.Signal) (Activity, bool) {
	sig, err := sig.Typed()
	if err != nil {
		return Activity{}, false
	}
	row := Activity{
		Seq:        sig.Seq,
		EventID:    sig.ID.String(),
		Op:         sig.Op,
		Kind:       sig.Kind,
		OccurredAt: sig.Time.UTC(),
	}
	switch p := sig.Payload.(type) {
	case events.TokensPurchased:
		row.Account, row.Counterparty = key(p.Beneficiary), key(p.Purchaser)
		row.Value, row.Amount = p.Value, p.Amount
	case events.Deposited:
		row.Account, row.Value = key(p.Contributor), p.Amount
	case events.Withdrawn:
		row.Account, row.Value = key(p.Payee), p.Amount
	case events.VaultClaimed:
		row.Account, row.Value = key(p.Wallet), p.Amount
	case events.ReferralRewarded:
		row.Account, row.Counterparty = key(p.Advertiser), key(p.Channel)
		row.Amount = p.Amount
	case events.TimeLockGrantCreated:
		row.Account, row.Counterparty = key(p.Beneficiary), key(p.Address)
		row.Amount = p.Amount
	case events.TimeLockReleased:
		row.Account, row.Counterparty = key(p.Beneficiary), key(p.Address)
		row.Amount = p.Amount
	default:
		return Activity{}, false
	}
	return row, true
}

func key(pk solana.PublicKey) string {
	if pk.IsZero() {
		return ""
	}
	return pk.String()
}
