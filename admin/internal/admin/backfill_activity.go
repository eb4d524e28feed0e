package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/stagesale/sale/pkg/events"
)

const defaultBackfillBatchSize = 500

// SignalSource pages through stored signals in sequence order.
type SignalSource interface {
	Since(ctx context.Context, after uint64, limit int) ([]events.Signal, error)
}

type BackfillActivityConfig struct {
	// After is the last sequence number already in the sink.
	After     uint64
	BatchSize int
	DryRun    bool
}

type BackfillResult struct {
	Signals int
	Batches int
	LastSeq uint64
}

// BackfillActivity replays the durable event log into sink. The activity
// table collapses replays by sequence number, so overlapping runs are safe.
func BackfillActivity(ctx context.Context, log *slog.Logger, src SignalSource, sink events.Sink, cfg BackfillActivityConfig) (BackfillResult, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBackfillBatchSize
	}

	res := BackfillResult{LastSeq: cfg.After}
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		batch, err := src.Since(ctx, res.LastSeq, cfg.BatchSize)
		if err != nil {
			return res, fmt.Errorf("failed to read signals after %d: %w", res.LastSeq, err)
		}
		if len(batch) == 0 {
			break
		}
		if !cfg.DryRun {
			if err := sink.Write(ctx, batch); err != nil {
				return res, fmt.Errorf("failed to write batch to %s: %w", sink.Name(), err)
			}
		}
		res.Signals += len(batch)
		res.Batches++
		res.LastSeq = batch[len(batch)-1].Seq
		log.Debug("admin: backfilled batch", "sink", sink.Name(), "count", len(batch), "last_seq", res.LastSeq, "dry_run", cfg.DryRun)

		if len(batch) < cfg.BatchSize {
			break
		}
	}

	log.Info("admin: backfill completed", "sink", sink.Name(), "signals", res.Signals, "batches", res.Batches, "last_seq", res.LastSeq)
	return res, nil
}
