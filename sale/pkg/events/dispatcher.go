package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/malbeclabs/stagesale/sale/pkg/metrics"
	"github.com/malbeclabs/stagesale/utils/pkg/retry"
)

// Sink receives committed signals outside the host lock.
type Sink interface {
	Name() string
	Write(ctx context.Context, signals []Signal) error
}

type DispatcherConfig struct {
	Logger       *slog.Logger
	Log          *Log
	Sinks        []Sink
	QueueSize    int
	Retry        retry.Config
	DrainTimeout time.Duration
}

func (cfg *DispatcherConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Log == nil {
		cfg.Log = NewLog(DefaultLogSize)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	for _, s := range cfg.Sinks {
		if s == nil {
			return errors.New("sink must not be nil")
		}
	}
	return nil
}

// Dispatcher appends committed signals to the log and fans them out to sinks
// from a single worker so every sink sees commit order.
type Dispatcher struct {
	log   *slog.Logger
	cfg   DispatcherConfig
	queue chan []Signal
}

func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dispatcher{
		log:   cfg.Logger,
		cfg:   cfg,
		queue: make(chan []Signal, cfg.QueueSize),
	}, nil
}

// Log returns the in-memory signal log.
func (d *Dispatcher) Log() *Log {
	return d.cfg.Log
}

// Publish never blocks: it is called with the host lock held.
func (d *Dispatcher) Publish(signals []Signal) {
	if len(signals) == 0 {
		return
	}
	d.cfg.Log.Append(signals)
	if len(d.cfg.Sinks) == 0 {
		return
	}
	batch := append([]Signal(nil), signals...)
	select {
	case d.queue <- batch:
	default:
		metrics.EventsDroppedTotal.Inc()
		d.log.Warn("events: dispatch queue full, dropping batch", "first_seq", batch[0].Seq, "count", len(batch))
	}
}

// Run delivers queued batches until ctx is cancelled, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("events: dispatcher started", "sinks", len(d.cfg.Sinks))
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return nil
		case batch := <-d.queue:
			d.deliver(ctx, batch)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DrainTimeout)
	defer cancel()
	for {
		select {
		case batch := <-d.queue:
			d.deliver(ctx, batch)
		default:
			d.log.Info("events: dispatcher stopped")
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, batch []Signal) {
	for _, sink := range d.cfg.Sinks {
		start := time.Now()
		err := retry.Do(ctx, d.cfg.Retry, func() error {
			return sink.Write(ctx, batch)
		})
		metrics.RecordSinkWrite(sink.Name(), time.Since(start), err)
		if err != nil {
			d.log.Error("events: sink write failed", "sink", sink.Name(), "first_seq", batch[0].Seq, "count", len(batch), "error", err)
		}
	}
}
