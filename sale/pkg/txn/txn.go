// Package txn runs sale operations one at a time as all-or-nothing units of
// work. Components record an undo action for every mutation and queue their
// signals on the Tx; the Host replays the undo journal on failure and
// publishes the signals only on success.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/metrics"
	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
)

// Call is the immediate caller of an entrypoint and the funds attached to it.
type Call struct {
	Sender solana.PublicKey
	Value  uint64
}

// Publisher receives committed signals in commit order.
type Publisher interface {
	Publish(signals []events.Signal)
}

// Tx is the unit of work for a single operation.
type Tx struct {
	op      string
	now     time.Time
	undo    []func()
	commit  []func()
	pending []events.Signal
}

// Now is the operation timestamp. Every step of an operation sees the same time.
func (tx *Tx) Now() time.Time {
	return tx.now
}

// Op is the name of the operation being run.
func (tx *Tx) Op() string {
	return tx.op
}

// OnRollback records an action that reverses a mutation already applied.
func (tx *Tx) OnRollback(undo func()) {
	tx.undo = append(tx.undo, undo)
}

// OnCommit records an action to run after the operation commits, outside any
// rollback. Used for metrics.
func (tx *Tx) OnCommit(fn func()) {
	tx.commit = append(tx.commit, fn)
}

// Emit queues a signal for publication on commit.
func (tx *Tx) Emit(kind events.Kind, payload any) {
	tx.pending = append(tx.pending, events.Signal{
		Op:      tx.op,
		Kind:    kind,
		Time:    tx.now,
		Payload: payload,
	})
}

func (tx *Tx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.commit = nil
	tx.pending = nil
}

type HostConfig struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Publisher Publisher
	// StartSeq is the last sequence number already issued, so a restarted
	// host continues a durable event history instead of reusing numbers.
	StartSeq uint64
}

func (cfg *HostConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Host linearizes operations. Reads go through View so they never observe a
// half-applied operation.
type Host struct {
	log *slog.Logger
	cfg HostConfig

	mu  sync.Mutex
	seq uint64
}

func NewHost(cfg HostConfig) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Host{
		log: cfg.Logger,
		cfg: cfg,
		seq: cfg.StartSeq,
	}, nil
}

// Clock returns the host clock.
func (h *Host) Clock() clockwork.Clock {
	return h.cfg.Clock
}

// Execute runs fn as one indivisible operation.
func (h *Host) Execute(ctx context.Context, op string, fn func(tx *Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()

	tx := &Tx{op: op, now: h.cfg.Clock.Now()}

	defer func() {
		if r := recover(); r != nil {
			h.log.Error("txn: operation panicked", "op", op, "panic", r)
			err = fmt.Errorf("%s: operation panicked: %v", op, r)
		}
		if err != nil {
			tx.rollback()
			err = saleerr.WithOp(op, err)
			metrics.RollbacksTotal.WithLabelValues(op, saleerr.KindOf(err).String()).Inc()
			h.log.Debug("txn: operation rolled back", "op", op, "error", err)
		} else {
			h.commit(tx)
		}
		metrics.RecordOperation(op, time.Since(start), err)
	}()

	return fn(tx)
}

// View runs fn under the host lock with the current time.
func (h *Host) View(fn func(now time.Time)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.cfg.Clock.Now())
}

func (h *Host) commit(tx *Tx) {
	for _, fn := range tx.commit {
		fn()
	}
	if len(tx.pending) == 0 {
		return
	}
	for i := range tx.pending {
		h.seq++
		tx.pending[i].Seq = h.seq
		tx.pending[i].ID = uuid.New()
	}
	metrics.EventsPublishedTotal.Add(float64(len(tx.pending)))
	if h.cfg.Publisher != nil {
		h.cfg.Publisher.Publish(tx.pending)
	}
}
