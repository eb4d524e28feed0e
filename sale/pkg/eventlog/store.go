// Package eventlog persists committed signals to PostgreSQL so the event
// history survives restarts of the daemon.
package eventlog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"

	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/metrics"
)

//go:embed migrations/*.sql
var EmbedMigrations embed.FS

type Config struct {
	Logger        *slog.Logger
	ConnStr       string
	RunMigrations bool
	MaxConns      int32
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ConnStr == "" {
		return errors.New("connection string is required")
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 10
	}
	return nil
}

// Store is an events.Sink backed by the signals table. Writes are idempotent
// on seq, so a retried batch never duplicates rows. A batch that starts past
// the next expected seq is still written, and the hole is logged and counted.
type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool

	mu      sync.Mutex
	seeded  bool
	written uint64
	gaps    uint64
}

// Open connects to PostgreSQL and, when asked, applies pending migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.RunMigrations {
		if err := Migrate(ctx, cfg.Logger, cfg.ConnStr); err != nil {
			return nil, err
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	cfg.Logger.Info("eventlog: connected to postgres")
	return &Store{log: cfg.Logger, pool: pool}, nil
}

// Migrate applies the embedded migrations with goose.
func Migrate(ctx context.Context, log *slog.Logger, connStr string) error {
	log.Info("eventlog: running migrations")

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(EmbedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("eventlog: migrations completed")
	return nil
}

func (s *Store) Name() string { return "postgres" }

// Write inserts a batch of signals in one round trip.
func (s *Store) Write(ctx context.Context, signals []events.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	if err := s.checkGap(ctx, signals); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, sig := range signals {
		payload, err := json.Marshal(sig.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload of signal %d: %w", sig.Seq, err)
		}
		batch.Queue(`
			INSERT INTO signals (seq, id, op, kind, occurred_at, payload)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (seq) DO NOTHING`,
			int64(sig.Seq), sig.ID.String(), sig.Op, string(sig.Kind), sig.Time, payload,
		)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert signals: %w", err)
	}

	s.mu.Lock()
	if last := signals[len(signals)-1].Seq; last > s.written {
		s.written = last
	}
	s.mu.Unlock()
	return nil
}

// checkGap compares the batch against the highest seq written so far, seeded
// from the table on first use.
func (s *Store) checkGap(ctx context.Context, signals []events.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seeded {
		last, err := s.LastSeq(ctx)
		if err != nil {
			return err
		}
		s.written, s.seeded = last, true
	}
	first := signals[0].Seq
	if first <= s.written+1 {
		return nil
	}
	s.gaps++
	metrics.EventLogGapsTotal.Inc()
	s.log.Error("eventlog: gap in stored signals", "missing_from", s.written+1, "missing_to", first-1)
	return nil
}

// Gaps returns how many seq gaps this store has seen.
func (s *Store) Gaps() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gaps
}

// Since returns up to limit stored signals with seq greater than after.
// Payloads are decoded into their kind's struct; unknown kinds come back as
// json.RawMessage.
func (s *Store) Since(ctx context.Context, after uint64, limit int) ([]events.Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT seq, id::text, op, kind, occurred_at, payload
		FROM signals
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2`, int64(after), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var out []events.Signal
	for rows.Next() {
		var (
			seq     int64
			id      string
			op      string
			kind    string
			at      time.Time
			payload []byte
		)
		if err := rows.Scan(&seq, &id, &op, &kind, &at, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse signal id %q: %w", id, err)
		}
		decoded, err := events.DecodePayload(events.Kind(kind), payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode signal %d: %w", seq, err)
		}
		out = append(out, events.Signal{
			Seq:     uint64(seq),
			ID:      parsed,
			Op:      op,
			Kind:    events.Kind(kind),
			Time:    at.UTC(),
			Payload: decoded,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read signals: %w", err)
	}
	return out, nil
}

// LastSeq returns the highest stored seq, or zero for an empty table.
func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	var seq int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM signals`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to query last seq: %w", err)
	}
	return uint64(seq), nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}
