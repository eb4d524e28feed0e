package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"

	"github.com/malbeclabs/stagesale/sale/pkg/eventlog"
)

// PgMigrateUp runs all pending event log migrations.
func PgMigrateUp(ctx context.Context, log *slog.Logger, connStr string) error {
	return eventlog.Migrate(ctx, log, connStr)
}

// PgMigrateDown rolls back the last event log migration.
func PgMigrateDown(ctx context.Context, log *slog.Logger, connStr string) error {
	db, err := openPgDB(ctx, connStr)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("rolling back PostgreSQL migration (down)")
	if err := goose.DownContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	log.Info("PostgreSQL migration rollback completed")
	return nil
}

// PgMigrateStatus prints the status of every event log migration.
func PgMigrateStatus(ctx context.Context, log *slog.Logger, connStr string) error {
	db, err := openPgDB(ctx, connStr)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("PostgreSQL migration status")
	if err := goose.StatusContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	return nil
}

func openPgDB(ctx context.Context, connStr string) (*sql.DB, error) {
	if connStr == "" {
		return nil, fmt.Errorf("postgres connection string is required")
	}
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	goose.SetBaseFS(eventlog.EmbedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return db, nil
}
