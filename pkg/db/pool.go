// Package db stores the command journal in Postgres via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// The journal sees one insert per command and occasional reads.
const (
	poolMaxConns = 4
	poolMinConns = 1
)

func poolConfig(databaseURL string) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}
	config.MaxConns = poolMaxConns
	config.MinConns = poolMinConns
	return config, nil
}

// NewPool creates a pgx connection pool and verifies it with a ping.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := poolConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// RunMigrations applies migrations in order. Every statement is written to be
// re-runnable, so applying the full list again is safe.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrations)))

	for _, m := range migrations {
		slog.Debug(fmt.Sprintf("%s - Applying %s", logPrefix, m.Name))
		if _, err := pool.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("%s - migration %s failed: %w", logPrefix, m.Name, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// JournalTable is created by the first migration.
const JournalTable = "command_journal"

// SchemaStatus describes the applied state of the bridge schema.
type SchemaStatus struct {
	Applied        bool
	MigrationFiles int
	Source         string
}

func (s SchemaStatus) String() string {
	if s.Applied {
		return fmt.Sprintf("Migration status: applied (%s present, %d migration files in %s)", JournalTable, s.MigrationFiles, s.Source)
	}
	return fmt.Sprintf("Migration status: not applied (run 'bridge migrate up'). %d migration files in %s", s.MigrationFiles, s.Source)
}

// MigrationStatus reports whether migrations have been applied by checking for the journal table.
// source names where migrations were loaded from.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrations []Migration, source string) (*SchemaStatus, error) {
	const statusLogPrefix = "db:MigrationStatus"

	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`,
		JournalTable).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to check schema: %w", statusLogPrefix, err)
	}

	return &SchemaStatus{Applied: exists, MigrationFiles: len(migrations), Source: source}, nil
}

// MigrationDown is not supported; migrations are forward-only. The journal
// holds history only, so ClearJournal is the usual way to start over.
func MigrationDown(_ context.Context, _ *pgxpool.Pool, _ string) error {
	return fmt.Errorf("db:MigrationDown - down migrations are not supported (migrations are forward-only); use 'bridge clear' or a database backup")
}
