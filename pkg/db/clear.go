package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearJournal truncates the command journal. Schema is preserved; only data
// is removed. RESTART IDENTITY resets the id sequence.
func ClearJournal(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing command journal", clearLogPrefix))

	_, err := pool.Exec(ctx, `TRUNCATE TABLE `+JournalTable+` RESTART IDENTITY`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Command journal cleared", clearLogPrefix))
	return nil
}
