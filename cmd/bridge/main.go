// Package main is the entrypoint for the ableton-bridge server (binary name "bridge").
package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/ableton-bridge/internal/config"
	"github.com/morezero/ableton-bridge/internal/server"
	"github.com/morezero/ableton-bridge/pkg/db"
	"github.com/morezero/ableton-bridge/pkg/output"
	"github.com/morezero/ableton-bridge/pkg/registry"
	"github.com/morezero/ableton-bridge/pkg/repl"
)

const usage = `Usage: bridge [command]
       bridge serve               Start the bridge (TCP command socket, HTTP, optional NATS).
       bridge migrate up          Create or update the command journal schema.
       bridge migrate down        Not supported; migrations are forward-only.
       bridge migrate status      Show applied migrations.
       bridge ensure-db [name]    Create database if missing (default name: ableton_bridge_test). Uses DATABASE_URL host/user.
       bridge clear               Truncate the command journal; schema is preserved.
       bridge history [n] [cmd]   Show the n most recent journaled commands (default 20), optionally for one command.
       bridge commands            List the command table.

Commands:
  serve           (default) Start the bridge server.
  migrate up      Run database migrations only.
  migrate status  Show current migration status.
  ensure-db [name] Create database (e.g. ableton_bridge_test) on same host as DATABASE_URL.
  clear           Truncate the command journal.
  history         Print recent journal entries.
  commands        Print every command with its kind and parameters.

Environment: ABLETON_HOST, ABLETON_PORT (default 9877), HOST_BACKEND (simulator|relay),
UPSTREAM_HOST, UPSTREAM_PORT, STUBS_FILE, COMMS_URL, DATABASE_URL,
MIGRATION_PATH, HTTP_PORT (default 8080), LOG_LEVEL.
`

const defaultTestDatabase = "ableton_bridge_test"

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("bridge migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("bridge migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("bridge migrate status: %v", err)
			}
		case "down":
			if err := runMigrateDown(); err != nil {
				log.Fatalf("bridge migrate down: %v", err)
			}
		default:
			log.Fatalf("bridge migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("bridge clear: %v", err)
		}
		return
	case "history":
		limit, command, err := parseHistoryArgs(args[1:])
		if err != nil {
			log.Fatalf("bridge history: %v", err)
		}
		if err := runHistory(limit, command); err != nil {
			log.Fatalf("bridge history: %v", err)
		}
		return
	case "ensure-db":
		dbName := defaultTestDatabase
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("bridge ensure-db: %v", err)
		}
		return
	case "commands":
		fmt.Print((&output.TableFormatter{}).Format(repl.CommandRows(registry.Default())))
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("bridge: %v", err)
	}
}

// openPool loads config and connects to DATABASE_URL.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, pool, nil
}

func runMigrateUp() error {
	ctx := context.Background()
	cfg, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrations, _, err := server.LoadMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	ctx := context.Background()
	cfg, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrations, source, err := server.LoadMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	status, err := db.MigrationStatus(ctx, pool, migrations, source)
	if err != nil {
		return err
	}
	fmt.Println(status.String())
	return nil
}

func runMigrateDown() error {
	ctx := context.Background()
	cfg, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	return db.MigrationDown(ctx, pool, cfg.MigrationPath)
}

func runClear() error {
	ctx := context.Background()
	_, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.ClearJournal(ctx, pool); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	fmt.Println("Command journal cleared.")
	return nil
}

// historyRow is one line of the history table.
type historyRow struct {
	Received string
	ID       string
	Command  string
	Status   string
	Path     string
	Error    string
	Ms       int64
}

func parseHistoryArgs(args []string) (int, string, error) {
	limit := db.DefaultRecentLimit
	command := ""
	if len(args) > 0 && args[0] != "" {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return 0, "", fmt.Errorf("count must be a positive integer, got %q", args[0])
		}
		limit = n
	}
	if len(args) > 1 {
		command = args[1]
	}
	return limit, command, nil
}

func historyRows(entries []db.JournalEntry) []historyRow {
	rows := make([]historyRow, len(entries))
	for i, e := range entries {
		row := historyRow{
			Received: e.ReceivedAt.Local().Format(time.DateTime),
			ID:       e.CommandID,
			Command:  e.Command,
			Status:   e.Status,
			Path:     e.Path,
			Ms:       e.DurationMs,
		}
		if e.ErrorKind != nil {
			row.Error = *e.ErrorKind
			if e.Message != nil {
				row.Error += ": " + *e.Message
			}
		}
		rows[i] = row
	}
	return rows
}

func runHistory(limit int, command string) error {
	ctx := context.Background()
	_, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	entries, err := db.NewJournal(pool).Recent(ctx, limit, command)
	if err != nil {
		return err
	}
	fmt.Print((&output.TableFormatter{}).Format(historyRows(entries)))
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	targetURL, err := withDatabase(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

// withDatabase replaces the path of a Postgres URL with dbName; the query
// (e.g. sslmode) is kept.
func withDatabase(databaseURL, dbName string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}
