package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const journalLogPrefix = "db:journal"

// DefaultRecentLimit is used by Recent when limit is not positive.
const DefaultRecentLimit = 20

// Journal stores completed commands.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal creates a Journal over pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// Ping checks the database answers.
func (j *Journal) Ping(ctx context.Context) error {
	return j.pool.Ping(ctx)
}

// RecordParams holds the columns written by Record.
type RecordParams struct {
	CommandID  string
	Command    string
	Params     map[string]interface{}
	Status     string
	Path       string
	ErrorKind  string
	Message    string
	Duration   time.Duration
	ReceivedAt time.Time
}

// Record inserts one completed command.
func (j *Journal) Record(ctx context.Context, params RecordParams) error {
	slog.Debug(fmt.Sprintf("%s - Record command=%s id=%s", journalLogPrefix, params.Command, params.CommandID))

	raw, err := encodeParams(params.Params)
	if err != nil {
		return fmt.Errorf("%s - failed to encode params: %w", journalLogPrefix, err)
	}

	_, err = j.pool.Exec(ctx,
		`INSERT INTO command_journal
		   (command_id, command, params, status, path, error_kind, message, duration_ms, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		params.CommandID, params.Command, raw, params.Status, params.Path,
		nullIfEmpty(params.ErrorKind), nullIfEmpty(params.Message),
		params.Duration.Milliseconds(), params.ReceivedAt.UTC())
	if err != nil {
		return fmt.Errorf("%s - failed to insert journal entry: %w", journalLogPrefix, err)
	}
	return nil
}

// Recent returns the newest entries first. command filters by name when set.
func (j *Journal) Recent(ctx context.Context, limit int, command string) ([]JournalEntry, error) {
	if limit < 1 {
		limit = DefaultRecentLimit
	}

	query := `SELECT id, command_id, command, params, status, path, error_kind, message,
	                 duration_ms, received_at, created
	          FROM command_journal`
	args := []interface{}{}
	if command != "" {
		query += ` WHERE command = $1`
		args = append(args, command)
	}
	query += fmt.Sprintf(` ORDER BY received_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to query journal: %w", journalLogPrefix, err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		entry, err := scanJournalEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - failed to read journal: %w", journalLogPrefix, err)
	}
	return out, nil
}

// Summary counts journal rows.
func (j *Journal) Summary(ctx context.Context) (*JournalSummary, error) {
	var s JournalSummary
	err := j.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'error'),
		        COUNT(*) FILTER (WHERE path = 'stubbed'),
		        MAX(received_at)
		 FROM command_journal`).Scan(&s.Total, &s.Errors, &s.Stubbed, &s.LastSeen)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to summarize journal: %w", journalLogPrefix, err)
	}
	return &s, nil
}

func scanJournalEntry(row pgx.Row) (*JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.CommandID, &e.Command, &e.Params, &e.Status, &e.Path,
		&e.ErrorKind, &e.Message, &e.DurationMs, &e.ReceivedAt, &e.Created)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to scan journal entry: %w", journalLogPrefix, err)
	}
	return &e, nil
}

func encodeParams(params map[string]interface{}) ([]byte, error) {
	if params == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(params)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
