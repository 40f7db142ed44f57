package db

import "time"

// JournalEntry represents a row in the command_journal table.
type JournalEntry struct {
	ID         int64     `json:"id"`
	CommandID  string    `json:"command_id"`
	Command    string    `json:"command"`
	Params     []byte    `json:"params,omitempty"`
	Status     string    `json:"status"`
	Path       string    `json:"path"`
	ErrorKind  *string   `json:"error_kind,omitempty"`
	Message    *string   `json:"message,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	ReceivedAt time.Time `json:"received_at"`
	Created    time.Time `json:"created"`
}

// Stubbed reports whether the stub store answered the command.
func (e *JournalEntry) Stubbed() bool {
	return e.Path == "stubbed"
}

// JournalSummary aggregates the journal for status pages.
type JournalSummary struct {
	Total    int64      `json:"total"`
	Errors   int64      `json:"errors"`
	Stubbed  int64      `json:"stubbed"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
