// Package events defines event types and publisher interfaces for command
// completion events.
package events

import (
	"time"

	"github.com/morezero/ableton-bridge/pkg/dispatcher"
)

// CommandExecutedEvent is emitted when the dispatcher finishes a command,
// whichever way it was answered.
type CommandExecutedEvent struct {
	ID         string `json:"id"`
	Command    string `json:"command"`
	Status     string `json:"status"`
	Path       string `json:"path"`
	ErrorKind  string `json:"errorKind,omitempty"`
	Message    string `json:"message,omitempty"`
	Stubbed    bool   `json:"stubbed"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  string `json:"timestamp"`
}

// NewCommandExecutedEvent builds the event for a completed command.
func NewCommandExecutedEvent(rec *dispatcher.Record) *CommandExecutedEvent {
	event := &CommandExecutedEvent{
		ID:         rec.ID,
		Command:    rec.Command,
		Status:     rec.Response.Status,
		Path:       string(rec.Path),
		Stubbed:    rec.Stubbed(),
		DurationMs: rec.Duration.Milliseconds(),
		Timestamp:  rec.ReceivedAt.Add(rec.Duration).UTC().Format(time.RFC3339Nano),
	}
	if rec.Response.Error != nil {
		event.ErrorKind = string(rec.Response.Error.Kind)
		event.Message = rec.Response.Error.Message
	}
	return event
}
