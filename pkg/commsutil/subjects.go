package commsutil

import "fmt"

// Default COMMS subjects.
const (
	// SubjectCommands carries command envelopes as request/reply.
	SubjectCommands = "ableton.bridge.commands"
	// SubjectExecuted carries an event for every completed command.
	SubjectExecuted = "ableton.bridge.executed"
)

// Message headers set on executed events.
const (
	// HeaderMsgID is the JetStream de-duplication header; it carries the command id.
	HeaderMsgID   = "Nats-Msg-Id"
	HeaderCommand = "Bridge-Command"
	HeaderStatus  = "Bridge-Status"
)

// BuildExecutedSubject builds the per-command executed event subject under
// base, or under SubjectExecuted when base is empty.
func BuildExecutedSubject(base, command string) string {
	if base == "" {
		base = SubjectExecuted
	}
	return fmt.Sprintf("%s.%s", base, command)
}

// BuildCommandSubject builds the subject on which a request body is the
// params object of the named command.
func BuildCommandSubject(base, command string) string {
	if base == "" {
		base = SubjectCommands
	}
	return fmt.Sprintf("%s.%s", base, command)
}

// CommandFromSubject returns the command token of a subject built by
// BuildCommandSubject, or "" when subject is base itself.
func CommandFromSubject(base, subject string) string {
	if base == "" {
		base = SubjectCommands
	}
	if len(subject) <= len(base)+1 || subject[:len(base)] != base || subject[len(base)] != '.' {
		return ""
	}
	return subject[len(base)+1:]
}
