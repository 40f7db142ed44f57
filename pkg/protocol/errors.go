package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure a command can end in.
type ErrorKind string

const (
	// KindProtocol is a malformed or truncated message. Fatal to the connection.
	KindProtocol ErrorKind = "ProtocolError"
	// KindConnection is a transport failure, including timeouts. Fatal to the connection.
	KindConnection ErrorKind = "ConnectionError"
	// KindUnknownCommand means the name is not in the registry.
	KindUnknownCommand ErrorKind = "UnknownCommand"
	// KindInvalidParams is a schema violation; the message names the offending parameter.
	KindInvalidParams ErrorKind = "InvalidParams"
	// KindHost is a failure reported by the host execution boundary, passed through verbatim.
	KindHost ErrorKind = "HostError"
)

// Fatal reports whether an error of this kind terminates the connection.
func (k ErrorKind) Fatal() bool {
	return k == KindProtocol || k == KindConnection
}

// Error is the typed error carried through the transport and dispatcher.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// ProtocolErrorf creates a ProtocolError with a formatted message.
func ProtocolErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindProtocol, Message: fmt.Sprintf(format, args...)}
}

// ConnectionError wraps a transport-level failure.
func ConnectionError(message string, err error) *Error {
	return &Error{Kind: KindConnection, Message: message, Err: err}
}

// KindOf returns the kind of err. Errors that are not *Error are treated as host failures.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindHost
}

// IsFatal reports whether err must tear down the connection it occurred on.
func IsFatal(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind.Fatal()
	}
	return false
}

// MessageOf returns the human-readable message of err without the kind prefix.
func MessageOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Message != "" {
			return pe.Message
		}
		if pe.Err != nil {
			return pe.Err.Error()
		}
	}
	return err.Error()
}
