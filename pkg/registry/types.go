// Package registry is the load-once table of valid command names and their
// parameter schemas, shared by the dispatcher and the debug front-ends.
package registry

import (
	"fmt"
	"strings"
)

// ParamType is the JSON type a parameter must have.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

func (t ParamType) valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

// Param describes one command parameter. Optional parameters with a non-nil
// Default have it applied by Coerce; optional parameters without one stay absent.
type Param struct {
	Name        string      `json:"name"`
	Type        ParamType   `json:"type"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Nullable    bool        `json:"nullable,omitempty"`
	Items       ParamType   `json:"items,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Kind is the handler variant of a command.
type Kind string

const (
	// KindQuery commands only read host state.
	KindQuery Kind = "query"
	// KindMutation commands change host state and run on the host's main thread.
	KindMutation Kind = "mutation"
)

// ParamError describes one offending parameter.
type ParamError struct {
	Param    string    `json:"param"`
	Expected ParamType `json:"expected,omitempty"`
	Reason   string    `json:"reason"`
}

func (e ParamError) String() string {
	msg := e.Reason
	if e.Expected != "" && !strings.Contains(msg, string(e.Expected)) {
		msg = fmt.Sprintf("%s (expected %s)", msg, e.Expected)
	}
	if e.Param == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Param, msg)
}

// ValidationError is returned by Coerce when parameters violate the schema.
type ValidationError struct {
	Command  string       `json:"command"`
	Problems []ParamError `json:"problems"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("invalid params for %s: %s", e.Command, strings.Join(parts, "; "))
}
