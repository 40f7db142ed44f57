// Package protocol implements the bridge wire protocol: command and response
// envelopes, the error taxonomy, message framing and connections.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Response status values on the wire.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Command is a named request with structured parameters. Immutable once sent.
type Command struct {
	ID      string
	Name    string
	Params  map[string]interface{}
	Version string

	paramsErr error
}

// ParamsError returns the InvalidParams error recorded when the envelope's
// params was valid JSON but not an object, or nil. Params is empty then.
func (c *Command) ParamsError() error {
	return c.paramsErr
}

// wireCommand accepts every key a peer may use for the command name:
// command_type (current), type (legacy remote script) and name.
type wireCommand struct {
	ID          string          `json:"id,omitempty"`
	CommandType string          `json:"command_type,omitempty"`
	Type        string          `json:"type,omitempty"`
	Name        string          `json:"name,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
	Version     string          `json:"version,omitempty"`
}

// MarshalJSON writes command_type and mirrors it into type so legacy remote
// scripts can read the same envelope.
func (c Command) MarshalJSON() ([]byte, error) {
	params := c.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	return json.Marshal(struct {
		ID          string                 `json:"id,omitempty"`
		CommandType string                 `json:"command_type"`
		Type        string                 `json:"type"`
		Params      map[string]interface{} `json:"params"`
		Version     string                 `json:"version,omitempty"`
	}{
		ID:          c.ID,
		CommandType: c.Name,
		Type:        c.Name,
		Params:      params,
		Version:     c.Version,
	})
}

// UnmarshalJSON decodes a command envelope. See DecodeCommand.
func (c *Command) UnmarshalJSON(data []byte) error {
	cmd, err := DecodeCommand(data)
	if err != nil {
		return err
	}
	*c = *cmd
	return nil
}

// DecodeCommand parses one command envelope. Every returned error is a
// ProtocolError. Params that are not an object do not fail the envelope; they
// are recorded on the command, see ParamsError. Numbers in params are kept as
// json.Number so they round-trip exactly.
func DecodeCommand(data []byte) (*Command, error) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, ProtocolErrorf("invalid command envelope: %v", err)
	}

	name := w.CommandType
	if name == "" {
		name = w.Type
	}
	if name == "" {
		name = w.Name
	}
	if name == "" {
		return nil, ProtocolErrorf("command envelope has no command_type")
	}

	if err := CheckVersion(w.Version); err != nil {
		return nil, err
	}

	cmd := &Command{ID: w.ID, Name: name, Params: map[string]interface{}{}, Version: w.Version}
	raw := bytes.TrimSpace(w.Params)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return cmd, nil
	}
	if raw[0] != '{' {
		cmd.paramsErr = NewError(KindInvalidParams, fmt.Sprintf("params must be a JSON object, got %s", jsonKind(raw)))
		return cmd, nil
	}
	if err := decodeNumbers(raw, &cmd.Params); err != nil {
		return nil, ProtocolErrorf("invalid params of %q: %v", name, err)
	}
	return cmd, nil
}

// jsonKind names the JSON type of an encoded value from its first byte.
func jsonKind(raw []byte) string {
	switch raw[0] {
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	default:
		return "number"
	}
}

// Response is the outcome of one command. Exactly one of Result or Error is
// meaningful, selected by Status.
type Response struct {
	ID     string
	Status string
	Result interface{}
	Error  *ErrorDetail
}

// ErrorDetail holds the kind and message of a failed command.
type ErrorDetail struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Success builds a success response.
func Success(id string, result interface{}) *Response {
	return &Response{ID: id, Status: StatusSuccess, Result: result}
}

// Failure builds an error response.
func Failure(id string, kind ErrorKind, message string) *Response {
	return &Response{ID: id, Status: StatusError, Error: &ErrorDetail{Kind: kind, Message: message}}
}

// FromError builds an error response from any error, classifying it with KindOf.
func FromError(id string, err error) *Response {
	return Failure(id, KindOf(err), MessageOf(err))
}

// OK reports whether the response is a success.
func (r *Response) OK() bool {
	return r.Status == StatusSuccess
}

// Err returns the response's failure as an *Error, or nil on success.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	if r.Error == nil {
		return NewError(KindHost, "unknown error")
	}
	return NewError(r.Error.Kind, r.Error.Message)
}

// MarshalJSON writes {"status":"success","result":...} or
// {"status":"error","message":...,"error":{"kind":...,"message":...}}.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Status == StatusSuccess {
		return json.Marshal(struct {
			ID     string      `json:"id,omitempty"`
			Status string      `json:"status"`
			Result interface{} `json:"result"`
		}{r.ID, StatusSuccess, r.Result})
	}

	detail := r.Error
	if detail == nil {
		detail = &ErrorDetail{Kind: KindHost, Message: "unknown error"}
	}
	return json.Marshal(struct {
		ID      string       `json:"id,omitempty"`
		Status  string       `json:"status"`
		Message string       `json:"message"`
		Error   *ErrorDetail `json:"error"`
	}{r.ID, StatusError, detail.Message, detail})
}

// UnmarshalJSON decodes a response envelope. See DecodeResponse.
func (r *Response) UnmarshalJSON(data []byte) error {
	resp, err := DecodeResponse(data)
	if err != nil {
		return err
	}
	*r = *resp
	return nil
}

// DecodeResponse parses one response envelope. A legacy error envelope that
// carries only a message is reported as a HostError.
func DecodeResponse(data []byte) (*Response, error) {
	var w struct {
		ID      string          `json:"id,omitempty"`
		Status  string          `json:"status"`
		Result  json.RawMessage `json:"result,omitempty"`
		Message string          `json:"message,omitempty"`
		Error   *ErrorDetail    `json:"error,omitempty"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, ProtocolErrorf("invalid response envelope: %v", err)
	}

	switch w.Status {
	case StatusSuccess:
		var result interface{}
		if len(w.Result) > 0 {
			if err := decodeNumbers(w.Result, &result); err != nil {
				return nil, ProtocolErrorf("invalid response result: %v", err)
			}
		}
		return &Response{ID: w.ID, Status: StatusSuccess, Result: result}, nil
	case StatusError:
		detail := w.Error
		if detail == nil {
			detail = &ErrorDetail{Kind: KindHost, Message: w.Message}
		}
		if detail.Kind == "" {
			detail.Kind = KindHost
		}
		if detail.Message == "" {
			detail.Message = w.Message
		}
		return &Response{ID: w.ID, Status: StatusError, Error: detail}, nil
	default:
		return nil, ProtocolErrorf("invalid response status %q", w.Status)
	}
}

func decodeNumbers(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
