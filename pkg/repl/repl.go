// Package repl is the interactive debug front-end. It sends commands through
// a client and keeps its own stub store, which intercepts commands before
// they are sent so a command can be prototyped before the host implements it.
package repl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/morezero/ableton-bridge/pkg/output"
	"github.com/morezero/ableton-bridge/pkg/protocol"
	"github.com/morezero/ableton-bridge/pkg/registry"
	"github.com/morezero/ableton-bridge/pkg/stubs"
)

const logPrefix = "repl:repl"

// Prompt is printed before every line read.
const Prompt = "ableton> "

// InfoCommand is what the info verb sends.
const InfoCommand = "get_session_info"

// Sender sends one command and returns the peer's response.
// *client.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, name string, params map[string]interface{}) (*protocol.Response, error)
}

// Options configures a REPL. Registry, Stubs and Formatter default to the
// full command table, an empty enabled store and JSON output.
type Options struct {
	Sender    Sender
	Registry  *registry.Registry
	Stubs     *stubs.Store
	Formatter output.Formatter
	Out       io.Writer
}

// REPL runs verbs against a Sender.
type REPL struct {
	sender    Sender
	registry  *registry.Registry
	stubs     *stubs.Store
	formatter output.Formatter
	out       io.Writer
}

// New creates a REPL.
func New(opts Options) *REPL {
	r := &REPL{
		sender:    opts.Sender,
		registry:  opts.Registry,
		stubs:     opts.Stubs,
		formatter: opts.Formatter,
		out:       opts.Out,
	}
	if r.registry == nil {
		r.registry = registry.Default()
	}
	if r.stubs == nil {
		r.stubs = stubs.NewStore()
	}
	if r.formatter == nil {
		r.formatter = output.NewFormatter("json")
	}
	if r.out == nil {
		r.out = io.Discard
	}
	return r
}

// Stubs returns the REPL's local stub store.
func (r *REPL) Stubs() *stubs.Store {
	return r.stubs
}

// Send resolves name against the local stubs first and otherwise sends it.
// A non-nil error is a transport failure; command failures come back as an
// error Response.
func (r *REPL) Send(ctx context.Context, name string, params map[string]interface{}) (*protocol.Response, error) {
	if result, ok := r.stubs.Resolve(name); ok {
		slog.Debug(fmt.Sprintf("%s - %s answered by local stub", logPrefix, name))
		return protocol.Success("", result), nil
	}
	if r.sender == nil {
		return nil, protocol.ConnectionError("not connected", nil)
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return r.sender.Send(ctx, name, params)
}

// Run reads lines from in until EOF, exit or quit. Verb errors are printed
// and the loop continues.
func (r *REPL) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), protocol.DefaultMaxMessageSize)
	fmt.Fprintln(r.out, "Ableton bridge REPL. Type help for commands, exit to quit.")
	for {
		fmt.Fprint(r.out, Prompt)
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		quit, err := r.Exec(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
		}
		if quit {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Exec runs one line. quit is true for exit and quit.
func (r *REPL) Exec(ctx context.Context, line string) (quit bool, err error) {
	verb, rest := splitWord(strings.TrimSpace(line))
	switch verb {
	case "":
		return false, nil
	case "exit", "quit":
		return true, nil
	case "help":
		r.help(rest)
		return false, nil
	case "commands":
		fmt.Fprint(r.out, (&output.TableFormatter{}).Format(CommandRows(r.registry)))
		return false, nil
	case "info":
		return false, r.send(ctx, InfoCommand, nil)
	case "send":
		name, raw := splitWord(rest)
		if name == "" {
			return false, errors.New("usage: send <command_type> [JSON_PARAMS]")
		}
		params, err := ParseParams(raw)
		if err != nil {
			return false, err
		}
		return false, r.send(ctx, name, params)
	case "stub_add":
		name, raw := splitWord(rest)
		if name == "" || raw == "" {
			return false, errors.New("usage: stub_add <command_type> <JSON_RESPONSE>")
		}
		result, err := decodeJSON(raw)
		if err != nil {
			return false, fmt.Errorf("invalid JSON response: %w", err)
		}
		r.stubs.Add(name, result)
		fmt.Fprintf(r.out, "Stub added for %s\n", name)
	case "stub_remove":
		if rest == "" {
			return false, errors.New("usage: stub_remove <command_type>")
		}
		if r.stubs.Remove(rest) {
			fmt.Fprintf(r.out, "Stub removed for %s\n", rest)
		} else {
			fmt.Fprintf(r.out, "No stub for %s\n", rest)
		}
	case "stub_list":
		r.listStubs()
	case "stub_clear":
		r.stubs.Clear()
		fmt.Fprintln(r.out, "Stubs cleared")
	case "stub_toggle":
		r.printEnabled(r.stubs.Toggle())
	case "stub_on":
		r.stubs.SetEnabled(true)
		r.printEnabled(true)
	case "stub_off":
		r.stubs.SetEnabled(false)
		r.printEnabled(false)
	default:
		return false, fmt.Errorf("unknown verb %q (type help)", verb)
	}
	return false, nil
}

func (r *REPL) send(ctx context.Context, name string, params map[string]interface{}) error {
	resp, err := r.Send(ctx, name, params)
	if err != nil {
		return err
	}
	fmt.Fprint(r.out, output.Response(r.formatter, resp))
	return nil
}

func (r *REPL) listStubs() {
	state := "disabled"
	if r.stubs.Enabled() {
		state = "enabled"
	}
	entries := r.stubs.List()
	fmt.Fprintf(r.out, "%d stub(s), %s\n", len(entries), state)
	for _, e := range entries {
		b, err := json.Marshal(e.Result)
		if err != nil {
			b = []byte(fmt.Sprintf("%v", e.Result))
		}
		fmt.Fprintf(r.out, "  %s => %s\n", e.Command, b)
	}
}

func (r *REPL) printEnabled(on bool) {
	if on {
		fmt.Fprintln(r.out, "Stubs enabled")
	} else {
		fmt.Fprintln(r.out, "Stubs disabled")
	}
}

func (r *REPL) help(topic string) {
	if topic != "" {
		entry, ok := r.registry.Lookup(topic)
		if !ok {
			fmt.Fprintf(r.out, "No command named %s\n", topic)
			return
		}
		fmt.Fprintf(r.out, "%s (%s)\n  %s\n  params: %s\n", entry.Name, entry.Kind, entry.Description, entry.Signature())
		return
	}
	fmt.Fprint(r.out, helpText)
}

const helpText = `Verbs:
  send <command_type> [JSON_PARAMS]   send a command, e.g. send set_tempo {"tempo": 120}
  info                                 send get_session_info
  commands                             list registered commands
  help [command_type]                  this text, or one command's parameters
  stub_add <command_type> <JSON>       answer command_type locally with JSON
  stub_remove <command_type>           remove a stub
  stub_list                            list stubs
  stub_clear                           remove all stubs
  stub_toggle | stub_on | stub_off     enable or disable stubs
  exit | quit                          leave
`

// CommandRow is one line of the commands table.
type CommandRow struct {
	Name   string
	Kind   registry.Kind
	Params string
}

// CommandRows lists reg's commands for display.
func CommandRows(reg *registry.Registry) []CommandRow {
	entries := reg.Entries()
	rows := make([]CommandRow, len(entries))
	for i, e := range entries {
		rows[i] = CommandRow{Name: e.Name, Kind: e.Kind, Params: e.Signature()}
	}
	return rows
}

// ParseParams decodes a JSON object of parameters. Empty input is an empty
// object. Numbers stay json.Number so they reach the peer unchanged.
func ParseParams(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}
	v, err := decodeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON params: %w", err)
	}
	params, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.New("invalid JSON params: expected an object")
	}
	return params, nil
}

func decodeJSON(raw string) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}
