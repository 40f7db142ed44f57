package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/morezero/ableton-bridge/pkg/protocol"
	"github.com/morezero/ableton-bridge/pkg/registry"
)

const rootTestPrefix = "abletonctl:root_test"

// fakeSender answers get_session_info and fails everything else as unknown.
type fakeSender struct {
	calls []string
	err   error
}

func (f *fakeSender) Send(_ context.Context, name string, params map[string]interface{}) (*protocol.Response, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return nil, f.err
	}
	switch name {
	case "get_session_info":
		return protocol.Success("", map[string]interface{}{"tempo": json.Number("120")}), nil
	case "set_tempo":
		if _, ok := params["tempo"]; !ok {
			return protocol.Failure("", protocol.KindInvalidParams, "missing required parameter: tempo"), nil
		}
		return protocol.Success("", map[string]interface{}{"tempo": params["tempo"]}), nil
	}
	return protocol.Failure("", protocol.KindUnknownCommand, "unknown command: "+name), nil
}

func setupTest(t *testing.T, sender Sender) {
	t.Helper()
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
	t.Setenv("ABLETON_HOST", "127.0.0.1")
	t.Setenv("ABLETON_PORT", "9877")
	prev := dial
	dial = func(context.Context) (Sender, func(), error) {
		return sender, func() {}, nil
	}
	t.Cleanup(func() { dial = prev })
}

func executeCommand(stdin string, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root := RootCmd()
	root.SetOut(buf)
	root.SetErr(new(bytes.Buffer))
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	setupTest(t, &fakeSender{})
	out, err := executeCommand("", "version")
	if err != nil {
		t.Fatalf("%s - version failed: %v", rootTestPrefix, err)
	}
	if !strings.Contains(out, "abletonctl version "+abletonctlVersion) || !strings.Contains(out, protocol.Version) {
		t.Errorf("%s - version output = %q", rootTestPrefix, out)
	}
}

func TestSendCommand_Success(t *testing.T) {
	sender := &fakeSender{}
	setupTest(t, sender)
	out, err := executeCommand("", "send", "set_tempo", `{"tempo": 120}`)
	if err != nil {
		t.Fatalf("%s - send failed: %v", rootTestPrefix, err)
	}
	if !strings.Contains(out, `"status": "success"`) || !strings.Contains(out, "120") {
		t.Errorf("%s - send output = %q", rootTestPrefix, out)
	}
	if len(sender.calls) != 1 || sender.calls[0] != "set_tempo" {
		t.Errorf("%s - calls = %v", rootTestPrefix, sender.calls)
	}
}

func TestSendCommand_ErrorEnvelopeFails(t *testing.T) {
	setupTest(t, &fakeSender{})
	out, err := executeCommand("", "send", "not_a_real_command")
	if !errors.Is(err, errCommandFailed) {
		t.Fatalf("%s - expected errCommandFailed, got %v", rootTestPrefix, err)
	}
	if !strings.Contains(out, "UnknownCommand") || !strings.Contains(out, "not_a_real_command") {
		t.Errorf("%s - error envelope not printed: %q", rootTestPrefix, out)
	}
}

func TestSendCommand_TransportFailure(t *testing.T) {
	setupTest(t, &fakeSender{err: protocol.ConnectionError("could not connect to 127.0.0.1:9877 after 3 attempts", nil)})
	_, err := executeCommand("", "send", "get_session_info")
	if err == nil || errors.Is(err, errCommandFailed) {
		t.Fatalf("%s - expected a transport error, got %v", rootTestPrefix, err)
	}
	if protocol.KindOf(err) != protocol.KindConnection {
		t.Errorf("%s - kind = %s, want ConnectionError", rootTestPrefix, protocol.KindOf(err))
	}
}

func TestSendCommand_BadParams(t *testing.T) {
	sender := &fakeSender{}
	setupTest(t, sender)
	if _, err := executeCommand("", "send", "set_tempo", "{tempo"); err == nil {
		t.Fatalf("%s - expected error for invalid JSON", rootTestPrefix)
	}
	if len(sender.calls) != 0 {
		t.Errorf("%s - nothing should be sent, calls = %v", rootTestPrefix, sender.calls)
	}
}

func TestSendCommand_TableOutput(t *testing.T) {
	setupTest(t, &fakeSender{})
	out, err := executeCommand("", "send", "get_session_info", "-o", "table")
	if err != nil {
		t.Fatalf("%s - send failed: %v", rootTestPrefix, err)
	}
	if !strings.Contains(out, "tempo:") || strings.Contains(out, `"status"`) {
		t.Errorf("%s - table output = %q", rootTestPrefix, out)
	}
}

func TestCommandsCommand(t *testing.T) {
	setupTest(t, &fakeSender{})
	out, err := executeCommand("", "commands")
	if err != nil {
		t.Fatalf("%s - commands failed: %v", rootTestPrefix, err)
	}
	for _, name := range registry.Default().Names() {
		if !strings.Contains(out, name) {
			t.Errorf("%s - commands output missing %s", rootTestPrefix, name)
		}
	}
}

func TestReplCommand_LocalStubs(t *testing.T) {
	sender := &fakeSender{}
	setupTest(t, sender)
	script := strings.Join([]string{
		`stub_add prototype_command {"ok": true}`,
		`send prototype_command`,
		`info`,
		`stub_off`,
		`send prototype_command`,
		`exit`,
	}, "\n")
	out, err := executeCommand(script, "repl")
	if err != nil {
		t.Fatalf("%s - repl failed: %v", rootTestPrefix, err)
	}
	if !strings.Contains(out, `"ok": true`) {
		t.Errorf("%s - stubbed result missing: %q", rootTestPrefix, out)
	}
	want := []string{"get_session_info", "prototype_command"}
	if strings.Join(sender.calls, ",") != strings.Join(want, ",") {
		t.Errorf("%s - calls = %v, want %v", rootTestPrefix, sender.calls, want)
	}
}

func TestPersistentPreRun_Target(t *testing.T) {
	setupTest(t, &fakeSender{})
	if _, err := executeCommand("", "version"); err != nil {
		t.Fatalf("%s - version failed: %v", rootTestPrefix, err)
	}
	if target != "127.0.0.1:9877" {
		t.Errorf("%s - target from env = %q", rootTestPrefix, target)
	}

	if _, err := executeCommand("", "version", "--host", "studio.local", "--port", "9999"); err != nil {
		t.Fatalf("%s - version failed: %v", rootTestPrefix, err)
	}
	if target != "studio.local:9999" {
		t.Errorf("%s - target from flags = %q", rootTestPrefix, target)
	}

	setupTest(t, &fakeSender{})
	if _, err := executeCommand("", "version", "--port", "70000"); err == nil {
		t.Errorf("%s - expected error for out-of-range port", rootTestPrefix)
	}
}
