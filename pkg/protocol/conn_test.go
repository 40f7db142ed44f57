package protocol

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

const connTestPrefix = "protocol:conn_test"

// pipeWithInput returns a Conn whose peer writes input and then closes.
func pipeWithInput(t *testing.T, input string, maxSize int) *Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close() })
	go func() {
		client.Write([]byte(input))
		client.Close()
	}()
	return NewConn(server, maxSize)
}

func TestConn_ReceiveFramedAndBackToBack(t *testing.T) {
	conn := pipeWithInput(t, `{"command_type":"get_session_info","params":{}}`+"\n"+
		`{"type":"set_tempo","params":{"tempo":99}}{"name":"start_playback"}`, 0)

	want := []string{"get_session_info", "set_tempo", "start_playback"}
	for _, name := range want {
		cmd, err := conn.Receive()
		if err != nil {
			t.Fatalf("%s - receive %s: %v", connTestPrefix, name, err)
		}
		if cmd.Name != name {
			t.Errorf("%s - got %q, want %q", connTestPrefix, cmd.Name, name)
		}
	}

	_, err := conn.Receive()
	if KindOf(err) != KindConnection || !errors.Is(err, io.EOF) {
		t.Errorf("%s - after last message: %v, want ConnectionError wrapping EOF", connTestPrefix, err)
	}
}

func TestConn_ReceiveFailures(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		kind  ErrorKind
	}{
		{"clean close", "", 0, KindConnection},
		{"truncated", `{"command_type":"set_tempo","par`, 0, KindProtocol},
		{"invalid json", "hello there\n", 0, KindProtocol},
		{"missing name", `{"params":{"tempo":1}}`, 0, KindProtocol},
		{"too large", `{"command_type":"x","params":{"blob":"` + strings.Repeat("a", 4096) + `"}}`, 256, KindProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := pipeWithInput(t, tt.input, tt.max)
			_, err := conn.Receive()
			if err == nil {
				t.Fatalf("%s - expected error", connTestPrefix)
			}
			if KindOf(err) != tt.kind {
				t.Errorf("%s - kind = %s (%v), want %s", connTestPrefix, KindOf(err), err, tt.kind)
			}
			if !IsFatal(err) {
				t.Errorf("%s - transport errors must be fatal", connTestPrefix)
			}
		})
	}
}

func TestConn_ConcurrentSendsDoNotInterleave(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sender := NewConn(server, 0)
	reader := NewConn(client, 0)

	const n = 50
	payload := strings.Repeat("x", 2048)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sender.Send(Success("", map[string]interface{}{"blob": payload})); err != nil {
				t.Errorf("%s - send: %v", connTestPrefix, err)
			}
		}()
	}

	for i := 0; i < n; i++ {
		resp, err := reader.ReceiveResponse()
		if err != nil {
			t.Fatalf("%s - response %d: %v", connTestPrefix, i, err)
		}
		blob := resp.Result.(map[string]interface{})["blob"]
		if blob != payload {
			t.Fatalf("%s - response %d corrupted", connTestPrefix, i)
		}
	}
	wg.Wait()
}

func TestConn_SendOnClosedSocket(t *testing.T) {
	server, client := net.Pipe()
	client.Close()
	conn := NewConn(server, 0)
	conn.SetDeadline(time.Now().Add(time.Second))

	err := conn.Send(Success("", "ok"))
	if KindOf(err) != KindConnection {
		t.Errorf("%s - kind = %s, want ConnectionError", connTestPrefix, KindOf(err))
	}
}

func TestConn_CommandResponseExchange(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	srv := NewConn(server, 0)
	cli := NewConn(client, 0)

	go func() {
		cmd, err := srv.Receive()
		if err != nil {
			return
		}
		srv.Send(Success(cmd.ID, map[string]interface{}{"echo": cmd.Params["tempo"]}))
	}()

	if err := cli.SendCommand(&Command{ID: "1", Name: "set_tempo", Params: map[string]interface{}{"tempo": 128.5}}); err != nil {
		t.Fatalf("%s - send command: %v", connTestPrefix, err)
	}
	resp, err := cli.ReceiveResponse()
	if err != nil {
		t.Fatalf("%s - receive response: %v", connTestPrefix, err)
	}
	if resp.ID != "1" || !resp.OK() {
		t.Fatalf("%s - response = %+v", connTestPrefix, resp)
	}
	if got := resp.Result.(map[string]interface{})["echo"]; got != json.Number("128.5") {
		t.Errorf("%s - echo = %v, want 128.5", connTestPrefix, got)
	}
}
