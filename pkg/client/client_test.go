package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/morezero/ableton-bridge/pkg/protocol"
)

const clientTestPrefix = "client:client_test"

// fakePeer accepts connections and answers each command with handle.
type fakePeer struct {
	ln       net.Listener
	mu       sync.Mutex
	accepted int
	received []*protocol.Command
	handle   func(cmd *protocol.Command) *protocol.Response
}

func startPeer(t *testing.T, handle func(cmd *protocol.Command) *protocol.Response) *fakePeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("%s - listen: %v", clientTestPrefix, err)
	}
	p := &fakePeer{ln: ln, handle: handle}
	t.Cleanup(func() { ln.Close() })
	go p.serve()
	return p
}

func (p *fakePeer) serve() {
	for {
		nc, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.accepted++
		p.mu.Unlock()
		go func() {
			conn := protocol.NewConn(nc, 0)
			defer conn.Close()
			for {
				cmd, err := conn.Receive()
				if err != nil {
					return
				}
				p.mu.Lock()
				p.received = append(p.received, cmd)
				p.mu.Unlock()
				resp := p.handle(cmd)
				if resp == nil {
					continue
				}
				if err := conn.Send(resp); err != nil {
					return
				}
			}
		}()
	}
}

func (p *fakePeer) stats() (int, []*protocol.Command) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted, append([]*protocol.Command(nil), p.received...)
}

func echo(cmd *protocol.Command) *protocol.Response {
	return protocol.Success(cmd.ID, map[string]interface{}{"command": cmd.Name})
}

func TestSend_RoundTrip(t *testing.T) {
	peer := startPeer(t, echo)
	c := New(Options{Addr: peer.ln.Addr().String()})
	defer c.Close()

	resp, err := c.Send(context.Background(), "set_tempo", map[string]interface{}{"tempo": 120})
	if err != nil {
		t.Fatalf("%s - Send: %v", clientTestPrefix, err)
	}
	if !resp.OK() || resp.Result.(map[string]interface{})["command"] != "set_tempo" {
		t.Errorf("%s - response = %+v", clientTestPrefix, resp)
	}

	_, received := peer.stats()
	if len(received) != 1 || received[0].ID == "" || received[0].Version != protocol.Version {
		t.Errorf("%s - peer received %+v", clientTestPrefix, received)
	}
}

func TestSend_LegacyOmitsIDAndVersion(t *testing.T) {
	peer := startPeer(t, func(cmd *protocol.Command) *protocol.Response {
		return protocol.Success("", "ok")
	})
	c := New(Options{Addr: peer.ln.Addr().String(), Legacy: true})
	defer c.Close()

	if _, err := c.Send(context.Background(), "get_session_info", nil); err != nil {
		t.Fatalf("%s - Send: %v", clientTestPrefix, err)
	}
	_, received := peer.stats()
	if received[0].ID != "" || received[0].Version != "" {
		t.Errorf("%s - legacy command carried id/version: %+v", clientTestPrefix, received[0])
	}
}

func TestSend_ErrorResponseIsNotTransportError(t *testing.T) {
	peer := startPeer(t, func(cmd *protocol.Command) *protocol.Response {
		return protocol.Failure(cmd.ID, protocol.KindUnknownCommand, "unknown command: "+cmd.Name)
	})
	c := New(Options{Addr: peer.ln.Addr().String()})
	defer c.Close()

	resp, err := c.Send(context.Background(), "not_a_real_command", nil)
	if err != nil {
		t.Fatalf("%s - Send: %v", clientTestPrefix, err)
	}
	if resp.OK() || resp.Error.Kind != protocol.KindUnknownCommand {
		t.Errorf("%s - response = %+v", clientTestPrefix, resp)
	}

	_, err = c.Call(context.Background(), "not_a_real_command", nil)
	if protocol.KindOf(err) != protocol.KindUnknownCommand {
		t.Errorf("%s - Call error = %v", clientTestPrefix, err)
	}
}

func TestSend_TimeoutDropsConnectionAndReconnects(t *testing.T) {
	peer := startPeer(t, func(cmd *protocol.Command) *protocol.Response {
		if cmd.Name == "get_session_info" {
			return nil
		}
		return echo(cmd)
	})
	c := New(Options{Addr: peer.ln.Addr().String(), QueryTimeout: 50 * time.Millisecond})
	defer c.Close()

	_, err := c.Send(context.Background(), "get_session_info", nil)
	if protocol.KindOf(err) != protocol.KindConnection {
		t.Fatalf("%s - timeout error = %v", clientTestPrefix, err)
	}

	if _, err := c.Send(context.Background(), "start_playback", nil); err != nil {
		t.Fatalf("%s - Send after timeout: %v", clientTestPrefix, err)
	}
	accepted, received := peer.stats()
	if accepted != 2 {
		t.Errorf("%s - accepted %d connections, want 2", clientTestPrefix, accepted)
	}
	if len(received) != 2 {
		t.Errorf("%s - timed out command was resent: %d commands", clientTestPrefix, len(received))
	}
}

func TestSend_ContextCancelUnblocks(t *testing.T) {
	peer := startPeer(t, func(*protocol.Command) *protocol.Response { return nil })
	c := New(Options{Addr: peer.ln.Addr().String()})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := c.Send(ctx, "start_playback", nil)
	if protocol.KindOf(err) != protocol.KindConnection {
		t.Errorf("%s - error = %v", clientTestPrefix, err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("%s - cancel did not unblock Send", clientTestPrefix)
	}
}

func TestConnect_RetriesThenFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("%s - listen: %v", clientTestPrefix, err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := New(Options{Addr: addr, Attempts: 2, RetryWait: time.Millisecond, DialTimeout: 200 * time.Millisecond})
	err = c.Connect(context.Background())
	if protocol.KindOf(err) != protocol.KindConnection {
		t.Errorf("%s - error = %v", clientTestPrefix, err)
	}
}

func TestConnect_Handshake(t *testing.T) {
	peer := startPeer(t, echo)
	c := New(Options{Addr: peer.ln.Addr().String(), Handshake: true})
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("%s - Connect: %v", clientTestPrefix, err)
	}
	_, received := peer.stats()
	if len(received) != 1 || received[0].Name != HandshakeCommand {
		t.Errorf("%s - handshake not sent: %+v", clientTestPrefix, received)
	}

	failing := startPeer(t, func(cmd *protocol.Command) *protocol.Response {
		return protocol.Failure(cmd.ID, protocol.KindHost, "no song loaded")
	})
	c2 := New(Options{Addr: failing.ln.Addr().String(), Handshake: true, Attempts: 1})
	if err := c2.Connect(context.Background()); err == nil {
		t.Errorf("%s - failed handshake should fail Connect", clientTestPrefix)
	}
}

func TestSend_Closed(t *testing.T) {
	c := New(Options{})
	c.Close()
	if _, err := c.Send(context.Background(), "get_session_info", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("%s - Send after Close = %v", clientTestPrefix, err)
	}
}

func TestTimeoutByKind(t *testing.T) {
	c := New(Options{QueryTimeout: time.Second, MutationTimeout: 2 * time.Second})
	tests := []struct {
		command string
		want    time.Duration
	}{
		{"get_session_info", time.Second},
		{"set_tempo", 2 * time.Second},
		{"prototype_command", 2 * time.Second},
	}
	for _, tt := range tests {
		if got := c.timeout(tt.command); got != tt.want {
			t.Errorf("%s - timeout(%s) = %s, want %s", clientTestPrefix, tt.command, got, tt.want)
		}
	}
}
