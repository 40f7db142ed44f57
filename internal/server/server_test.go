package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/morezero/ableton-bridge/internal/config"
	"github.com/morezero/ableton-bridge/pkg/client"
	"github.com/morezero/ableton-bridge/pkg/db"
	"github.com/morezero/ableton-bridge/pkg/dispatcher"
	"github.com/morezero/ableton-bridge/pkg/events"
	"github.com/morezero/ableton-bridge/pkg/host"
	"github.com/morezero/ableton-bridge/pkg/protocol"
	"github.com/morezero/ableton-bridge/pkg/registry"
	"github.com/morezero/ableton-bridge/pkg/stubs"
)

const serverTestPrefix = "server:server_test"

// fakeJournal records entries in memory.
type fakeJournal struct {
	mu      sync.Mutex
	entries []db.RecordParams
	pingErr error
}

func (j *fakeJournal) Record(_ context.Context, p db.RecordParams) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, p)
	return nil
}

func (j *fakeJournal) Summary(context.Context) (*db.JournalSummary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return &db.JournalSummary{Total: int64(len(j.entries))}, nil
}

func (j *fakeJournal) Ping(context.Context) error {
	return j.pingErr
}

func (j *fakeJournal) snapshot() []db.RecordParams {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]db.RecordParams(nil), j.entries...)
}

func testConfig() *config.Config {
	return &config.Config{
		Host:               "127.0.0.1",
		Port:               0,
		Backend:            config.BackendSimulator,
		QueueSize:          8,
		MaxMessageSize:     protocol.DefaultMaxMessageSize,
		HealthCheckTimeout: 5 * time.Second,
	}
}

// newTestServer builds a server whose executor is running. It does not listen.
func newTestServer(t *testing.T, p NewServerParams) *Server {
	t.Helper()
	if p.Config == nil {
		p.Config = testConfig()
	}
	if p.Host == nil {
		p.Host = host.NewSimulator()
	}
	s := New(p)
	ctx, cancel := context.WithCancel(context.Background())
	s.executor.Start(ctx)
	t.Cleanup(func() {
		s.executor.Close(context.Background())
		cancel()
	})
	return s
}

// startTestServer starts a listening server on a loopback port.
func startTestServer(t *testing.T, p NewServerParams) *Server {
	t.Helper()
	if p.Config == nil {
		p.Config = testConfig()
	}
	if p.Host == nil {
		p.Host = host.NewSimulator()
	}
	s := New(p)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("%s - Start: %v", serverTestPrefix, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func dialClient(t *testing.T, s *Server) *client.Client {
	t.Helper()
	c := client.New(client.Options{Addr: s.Addr(), Attempts: 1, QueryTimeout: 5 * time.Second, MutationTimeout: 5 * time.Second})
	t.Cleanup(func() { c.Close() })
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("%s - timed out waiting for %s", serverTestPrefix, what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_RoundTripOverTCP(t *testing.T) {
	s := startTestServer(t, NewServerParams{})
	c := dialClient(t, s)
	ctx := context.Background()

	resp, err := c.Send(ctx, "set_tempo", map[string]interface{}{"tempo": 128})
	if err != nil {
		t.Fatalf("%s - set_tempo: %v", serverTestPrefix, err)
	}
	if !resp.OK() {
		t.Fatalf("%s - set_tempo failed: %+v", serverTestPrefix, resp.Error)
	}

	info, err := c.Call(ctx, "get_session_info", nil)
	if err != nil {
		t.Fatalf("%s - get_session_info: %v", serverTestPrefix, err)
	}
	tempo := info.(map[string]interface{})["tempo"]
	if tempo != json.Number("128") && tempo != json.Number("128.0") {
		t.Errorf("%s - tempo = %v, want 128", serverTestPrefix, tempo)
	}
}

func TestServer_RecoverableErrorsKeepConnection(t *testing.T) {
	s := startTestServer(t, NewServerParams{})
	c := dialClient(t, s)
	ctx := context.Background()

	tests := []struct {
		name   string
		params map[string]interface{}
		kind   protocol.ErrorKind
	}{
		{"not_a_real_command", nil, protocol.KindUnknownCommand},
		{"set_tempo", map[string]interface{}{}, protocol.KindInvalidParams},
		{"get_track_info", map[string]interface{}{"track_index": 99}, protocol.KindHost},
	}
	for _, tt := range tests {
		resp, err := c.Send(ctx, tt.name, tt.params)
		if err != nil {
			t.Fatalf("%s - %s: transport error %v", serverTestPrefix, tt.name, err)
		}
		if resp.OK() || resp.Error.Kind != tt.kind {
			t.Errorf("%s - %s: got %+v, want kind %s", serverTestPrefix, tt.name, resp.Error, tt.kind)
		}
	}
	if got := s.Connections(); got != 1 {
		t.Errorf("%s - connections = %d, want the one reused connection", serverTestPrefix, got)
	}
}

func TestServer_NonObjectParamsKeepConnection(t *testing.T) {
	s := startTestServer(t, NewServerParams{})
	nc, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("%s - dial: %v", serverTestPrefix, err)
	}
	defer nc.Close()
	nc.SetDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(nc)

	exchange := func(line string) *protocol.Response {
		t.Helper()
		if _, err := nc.Write([]byte(line + "\n")); err != nil {
			t.Fatalf("%s - write: %v", serverTestPrefix, err)
		}
		reply, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("%s - read after %s: %v", serverTestPrefix, line, err)
		}
		resp, err := protocol.DecodeResponse([]byte(reply))
		if err != nil {
			t.Fatalf("%s - decode %q: %v", serverTestPrefix, reply, err)
		}
		return resp
	}

	resp := exchange(`{"command_type":"set_tempo","params":[120]}`)
	if resp.OK() || resp.Error.Kind != protocol.KindInvalidParams {
		t.Fatalf("%s - response = %+v, want InvalidParams", serverTestPrefix, resp)
	}

	resp = exchange(`{"command_type":"get_session_info"}`)
	if !resp.OK() {
		t.Errorf("%s - command after rejected params = %+v, want success on the same connection", serverTestPrefix, resp)
	}
}

func TestServer_UnencodableResultKeepsConnection(t *testing.T) {
	store := stubs.NewStore()
	store.Add("get_session_info", map[interface{}]interface{}{1: "one"})
	s := startTestServer(t, NewServerParams{Stubs: store})
	c := dialClient(t, s)
	ctx := context.Background()

	resp, err := c.Send(ctx, "get_session_info", nil)
	if err != nil {
		t.Fatalf("%s - transport error %v", serverTestPrefix, err)
	}
	if resp.OK() || resp.Error.Kind != protocol.KindHost {
		t.Fatalf("%s - response = %+v, want HostError", serverTestPrefix, resp)
	}

	resp, err = c.Send(ctx, "get_track_info", map[string]interface{}{"track_index": 0})
	if err != nil || !resp.OK() {
		t.Errorf("%s - next command: resp=%+v err=%v", serverTestPrefix, resp, err)
	}
	if got := s.Connections(); got != 1 {
		t.Errorf("%s - connections = %d, want the one reused connection", serverTestPrefix, got)
	}
}

func TestServer_ProtocolErrorIsReportedThenClosed(t *testing.T) {
	s := startTestServer(t, NewServerParams{})
	nc, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("%s - dial: %v", serverTestPrefix, err)
	}
	defer nc.Close()
	nc.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := nc.Write([]byte(`{"params": {}}` + "\n")); err != nil {
		t.Fatalf("%s - write: %v", serverTestPrefix, err)
	}
	line, err := bufio.NewReader(nc).ReadString('\n')
	if err != nil {
		t.Fatalf("%s - read: %v", serverTestPrefix, err)
	}
	resp, err := protocol.DecodeResponse([]byte(line))
	if err != nil {
		t.Fatalf("%s - decode %q: %v", serverTestPrefix, line, err)
	}
	if resp.OK() || resp.Error.Kind != protocol.KindProtocol {
		t.Errorf("%s - response = %+v, want ProtocolError", serverTestPrefix, resp)
	}

	buf := make([]byte, 1)
	if _, err := nc.Read(buf); err == nil {
		t.Errorf("%s - connection should be closed after a protocol error", serverTestPrefix)
	}
}

func TestServer_FIFOAcrossConnections(t *testing.T) {
	sim := host.NewSimulator(host.WithLatency(30 * time.Millisecond))
	var mu sync.Mutex
	var order []string
	recorder := dispatcher.HostFunc(func(ctx context.Context, command string, params registry.Params) (interface{}, error) {
		mu.Lock()
		order = append(order, command)
		mu.Unlock()
		return sim.Execute(ctx, command, params)
	})
	s := startTestServer(t, NewServerParams{Host: recorder})

	first := dialClient(t, s)
	second := dialClient(t, s)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := first.Call(ctx, "create_midi_track", nil); err != nil {
			t.Errorf("%s - first: %v", serverTestPrefix, err)
		}
	}()
	waitFor(t, "first command to reach the host", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 1
	})
	if _, err := second.Call(ctx, "get_session_info", nil); err != nil {
		t.Errorf("%s - second: %v", serverTestPrefix, err)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(order, ",") != "create_midi_track,get_session_info" {
		t.Errorf("%s - execution order = %v", serverTestPrefix, order)
	}
}

func TestServer_SecondConnectionIsAccepted(t *testing.T) {
	s := startTestServer(t, NewServerParams{})
	a := dialClient(t, s)
	b := dialClient(t, s)
	ctx := context.Background()
	if err := a.Ping(ctx); err != nil {
		t.Fatalf("%s - first ping: %v", serverTestPrefix, err)
	}
	if err := b.Ping(ctx); err != nil {
		t.Fatalf("%s - second ping: %v", serverTestPrefix, err)
	}
	waitFor(t, "two open connections", func() bool { return s.Connections() == 2 })
}

func TestServer_ObserverJournalsAndPublishes(t *testing.T) {
	journal := &fakeJournal{}
	var mu sync.Mutex
	var published []*events.CommandExecutedEvent
	pub := events.PublisherFunc(func(_ context.Context, e *events.CommandExecutedEvent) error {
		mu.Lock()
		published = append(published, e)
		mu.Unlock()
		return nil
	})
	store := stubs.NewStore()
	store.Add("get_session_info", map[string]interface{}{"tempo": 99})

	s := startTestServer(t, NewServerParams{Journal: journal, Publisher: pub, Stubs: store})
	c := dialClient(t, s)
	ctx := context.Background()
	if _, err := c.Send(ctx, "get_session_info", nil); err != nil {
		t.Fatalf("%s - send: %v", serverTestPrefix, err)
	}
	if _, err := c.Send(ctx, "bogus", nil); err != nil {
		t.Fatalf("%s - send: %v", serverTestPrefix, err)
	}

	waitFor(t, "two journal entries", func() bool { return len(journal.snapshot()) == 2 })
	waitFor(t, "two events", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(published) == 2
	})

	byCommand := map[string]db.RecordParams{}
	for _, e := range journal.snapshot() {
		byCommand[e.Command] = e
	}
	if e := byCommand["get_session_info"]; e.Path != string(dispatcher.PathStubbed) || e.Status != protocol.StatusSuccess {
		t.Errorf("%s - stubbed entry = %+v", serverTestPrefix, e)
	}
	if e := byCommand["bogus"]; e.ErrorKind != string(protocol.KindUnknownCommand) || e.Path != string(dispatcher.PathRejected) {
		t.Errorf("%s - rejected entry = %+v", serverTestPrefix, e)
	}
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	s := New(NewServerParams{Config: testConfig(), Host: host.NewSimulator()})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("%s - Start: %v", serverTestPrefix, err)
	}
	c := client.New(client.Options{Addr: s.Addr(), Attempts: 1})
	defer c.Close()
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("%s - ping: %v", serverTestPrefix, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("%s - Shutdown: %v", serverTestPrefix, err)
	}
	if s.Connections() != 0 {
		t.Errorf("%s - %d connections left open", serverTestPrefix, s.Connections())
	}
	if _, err := net.DialTimeout("tcp", s.Addr(), time.Second); err == nil {
		t.Errorf("%s - listener still accepting after shutdown", serverTestPrefix)
	}
}

func TestNewBackend(t *testing.T) {
	reg := registry.Default()

	cfg := testConfig()
	backend, closeFn, err := newBackend(cfg, reg)
	if err != nil {
		t.Fatalf("%s - simulator backend: %v", serverTestPrefix, err)
	}
	closeFn()
	if _, ok := backend.(*host.Simulator); !ok {
		t.Errorf("%s - backend = %T, want *host.Simulator", serverTestPrefix, backend)
	}

	cfg.Backend = config.BackendRelay
	cfg.UpstreamHost, cfg.UpstreamPort = "127.0.0.1", 1
	backend, closeFn, err = newBackend(cfg, reg)
	if err != nil {
		t.Fatalf("%s - relay backend: %v", serverTestPrefix, err)
	}
	defer closeFn()
	if _, ok := backend.(*host.Relay); !ok {
		t.Errorf("%s - backend = %T, want *host.Relay", serverTestPrefix, backend)
	}

	small := registry.MustNew([]registry.Entry{{Name: "only_this", Kind: registry.KindQuery}})
	if _, _, err := newBackend(testConfig(), small); err == nil || !strings.Contains(err.Error(), "drift") {
		t.Errorf("%s - expected drift error, got %v", serverTestPrefix, err)
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	migs, source, err := LoadMigrations("")
	if err != nil {
		t.Fatalf("%s - LoadMigrations: %v", serverTestPrefix, err)
	}
	if source != "embedded" || len(migs) == 0 {
		t.Errorf("%s - got %d migrations from %q", serverTestPrefix, len(migs), source)
	}
}
