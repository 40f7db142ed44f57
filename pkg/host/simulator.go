package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/morezero/ableton-bridge/pkg/registry"
)

const simLogPrefix = "host:simulator"

// ErrReentrant is returned when Execute is entered while another call is still
// running. The real host cannot handle that either.
var ErrReentrant = errors.New("host is not reentrant: command already executing")

type handler func(s *session, a *args) (interface{}, error)

// Simulator executes commands against an in-memory Live set.
type Simulator struct {
	latency  time.Duration
	handlers map[string]handler

	busy atomic.Bool
	mu   sync.Mutex
	s    *session
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithLatency delays every command, as a slow host would.
func WithLatency(d time.Duration) SimulatorOption {
	return func(sim *Simulator) {
		sim.latency = d
	}
}

// NewSimulator creates a simulator holding a small default set: two tracks,
// two return tracks and eight scenes.
func NewSimulator(opts ...SimulatorOption) *Simulator {
	sim := &Simulator{handlers: make(map[string]handler), s: newSession()}
	sim.registerSession()
	sim.registerViews()
	sim.registerTracks()
	sim.registerClips()
	sim.registerTransport()
	sim.registerDevices()
	sim.registerBrowser()
	for _, opt := range opts {
		opt(sim)
	}
	return sim
}

func (sim *Simulator) handle(name string, h handler) {
	if _, dup := sim.handlers[name]; dup {
		panic(fmt.Sprintf("%s - duplicate handler %s", simLogPrefix, name))
	}
	sim.handlers[name] = h
}

// Handles returns the names of all simulated commands, sorted.
func (sim *Simulator) Handles() []string {
	names := make([]string, 0, len(sim.handlers))
	for name := range sim.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs one command.
func (sim *Simulator) Execute(ctx context.Context, command string, params registry.Params) (interface{}, error) {
	if !sim.busy.CompareAndSwap(false, true) {
		slog.Error(fmt.Sprintf("%s - %s entered while another command was executing", simLogPrefix, command))
		return nil, ErrReentrant
	}
	defer sim.busy.Store(false)

	h, ok := sim.handlers[command]
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", command)
	}

	if sim.latency > 0 {
		select {
		case <-time.After(sim.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	sim.mu.Lock()
	defer sim.mu.Unlock()
	a := &args{p: params}
	result, err := h(sim.s, a)
	if a.err != nil {
		return nil, a.err
	}
	return result, err
}

// args reads typed parameters, keeping the first failure.
type args struct {
	p   registry.Params
	err error
}

func (a *args) int(name string) int {
	v, err := a.p.Int(name)
	a.keep(err)
	return v
}

func (a *args) float(name string) float64 {
	v, err := a.p.Float(name)
	a.keep(err)
	return v
}

func (a *args) str(name string) string {
	v, err := a.p.String(name)
	a.keep(err)
	return v
}

func (a *args) bool(name string) bool {
	v, err := a.p.Bool(name)
	a.keep(err)
	return v
}

func (a *args) list(name string) []interface{} {
	v, err := a.p.List(name)
	a.keep(err)
	return v
}

// optInt returns the parameter when it is present and not null.
func (a *args) optInt(name string) (int, bool) {
	if !a.p.Has(name) {
		return 0, false
	}
	return a.int(name), true
}

func (a *args) optFloat(name string) (float64, bool) {
	if !a.p.Has(name) {
		return 0, false
	}
	return a.float(name), true
}

func (a *args) optStr(name string) (string, bool) {
	if !a.p.Has(name) {
		return "", false
	}
	return a.str(name), true
}

func (a *args) keep(err error) {
	if a.err == nil && err != nil {
		a.err = err
	}
}
