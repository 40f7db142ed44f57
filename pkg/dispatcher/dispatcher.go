// Package dispatcher turns a decoded command into a response: it validates the
// name and parameters against the registry, answers from the stub store when
// it can, and otherwise runs the command on the host through the executor.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/morezero/ableton-bridge/pkg/protocol"
	"github.com/morezero/ableton-bridge/pkg/registry"
	"github.com/morezero/ableton-bridge/pkg/stubs"
)

const logPrefix = "dispatcher:dispatch"

// Path records how a command was answered.
type Path string

const (
	PathRejected Path = "rejected"
	PathStubbed  Path = "stubbed"
	PathExecuted Path = "executed"
)

// Record describes one completed command.
type Record struct {
	ID         string
	Command    string
	Params     map[string]interface{}
	Response   *protocol.Response
	Path       Path
	ReceivedAt time.Time
	Duration   time.Duration
}

// Stubbed reports whether the stub store answered the command.
func (r *Record) Stubbed() bool {
	return r.Path == PathStubbed
}

// Observer is notified after every command completes. It is called on its own
// goroutine and must not block the dispatcher.
type Observer interface {
	CommandCompleted(ctx context.Context, rec *Record)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, rec *Record)

// CommandCompleted calls f.
func (f ObserverFunc) CommandCompleted(ctx context.Context, rec *Record) {
	f(ctx, rec)
}

// NewDispatcherParams holds the collaborators of a Dispatcher. Stubs and
// Observer are optional.
type NewDispatcherParams struct {
	Registry *registry.Registry
	Stubs    *stubs.Store
	Executor *Executor
	Observer Observer
}

// Dispatcher answers commands. It is safe for concurrent use; host execution
// is serialized by the Executor.
type Dispatcher struct {
	registry *registry.Registry
	stubs    *stubs.Store
	executor *Executor
	observer Observer
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(p NewDispatcherParams) *Dispatcher {
	return &Dispatcher{
		registry: p.Registry,
		stubs:    p.Stubs,
		executor: p.Executor,
		observer: p.Observer,
	}
}

// Registry returns the registry the dispatcher validates against.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Stubs returns the dispatcher's stub store, or nil.
func (d *Dispatcher) Stubs() *stubs.Store {
	return d.stubs
}

// Dispatch answers cmd. It never returns nil and never returns a fatal error
// kind: every failure here is specific to the one command.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *protocol.Command) *protocol.Response {
	rec := &Record{
		ID:         cmd.ID,
		Command:    cmd.Name,
		Params:     cmd.Params,
		ReceivedAt: time.Now(),
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	slog.Debug(fmt.Sprintf("%s - received %s id=%s", logPrefix, cmd.Name, rec.ID))

	rec.Path, rec.Response = d.dispatch(ctx, cmd, rec)
	rec.Duration = time.Since(rec.ReceivedAt)
	slog.Debug(fmt.Sprintf("%s - completed %s id=%s path=%s status=%s in %s",
		logPrefix, cmd.Name, rec.ID, rec.Path, rec.Response.Status, rec.Duration))

	if d.observer != nil {
		go d.observer.CommandCompleted(context.WithoutCancel(ctx), rec)
	}
	return rec.Response
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd *protocol.Command, rec *Record) (Path, *protocol.Response) {
	entry, ok := d.registry.Lookup(cmd.Name)
	if !ok {
		// Stubs may stand in for commands the host does not implement yet.
		if result, stubbed := d.resolveStub(cmd.Name); stubbed {
			return PathStubbed, protocol.Success(cmd.ID, result)
		}
		return PathRejected, protocol.Failure(cmd.ID, protocol.KindUnknownCommand,
			fmt.Sprintf("unknown command: %s", cmd.Name))
	}

	if err := cmd.ParamsError(); err != nil {
		return PathRejected, protocol.FromError(cmd.ID, err)
	}
	params, err := entry.Coerce(cmd.Params)
	if err != nil {
		return PathRejected, protocol.Failure(cmd.ID, protocol.KindInvalidParams, err.Error())
	}
	rec.Params = params
	slog.Debug(fmt.Sprintf("%s - validated %s id=%s", logPrefix, cmd.Name, rec.ID))

	if result, stubbed := d.resolveStub(cmd.Name); stubbed {
		slog.Debug(fmt.Sprintf("%s - stubbed %s id=%s", logPrefix, cmd.Name, rec.ID))
		return PathStubbed, protocol.Success(cmd.ID, result)
	}

	result, err := d.executor.Submit(ctx, cmd.Name, params)
	if err != nil {
		return PathExecuted, protocol.FromError(cmd.ID, hostError(err))
	}
	return PathExecuted, protocol.Success(cmd.ID, result)
}

func (d *Dispatcher) resolveStub(name string) (interface{}, bool) {
	if d.stubs == nil {
		return nil, false
	}
	return d.stubs.Resolve(name)
}

// hostError keeps non-fatal kinds the host reported and turns everything else
// into a HostError carrying the original message. The client's connection to
// this process is healthy even when the host side failed.
func hostError(err error) error {
	var pe *protocol.Error
	if errors.As(err, &pe) && !pe.Kind.Fatal() {
		return pe
	}
	return protocol.NewError(protocol.KindHost, protocol.MessageOf(err))
}
