package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/morezero/ableton-bridge/pkg/protocol"
	"github.com/morezero/ableton-bridge/pkg/registry"
)

const executorLogPrefix = "dispatcher:executor"

// DefaultQueueSize is the number of commands that may wait behind the one executing.
const DefaultQueueSize = 64

// ErrExecutorClosed is returned by Submit once the executor has stopped.
var ErrExecutorClosed = errors.New("executor closed")

type outcome struct {
	result interface{}
	err    error
}

type job struct {
	ctx     context.Context
	command string
	params  registry.Params
	// ping, when set, runs in the slot instead of a command.
	ping Pinger
	done chan outcome
}

// Stats is a snapshot of executor activity.
type Stats struct {
	Pending  int64  `json:"pending"`
	Executed uint64 `json:"executed"`
}

// Executor is the single execution slot in front of a Host. Jobs run one at a
// time in the order Submit enqueued them, whichever connection sent them.
type Executor struct {
	host  Host
	queue chan *job

	mu      sync.RWMutex
	closed  bool
	started bool
	stopped chan struct{}

	pending  atomic.Int64
	executed atomic.Uint64
}

// NewExecutor creates an executor in front of host. queueSize <= 0 uses DefaultQueueSize.
func NewExecutor(host Host, queueSize int) *Executor {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Executor{
		host:    host,
		queue:   make(chan *job, queueSize),
		stopped: make(chan struct{}),
	}
}

// Start runs the consumer loop until Close drains the queue or ctx is done.
// Calling Start more than once has no effect.
func (e *Executor) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	go e.loop(ctx)
}

func (e *Executor) loop(ctx context.Context) {
	defer close(e.stopped)
	for {
		select {
		case <-ctx.Done():
			e.reject()
			return
		case j, ok := <-e.queue:
			if !ok {
				return
			}
			e.run(j)
		}
	}
}

// reject fails whatever is still queued after the loop was cancelled.
func (e *Executor) reject() {
	for {
		select {
		case j, ok := <-e.queue:
			if !ok {
				return
			}
			e.pending.Add(-1)
			j.done <- outcome{err: ErrExecutorClosed}
		default:
			return
		}
	}
}

func (e *Executor) run(j *job) {
	var out outcome
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error(fmt.Sprintf("%s - panic executing %s: %v\n%s", executorLogPrefix, j.command, rec, debug.Stack()))
				out = outcome{err: protocol.NewError(protocol.KindHost, fmt.Sprintf("host panicked executing %s: %v", j.command, rec))}
			}
		}()
		if j.ping != nil {
			out.err = j.ping.Ping(j.ctx)
			return
		}
		slog.Debug(fmt.Sprintf("%s - executing %s", executorLogPrefix, j.command))
		out.result, out.err = e.host.Execute(j.ctx, j.command, j.params)
	}()
	if j.ping == nil {
		e.executed.Add(1)
	}
	e.pending.Add(-1)
	j.done <- out
}

// Submit enqueues a command and waits for its result. If ctx ends first,
// Submit returns a ConnectionError but the queued command still runs: there is
// no way to interrupt the host once work is handed over.
func (e *Executor) Submit(ctx context.Context, command string, params registry.Params) (interface{}, error) {
	return e.submit(ctx, &job{
		ctx:     context.WithoutCancel(ctx),
		command: command,
		params:  params,
		done:    make(chan outcome, 1),
	})
}

// Ping checks the host's reachability from the execution slot, behind every
// command already queued, so a health check never overtakes a command. Hosts
// that are not Pingers are reported reachable without queuing.
func (e *Executor) Ping(ctx context.Context) error {
	p, ok := e.host.(Pinger)
	if !ok {
		return nil
	}
	_, err := e.submit(ctx, &job{
		ctx:     context.WithoutCancel(ctx),
		command: "ping",
		ping:    p,
		done:    make(chan outcome, 1),
	})
	return err
}

func (e *Executor) submit(ctx context.Context, j *job) (interface{}, error) {
	command := j.command

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrExecutorClosed
	}
	select {
	case <-e.stopped:
		e.mu.RUnlock()
		return nil, ErrExecutorClosed
	default:
	}
	e.pending.Add(1)
	select {
	case e.queue <- j:
		e.mu.RUnlock()
	case <-e.stopped:
		e.mu.RUnlock()
		e.pending.Add(-1)
		return nil, ErrExecutorClosed
	case <-ctx.Done():
		e.mu.RUnlock()
		e.pending.Add(-1)
		return nil, protocol.ConnectionError("abandoned before execution", ctx.Err())
	}

	select {
	case out := <-j.done:
		return out.result, out.err
	case <-e.stopped:
		select {
		case out := <-j.done:
			return out.result, out.err
		default:
			return nil, ErrExecutorClosed
		}
	case <-ctx.Done():
		slog.Warn(fmt.Sprintf("%s - caller left while %s was queued or executing", executorLogPrefix, command))
		return nil, protocol.ConnectionError("abandoned while waiting for host", ctx.Err())
	}
}

// Close stops accepting commands and waits until everything already queued
// has executed, or until ctx is done.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	close(e.queue)
	e.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-e.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s - failed to drain queue: %w", executorLogPrefix, ctx.Err())
	}
}

// Stats returns the current queue depth, including the executing command, and
// the number of commands executed so far.
func (e *Executor) Stats() Stats {
	return Stats{Pending: e.pending.Load(), Executed: e.executed.Load()}
}
