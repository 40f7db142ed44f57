package dispatcher

import (
	"context"

	"github.com/morezero/ableton-bridge/pkg/registry"
)

// Host performs a validated command against the live host session. It is not
// reentrant: callers must go through an Executor so at most one Execute runs
// at a time. The error message is returned to clients verbatim.
type Host interface {
	Execute(ctx context.Context, command string, params registry.Params) (interface{}, error)
}

// HostFunc adapts a function to the Host interface.
type HostFunc func(ctx context.Context, command string, params registry.Params) (interface{}, error)

// Execute calls f.
func (f HostFunc) Execute(ctx context.Context, command string, params registry.Params) (interface{}, error) {
	return f(ctx, command, params)
}

// HandlerLister is implemented by hosts that know which commands they handle,
// so startup can compare the set against the registry.
type HandlerLister interface {
	Handles() []string
}

// Pinger is implemented by hosts that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
