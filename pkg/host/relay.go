// Package host provides the backends the dispatcher executes commands on: a
// relay to a remote script speaking the same wire protocol, and an in-memory
// simulator of a Live set for running without the host application.
package host

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/ableton-bridge/pkg/client"
	"github.com/morezero/ableton-bridge/pkg/protocol"
	"github.com/morezero/ableton-bridge/pkg/registry"
)

const relayLogPrefix = "host:relay"

// Relay forwards validated commands to an upstream remote script.
type Relay struct {
	client   *client.Client
	registry *registry.Registry
}

// NewRelay creates a Relay over c. Handles reports every command in reg,
// since the upstream is expected to implement the same table.
func NewRelay(c *client.Client, reg *registry.Registry) *Relay {
	return &Relay{client: c, registry: reg}
}

// Execute sends the command upstream. Upstream error responses come back as
// their own kind; transport failures as ConnectionError, which the dispatcher
// reports to its caller as a HostError.
func (r *Relay) Execute(ctx context.Context, command string, params registry.Params) (interface{}, error) {
	result, err := r.client.Call(ctx, command, map[string]interface{}(params))
	if err != nil {
		if protocol.IsFatal(err) {
			slog.Warn(fmt.Sprintf("%s - upstream %s unavailable for %s: %v", relayLogPrefix, r.client.Addr(), command, err))
		}
		return nil, err
	}
	return result, nil
}

// Handles returns the registry's command names.
func (r *Relay) Handles() []string {
	return r.registry.Names()
}

// Ping checks the upstream answers.
func (r *Relay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

// Close drops the upstream connection.
func (r *Relay) Close() error {
	return r.client.Close()
}
