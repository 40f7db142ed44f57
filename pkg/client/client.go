// Package client is the caller side of the command protocol: a single shared
// connection to a bridge or remote script, with round trips serialized because
// the protocol does not pipeline.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/morezero/ableton-bridge/pkg/protocol"
	"github.com/morezero/ableton-bridge/pkg/registry"
)

const logPrefix = "client:client"

const (
	DefaultAddr            = "localhost:9877"
	DefaultDialTimeout     = 5 * time.Second
	DefaultQueryTimeout    = 10 * time.Second
	DefaultMutationTimeout = 15 * time.Second
	DefaultAttempts        = 3
	DefaultRetryWait       = time.Second
)

// HandshakeCommand is sent after dialing when Options.Handshake is set.
const HandshakeCommand = "get_session_info"

// ErrClosed is returned by Send after Close.
var ErrClosed = protocol.ConnectionError("client closed", nil)

// Options configures a Client. Zero values take the package defaults.
type Options struct {
	Addr        string
	DialTimeout time.Duration
	// QueryTimeout and MutationTimeout bound one round trip, chosen by the
	// command's kind in Registry. Unknown commands use MutationTimeout.
	QueryTimeout    time.Duration
	MutationTimeout time.Duration
	// Attempts is how many times Connect dials before giving up.
	Attempts       int
	RetryWait      time.Duration
	Registry       *registry.Registry
	MaxMessageSize int
	// Handshake validates a fresh connection with get_session_info.
	Handshake bool
	// Legacy omits ids and the version field for peers that predate them.
	Legacy bool
}

func (o *Options) applyDefaults() {
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = DefaultQueryTimeout
	}
	if o.MutationTimeout <= 0 {
		o.MutationTimeout = DefaultMutationTimeout
	}
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.RetryWait < 0 {
		o.RetryWait = 0
	}
	if o.Registry == nil {
		o.Registry = registry.Default()
	}
}

// Client holds at most one connection. It is safe for concurrent use; callers
// queue on the round-trip lock. A failed round trip drops the connection and
// the next Send reconnects. Commands are never resent automatically because
// a mutation may already have run.
type Client struct {
	opts Options

	mu     sync.Mutex
	conn   *protocol.Conn
	closed bool
}

// New creates a Client. No connection is made until Connect or Send.
func New(opts Options) *Client {
	opts.applyDefaults()
	return &Client{opts: opts}
}

// Addr returns the address the client dials.
func (c *Client) Addr() string {
	return c.opts.Addr
}

// Connect dials the peer if not already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureConn(ctx)
}

func (c *Client) ensureConn(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if c.conn != nil {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		slog.Info(fmt.Sprintf("%s - Connecting to %s (attempt %d/%d)", logPrefix, c.opts.Addr, attempt, c.opts.Attempts))
		conn, err := c.dial(ctx)
		if err == nil {
			c.conn = conn
			slog.Info(fmt.Sprintf("%s - Connected to %s", logPrefix, c.opts.Addr))
			return nil
		}
		lastErr = err
		slog.Warn(fmt.Sprintf("%s - Connection attempt %d failed: %v", logPrefix, attempt, err))

		if attempt < c.opts.Attempts {
			select {
			case <-ctx.Done():
				return protocol.ConnectionError("connect abandoned", ctx.Err())
			case <-time.After(c.opts.RetryWait):
			}
		}
	}
	return protocol.ConnectionError(fmt.Sprintf("could not connect to %s after %d attempts", c.opts.Addr, c.opts.Attempts), lastErr)
}

func (c *Client) dial(ctx context.Context) (*protocol.Conn, error) {
	d := net.Dialer{Timeout: c.opts.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", c.opts.Addr)
	if err != nil {
		return nil, err
	}
	conn := protocol.NewConn(nc, c.opts.MaxMessageSize)
	if !c.opts.Handshake {
		return conn, nil
	}
	resp, err := c.roundTrip(ctx, conn, HandshakeCommand, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}
	if !resp.OK() {
		conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", resp.Err())
	}
	return conn, nil
}

// Send issues one command and returns the peer's response. A non-nil error
// is always a ConnectionError or ProtocolError; command-level failures come
// back as an error Response.
func (c *Client) Send(ctx context.Context, name string, params map[string]interface{}) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConn(ctx); err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx, c.conn, name, params)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - Dropping connection after %s failed: %v", logPrefix, name, err))
		c.conn.Close()
		c.conn = nil
		return nil, err
	}
	return resp, nil
}

// Call is Send that folds an error response into the returned error.
func (c *Client) Call(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	resp, err := c.Send(ctx, name, params)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.Err()
	}
	return resp.Result, nil
}

// Ping verifies the peer answers a query.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Send(ctx, HandshakeCommand, nil)
	return err
}

func (c *Client) roundTrip(ctx context.Context, conn *protocol.Conn, name string, params map[string]interface{}) (*protocol.Response, error) {
	cmd := &protocol.Command{Name: name, Params: params}
	if !c.opts.Legacy {
		cmd.ID = uuid.NewString()
		cmd.Version = protocol.Version
	}

	deadline := time.Now().Add(c.timeout(name))
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, protocol.ConnectionError("set deadline", err)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	slog.Debug(fmt.Sprintf("%s - Sending %s id=%s", logPrefix, name, cmd.ID))
	if err := conn.SendCommand(cmd); err != nil {
		return nil, err
	}
	resp, err := conn.ReceiveResponse()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, protocol.ConnectionError(fmt.Sprintf("timeout waiting for response to %s", name), err)
		}
		return nil, err
	}
	if resp.ID != "" && cmd.ID != "" && resp.ID != cmd.ID {
		return nil, protocol.ProtocolErrorf("response id %q does not match request id %q", resp.ID, cmd.ID)
	}
	return resp, nil
}

func (c *Client) timeout(name string) time.Duration {
	if e, ok := c.opts.Registry.Lookup(name); ok && !e.Mutating() {
		return c.opts.QueryTimeout
	}
	return c.opts.MutationTimeout
}

// Close drops the connection. Send fails with ErrClosed afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
