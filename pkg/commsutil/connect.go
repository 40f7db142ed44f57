// Package commsutil holds the NATS helpers shared by the bridge server and
// its clients: connection setup, subjects and payload decoding.
package commsutil

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

// Connection defaults used when ConnectParams leaves a field zero.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReconnectWait  = 2 * time.Second
	DefaultMaxReconnects  = 60
)

// ConnectParams configures Connect.
type ConnectParams struct {
	URL  string
	Name string

	Timeout       time.Duration
	ReconnectWait time.Duration
	// MaxReconnects < 0 retries forever.
	MaxReconnects int
}

func (p *ConnectParams) withDefaults() {
	if p.Timeout <= 0 {
		p.Timeout = DefaultConnectTimeout
	}
	if p.ReconnectWait <= 0 {
		p.ReconnectWait = DefaultReconnectWait
	}
	if p.MaxReconnects == 0 {
		p.MaxReconnects = DefaultMaxReconnects
	}
}

// Connect opens a NATS connection that reconnects in the background and logs
// state transitions.
func Connect(p ConnectParams) (*comms.Conn, error) {
	if p.URL == "" {
		return nil, fmt.Errorf("%s - NATS URL is required", logPrefix)
	}
	p.withDefaults()
	where := RedactURL(p.URL)
	slog.Info(fmt.Sprintf("%s - Connecting to NATS at %s as %s", logPrefix, where, p.Name))

	nc, err := comms.Connect(p.URL,
		comms.Name(p.Name),
		comms.Timeout(p.Timeout),
		comms.ReconnectWait(p.ReconnectWait),
		comms.MaxReconnects(p.MaxReconnects),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			if err != nil {
				slog.Warn(fmt.Sprintf("%s - NATS disconnected: %v", logPrefix, err))
			}
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - NATS reconnected to %s", logPrefix, RedactURL(nc.ConnectedUrl())))
		}),
		comms.ClosedHandler(func(*comms.Conn) {
			slog.Info(fmt.Sprintf("%s - NATS connection closed", logPrefix))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to %s: %w", logPrefix, where, err)
	}
	return nc, nil
}

// RedactURL hides any password in a NATS URL so it can be logged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
