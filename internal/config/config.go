// Package config provides bridge configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Host backends.
const (
	BackendSimulator = "simulator"
	BackendRelay     = "relay"
)

// Config holds ableton-bridge configuration.
type Config struct {
	// TCP endpoint: listen address for the bridge, target for clients.
	Host string `envconfig:"ABLETON_HOST" default:"localhost"`
	Port int    `envconfig:"ABLETON_PORT" default:"9877"`

	// Host execution backend and, for relay, the remote script address.
	Backend      string `envconfig:"HOST_BACKEND" default:"simulator"`
	UpstreamHost string `envconfig:"UPSTREAM_HOST" default:"localhost"`
	UpstreamPort int    `envconfig:"UPSTREAM_PORT" default:"9878"`

	// Client timeouts
	QueryTimeout    time.Duration `envconfig:"QUERY_TIMEOUT" default:"10s"`
	MutationTimeout time.Duration `envconfig:"MUTATION_TIMEOUT" default:"15s"`
	ConnectAttempts int           `envconfig:"CONNECT_ATTEMPTS" default:"3"`

	// Dispatch
	QueueSize      int    `envconfig:"DISPATCH_QUEUE_SIZE" default:"64"`
	MaxMessageSize int    `envconfig:"MAX_MESSAGE_SIZE" default:"8388608"`
	StubsFile      string `envconfig:"STUBS_FILE"`

	// COMMS: connect to standalone NATS at COMMSURL. Empty disables NATS.
	COMMSURL            string `envconfig:"COMMS_URL"`
	COMMSName           string `envconfig:"SERVICE_NAME" default:"ableton-bridge"`
	CommandSubject      string `envconfig:"COMMAND_SUBJECT"`
	CommandEventSubject string `envconfig:"COMMAND_EVENT_SUBJECT"`

	// Database. Empty DATABASE_URL disables the command journal.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH"`

	// HTTP health/admin endpoint. 0 disables it.
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	return &c, nil
}

// Addr is the bridge's TCP address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// UpstreamAddr is the remote script address used by the relay backend.
func (c *Config) UpstreamAddr() string {
	return net.JoinHostPort(c.UpstreamHost, strconv.Itoa(c.UpstreamPort))
}

// SlogLevel maps LOG_LEVEL to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidateForServe checks required config when running the bridge server.
func (c *Config) ValidateForServe() error {
	if err := validPort("ABLETON_PORT", c.Port, false); err != nil {
		return err
	}
	if err := validPort("HTTP_PORT", c.HTTPPort, true); err != nil {
		return err
	}
	switch c.Backend {
	case BackendSimulator:
	case BackendRelay:
		if err := validPort("UPSTREAM_PORT", c.UpstreamPort, false); err != nil {
			return err
		}
		if sameEndpoint(c.Host, c.Port, c.UpstreamHost, c.UpstreamPort) {
			return fmt.Errorf("%s - relay upstream %s is the bridge's own address", logPrefix, c.UpstreamAddr())
		}
	default:
		return fmt.Errorf("%s - HOST_BACKEND must be %q or %q, got %q", logPrefix, BackendSimulator, BackendRelay, c.Backend)
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("%s - QUERY_TIMEOUT must be positive", logPrefix)
	}
	if c.MutationTimeout <= 0 {
		return fmt.Errorf("%s - MUTATION_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.ConnectAttempts < 1 {
		return fmt.Errorf("%s - CONNECT_ATTEMPTS must be at least 1", logPrefix)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("%s - DISPATCH_QUEUE_SIZE must not be negative", logPrefix)
	}
	if c.MaxMessageSize < 1024 {
		return fmt.Errorf("%s - MAX_MESSAGE_SIZE must be at least 1024", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, history).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

func validPort(name string, port int, zeroOK bool) error {
	if port == 0 && zeroOK {
		return nil
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s - %s must be between 1 and 65535, got %d", logPrefix, name, port)
	}
	return nil
}

func sameEndpoint(hostA string, portA int, hostB string, portB int) bool {
	if portA != portB {
		return false
	}
	return canonicalHost(hostA) == canonicalHost(hostB)
}

func canonicalHost(h string) string {
	switch strings.ToLower(h) {
	case "", "localhost", "127.0.0.1", "::1", "0.0.0.0", "::":
		return "loopback"
	}
	return strings.ToLower(h)
}
