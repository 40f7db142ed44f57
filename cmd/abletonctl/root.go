package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/morezero/ableton-bridge/pkg/client"
	"github.com/morezero/ableton-bridge/pkg/output"
	"github.com/morezero/ableton-bridge/pkg/protocol"
)

// Sender sends one command and returns the peer's response.
// *client.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, name string, params map[string]interface{}) (*protocol.Response, error)
}

// env holds the target address from the environment; flags override it.
type env struct {
	Host string `envconfig:"ABLETON_HOST" default:"localhost"`
	Port int    `envconfig:"ABLETON_PORT" default:"9877"`
}

// errCommandFailed marks a command that returned an error envelope. The
// envelope has already been printed.
var errCommandFailed = errors.New("command failed")

var (
	// Global flags
	hostFlag     string
	portFlag     int
	timeoutFlag  time.Duration
	outputFormat string
	verbose      bool

	// Shared state set during PersistentPreRun
	target    string
	formatter output.Formatter

	// dial builds the Sender for a command. Tests replace it.
	dial = dialClient
)

// rootCmd is the base command for abletonctl.
var rootCmd = &cobra.Command{
	Use:   "abletonctl",
	Short: "Debug client for the Ableton bridge",
	Long: `abletonctl talks to an Ableton bridge over its TCP command socket.
It sends single commands, runs an interactive REPL with client-side stubs,
and serves the command table to AI clients over MCP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

		var e env
		if err := envconfig.Process("", &e); err != nil {
			return fmt.Errorf("failed to load environment: %w", err)
		}
		if cmd.Flags().Changed("host") {
			e.Host = hostFlag
		}
		if cmd.Flags().Changed("port") {
			e.Port = portFlag
		}
		if e.Port < 1 || e.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", e.Port)
		}
		target = net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
		formatter = output.NewFormatter(outputFormat)
		return nil
	},
}

// dialClient returns a client for target. It connects on first use.
func dialClient(_ context.Context) (Sender, func(), error) {
	c := client.New(client.Options{
		Addr:            target,
		QueryTimeout:    timeoutFlag,
		MutationTimeout: timeoutFlag,
	})
	return c, func() { c.Close() }, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errCommandFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// RootCmd returns the root cobra.Command for testing purposes.
func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "", "bridge host (default $ABLETON_HOST or localhost)")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0, "bridge port (default $ABLETON_PORT or 9877)")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 0, "round-trip timeout (default 10s for queries, 15s for mutations)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "output format: json, yaml, table")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}
