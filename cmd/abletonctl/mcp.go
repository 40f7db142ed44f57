package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/morezero/ableton-bridge/pkg/client"
	"github.com/morezero/ableton-bridge/pkg/mcpbridge"
	"github.com/morezero/ableton-bridge/pkg/registry"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the command table to an AI client over MCP (stdio)",
	Long: `Run an MCP server on stdin/stdout. Every bridge command becomes a tool
whose input schema is the command's parameter schema. Tool calls are sent to
the bridge; error envelopes come back as tool errors.

Configure your MCP client to launch "abletonctl mcp".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c := client.New(client.Options{
			Addr:            target,
			QueryTimeout:    timeoutFlag,
			MutationTimeout: timeoutFlag,
			Handshake:       true,
		})
		defer c.Close()

		server := mcpbridge.NewServer(abletonctlVersion, registry.Default(), c)
		slog.Debug(fmt.Sprintf("abletonctl:mcp - Serving %d tools for %s", registry.Default().Len(), target))
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
