// Package mcpbridge exposes every registered command as an MCP tool so AI
// clients can drive the bridge. Tool calls go through the same client the
// debug CLI uses; parameter validation stays on the bridge side.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/morezero/ableton-bridge/pkg/commsutil"
	"github.com/morezero/ableton-bridge/pkg/protocol"
	"github.com/morezero/ableton-bridge/pkg/registry"
)

const logPrefix = "mcpbridge:bridge"

// ServerName is the MCP implementation name.
const ServerName = "ableton-bridge"

const instructions = `Controls an Ableton Live set through the bridge.

Each tool is one host command; its input schema lists the parameters.
Query tools only read state. Other tools change the set.
Start with get_session_info to see tempo, tracks and scenes.`

// Sender sends one command and returns the peer's response.
type Sender interface {
	Send(ctx context.Context, name string, params map[string]interface{}) (*protocol.Response, error)
}

// NewServer creates an MCP server with a tool per entry of reg.
func NewServer(version string, reg *registry.Registry, sender Sender) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version,
		},
		&mcp.ServerOptions{
			HasTools:     true,
			Instructions: instructions,
		},
	)
	Register(server, reg, sender)
	return server
}

// Register adds one tool per registry entry.
func Register(server *mcp.Server, reg *registry.Registry, sender Sender) {
	for _, entry := range reg.Entries() {
		server.AddTool(toolFor(entry), handlerFor(entry.Name, sender))
	}
	slog.Debug(fmt.Sprintf("%s - Registered %d tools", logPrefix, reg.Len()))
}

func toolFor(entry *registry.Entry) *mcp.Tool {
	tool := &mcp.Tool{
		Name:        entry.Name,
		Description: entry.Description,
		InputSchema: entry.Schema(),
	}
	if !entry.Mutating() {
		tool.Annotations = &mcp.ToolAnnotations{ReadOnlyHint: true}
	}
	return tool
}

func handlerFor(name string, sender Sender) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := decodeArguments(req.Params.Arguments)
		if err != nil {
			return errorResult(fmt.Sprintf("InvalidParams: %v", err)), nil
		}

		resp, err := sender.Send(ctx, name, params)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - %s failed: %v", logPrefix, name, err))
			return errorResult(fmt.Sprintf("%s: %s", protocol.KindOf(err), protocol.MessageOf(err))), nil
		}
		if err := resp.Err(); err != nil {
			return errorResult(fmt.Sprintf("%s: %s", protocol.KindOf(err), protocol.MessageOf(err))), nil
		}

		text, err := json.MarshalIndent(resp.Result, "", "  ")
		if err != nil {
			return errorResult(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: string(text)},
			},
		}, nil
	}
}

func decodeArguments(raw json.RawMessage) (map[string]interface{}, error) {
	params, err := commsutil.DecodeParams(raw)
	if err != nil {
		return nil, fmt.Errorf("arguments must be an object: %w", err)
	}
	return params, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}
