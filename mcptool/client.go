// ABOUTME: MCP stdio client wrapper: spawns a tool server subprocess, performs the
// ABOUTME: initialize handshake, and maps tool call results into the Result envelope.
package mcptool

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// ClientConfig describes how to launch a stdio tool server.
type ClientConfig struct {
	Command string
	Args    []string
	Env     []string // extra KEY=VALUE pairs for the subprocess
	Name    string   // client name reported during initialize
	Version string   // client version reported during initialize
}

// Client is an Invoker backed by an MCP server over stdio.
type Client struct {
	cli *client.Client
}

// NewClient spawns the configured server subprocess. Call Start before Invoke.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcptool: command must not be empty")
	}
	cli, err := client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcptool: spawn %s: %w", cfg.Command, err)
	}
	return &Client{cli: cli}, nil
}

// Start runs the transport and performs the MCP initialize handshake.
func (c *Client) Start(ctx context.Context) error {
	if err := c.cli.Start(ctx); err != nil {
		return fmt.Errorf("mcptool: start transport: %w", err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "chalkmotion",
		Version: "1.0.0",
	}
	if _, err := c.cli.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("mcptool: initialize: %w", err)
	}
	return nil
}

// Close terminates the server subprocess.
func (c *Client) Close() error {
	return c.cli.Close()
}

// Invoke calls the named tool. Protocol and process failures come back as
// errors; a result the server flagged as failed comes back with IsError set
// and its text preserved for retry feedback.
func (c *Client) Invoke(ctx context.Context, tool string, args map[string]any) (Result, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	res, err := c.cli.CallTool(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("call %s: %w", tool, err)
	}
	return Result{Text: flattenContent(res), IsError: res.IsError}, nil
}

// flattenContent joins the text content items of a tool result. Non-text
// content is ignored; an all-non-text result flattens to its string form so
// callers always get something to report.
func flattenContent(res *mcp.CallToolResult) string {
	var parts []string
	for _, item := range res.Content {
		if tc, ok := item.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 && len(res.Content) > 0 {
		return fmt.Sprintf("%v", res.Content)
	}
	return strings.Join(parts, "\n")
}
