package mcpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"mcp-agent/agent_go/pkg/logger"
)

// Client wraps a single MCP tool-server subprocess connection.
type Client struct {
	cfg    ServerConfig
	log    logger.Logger
	inner  *client.Client
}

// New creates a client for the given server configuration. Connect must be
// called before any tool operation.
func New(cfg ServerConfig, log logger.Logger) *Client {
	return &Client{cfg: cfg, log: log}
}

// Connect starts the subprocess and performs the MCP initialize handshake,
// retrying with linear backoff up to 3 attempts — tool-server subprocesses
// (especially npx-launched ones) are occasionally slow to bind stdio.
func (c *Client) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * time.Second
			c.log.Infof("retrying tool server connection (attempt %d/3) after %v", attempt, delay)
			time.Sleep(delay)
		}

		var env []string
		for k, v := range c.cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}

		mcpClient, err := client.NewStdioMCPClient(c.cfg.Command, env, c.cfg.Args...)
		if err != nil {
			lastErr = fmt.Errorf("start tool server %q: %w", c.cfg.Command, err)
			continue
		}

		initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err = mcpClient.Initialize(initCtx, mcp.InitializeRequest{
			Params: mcp.InitializeParams{
				ProtocolVersion: "2024-11-05",
				Capabilities:    mcp.ClientCapabilities{},
				ClientInfo: mcp.Implementation{
					Name:    "skill-orchestrator",
					Version: "1.0.0",
				},
			},
		})
		cancel()
		if err != nil {
			mcpClient.Close()
			lastErr = fmt.Errorf("initialize tool server %q: %w", c.cfg.Command, err)
			continue
		}

		c.inner = mcpClient
		return nil
	}
	return fmt.Errorf("mcpclient: failed to connect after 3 attempts: %w", lastErr)
}

// Close terminates the subprocess and releases its resources.
func (c *Client) Close() error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// ListTools returns the tool-server's full tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if c.inner == nil {
		return nil, fmt.Errorf("mcpclient: not connected")
	}
	result, err := c.inner.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a single tool and returns its raw result.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	if c.inner == nil {
		return nil, fmt.Errorf("mcpclient: not connected")
	}
	result, err := c.inner.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: arguments,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}
	return result, nil
}

// ResultText concatenates the text content parts of a tool result, the
// common case when a tool returns a single text blob.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var text string
	for _, content := range result.Content {
		switch tc := content.(type) {
		case mcp.TextContent:
			text += tc.Text
		case *mcp.TextContent:
			text += tc.Text
		}
	}
	return text
}
