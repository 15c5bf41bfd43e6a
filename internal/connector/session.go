package connector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// Session is the live MCP connection of a Connected connector. It owns the
// protocol client and a cached tool list; callers reach it through the
// registry's Tools/CallTool delegation.
type Session struct {
	serverName string
	client     *mcpclient.Client

	mu    sync.RWMutex
	tools []mcpgo.Tool
}

// openSession dials the connector's tool endpoint with the bearer token,
// runs the MCP initialize handshake, and caches the advertised tools.
func openSession(ctx context.Context, serverName, endpoint, accessToken string) (*Session, error) {
	c, err := mcpclient.NewStreamableHttpClient(endpoint,
		transport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + accessToken,
		}))
	if err != nil {
		return nil, fmt.Errorf("create mcp client: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start mcp transport: %w", err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    "trustd",
		Version: "0.1.0",
	}

	initRes, err := c.Initialize(ctx, initReq)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}

	s := &Session{serverName: serverName, client: c}
	if err := s.refreshTools(ctx); err != nil {
		// The session is usable without a tool list; callers can retry.
		slog.Warn("tool list unavailable", "connector", serverName)
	}

	slog.Info("mcp session opened",
		"connector", serverName,
		"server", initRes.ServerInfo.Name,
		"tools", len(s.Tools()),
	)
	return s, nil
}

func (s *Session) refreshTools(ctx context.Context) error {
	res, err := s.client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.tools = res.Tools
	s.mu.Unlock()
	return nil
}

// Tools returns the cached tool list from the initialize handshake.
func (s *Session) Tools() []mcpgo.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tools
}

// CallTool invokes a tool on the live session and returns its concatenated
// text content. An isError result is surfaced as an error.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := s.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("tool %q: %w", name, err)
	}

	text := extractTextContent(res)
	if res.IsError {
		return "", fmt.Errorf("tool %q returned error: %s", name, text)
	}
	return text, nil
}

// Close shuts down the protocol client.
func (s *Session) Close() {
	if err := s.client.Close(); err != nil {
		slog.Warn("mcp session close failed", "connector", s.serverName)
	}
}

// extractTextContent concatenates all text content from a CallToolResult.
func extractTextContent(result *mcpgo.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[non-text content: %T]", c))
		}
	}
	return strings.Join(parts, "\n")
}
