package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeready-toolchain/scout/pkg/version"
)

// mcpInitTimeout bounds the connect+initialize handshake per server.
const mcpInitTimeout = 30 * time.Second

// mcpCallTimeout bounds a single remote tool call.
const mcpCallTimeout = 60 * time.Second

// MCPBridge connects to external MCP servers and exposes their tools through
// the registry. Tool names are qualified as "server.tool" so distinct servers
// never collide.
type MCPBridge struct {
	mu       sync.Mutex
	sessions map[string]*mcpsdk.ClientSession
	logger   *slog.Logger
}

// NewMCPBridge creates an empty bridge.
func NewMCPBridge() *MCPBridge {
	return &MCPBridge{
		sessions: make(map[string]*mcpsdk.ClientSession),
		logger:   slog.Default().With("component", "mcp_bridge"),
	}
}

// Connect establishes a session with one MCP server and returns its tools
// wrapped for the registry. The caller registers them with Registry.Register
// (the discovery contract treats bridged tools like any other).
func (b *MCPBridge) Connect(ctx context.Context, serverName string, transport mcpsdk.Transport) ([]Tool, error) {
	initCtx, cancel := context.WithTimeout(ctx, mcpInitTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err := client.Connect(initCtx, transport, nil)
	if err != nil {
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("connect to MCP server %q: %w", serverName, err)
	}

	listed, err := session.ListTools(initCtx, nil)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("list tools from %q: %w", serverName, err)
	}

	b.mu.Lock()
	if old, exists := b.sessions[serverName]; exists {
		_ = old.Close()
	}
	b.sessions[serverName] = session
	b.mu.Unlock()

	wrapped := make([]Tool, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		wrapped = append(wrapped, &mcpTool{
			session:     session,
			server:      serverName,
			name:        t.Name,
			description: t.Description,
			schema:      marshalSchema(t.InputSchema),
		})
	}
	b.logger.Info("MCP server connected", "server", serverName, "tools", len(wrapped))
	return wrapped, nil
}

// Close shuts down every session.
func (b *MCPBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for name, session := range b.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close MCP session %q: %w", name, err)
		}
		delete(b.sessions, name)
	}
	return firstErr
}

// mcpTool adapts one remote MCP tool to the registry contract.
type mcpTool struct {
	session     *mcpsdk.ClientSession
	server      string
	name        string
	description string
	schema      string
}

func (t *mcpTool) Name() string        { return t.server + "." + t.name }
func (t *mcpTool) Description() string { return t.description }
func (t *mcpTool) Schema() string      { return t.schema }

func (t *mcpTool) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancel()

	result, err := t.session.CallTool(callCtx, &mcpsdk.CallToolParams{
		Name:      t.name,
		Arguments: args,
	})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, &TimeoutError{Tool: t.Name(), Elapsed: mcpCallTimeout}
		}
		return nil, fmt.Errorf("MCP call %s: %w", t.Name(), err)
	}

	content := extractTextContent(result)
	if result.IsError {
		// MCP convention: tool-level failures ride in the content.
		return &Result{Success: false, Error: content, Output: content}, nil
	}
	return Ok(content).WithMeta("server", t.server), nil
}

// extractTextContent joins the text blocks of an MCP result; non-text
// content is skipped.
func extractTextContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func marshalSchema(schema any) string {
	if schema == nil {
		return ""
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return ""
	}
	return string(raw)
}
