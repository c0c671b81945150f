// Package mcpbridge merges tools from external Model Context Protocol (MCP)
// servers into the agent's tool roster.
//
// A [Bridge] connects to servers via stdio or streamable-HTTP transports
// using the official MCP Go SDK and implements [tool.Source]: the catalogue
// is re-listed at every roster snapshot, so servers that add or remove tools
// between turns are picked up without reconnecting.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sporelab/mycelium/internal/tool"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP
	// protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name identifies the server in logs and errors. Must be unique within a
	// Bridge.
	Name string

	// Transport specifies the connection mechanism.
	Transport Transport

	// Command is the executable path and arguments used for stdio transport.
	Command string

	// URL is the endpoint address used for streamable-http transport.
	URL string

	// Env holds additional environment variables for stdio servers. May be
	// nil.
	Env map[string]string
}

// Bridge holds live connections to MCP servers and exposes their combined
// tool catalogue. Safe for concurrent use.
type Bridge struct {
	client *mcpsdk.Client
	log    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*mcpsdk.ClientSession
}

// Compile-time check: Bridge must implement tool.Source.
var _ tool.Source = (*Bridge)(nil)

// New returns a Bridge with no connections. A nil logger defaults to
// slog.Default().
func New(log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "mycelium-mcpbridge", Version: "1.0.0"},
		nil,
	)
	return &Bridge{client: client, log: log, sessions: make(map[string]*mcpsdk.ClientSession)}
}

// Connect establishes a connection to the server described by cfg. A server
// with the same name replaces the previous connection.
func (b *Bridge) Connect(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcpbridge: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcpbridge: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcpbridge: stdio server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		if len(cfg.Env) > 0 {
			cmd.Env = mergedEnv(cfg.Env)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcpbridge: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := b.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcpbridge: failed to connect to server %q: %w", cfg.Name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.sessions[cfg.Name]; ok {
		_ = old.Close()
	}
	b.sessions[cfg.Name] = session
	return nil
}

// Tools implements [tool.Source]. It lists every connected server's current
// catalogue; a server that fails to list is logged and skipped so the rest of
// the roster survives.
func (b *Bridge) Tools(ctx context.Context) ([]tool.Tool, error) {
	b.mu.RLock()
	sessions := make(map[string]*mcpsdk.ClientSession, len(b.sessions))
	for name, s := range b.sessions {
		sessions[name] = s
	}
	b.mu.RUnlock()

	var out []tool.Tool
	for serverName, session := range sessions {
		for t, err := range session.Tools(ctx, nil) {
			if err != nil {
				b.log.Warn("mcp server tool listing failed", "server", serverName, "error", err)
				break
			}
			out = append(out, tool.Tool{
				Definition: tool.Definition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  schemaToMap(t.InputSchema),
				},
				Handler: b.makeHandler(serverName, t.Name),
			})
		}
	}
	return out, nil
}

// makeHandler returns a handler routing a call to the named server session.
func (b *Bridge) makeHandler(serverName, toolName string) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		b.mu.RLock()
		session, ok := b.sessions[serverName]
		b.mu.RUnlock()
		if !ok {
			return "", fmt.Errorf("mcpbridge: server %q not connected for tool %q", serverName, toolName)
		}

		var argsMap map[string]any
		if args != "" && args != "{}" {
			if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
				return "", fmt.Errorf("mcpbridge: invalid args JSON for tool %q: %w", toolName, err)
			}
		}

		result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      toolName,
			Arguments: argsMap,
		})
		if err != nil {
			return "", fmt.Errorf("mcpbridge: call to tool %q failed: %w", toolName, err)
		}

		var sb strings.Builder
		for _, c := range result.Content {
			if tc, ok := c.(*mcpsdk.TextContent); ok {
				sb.WriteString(tc.Text)
			}
		}
		if result.IsError {
			return "", fmt.Errorf("mcpbridge: tool %q reported an error: %s", toolName, sb.String())
		}
		return sb.String(), nil
	}
}

// Close shuts down all server connections. The Bridge must not be used after
// Close.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for name, session := range b.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcpbridge: error closing server %q: %w", name, err)
		}
		delete(b.sessions, name)
	}
	return firstErr
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

// mergedEnv layers the configured variables over the parent process
// environment, so a stdio subprocess keeps PATH, HOME and the rest. Extra
// variables are appended in sorted key order and win over inherited ones.
func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
