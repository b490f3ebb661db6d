// Agent runtime over MCP servers.
//
// A configured server's "promptable" tools (tools taking a single string
// argument) are presented as delegable public agents, named
// "<server>:<tool>". Delegation sends the prompt as that argument and maps
// the result back into answer text and source fragments.
//
// Information Hiding:
// - Server connection caching hidden
// - Prompt-argument detection hidden

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/richinex/theseus/tools"
)

// Runtime implements the run's agent-runtime collaborator on top of
// configured MCP servers. Connections are opened lazily and reused.
type Runtime struct {
	config *Config
	logger *zap.Logger

	mu      sync.Mutex
	servers map[string]*serverConn
}

var _ tools.AgentRuntime = (*Runtime)(nil)

// serverConn caches one server's client and its advertised tools.
type serverConn struct {
	client *Client
	tools  []ToolInfo
}

// NewRuntime creates a runtime over the given server configuration.
func NewRuntime(config *Config, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		config:  config,
		logger:  logger,
		servers: make(map[string]*serverConn),
	}
}

// connect returns the cached connection for a server, opening it on first
// use.
func (r *Runtime) connect(ctx context.Context, name string) (*serverConn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.servers[name]; ok {
		return conn, nil
	}

	cfg, ok := r.config.MCPServers[name]
	if !ok {
		return nil, fmt.Errorf("unknown MCP server: %s", name)
	}

	client, err := NewClient(ctx, r.logger, cfg.Command, cfg.Args, cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", name, err)
	}

	toolInfos, err := client.ListTools(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("list tools on %s: %w", name, err)
	}

	conn := &serverConn{client: client, tools: toolInfos}
	r.servers[name] = conn
	return conn, nil
}

// ListCandidates lists the delegable agents across all configured servers.
// MCP servers do not scope candidates by workspace; the argument exists for
// runtimes that do. Returns nil when nothing is configured. A server that
// fails to connect is skipped with a warning, not fatal to discovery.
func (r *Runtime) ListCandidates(ctx context.Context, workspace string) ([]tools.AgentCandidate, error) {
	if r.config == nil || len(r.config.MCPServers) == 0 {
		return nil, nil
	}

	var candidates []tools.AgentCandidate
	for _, serverName := range r.config.ServerNames() {
		conn, err := r.connect(ctx, serverName)
		if err != nil {
			r.logger.Warn("mcp server unavailable",
				zap.String("server", serverName),
				zap.Error(err))
			continue
		}

		for _, info := range conn.tools {
			if _, ok := promptProperty(info.InputSchema); !ok {
				continue
			}
			candidates = append(candidates, tools.AgentCandidate{
				Name:        serverName + ":" + info.Name,
				Description: stringValue(info.Description),
				Owner:       serverName,
			})
		}
	}
	return candidates, nil
}

// Run delegates a prompt to one named agent and maps its result.
func (r *Runtime) Run(ctx context.Context, name, prompt string) (*tools.AgentAnswer, error) {
	serverName, toolName, ok := strings.Cut(name, ":")
	if !ok {
		return nil, fmt.Errorf("agent name %q must be <server>:<tool>", name)
	}

	conn, err := r.connect(ctx, serverName)
	if err != nil {
		return nil, err
	}

	var schema json.RawMessage
	found := false
	for _, info := range conn.tools {
		if info.Name == toolName {
			schema = info.InputSchema
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("server %s has no tool %s", serverName, toolName)
	}

	prop, ok := promptProperty(schema)
	if !ok {
		return nil, fmt.Errorf("tool %s on %s does not accept a plain prompt", toolName, serverName)
	}

	args, err := json.Marshal(map[string]string{prop: prompt})
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}

	raw, err := conn.client.CallTool(ctx, toolName, args)
	if err != nil {
		return nil, fmt.Errorf("agent call failed: %w", err)
	}

	out, err := decodeCallResult(serverName, toolName, raw)
	if err != nil {
		return nil, err
	}
	return &tools.AgentAnswer{
		Text:      out.Text,
		Fragments: out.Fragments,
		CostUSD:   out.CostUSD,
	}, nil
}

// Close stops every connected server process.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, conn := range r.servers {
		if err := conn.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.servers, name)
	}
	return firstErr
}

// promptProperty reports whether a tool schema accepts a single string
// argument, and which property carries it. Such tools are delegable as
// agents: exactly one required string property, or exactly one property
// at all when nothing is required.
func promptProperty(schema json.RawMessage) (string, bool) {
	var parsed struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return "", false
	}

	if len(parsed.Required) == 1 {
		name := parsed.Required[0]
		prop, ok := parsed.Properties[name]
		if ok && prop.Type == "string" {
			return name, true
		}
		return "", false
	}

	if len(parsed.Required) == 0 && len(parsed.Properties) == 1 {
		for name, prop := range parsed.Properties {
			if prop.Type == "string" {
				return name, true
			}
		}
	}
	return "", false
}
