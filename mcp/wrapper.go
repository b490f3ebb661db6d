// MCP tool wrapper - makes MCP server tools dispatchable in a run.
//
// Information Hiding:
// - MCP client lifecycle hidden
// - Result content decoding hidden
// - Tool execution coordination hidden

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/richinex/theseus/model"
	"github.com/richinex/theseus/run"
	"github.com/richinex/theseus/tools"
)

// ToolManager manages a set of MCP tools sharing a single client.
// The caller must call Close() when done to release resources.
type ToolManager struct {
	client *Client
	tools  []tools.Tool
}

// Tools returns the discovered tools.
func (m *ToolManager) Tools() []tools.Tool {
	return m.tools
}

// Close closes the MCP client and releases resources.
func (m *ToolManager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Wrapper exposes one MCP server tool through the run's Tool interface.
// The raw MCP input schema flows into the registry, which compiles it for
// argument validation before dispatch.
type Wrapper struct {
	client      *Client
	serverName  string
	toolName    string
	description string
	inputSchema json.RawMessage
}

var _ tools.Tool = (*Wrapper)(nil)

// Metadata returns the tool metadata with the server's advertised schema.
func (w *Wrapper) Metadata() tools.Metadata {
	return tools.Metadata{
		Name:        w.toolName,
		Description: w.description,
		InputSchema: w.inputSchema,
		ConnectorID: "mcp:" + w.serverName,
	}
}

// Execute calls the MCP tool and decodes its content into run output.
func (w *Wrapper) Execute(ctx context.Context, args json.RawMessage, rc *run.Context) (tools.Output, error) {
	raw, err := w.client.CallTool(ctx, w.toolName, args)
	if err != nil {
		return tools.Output{}, fmt.Errorf("tool call failed: %w", err)
	}
	return decodeCallResult(w.serverName, w.toolName, raw)
}

// callResult is the wire shape of an MCP tools/call result.
type callResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type contentItem struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	Data     []byte        `json:"data,omitempty"`
	MimeType string        `json:"mimeType,omitempty"`
	Resource *resourceItem `json:"resource,omitempty"`
}

type resourceItem struct {
	URI      string `json:"uri"`
	Title    string `json:"title,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

// decodeCallResult maps MCP result content onto run output: text items
// become the textual result, embedded resources become fragments, and
// image items become image artifacts. A result that isn't in content form
// is passed through as pretty-printed JSON.
func decodeCallResult(serverName, toolName string, raw json.RawMessage) (tools.Output, error) {
	var result callResult
	if err := json.Unmarshal(raw, &result); err != nil || len(result.Content) == 0 {
		return tools.TextOutput(prettyJSON(raw)), nil
	}

	var text strings.Builder
	out := tools.Output{}
	for _, item := range result.Content {
		switch item.Type {
		case "text":
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(item.Text)
		case "resource":
			if item.Resource == nil || item.Resource.Text == "" {
				continue
			}
			out.Fragments = append(out.Fragments, model.NewFragment(
				item.Resource.Text,
				model.Citation{
					DocID: item.Resource.URI,
					Title: item.Resource.Title,
					App:   "mcp:" + serverName,
				},
				1.0,
			))
		case "image":
			if len(item.Data) == 0 {
				continue
			}
			out.Images = append(out.Images, model.ImageArtifact{
				FileName: fmt.Sprintf("%s-%s-%d", serverName, toolName, len(out.Images)+1),
				MimeType: item.MimeType,
				Data:     item.Data,
			})
		}
	}

	if result.IsError {
		msg := text.String()
		if msg == "" {
			msg = "tool reported an error"
		}
		return tools.Output{}, fmt.Errorf("%s", msg)
	}

	out.Text = text.String()
	if out.Text == "" {
		out.Text = fmt.Sprintf("%s returned %d attachment(s).", toolName, len(out.Fragments)+len(out.Images))
	}
	return out, nil
}

// prettyJSON renders raw JSON indented, or as-is when not valid JSON.
func prettyJSON(raw json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	// If unmarshal succeeded, marshal should never fail
	pretty, _ := json.MarshalIndent(v, "", "  ")
	return string(pretty)
}

// DiscoverTools connects to one MCP server and wraps every advertised tool.
// All wrappers share a single client; the caller MUST call Close() on the
// returned manager to stop the server process.
func DiscoverTools(ctx context.Context, logger *zap.Logger, serverName string, cfg ServerConfig) (*ToolManager, error) {
	client, err := NewClient(ctx, logger, cfg.Command, cfg.Args, cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP server: %w", err)
	}

	toolInfos, err := client.ListTools(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	wrapped := make([]tools.Tool, len(toolInfos))
	for i, info := range toolInfos {
		wrapped[i] = &Wrapper{
			client:      client,
			serverName:  serverName,
			toolName:    info.Name,
			description: stringValue(info.Description),
			inputSchema: info.InputSchema,
		}
	}

	return &ToolManager{
		client: client,
		tools:  wrapped,
	}, nil
}

// stringValue returns empty string for nil pointers.
func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
