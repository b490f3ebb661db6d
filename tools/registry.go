// Tool registry with schema compilation at registration.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Schema compilation performed once here, never per call
// - Disablement filtering applied when building the offered tool list
package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/run"
)

// registration pairs a tool with its compiled input schema.
type registration struct {
	tool   Tool
	schema *SchemaNode
}

// Registry manages available tools. It is a process-wide shared resource:
// reads dominate after startup, so it uses an RWMutex.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registration
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]registration),
	}
}

// Register adds a tool and compiles its input schema once.
// Returns error if a tool with the same name already exists.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta := tool.Metadata()
	if meta.Name == "" {
		return fmt.Errorf("tool has empty name")
	}
	if _, exists := r.tools[meta.Name]; exists {
		return fmt.Errorf("tool '%s' already registered", meta.Name)
	}
	r.tools[meta.Name] = registration{
		tool:   tool,
		schema: BuildSchemaNode(meta.InputSchema),
	}
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.tools[name]
	return reg.tool, exists
}

// lookup returns the full registration for dispatch.
func (r *Registry) lookup(name string) (registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.tools[name]
	return reg, exists
}

// Schema returns the compiled schema node for a tool.
func (r *Registry) Schema(name string) (*SchemaNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.tools[name]
	return reg.schema, exists
}

// Has checks if a tool exists in the registry.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns metadata for all registered tools in name order.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata := make([]Metadata, 0, len(r.tools))
	for _, reg := range r.tools {
		metadata = append(metadata, reg.tool.Metadata())
	}
	sort.Slice(metadata, func(i, j int) bool { return metadata[i].Name < metadata[j].Name })
	return metadata
}

// Definitions builds the tool list offered to the model for this run.
// Tools disabled by the failure tracker are excluded; the hidden fallback
// reporter is never offered. After final synthesis the list is empty.
func (r *Registry) Definitions(rc *run.Context) []llm.ToolDefinition {
	if rc != nil && rc.Terminal() {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		reg := r.tools[name]
		if h, ok := reg.tool.(hiddenTool); ok && h.Hidden() {
			continue
		}
		if rc != nil && rc.ToolDisabled(name) {
			continue
		}
		meta := reg.tool.Metadata()
		defs = append(defs, llm.ToolDefinition{
			Name:        meta.Name,
			Description: describeWithPrerequisites(meta),
			Parameters:  reg.schema.Parameters(),
		})
	}
	return defs
}

// hiddenTool marks tools invoked by the scheduler itself, never offered to
// the model.
type hiddenTool interface {
	Hidden() bool
}

func describeWithPrerequisites(meta Metadata) string {
	if len(meta.Prerequisites) == 0 {
		return meta.Description
	}
	return fmt.Sprintf("%s Requires a successful %s call earlier in the run.",
		meta.Description, strings.Join(meta.Prerequisites, ", "))
}
