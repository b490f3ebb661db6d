// Argument schema compilation and validation.
//
// Tool input schemas arrive as untyped JSON documents, including from
// external MCP servers. Each is compiled exactly once at registration into
// a SchemaNode; dispatch validates against the compiled form. Shapes the
// compiler rejects degrade to an accept-anything node that keeps the raw
// schema for documentation.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaKind tags the top-level shape of a tool's input schema.
type SchemaKind int

const (
	SchemaObject SchemaKind = iota
	SchemaString
	SchemaNumber
	SchemaBoolean
	SchemaArray
	SchemaUnion
	// SchemaUnknown accepts anything. Used when the declared schema is
	// absent or cannot be compiled.
	SchemaUnknown
)

// String returns the kind name.
func (k SchemaKind) String() string {
	switch k {
	case SchemaObject:
		return "object"
	case SchemaString:
		return "string"
	case SchemaNumber:
		return "number"
	case SchemaBoolean:
		return "boolean"
	case SchemaArray:
		return "array"
	case SchemaUnion:
		return "union"
	default:
		return "unknown"
	}
}

// SchemaNode is a tool's compiled input validator.
type SchemaNode struct {
	Kind     SchemaKind
	Raw      json.RawMessage
	compiled *jsonschema.Schema
}

// BuildSchemaNode compiles a raw JSON Schema document. Compile failures are
// not fatal: the node degrades to SchemaUnknown and validation accepts
// anything, with the raw schema retained.
func BuildSchemaNode(raw json.RawMessage) *SchemaNode {
	node := &SchemaNode{Kind: SchemaUnknown, Raw: raw}
	if len(raw) == 0 {
		return node
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return node
	}
	node.Kind = kindOf(doc)

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", doc); err != nil {
		node.Kind = SchemaUnknown
		return node
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		node.Kind = SchemaUnknown
		return node
	}
	node.compiled = schema
	return node
}

// kindOf classifies the top-level "type" declaration of a schema document.
func kindOf(doc interface{}) SchemaKind {
	m, ok := doc.(map[string]interface{})
	if !ok {
		return SchemaUnknown
	}
	if _, union := m["oneOf"]; union {
		return SchemaUnion
	}
	if _, union := m["anyOf"]; union {
		return SchemaUnion
	}
	switch t := m["type"].(type) {
	case string:
		switch t {
		case "object":
			return SchemaObject
		case "string":
			return SchemaString
		case "number", "integer":
			return SchemaNumber
		case "boolean":
			return SchemaBoolean
		case "array":
			return SchemaArray
		}
	case []interface{}:
		return SchemaUnion
	}
	return SchemaUnknown
}

// Validate checks arguments against the compiled schema. Unknown nodes
// accept anything. Empty arguments validate as an empty object.
func (n *SchemaNode) Validate(args json.RawMessage) error {
	if n == nil || n.compiled == nil {
		return nil
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	var payload interface{}
	if err := json.Unmarshal(args, &payload); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := n.compiled.Validate(payload); err != nil {
		return err
	}
	return nil
}

// Parameters returns the schema as the untyped map providers expect.
// Nodes without a usable schema advertise a permissive object.
func (n *SchemaNode) Parameters() map[string]interface{} {
	if n != nil && len(n.Raw) > 0 {
		var m map[string]interface{}
		if err := json.Unmarshal(n.Raw, &m); err == nil {
			return m
		}
	}
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
