package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrArgsSchemaInvalid wraps a jsonschema validation failure with the
// caller-facing diagnostic text (spec §4.5, §7 args_schema_invalid).
type ErrArgsSchemaInvalid struct {
	ToolID  string
	Message string
}

func (e *ErrArgsSchemaInvalid) Error() string {
	return fmt.Sprintf("args_schema_invalid: %s: %s", e.ToolID, e.Message)
}

// Validator compiles and caches each tool's JSON-schema and validates call
// arguments against it. Compiled schemas are data-driven — never templated
// Go types — so adding a tool never requires a code change (spec §9,
// "Dynamic per-tool schema validation").
type Validator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator returns an empty schema cache.
func NewValidator() *Validator {
	return &Validator{compiled: make(map[string]*jsonschema.Schema)}
}

// Validate checks args against tool's declared schema, compiling and caching
// it on first use keyed by tool_id + version so a tool upgrade invalidates
// the cached schema. Schema compilation never enables code execution from
// the schema document itself — jsonschema/v5 has no such extension point.
func (v *Validator) Validate(tool Tool, args map[string]interface{}) error {
	schema, err := v.schemaFor(tool)
	if err != nil {
		return &ErrArgsSchemaInvalid{ToolID: tool.ToolID, Message: err.Error()}
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	if err := schema.Validate(args); err != nil {
		return &ErrArgsSchemaInvalid{ToolID: tool.ToolID, Message: err.Error()}
	}
	return nil
}

func (v *Validator) schemaFor(tool Tool) (*jsonschema.Schema, error) {
	key := fmt.Sprintf("%s@%d", tool.ToolID, tool.Version)

	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.compiled[key]; ok {
		return s, nil
	}

	var doc interface{}
	if err := json.Unmarshal(tool.JSONSchema, &doc); err != nil {
		return nil, fmt.Errorf("catalog: tool %s has malformed schema: %w", tool.ToolID, err)
	}

	url := fmt.Sprintf("mem://catalog/%s.json", key)
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, bytes.NewReader(tool.JSONSchema)); err != nil {
		return nil, fmt.Errorf("catalog: tool %s schema load failed: %w", tool.ToolID, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("catalog: tool %s schema compile failed: %w", tool.ToolID, err)
	}

	v.compiled[key] = compiled
	return compiled, nil
}
