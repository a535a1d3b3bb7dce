// Package catalog implements the tool catalog and argument validator (spec
// C5): metadata for every callable tool, including the JSON-schema argument
// contract, and lookup that hides disabled or unknown tools from clients
// and from the invocation pipeline alike.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

// Risk is a tool's risk classification, used by the invocation pipeline to
// decide whether a sandbox-mode call may execute it.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// ErrNotFoundOrDisabled is returned for an unknown tool_id or one whose
// Enabled flag is false — the two cases are indistinguishable to callers
// by design (spec §4.5, §7).
var ErrNotFoundOrDisabled = errors.New("tool_not_found_or_disabled")

// Tool is a catalog entry: the argument contract any call must satisfy, plus
// the metadata the pipeline needs to route and gate execution.
type Tool struct {
	ToolID            string
	Name              string
	Description       string
	Risk              Risk
	JSONSchema        json.RawMessage
	RequiresVaultRole string
	Enabled           bool
	Version           int
}

// NeedsBrokeredCredentials reports whether this tool must obtain just-in-time
// database credentials (spec §4.9, pg_whoami) before it can execute.
func (t Tool) NeedsBrokeredCredentials() bool {
	return t.RequiresVaultRole != ""
}

// Store is the C5 tool catalog contract.
type Store interface {
	// Get returns the tool, or ErrNotFoundOrDisabled if it does not exist or
	// is disabled.
	Get(ctx context.Context, toolID string) (Tool, error)
	// ListEnabled returns every enabled tool, sorted by tool_id.
	ListEnabled(ctx context.Context) ([]Tool, error)
	// Upsert registers or replaces a tool definition.
	Upsert(ctx context.Context, tool Tool) error
}

// MemoryStore is the default in-process catalog, seeded at construction with
// the built-in tools of spec §4.9 (echo, time_now, math_eval, pg_whoami).
// Grounded on the teacher's mutex-guarded map pattern (pkg/identity/keyset.go).
type MemoryStore struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewMemoryStore returns a MemoryStore pre-seeded with the four built-in
// tool definitions described in spec §4.9.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{tools: make(map[string]Tool)}
	for _, t := range defaultTools() {
		s.tools[t.ToolID] = t
	}
	return s
}

// DefaultTools returns the four built-in tool definitions of spec §4.9, for
// callers seeding a PostgresStore on first boot.
func DefaultTools() []Tool { return defaultTools() }

func (s *MemoryStore) Get(_ context.Context, toolID string) (Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tools[toolID]
	if !ok || !t.Enabled {
		return Tool{}, ErrNotFoundOrDisabled
	}
	return t, nil
}

func (s *MemoryStore) ListEnabled(_ context.Context) ([]Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Tool, 0, len(s.tools))
	for _, t := range s.tools {
		if t.Enabled {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, tool Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[tool.ToolID] = tool
	return nil
}

// defaultTools is the seed catalog matching original_source's run_tool/pg_whoami
// set, with the argument schemas main.py's jsonschema.validate enforces.
func defaultTools() []Tool {
	return []Tool{
		{
			ToolID:      "echo",
			Name:        "Echo",
			Description: "Returns the given text unchanged.",
			Risk:        RiskLow,
			JSONSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"text": {"type": "string"}},
				"required": ["text"],
				"additionalProperties": false
			}`),
			Enabled: true,
			Version: 1,
		},
		{
			ToolID:      "time_now",
			Name:        "Current time",
			Description: "Returns the current UTC time in ISO-8601.",
			Risk:        RiskLow,
			JSONSchema: json.RawMessage(`{
				"type": "object",
				"additionalProperties": false
			}`),
			Enabled: true,
			Version: 1,
		},
		{
			ToolID:      "math_eval",
			Name:        "Math evaluator",
			Description: "Evaluates a restricted arithmetic expression.",
			Risk:        RiskMedium,
			JSONSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"expression": {"type": "string", "minLength": 1}},
				"required": ["expression"],
				"additionalProperties": false
			}`),
			Enabled: true,
			Version: 1,
		},
		{
			ToolID:            "pg_whoami",
			Name:              "Postgres whoami",
			Description:       "Opens a brokered Postgres connection and reports current_user.",
			Risk:              RiskHigh,
			RequiresVaultRole: "inneri-readonly",
			JSONSchema: json.RawMessage(`{
				"type": "object",
				"additionalProperties": false
			}`),
			Enabled: true,
			Version: 1,
		},
	}
}
