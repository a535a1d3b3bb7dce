package gateway

import (
	"context"
	"errors"

	"github.com/inneri/gateway/pkg/audit"
	"github.com/inneri/gateway/pkg/catalog"
	"github.com/inneri/gateway/pkg/pdp"
)

// ErrTokenAgentMismatch is the wire token of spec §7's token_agent_mismatch
// authorization failure.
var ErrTokenAgentMismatch = errors.New("token_agent_mismatch")

// ErrPolicyDenied carries the PDP decision that caused a 403 (spec §4.6,
// main.py's `{"denied": True, "decision": decision}` detail).
type ErrPolicyDenied struct {
	Decision pdp.Decision
}

func (e *ErrPolicyDenied) Error() string { return "denied" }

// ErrToolArgsInvalid aborts the whole call at the first schema-invalid
// tool (spec §9 resolved OQ1, the abort variant).
type ErrToolArgsInvalid struct {
	ToolID  string
	Message string
}

func (e *ErrToolArgsInvalid) Error() string { return "args_schema_invalid: " + e.ToolID }

// ToolCall is one requested tool invocation (schemas.py's ToolCall).
type ToolCall struct {
	ToolID string
	Args   map[string]interface{}
}

// SecureCallInput mirrors schemas.py's SecureCallRequest.
type SecureCallInput struct {
	AgentID    string
	Intent     string
	Model      string
	Prompt     string
	Tools      []ToolCall
	DataScopes []string
}

// ToolResult is one entry of the secure_call response's outputs array. Args
// echoes nothing back; exactly one of Output, Blocked (with Reason), or
// ToolError is set.
type ToolResult struct {
	ToolID   string                 `json:"tool_id"`
	Output   map[string]interface{} `json:"output,omitempty"`
	Blocked  bool                   `json:"blocked,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
	ToolError string                `json:"error,omitempty"`
}

// SecureCallResult is the secure_call response body.
type SecureCallResult struct {
	Outputs  []ToolResult
	Receipt  interface{}
	AuditRef audit.Entry
}

// SecureCall implements the full policy-mediated dispatch pipeline (spec
// §4.6-§4.9, main.py:secure_call): authorization check, PDP decision,
// per-tool schema validation (abort-on-first-422), sandbox-mode gating,
// execution, reputation update, and receipt/audit emission.
func (g *Gateway) SecureCall(ctx context.Context, callerAgentID, callerRole string, in SecureCallInput) (SecureCallResult, error) {
	agent, err := g.Identity.GetAgent(ctx, in.AgentID)
	if err != nil {
		return SecureCallResult{}, err
	}

	if callerAgentID != in.AgentID && callerRole != "admin" && callerRole != "verifier" {
		return SecureCallResult{}, ErrTokenAgentMismatch
	}

	tools := make([]catalog.Tool, 0, len(in.Tools))
	toolInputs := make([]pdp.ToolInput, 0, len(in.Tools))
	for _, tc := range in.Tools {
		t, err := g.Catalog.Get(ctx, tc.ToolID)
		if err != nil {
			return SecureCallResult{}, err
		}
		tools = append(tools, t)
		toolInputs = append(toolInputs, pdp.ToolInput{ToolID: t.ToolID, Risk: string(t.Risk)})
	}

	decision := g.PDP.Decide(ctx, pdp.Input{
		Agent: pdp.AgentInput{
			AgentID:           agent.AgentID,
			VerificationLevel: string(agent.VerificationLevel),
			RiskTier:          string(agent.RiskTier),
			Role:              string(agent.Role),
		},
		Request: pdp.RequestInput{
			Intent:     in.Intent,
			Tools:      toolInputs,
			DataScopes: in.DataScopes,
		},
	}).Normalize()

	if !decision.Allow {
		_, _ = g.Audit.Append(ctx, strPtr(in.AgentID), "secure_call.deny", in, map[string]interface{}{"decision": decision})
		return SecureCallResult{}, &ErrPolicyDenied{Decision: decision}
	}

	outputs := make([]ToolResult, 0, len(tools))
	for _, tool := range tools {
		var args map[string]interface{}
		for _, tc := range in.Tools {
			if tc.ToolID == tool.ToolID {
				args = tc.Args
				break
			}
		}

		if err := g.Validator.Validate(tool, args); err != nil {
			var schemaErr *catalog.ErrArgsSchemaInvalid
			msg := err.Error()
			if errors.As(err, &schemaErr) {
				msg = schemaErr.Message
			}
			_, _ = g.Audit.Append(ctx, strPtr(in.AgentID), "tool.args_invalid",
				map[string]interface{}{"tool_id": tool.ToolID, "args": args},
				map[string]interface{}{"error": msg})
			return SecureCallResult{}, &ErrToolArgsInvalid{ToolID: tool.ToolID, Message: msg}
		}

		if decision.Mode == pdp.ModeSandbox && tool.Risk != catalog.RiskLow {
			outputs = append(outputs, ToolResult{ToolID: tool.ToolID, Blocked: true, Reason: "sandbox_mode"})
			continue
		}

		out, err := g.Executors.Execute(ctx, string(decision.Mode), tool.ToolID, args)
		if err != nil {
			outputs = append(outputs, ToolResult{ToolID: tool.ToolID, ToolError: err.Error()})
			continue
		}
		outputs = append(outputs, ToolResult{ToolID: tool.ToolID, Output: out})
	}

	if decision.Mode == pdp.ModeNormal {
		if _, err := g.Identity.AdjustReputation(ctx, in.AgentID, 1); err != nil {
			return SecureCallResult{}, err
		}
	}

	receipt, err := g.Receipts.IssueCallReceipt(in.AgentID, in.Intent, string(decision.Mode), now(), decision, outputs)
	if err != nil {
		return SecureCallResult{}, err
	}

	entry, err := g.Audit.Append(ctx, strPtr(in.AgentID), "secure_call.run", in,
		map[string]interface{}{"mode": decision.Mode, "decision": decision, "outputs": outputs, "receipt": receipt})
	if err != nil {
		return SecureCallResult{}, err
	}

	return SecureCallResult{Outputs: outputs, Receipt: receipt, AuditRef: entry}, nil
}
