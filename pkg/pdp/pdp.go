// Package pdp implements the policy client (spec C6): a single synchronous
// RPC per secure call to an external policy decision point, with a
// configurable fail-open/fail-closed degradation policy when the PDP is
// unreachable or returns a malformed response.
package pdp

import "context"

// Mode is the per-call execution regime a Decision selects.
type Mode string

const (
	ModeNormal  Mode = "normal"
	ModeSandbox Mode = "sandbox"
	ModeDeny    Mode = "deny"
)

// AgentInput is the agent-identity portion of the PDP request (spec §4.6).
type AgentInput struct {
	AgentID            string `json:"agent_id"`
	VerificationLevel  string `json:"verification_level"`
	RiskTier           string `json:"risk_tier"`
	Role               string `json:"role"`
}

// ToolInput is one tool's policy-relevant projection within a request.
type ToolInput struct {
	ToolID string `json:"tool_id"`
	Risk   string `json:"risk"`
}

// RequestInput is the call-specific portion of the PDP request.
type RequestInput struct {
	Intent     string      `json:"intent"`
	Tools      []ToolInput `json:"tools"`
	DataScopes []string    `json:"data_scopes"`
}

// Input is the full structured PDP input, posted as {"input": Input}.
type Input struct {
	Agent   AgentInput   `json:"agent"`
	Request RequestInput `json:"request"`
}

// Decision is the PDP's verdict for a secure call (spec §4.6, §3).
type Decision struct {
	Allow      bool     `json:"allow"`
	Mode       Mode     `json:"mode"`
	TTLSeconds int      `json:"ttl_seconds"`
	Reasons    []string `json:"reasons"`
}

// Normalize fills in the defaults spec §9 supplement #5 describes: a PDP
// response missing mode/ttl_seconds/reasons still yields a fully populated
// Decision rather than a zero-valued one.
func (d Decision) Normalize() Decision {
	if d.Mode == "" {
		if d.Allow {
			d.Mode = ModeNormal
		} else {
			d.Mode = ModeDeny
		}
	}
	if d.Reasons == nil {
		d.Reasons = []string{}
	}
	return d
}

// denyDecision synthesizes a fail-closed verdict carrying reason.
func denyDecision(reason string) Decision {
	return Decision{Allow: false, Mode: ModeDeny, TTLSeconds: 0, Reasons: []string{reason}}
}

// failOpenDecision synthesizes the fail-open degradation verdict (spec §4.6):
// allow, but demoted to sandbox mode with a short TTL.
func failOpenDecision(reason string) Decision {
	return Decision{Allow: true, Mode: ModeSandbox, TTLSeconds: 30, Reasons: []string{reason}}
}

// Client is the C6 policy client contract. Implementations never return an
// error from Decide: every failure mode (timeout, connection refused,
// malformed response) is folded into a synthesized Decision per the
// configured fail-open/fail-closed policy, so callers always have a verdict
// to act on.
type Client interface {
	Decide(ctx context.Context, input Input) Decision
}
