package gateway

import (
	"context"
	"errors"

	"github.com/inneri/gateway/pkg/identity"
)

// ErrInvalidVerificationLevel is spec §7's invalid_verification_level wire
// token.
var ErrInvalidVerificationLevel = errors.New("invalid_verification_level")

var validVerificationLevels = map[string]identity.VerificationLevelRaw{
	"basic":       identity.VerificationEventBasic,
	"technical":   identity.VerificationEventTechnical,
	"performance": identity.VerificationEventPerformance,
	"continuous":  identity.VerificationEventContinuous,
}

// VerifyAgentInput mirrors schemas.py's VerifyAgentRequest.
type VerifyAgentInput struct {
	AgentID string
	Level   string
	Notes   string
}

// VerifyAgentResult is the verify/agent response body (spec §9 supplement
// #3: report + signed receipt).
type VerifyAgentResult struct {
	Report  map[string]interface{}
	Receipt interface{}
}

// VerifyAgent runs the MVP verification flow: builds a report snapshotting
// the agent's current state, upgrades verification_level, appends a
// Verification record, and signs a receipt (main.py:verify_agent).
func (g *Gateway) VerifyAgent(ctx context.Context, callerAgentID, callerRole string, in VerifyAgentInput) (VerifyAgentResult, error) {
	agent, err := g.Identity.GetAgent(ctx, in.AgentID)
	if err != nil {
		return VerifyAgentResult{}, err
	}

	if callerAgentID != in.AgentID && callerRole != "admin" && callerRole != "verifier" {
		return VerifyAgentResult{}, ErrTokenAgentMismatch
	}

	rawLevel, ok := validVerificationLevels[in.Level]
	if !ok {
		return VerifyAgentResult{}, ErrInvalidVerificationLevel
	}

	rep, repErr := g.Identity.GetReputation(ctx, in.AgentID)
	hasReputation := repErr == nil

	_, keyErr := g.Identity.GetAgentKey(ctx, in.AgentID)
	hasKey := keyErr == nil

	var reputationScore interface{}
	if hasReputation {
		reputationScore = rep.Score
	}

	report := map[string]interface{}{
		"agent_id":                   agent.AgentID,
		"display_name":               agent.DisplayName,
		"role":                       agent.Role,
		"verification_level_before":  agent.VerificationLevel,
		"risk_tier":                  agent.RiskTier,
		"reputation_score":           reputationScore,
		"checks": map[string]interface{}{
			"has_key":        hasKey,
			"has_reputation": hasReputation,
		},
		"notes": in.Notes,
	}

	newLevel := identity.VerificationFull
	if in.Level == "basic" {
		newLevel = identity.VerificationBasic
	}
	agent.VerificationLevel = newLevel
	if err := g.Identity.UpdateAgent(ctx, agent); err != nil {
		return VerifyAgentResult{}, err
	}

	if err := g.Identity.AppendVerification(ctx, identity.Verification{
		AgentID: in.AgentID,
		Level:   rawLevel,
		Report:  report,
	}); err != nil {
		return VerifyAgentResult{}, err
	}

	receipt, err := g.Receipts.IssueVerifyReceipt(in.AgentID, in.Level, now())
	if err != nil {
		return VerifyAgentResult{}, err
	}

	_, _ = g.Audit.Append(ctx, strPtr(in.AgentID), "agent.verify", in,
		map[string]interface{}{"report": report, "receipt": receipt})

	return VerifyAgentResult{Report: report, Receipt: receipt}, nil
}
