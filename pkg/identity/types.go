// Package identity implements the identity and key store (spec C4): CRUD on
// agents, their Ed25519 public keys, reputation scores, and verification
// history, plus atomic registration across the first three.
package identity

import "time"

// Role is an agent's authorization role.
type Role string

const (
	RoleAgentRuntime Role = "agent_runtime"
	RoleAdmin        Role = "admin"
	RoleVerifier     Role = "verifier"
)

// VerificationLevel tracks how thoroughly an agent's identity has been vetted.
type VerificationLevel string

const (
	VerificationNone  VerificationLevel = "none"
	VerificationBasic VerificationLevel = "basic"
	VerificationFull  VerificationLevel = "full"
)

// RiskTier informs policy decisions about how much latitude an agent gets.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Agent is the identity record created at registration. AgentID is
// immutable once created; Role, VerificationLevel, and RiskTier are mutated
// only by verification and reputation flows, never by the agent itself.
type Agent struct {
	AgentID           string
	DisplayName       string
	Role              Role
	VerificationLevel VerificationLevel
	RiskTier          RiskTier
	CreatedAt         time.Time
}

// AgentKey is an agent's Ed25519 public key, PEM-encoded (SubjectPublicKeyInfo),
// 1:1 with Agent and immutable after registration — key rotation is out of
// scope for this core.
type AgentKey struct {
	AgentID      string
	PublicKeyPEM string
}

// Reputation is a per-agent integer score in [0, 100], clamped on every
// update, initialized to 50 at registration.
type Reputation struct {
	AgentID string
	Score   int
}

// VerificationLevelRaw is the level named on an append-only verification
// event, distinct from the Agent's resulting VerificationLevel: the source
// events are finer-grained than the two-level outcome they produce.
type VerificationLevelRaw string

const (
	VerificationEventBasic       VerificationLevelRaw = "basic"
	VerificationEventTechnical   VerificationLevelRaw = "technical"
	VerificationEventPerformance VerificationLevelRaw = "performance"
	VerificationEventContinuous  VerificationLevelRaw = "continuous"
)

// Verification is an append-only record of a verification event and the
// report computed for it.
type Verification struct {
	AgentID   string
	Level     VerificationLevelRaw
	Report    map[string]interface{}
	Timestamp time.Time
}

const (
	initialReputationScore = 50
	minReputationScore     = 0
	maxReputationScore     = 100
)

func clampReputation(score int) int {
	if score < minReputationScore {
		return minReputationScore
	}
	if score > maxReputationScore {
		return maxReputationScore
	}
	return score
}
