package identity

import (
	"context"
	"errors"
)

// Sentinel errors surfaced as the stable wire tokens of spec §7.
var (
	ErrAgentNotFound    = errors.New("agent_not_found")
	ErrAgentKeyNotFound = errors.New("agent_key_not_found")
	ErrAgentIDTaken     = errors.New("agent_id_taken")
)

// Store is the C4 identity & key store contract: CRUD on Agent, AgentKey,
// Reputation, and Verification, with registration atomic across the first
// three so a partial state after failure is never observable.
type Store interface {
	// Register creates agent, its key, and an initial Reputation of 50 as a
	// single atomic unit. Returns ErrAgentIDTaken if agent.AgentID already
	// exists; on that failure, no partial state is left behind.
	Register(ctx context.Context, agent Agent, key AgentKey) error

	GetAgent(ctx context.Context, agentID string) (Agent, error)
	GetAgentKey(ctx context.Context, agentID string) (AgentKey, error)

	// UpdateAgent persists a mutated Agent (role/verification_level/risk_tier
	// changes from verification flows). AgentID itself is never changed.
	UpdateAgent(ctx context.Context, agent Agent) error

	GetReputation(ctx context.Context, agentID string) (Reputation, error)
	// AdjustReputation applies delta to the agent's score, clamps to [0,100],
	// and returns the resulting score. The clamp is always applied by the
	// writer holding the row, satisfying last-writer-wins semantics.
	AdjustReputation(ctx context.Context, agentID string, delta int) (int, error)

	AppendVerification(ctx context.Context, v Verification) error
}
