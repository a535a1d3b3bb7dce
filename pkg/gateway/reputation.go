package gateway

import (
	"context"
	"errors"

	"github.com/inneri/gateway/pkg/identity"
)

// Reputation returns agentID's current score, treating an agent with no
// reputation row as score 0 rather than an error (main.py:get_reputation's
// `rep.score if rep else 0`).
func (g *Gateway) Reputation(ctx context.Context, agentID string) (int, error) {
	if _, err := g.Identity.GetAgent(ctx, agentID); err != nil {
		return 0, err
	}
	rep, err := g.Identity.GetReputation(ctx, agentID)
	if errors.Is(err, identity.ErrAgentNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rep.Score, nil
}
