package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/inneri/gateway/pkg/canon"
	"github.com/inneri/gateway/pkg/cryptoutil"
	"github.com/inneri/gateway/pkg/identity"
)

// ErrAgentIDTaken, ErrAgentNotFound, ErrAgentKeyNotFound re-export the
// identity sentinels so callers (pkg/api) need only import pkg/gateway.
var (
	ErrAgentIDTaken     = identity.ErrAgentIDTaken
	ErrAgentNotFound    = identity.ErrAgentNotFound
	ErrAgentKeyNotFound = identity.ErrAgentKeyNotFound
)

// ErrInvalidNonce and ErrBadSignature are the wire tokens of spec §7's
// Authentication error class.
var (
	ErrInvalidNonce = errors.New("invalid_or_expired_nonce")
	ErrBadSignature = errors.New("bad_signature")
)

// RegisterAgentInput mirrors schemas.py's AgentRegisterRequest.
type RegisterAgentInput struct {
	AgentID            string
	DisplayName        string
	PublicKeyEd25519PEM string
}

// RegisterAgent creates the agent, its key, and an initial reputation of 50
// as one atomic unit, then audits the successful registration as
// agent.register; a failed registration is not audited
// (main.py:register_agent).
func (g *Gateway) RegisterAgent(ctx context.Context, in RegisterAgentInput) error {
	agent := identity.Agent{
		AgentID:           in.AgentID,
		DisplayName:       in.DisplayName,
		Role:              identity.RoleAgentRuntime,
		VerificationLevel: identity.VerificationNone,
		RiskTier:          identity.RiskLow,
	}
	key := identity.AgentKey{AgentID: in.AgentID, PublicKeyPEM: in.PublicKeyEd25519PEM}

	if err := g.Identity.Register(ctx, agent, key); err != nil {
		return err
	}

	_, _ = g.Audit.Append(ctx, strPtr(in.AgentID), "agent.register", in, map[string]interface{}{"ok": true})
	return nil
}

// NonceChallenge mirrors AgentNonceResponse.
type NonceChallenge struct {
	AgentID     string
	Nonce       string
	ExpiresUnix int64
}

// IssueNonce returns a fresh handshake challenge for agentID, confirming the
// agent exists first (main.py:get_nonce).
func (g *Gateway) IssueNonce(ctx context.Context, agentID string) (NonceChallenge, error) {
	if _, err := g.Identity.GetAgent(ctx, agentID); err != nil {
		return NonceChallenge{}, err
	}
	n, exp, err := g.Nonces.Issue(agentID)
	if err != nil {
		return NonceChallenge{}, fmt.Errorf("gateway: issue nonce: %w", err)
	}
	return NonceChallenge{AgentID: agentID, Nonce: n, ExpiresUnix: exp}, nil
}

// AuthenticateInput mirrors AgentAuthRequest.
type AuthenticateInput struct {
	AgentID         string
	Nonce           string
	SignatureB64URL string
}

// AuthenticateResult mirrors the agent_auth response body.
type AuthenticateResult struct {
	AccessToken string
	TTLSeconds  int
	Agent       identity.Agent
}

// nonceSignedMessage is the exact payload the agent signs: canonical_json({agent_id, nonce}).
type nonceSignedMessage struct {
	AgentID string `json:"agent_id"`
	Nonce   string `json:"nonce"`
}

// Authenticate consumes the issued nonce, verifies the Ed25519 signature
// over canonical_json({agent_id, nonce}), and mints a session token
// (main.py:agent_auth). The nonce is consumed (single-use) regardless of
// whether the signature subsequently verifies, matching the original's
// sequencing of the nonce check before the signature check.
func (g *Gateway) Authenticate(ctx context.Context, in AuthenticateInput) (AuthenticateResult, error) {
	agent, err := g.Identity.GetAgent(ctx, in.AgentID)
	if err != nil {
		return AuthenticateResult{}, err
	}
	key, err := g.Identity.GetAgentKey(ctx, in.AgentID)
	if err != nil {
		return AuthenticateResult{}, err
	}

	if !g.Nonces.Consume(in.AgentID, in.Nonce, now()) {
		return AuthenticateResult{}, ErrInvalidNonce
	}

	message, err := canon.JCS(nonceSignedMessage{AgentID: in.AgentID, Nonce: in.Nonce})
	if err != nil {
		return AuthenticateResult{}, fmt.Errorf("gateway: canonicalize auth message: %w", err)
	}

	valid, err := cryptoutil.VerifySignature(key.PublicKeyPEM, message, in.SignatureB64URL)
	if err != nil || !valid {
		return AuthenticateResult{}, ErrBadSignature
	}

	token, err := g.Tokens.Issue(agent.AgentID, string(agent.Role), string(agent.VerificationLevel), string(agent.RiskTier))
	if err != nil {
		return AuthenticateResult{}, fmt.Errorf("gateway: issue session token: %w", err)
	}

	_, _ = g.Audit.Append(ctx, strPtr(in.AgentID), "agent.auth", in, map[string]interface{}{"ok": true})

	return AuthenticateResult{
		AccessToken: token,
		TTLSeconds:  180,
		Agent:       agent,
	}, nil
}
