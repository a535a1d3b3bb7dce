package gateway_test

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inneri/gateway/pkg/audit"
	"github.com/inneri/gateway/pkg/canon"
	"github.com/inneri/gateway/pkg/catalog"
	"github.com/inneri/gateway/pkg/cryptoutil"
	"github.com/inneri/gateway/pkg/executor"
	"github.com/inneri/gateway/pkg/gateway"
	"github.com/inneri/gateway/pkg/identity"
	"github.com/inneri/gateway/pkg/nonce"
	"github.com/inneri/gateway/pkg/pdp"
	"github.com/inneri/gateway/pkg/receipts"
	"github.com/inneri/gateway/pkg/tokens"
)

// fakePDP is a scripted pdp.Client for pipeline tests.
type fakePDP struct {
	decision pdp.Decision
}

func (f fakePDP) Decide(context.Context, pdp.Input) pdp.Decision { return f.decision }

func newTestGateway(t *testing.T, decision pdp.Decision) (*gateway.Gateway, ed25519.PrivateKey, string) {
	t.Helper()
	priv, pubPEM, err := cryptoutil.GenerateEd25519KeyPair()
	require.NoError(t, err)

	g := gateway.New(
		identity.NewMemoryStore(),
		catalog.NewMemoryStore(),
		catalog.NewValidator(),
		nonce.NewInMemoryRegistry(),
		fakePDP{decision: decision},
		executor.NewRegistry(nil),
		audit.NewMemoryStore(),
		tokens.NewManager([]byte("test-key")),
		receipts.NewIssuer([]byte("receipt-key")),
	)
	return g, priv, pubPEM
}

func registerAndAuth(t *testing.T, g *gateway.Gateway, priv ed25519.PrivateKey, pubPEM string) gateway.AuthenticateResult {
	t.Helper()
	ctx := context.Background()

	err := g.RegisterAgent(ctx, gateway.RegisterAgentInput{
		AgentID:             "agent-1",
		DisplayName:         "Agent One",
		PublicKeyEd25519PEM: pubPEM,
	})
	require.NoError(t, err)

	challenge, err := g.IssueNonce(ctx, "agent-1")
	require.NoError(t, err)

	message, err := canonAuthMessage("agent-1", challenge.Nonce)
	require.NoError(t, err)
	sig := cryptoutil.SignMessage(priv, message)

	result, err := g.Authenticate(ctx, gateway.AuthenticateInput{
		AgentID:         "agent-1",
		Nonce:           challenge.Nonce,
		SignatureB64URL: sig,
	})
	require.NoError(t, err)
	return result
}

func TestRegisterNonceAuthenticate_Succeeds(t *testing.T) {
	g, priv, pubPEM := newTestGateway(t, pdp.Decision{Allow: true, Mode: pdp.ModeNormal})
	result := registerAndAuth(t, g, priv, pubPEM)
	require.NotEmpty(t, result.AccessToken)
	require.Equal(t, "agent-1", result.Agent.AgentID)
}

func TestRegisterAgent_DuplicateRejected(t *testing.T) {
	g, _, pubPEM := newTestGateway(t, pdp.Decision{Allow: true})
	ctx := context.Background()
	in := gateway.RegisterAgentInput{AgentID: "agent-1", DisplayName: "A", PublicKeyEd25519PEM: pubPEM}
	require.NoError(t, g.RegisterAgent(ctx, in))
	err := g.RegisterAgent(ctx, in)
	require.ErrorIs(t, err, gateway.ErrAgentIDTaken)
}

func TestAuthenticate_ReplayedNonceRejected(t *testing.T) {
	g, priv, pubPEM := newTestGateway(t, pdp.Decision{Allow: true})
	ctx := context.Background()
	require.NoError(t, g.RegisterAgent(ctx, gateway.RegisterAgentInput{AgentID: "agent-1", DisplayName: "A", PublicKeyEd25519PEM: pubPEM}))

	challenge, err := g.IssueNonce(ctx, "agent-1")
	require.NoError(t, err)
	message, err := canonAuthMessage("agent-1", challenge.Nonce)
	require.NoError(t, err)
	sig := cryptoutil.SignMessage(priv, message)

	_, err = g.Authenticate(ctx, gateway.AuthenticateInput{AgentID: "agent-1", Nonce: challenge.Nonce, SignatureB64URL: sig})
	require.NoError(t, err)

	_, err = g.Authenticate(ctx, gateway.AuthenticateInput{AgentID: "agent-1", Nonce: challenge.Nonce, SignatureB64URL: sig})
	require.ErrorIs(t, err, gateway.ErrInvalidNonce)
}

func TestSecureCall_AllowedRunsAndAppendsReceipt(t *testing.T) {
	g, priv, pubPEM := newTestGateway(t, pdp.Decision{Allow: true, Mode: pdp.ModeNormal})
	auth := registerAndAuth(t, g, priv, pubPEM)
	_ = auth

	result, err := g.SecureCall(context.Background(), "agent-1", "agent_runtime", gateway.SecureCallInput{
		AgentID: "agent-1",
		Intent:  "say hi",
		Tools:   []gateway.ToolCall{{ToolID: "echo", Args: map[string]interface{}{"text": "hi"}}},
	})
	require.NoError(t, err)
	require.Len(t, result.Outputs, 1)
	require.Equal(t, "echo", result.Outputs[0].ToolID)
	require.Equal(t, "hi", result.Outputs[0].Output["text"])
	require.NotNil(t, result.Receipt)
}

func TestSecureCall_PolicyDenyAppendsAuditNoReputationChange(t *testing.T) {
	g, priv, pubPEM := newTestGateway(t, pdp.Decision{Allow: false, Mode: pdp.ModeDeny, Reasons: []string{"blocked"}})
	registerAndAuth(t, g, priv, pubPEM)

	_, err := g.SecureCall(context.Background(), "agent-1", "agent_runtime", gateway.SecureCallInput{
		AgentID: "agent-1",
		Intent:  "do something risky",
		Tools:   []gateway.ToolCall{{ToolID: "echo", Args: map[string]interface{}{"text": "hi"}}},
	})
	var denyErr *gateway.ErrPolicyDenied
	require.ErrorAs(t, err, &denyErr)
	require.False(t, denyErr.Decision.Allow)

	entries, err := g.Audit.List(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.Equal(t, "secure_call.deny", entries[len(entries)-1].Action)

	score, err := g.Reputation(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Equal(t, 50, score)
}

func TestSecureCall_SchemaInvalidAbortsWholeCall(t *testing.T) {
	g, priv, pubPEM := newTestGateway(t, pdp.Decision{Allow: true, Mode: pdp.ModeNormal})
	registerAndAuth(t, g, priv, pubPEM)

	_, err := g.SecureCall(context.Background(), "agent-1", "agent_runtime", gateway.SecureCallInput{
		AgentID: "agent-1",
		Intent:  "test",
		Tools: []gateway.ToolCall{
			{ToolID: "echo", Args: map[string]interface{}{}}, // missing required "text"
			{ToolID: "time_now", Args: map[string]interface{}{}},
		},
	})
	var schemaErr *gateway.ErrToolArgsInvalid
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, "echo", schemaErr.ToolID)
}

func TestSecureCall_SandboxModeBlocksNonLowRiskTool(t *testing.T) {
	g, priv, pubPEM := newTestGateway(t, pdp.Decision{Allow: true, Mode: pdp.ModeSandbox})
	registerAndAuth(t, g, priv, pubPEM)

	result, err := g.SecureCall(context.Background(), "agent-1", "agent_runtime", gateway.SecureCallInput{
		AgentID: "agent-1",
		Intent:  "test",
		Tools:   []gateway.ToolCall{{ToolID: "math_eval", Args: map[string]interface{}{"expression": "1+1"}}},
	})
	require.NoError(t, err)
	require.Len(t, result.Outputs, 1)
	require.True(t, result.Outputs[0].Blocked)
	require.Equal(t, "sandbox_mode", result.Outputs[0].Reason)
}

func TestSecureCall_TokenAgentMismatchRejected(t *testing.T) {
	g, priv, pubPEM := newTestGateway(t, pdp.Decision{Allow: true})
	registerAndAuth(t, g, priv, pubPEM)

	_, err := g.SecureCall(context.Background(), "someone-else", "agent_runtime", gateway.SecureCallInput{
		AgentID: "agent-1",
		Intent:  "test",
	})
	require.ErrorIs(t, err, gateway.ErrTokenAgentMismatch)
}

func TestVerifyAgent_UpgradesLevelAndSignsReceipt(t *testing.T) {
	g, priv, pubPEM := newTestGateway(t, pdp.Decision{Allow: true})
	registerAndAuth(t, g, priv, pubPEM)

	result, err := g.VerifyAgent(context.Background(), "agent-1", "agent_runtime", gateway.VerifyAgentInput{
		AgentID: "agent-1",
		Level:   "basic",
	})
	require.NoError(t, err)
	require.Equal(t, "agent-1", result.Report["agent_id"])
	require.NotNil(t, result.Receipt)

	agent, err := g.Identity.GetAgent(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Equal(t, identity.VerificationBasic, agent.VerificationLevel)
}

func TestReputation_DefaultsToInitialScore(t *testing.T) {
	g, priv, pubPEM := newTestGateway(t, pdp.Decision{Allow: true})
	registerAndAuth(t, g, priv, pubPEM)

	score, err := g.Reputation(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Equal(t, 50, score)
}

func canonAuthMessage(agentID, nonceValue string) ([]byte, error) {
	type msg struct {
		AgentID string `json:"agent_id"`
		Nonce   string `json:"nonce"`
	}
	return canon.JCS(msg{AgentID: agentID, Nonce: nonceValue})
}
