package api_test

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inneri/gateway/pkg/api"
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

type stubPDP struct{ decision pdp.Decision }

func (s stubPDP) Decide(context.Context, pdp.Input) pdp.Decision { return s.decision }

func newTestServer(t *testing.T, decision pdp.Decision) (*httptest.Server, *tokens.Manager) {
	t.Helper()
	tokenManager := tokens.NewManager([]byte("test-signing-key"))
	gw := gateway.New(
		identity.NewMemoryStore(),
		catalog.NewMemoryStore(),
		catalog.NewValidator(),
		nonce.NewInMemoryRegistry(),
		stubPDP{decision: decision},
		executor.NewRegistry(nil),
		audit.NewMemoryStore(),
		tokenManager,
		receipts.NewIssuer([]byte("receipt-key")),
	)
	return httptest.NewServer(api.NewRouter(gw, tokenManager, nil)), tokenManager
}

func registerAndAuthenticate(t *testing.T, srv *httptest.Server, agentID string) (string, ed25519.PrivateKey) {
	t.Helper()
	priv, pubPEM, err := cryptoutil.GenerateEd25519KeyPair()
	require.NoError(t, err)

	registerBody := fmt.Sprintf(`{"agent_id":%q,"display_name":"Agent","public_key_ed25519_pem":%q}`, agentID, pubPEM)
	resp, err := http.Post(srv.URL+"/v1/agents/register", "application/json", strings.NewReader(registerBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/agents/" + agentID + "/nonce")
	require.NoError(t, err)
	var nonceResp struct {
		Nonce string `json:"nonce"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&nonceResp))
	resp.Body.Close()

	message, err := canon.JCS(struct {
		AgentID string `json:"agent_id"`
		Nonce   string `json:"nonce"`
	}{AgentID: agentID, Nonce: nonceResp.Nonce})
	require.NoError(t, err)
	sig := cryptoutil.SignMessage(priv, message)

	authBody := fmt.Sprintf(`{"agent_id":%q,"nonce":%q,"signature":%q}`, agentID, nonceResp.Nonce, sig)
	resp, err = http.Post(srv.URL+"/v1/agents/auth", "application/json", strings.NewReader(authBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var authResp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&authResp))
	resp.Body.Close()

	return authResp.AccessToken, priv
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, pdp.Decision{Allow: true})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, true, body["ok"])
	require.Equal(t, "inneri-gateway", body["service"])
}

func TestListTools_ExcludesSchemaAndVaultRole(t *testing.T) {
	srv, _ := newTestServer(t, pdp.Decision{Allow: true})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/tools")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, string(body["tools"]), "echo")
	require.NotContains(t, string(body["tools"]), "json_schema")
	require.NotContains(t, string(body["tools"]), "requires_vault_role")
}

func TestRegisterAuthenticateSecureCall_FullFlow(t *testing.T) {
	srv, _ := newTestServer(t, pdp.Decision{Allow: true, Mode: pdp.ModeNormal})
	defer srv.Close()

	token, _ := registerAndAuthenticate(t, srv, "agent-http-1")

	callBody := `{"agent_id":"agent-http-1","intent":"say hi","tools":[{"tool_id":"echo","args":{"text":"hi"}}],"data_scopes":["public"]}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/secure_call", strings.NewReader(callBody))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body["receipt"])

	auditBody, ok := body["audit"].(map[string]interface{})
	require.True(t, ok, "response must include an audit object")
	require.NotNil(t, auditBody["audit_id"])
	require.NotEmpty(t, auditBody["row_hash"])
}

func TestSecureCall_MissingBearerRejected(t *testing.T) {
	srv, _ := newTestServer(t, pdp.Decision{Allow: true})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/secure_call", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSecureCall_PolicyDeniedReturns403WithDecision(t *testing.T) {
	srv, _ := newTestServer(t, pdp.Decision{Allow: false, Mode: pdp.ModeDeny, Reasons: []string{"blocked"}})
	defer srv.Close()

	token, _ := registerAndAuthenticate(t, srv, "agent-http-2")

	callBody := `{"agent_id":"agent-http-2","intent":"risky","tools":[{"tool_id":"echo","args":{"text":"hi"}}]}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/secure_call", strings.NewReader(callBody))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body["decision"])
}

func TestRegisterAgent_DuplicateReturns409(t *testing.T) {
	srv, _ := newTestServer(t, pdp.Decision{Allow: true})
	defer srv.Close()

	_, _, pubPEM := mustKeypair(t)
	body := fmt.Sprintf(`{"agent_id":"dup-agent","display_name":"A","public_key_ed25519_pem":%q}`, pubPEM)

	resp, err := http.Post(srv.URL+"/v1/agents/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/v1/agents/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestReputation_RequiresBearer(t *testing.T) {
	srv, _ := newTestServer(t, pdp.Decision{Allow: true})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/reputation/agent-http-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func mustKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey, string) {
	t.Helper()
	priv, pubPEM, err := cryptoutil.GenerateEd25519KeyPair()
	require.NoError(t, err)
	return priv.Public().(ed25519.PublicKey), priv, pubPEM
}
