package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/inneri/gateway/pkg/auth"
	"github.com/inneri/gateway/pkg/catalog"
	"github.com/inneri/gateway/pkg/gateway"
	"github.com/inneri/gateway/pkg/identity"
	"github.com/inneri/gateway/pkg/tokens"
)

// Version is stamped at build time via -ldflags; "dev" otherwise.
var Version = "dev"

// NewRouter wires every endpoint of spec §6 to gw, protecting the bearer
// routes with auth.BearerMiddleware. Grounded on the teacher's
// console/server.go stdlib-mux wiring, adapted to Go 1.22+ method+wildcard
// patterns instead of manual path-prefix parsing.
func NewRouter(gw *gateway.Gateway, tokenManager *tokens.Manager, corsOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("POST /v1/agents/register", handleRegisterAgent(gw))
	mux.HandleFunc("GET /v1/agents/{id}/nonce", handleIssueNonce(gw))
	mux.HandleFunc("POST /v1/agents/auth", handleAuthenticate(gw))
	mux.HandleFunc("GET /v1/tools", handleListTools(gw))

	bearer := auth.BearerMiddleware(tokenManager)
	mux.Handle("POST /v1/secure_call", bearer(http.HandlerFunc(handleSecureCall(gw))))
	mux.Handle("POST /v1/verify/agent", bearer(http.HandlerFunc(handleVerifyAgent(gw))))
	mux.Handle("GET /v1/reputation/{id}", bearer(http.HandlerFunc(handleReputation(gw))))

	var handler http.Handler = mux
	handler = auth.CORSMiddleware(corsOrigins)(handler)
	handler = auth.RequestIDMiddleware(handler)
	return handler
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"service": "inneri-gateway",
		"version": Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

type registerAgentRequest struct {
	AgentID             string `json:"agent_id"`
	DisplayName         string `json:"display_name"`
	PublicKeyEd25519PEM string `json:"public_key_ed25519_pem"`
}

func handleRegisterAgent(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerAgentRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteBadRequest(w, "malformed request body")
			return
		}
		if req.AgentID == "" || req.PublicKeyEd25519PEM == "" {
			WriteBadRequest(w, "agent_id and public_key_ed25519_pem are required")
			return
		}

		err := gw.RegisterAgent(r.Context(), gateway.RegisterAgentInput{
			AgentID:             req.AgentID,
			DisplayName:         req.DisplayName,
			PublicKeyEd25519PEM: req.PublicKeyEd25519PEM,
		})
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"agent_id": req.AgentID, "status": "registered"})
	}
}

func handleIssueNonce(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := r.PathValue("id")
		challenge, err := gw.IssueNonce(r.Context(), agentID)
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"agent_id":     challenge.AgentID,
			"nonce":        challenge.Nonce,
			"expires_unix": challenge.ExpiresUnix,
		})
	}
}

type authenticateRequest struct {
	AgentID   string `json:"agent_id"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

func handleAuthenticate(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authenticateRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteBadRequest(w, "malformed request body")
			return
		}

		result, err := gw.Authenticate(r.Context(), gateway.AuthenticateInput{
			AgentID:         req.AgentID,
			Nonce:           req.Nonce,
			SignatureB64URL: req.Signature,
		})
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": result.AccessToken,
			"ttl_seconds":  result.TTLSeconds,
			"agent_id":     result.Agent.AgentID,
		})
	}
}

// toolSummary is the §9 supplement #2 projection of catalog.Tool that hides
// json_schema and requires_vault_role from unauthenticated list callers.
type toolSummary struct {
	ToolID      string `json:"tool_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Risk        string `json:"risk"`
	Version     int    `json:"version"`
}

func handleListTools(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tools, err := gw.Catalog.ListEnabled(r.Context())
		if err != nil {
			WriteInternal(w, err)
			return
		}
		out := make([]toolSummary, 0, len(tools))
		for _, t := range tools {
			out = append(out, toolSummary{
				ToolID:      t.ToolID,
				Name:        t.Name,
				Description: t.Description,
				Risk:        string(t.Risk),
				Version:     t.Version,
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"tools": out})
	}
}

type toolCallRequest struct {
	ToolID string                 `json:"tool_id"`
	Args   map[string]interface{} `json:"args"`
}

type secureCallRequest struct {
	AgentID    string            `json:"agent_id"`
	Intent     string            `json:"intent"`
	Model      string            `json:"model"`
	Prompt     string            `json:"prompt"`
	Tools      []toolCallRequest `json:"tools"`
	DataScopes []string          `json:"data_scopes"`
}

func handleSecureCall(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			WriteUnauthorized(w, "missing_bearer_token")
			return
		}

		var req secureCallRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteBadRequest(w, "malformed request body")
			return
		}

		tools := make([]gateway.ToolCall, 0, len(req.Tools))
		for _, tc := range req.Tools {
			tools = append(tools, gateway.ToolCall{ToolID: tc.ToolID, Args: tc.Args})
		}

		result, err := gw.SecureCall(r.Context(), principal.AgentID, principal.Role, gateway.SecureCallInput{
			AgentID:    req.AgentID,
			Intent:     req.Intent,
			Model:      req.Model,
			Prompt:     req.Prompt,
			Tools:      tools,
			DataScopes: req.DataScopes,
		})
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"outputs": result.Outputs,
			"receipt": result.Receipt,
			"audit": map[string]interface{}{
				"audit_id":  result.AuditRef.ID,
				"row_hash":  result.AuditRef.RowHash,
				"prev_hash": result.AuditRef.PrevHash,
			},
		})
	}
}

type verifyAgentRequest struct {
	AgentID string `json:"agent_id"`
	Level   string `json:"level"`
	Notes   string `json:"notes"`
}

func handleVerifyAgent(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			WriteUnauthorized(w, "missing_bearer_token")
			return
		}

		var req verifyAgentRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteBadRequest(w, "malformed request body")
			return
		}

		result, err := gw.VerifyAgent(r.Context(), principal.AgentID, principal.Role, gateway.VerifyAgentInput{
			AgentID: req.AgentID,
			Level:   req.Level,
			Notes:   req.Notes,
		})
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"report":  result.Report,
			"receipt": result.Receipt,
		})
	}
}

func handleReputation(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
			WriteUnauthorized(w, "missing_bearer_token")
			return
		}

		agentID := r.PathValue("id")
		score, err := gw.Reputation(r.Context(), agentID)
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"agent_id": agentID, "score": score})
	}
}

// writeGatewayError maps the pkg/gateway (and underlying pkg/identity,
// pkg/catalog) error sentinels to the status codes of spec §6/§7.
func writeGatewayError(w http.ResponseWriter, err error) {
	var policyDenied *gateway.ErrPolicyDenied
	var argsInvalid *gateway.ErrToolArgsInvalid

	switch {
	case errors.Is(err, identity.ErrAgentNotFound),
		errors.Is(err, gateway.ErrAgentKeyNotFound),
		errors.Is(err, catalog.ErrNotFoundOrDisabled):
		WriteNotFound(w, err.Error())
	case errors.Is(err, identity.ErrAgentIDTaken):
		WriteConflict(w, err.Error())
	case errors.Is(err, gateway.ErrInvalidNonce), errors.Is(err, gateway.ErrBadSignature):
		WriteUnauthorized(w, err.Error())
	case errors.Is(err, gateway.ErrTokenAgentMismatch):
		WriteForbidden(w, err.Error())
	case errors.Is(err, gateway.ErrInvalidVerificationLevel):
		WriteBadRequest(w, err.Error())
	case errors.As(err, &policyDenied):
		writeDenied(w, policyDenied)
	case errors.As(err, &argsInvalid):
		writeUnprocessable(w, argsInvalid)
	default:
		WriteInternal(w, err)
	}
}

// writeDenied writes the 403 "denied" problem, embedding the PDP decision
// that caused it (spec §7's `denied` carries decision).
func writeDenied(w http.ResponseWriter, e *gateway.ErrPolicyDenied) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"type":       "https://inneri.dev/errors/403",
		"title":      "Forbidden",
		"status":     http.StatusForbidden,
		"detail":     "denied",
		"decision":   e.Decision,
		"request_id": w.Header().Get("X-Request-ID"),
	})
}

// writeUnprocessable writes the 422 "args_schema_invalid" problem for the
// tool that failed validation (spec §9 resolved OQ1, abort variant).
func writeUnprocessable(w http.ResponseWriter, e *gateway.ErrToolArgsInvalid) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"type":       "https://inneri.dev/errors/422",
		"title":      "Unprocessable Entity",
		"status":     http.StatusUnprocessableEntity,
		"detail":     "args_schema_invalid",
		"tool_id":    e.ToolID,
		"message":    e.Message,
		"request_id": w.Header().Get("X-Request-ID"),
	})
}
