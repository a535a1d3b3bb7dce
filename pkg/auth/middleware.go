package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/inneri/gateway/pkg/tokens"
)

// writeUnauthorized writes a minimal RFC 7807 Problem Detail body. Kept
// local (rather than importing pkg/api) so this middleware has no
// dependency on the handler package that in turn depends on it.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"type":       "https://inneri.dev/errors/401",
		"title":      "Unauthorized",
		"status":     http.StatusUnauthorized,
		"detail":     detail,
		"request_id": GetRequestID(r.Context()),
	})
}

type principalKey struct{}

// Principal is the authenticated caller attached to the request context by
// BearerMiddleware, carrying exactly the claims jwt_auth.py's require_auth
// exposes to handlers.
type Principal struct {
	AgentID           string
	Role              string
	VerificationLevel string
	RiskTier          string
}

// BearerMiddleware extracts and validates the `Authorization: Bearer <jwt>`
// header with manager, rejecting with a 401 RFC 7807 Problem Detail on any
// failure, mirroring require_auth's outcomes: detail is
// missing_bearer_token for an absent or non-Bearer header, jwt_expired for
// an expired token, and jwt_invalid for anything else (malformed, bad
// signature, wrong algorithm).
func BearerMiddleware(manager *tokens.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
				writeUnauthorized(w, r, "missing_bearer_token")
				return
			}
			raw := strings.TrimSpace(header[len("bearer "):])

			claims, err := manager.Validate(raw)
			if err != nil {
				if errors.Is(err, tokens.ErrExpired) {
					writeUnauthorized(w, r, "jwt_expired")
				} else {
					writeUnauthorized(w, r, "jwt_invalid")
				}
				return
			}

			p := Principal{
				AgentID:           claims.AgentID,
				Role:              claims.Role,
				VerificationLevel: claims.VerificationLevel,
				RiskTier:          claims.RiskTier,
			}
			ctx := context.WithValue(r.Context(), principalKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext retrieves the Principal attached by BearerMiddleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// CanActOnAgent reports whether p may act on behalf of targetAgentID —
// either itself, or a privileged role. admin and verifier are both
// unrestricted (spec §9 OQ4, matching main.py's
// token_claims.get("role") not in ("admin", "verifier") gate).
func (p Principal) CanActOnAgent(targetAgentID string) bool {
	if p.AgentID == targetAgentID {
		return true
	}
	return p.Role == "admin" || p.Role == "verifier"
}
