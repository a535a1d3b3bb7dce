// Package tokens mints and validates the HS256 bearer session tokens issued
// at the end of the auth handshake (spec §3 Session token, §6 Bearer
// format). Grounded on the teacher's identity/token.go TokenManager shape,
// adapted from RSA/KeySet signing to the single shared HMAC key the
// original Python implementation uses (jwt_auth.py).
package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TTL is the fixed session token lifetime (spec §3).
const TTL = 180 * time.Second

// ErrExpired and ErrInvalid are the two stable wire tokens spec §7 names for
// bearer rejection (jwt_expired, jwt_invalid).
var (
	ErrExpired = errors.New("jwt_expired")
	ErrInvalid = errors.New("jwt_invalid")
)

// ErrInvalidToken is retained as an alias of ErrInvalid for callers that
// only need to know "re-authenticate", not which wire token to surface.
var ErrInvalidToken = ErrInvalid

// Claims mirrors the exact field set the original issues (jwt_auth.py's
// issue_jwt claims plus iat/exp), embedded in jwt.RegisteredClaims so
// golang-jwt owns exp/iat validation.
type Claims struct {
	jwt.RegisteredClaims
	AgentID           string `json:"agent_id"`
	Role              string `json:"role"`
	VerificationLevel string `json:"verification_level"`
	RiskTier          string `json:"risk_tier"`
}

// Manager mints and validates session tokens against a single shared HMAC
// signing key, matching INNERI_JWT_SIGNING_KEY.
type Manager struct {
	signingKey []byte
}

// NewManager constructs a Manager over signingKey. The key must be kept
// secret and stable across gateway instances sharing a session space.
func NewManager(signingKey []byte) *Manager {
	return &Manager{signingKey: signingKey}
}

// Issue mints a signed bearer token for agentID with the given role,
// verification level, and risk tier, valid for TTL.
func (m *Manager) Issue(agentID, role, verificationLevel, riskTier string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TTL)),
		},
		AgentID:           agentID,
		Role:              role,
		VerificationLevel: verificationLevel,
		RiskTier:          riskTier,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingKey)
}

// Validate parses and verifies tokenString, rejecting anything expired,
// tampered, or signed with a different algorithm.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalid
		}
		return m.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}
