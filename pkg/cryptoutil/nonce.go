package cryptoutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateNonce returns 24 random bytes (192 bits) encoded as unpadded
// base64url, the handshake nonce format issued by pkg/nonce and signed by
// agents during authentication (spec C2, C3).
func GenerateNonce() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptoutil: nonce generation failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
