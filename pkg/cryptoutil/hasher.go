// Package cryptoutil provides the signature, digest, MAC, and nonce
// primitives that back the authentication handshake, the audit chain, and
// receipt signing. It deliberately does not canonicalize JSON itself — that
// is pkg/canon's job — it only operates on already-canonicalized bytes.
package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the lower-case hex SHA-256 digest of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
