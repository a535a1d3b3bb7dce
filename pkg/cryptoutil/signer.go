package cryptoutil

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// GenerateEd25519KeyPair creates a new Ed25519 key pair for an agent
// onboarding out-of-band, returning the private key and the PEM-encoded
// SubjectPublicKeyInfo block in the form AgentKey.PublicKeyPEM expects.
func GenerateEd25519KeyPair() (ed25519.PrivateKey, string, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("cryptoutil: key generation failed: %w", err)
	}
	pemStr, err := EncodeEd25519PublicKeyPEM(pub)
	if err != nil {
		return nil, "", err
	}
	return priv, pemStr, nil
}

// EncodeEd25519PublicKeyPEM marshals an Ed25519 public key to a PEM
// SubjectPublicKeyInfo block.
func EncodeEd25519PublicKeyPEM(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// SignMessage produces a base64url (unpadded) Ed25519 signature over
// message — the counterpart to VerifySignature, used by test fixtures and
// reference agent clients rather than by the gateway itself (the gateway
// only ever verifies, never holds an agent's private key).
func SignMessage(priv ed25519.PrivateKey, message []byte) string {
	sig := ed25519.Sign(priv, message)
	return base64.RawURLEncoding.EncodeToString(sig)
}

// HMACSign computes an HMAC-SHA256 MAC over data under key, returned as
// unpadded base64url. This is the MVP receipt-signing primitive (spec C2);
// pkg/receipts wraps it with canonical-JSON payload construction.
func HMACSign(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// HMACVerify reports whether signature is a valid HMAC-SHA256 MAC of data
// under key, using a constant-time comparison to avoid timing side channels.
func HMACVerify(key, data []byte, signature string) bool {
	expected := HMACSign(key, data)
	return hmac.Equal([]byte(expected), []byte(signature))
}
