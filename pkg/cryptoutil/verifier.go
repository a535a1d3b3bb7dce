package cryptoutil

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

// ErrInvalidPublicKey is returned when an agent's registered public key
// cannot be parsed as a PEM-encoded Ed25519 SubjectPublicKeyInfo block.
var ErrInvalidPublicKey = errors.New("cryptoutil: invalid or malformed ed25519 public key")

// ErrSignatureMismatch is wrapped in the error VerifySignature returns for a
// signature of the wrong length. A well-formed signature that does not
// verify yields (false, nil) instead, and a bad base64url encoding yields a
// separate encoding error.
var ErrSignatureMismatch = errors.New("cryptoutil: signature does not verify")

// ParseEd25519PublicKeyPEM decodes a PEM-encoded SubjectPublicKeyInfo block
// and returns the embedded Ed25519 public key. It fails closed: a missing PEM
// block, a key of the wrong algorithm, or a key of the wrong size are all
// reported as ErrInvalidPublicKey rather than panicking or zero-valuing.
func ParseEd25519PublicKeyPEM(pemStr string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("%w: not a PEM block", ErrInvalidPublicKey)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ed25519 key", ErrInvalidPublicKey)
	}
	if len(edPub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: wrong key size", ErrInvalidPublicKey)
	}
	return edPub, nil
}

// VerifySignature verifies a base64url (unpadded) Ed25519 signature over
// message using the given PEM-encoded SubjectPublicKeyInfo public key. Any
// malformed input — bad PEM, wrong key type, bad signature encoding, wrong
// signature length — is reported as an error rather than silently failing
// the boolean check, so callers cannot mistake a malformed request for a
// merely-invalid one.
func VerifySignature(pubKeyPEM string, message []byte, signatureB64URL string) (bool, error) {
	pub, err := ParseEd25519PublicKeyPEM(pubKeyPEM)
	if err != nil {
		return false, err
	}
	sig, err := base64.RawURLEncoding.DecodeString(signatureB64URL)
	if err != nil {
		return false, fmt.Errorf("cryptoutil: invalid signature encoding: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("%w: wrong signature size", ErrSignatureMismatch)
	}
	return ed25519.Verify(pub, message, sig), nil
}
