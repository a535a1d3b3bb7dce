package cryptoutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEd25519_SignAndVerifyRoundTrip(t *testing.T) {
	priv, pubPEM, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	message := []byte(`{"agent_id":"agent-1","nonce":"abc"}`)
	sig := SignMessage(priv, message)

	ok, err := VerifySignature(pubPEM, message, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEd25519_TamperedMessageFailsVerify(t *testing.T) {
	priv, pubPEM, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	sig := SignMessage(priv, []byte("original"))

	ok, err := VerifySignature(pubPEM, []byte("tampered"), sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEd25519_WrongKeyFailsVerify(t *testing.T) {
	_, pubPEM, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	otherPriv, _, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	message := []byte("hello")
	sig := SignMessage(otherPriv, message)

	ok, err := VerifySignature(pubPEM, message, sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestParseEd25519PublicKeyPEM_RejectsMalformedPEM(t *testing.T) {
	_, err := ParseEd25519PublicKeyPEM("not a pem block")
	require.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestParseEd25519PublicKeyPEM_RejectsWrongKeyType(t *testing.T) {
	// A well-formed SubjectPublicKeyInfo for a non-Ed25519 key (ECDSA P-256)
	// must fail closed, not panic.
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&ecKey.PublicKey)
	require.NoError(t, err)
	ecPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	_, err = ParseEd25519PublicKeyPEM(ecPEM)
	require.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestVerifySignature_RejectsBadSignatureEncoding(t *testing.T) {
	_, pubPEM, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	_, err = VerifySignature(pubPEM, []byte("data"), "not-valid-base64url!!")
	require.Error(t, err)
}

func TestVerifySignature_RejectsWrongSignatureLength(t *testing.T) {
	_, pubPEM, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	short := "AAAA"
	_, err = VerifySignature(pubPEM, []byte("data"), short)
	require.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestHMACSignAndVerify(t *testing.T) {
	key := []byte("receipt-signing-key")
	data := []byte(`{"tool_id":"echo","status":"ok"}`)

	sig := HMACSign(key, data)
	require.NotEmpty(t, sig)
	require.True(t, HMACVerify(key, data, sig))
}

func TestHMACVerify_RejectsTamperedData(t *testing.T) {
	key := []byte("receipt-signing-key")
	sig := HMACSign(key, []byte("original"))

	require.False(t, HMACVerify(key, []byte("tampered"), sig))
}

func TestHMACVerify_RejectsWrongKey(t *testing.T) {
	data := []byte("payload")
	sig := HMACSign([]byte("key-a"), data)

	require.False(t, HMACVerify([]byte("key-b"), data, sig))
}

func TestDigest_StableAndHexEncoded(t *testing.T) {
	d1 := Digest([]byte("hello"))
	d2 := Digest([]byte("hello"))
	require.Equal(t, d1, d2)
	require.Len(t, d1, 64) // SHA-256 hex is 64 chars
}

func TestDigest_DifferentInputsDiffer(t *testing.T) {
	require.NotEqual(t, Digest([]byte("a")), Digest([]byte("b")))
}

func TestGenerateNonce_UniqueAndWellFormed(t *testing.T) {
	n1, err := GenerateNonce()
	require.NoError(t, err)
	n2, err := GenerateNonce()
	require.NoError(t, err)

	require.NotEqual(t, n1, n2)
	require.NotEmpty(t, n1)
}
