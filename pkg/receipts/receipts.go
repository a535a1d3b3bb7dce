// Package receipts builds and signs the small HMAC-attested receipts
// returned from secure_call and verify/agent, grounded on
// original_source/.../security.py's sign_receipt (HMAC-SHA256 over the
// receipt's canonical JSON, explicitly documented there as an MVP stand-in
// for Ed25519/PKI signing).
package receipts

import (
	"time"

	"github.com/inneri/gateway/pkg/canon"
	"github.com/inneri/gateway/pkg/cryptoutil"
)

// CallReceipt is the receipt attached to a secure_call response (spec §4.8,
// main.py:secure_call's receipt dict). It commits to outputs via a hash
// rather than embedding them, exactly as the original does, keeping the
// signed envelope small and stable regardless of per-tool output size.
type CallReceipt struct {
	TsUnix      int64       `json:"ts_unix"`
	AgentID     string      `json:"agent_id"`
	Intent      string      `json:"intent"`
	Mode        string      `json:"mode"`
	Decision    interface{} `json:"decision"`
	OutputsHash string      `json:"outputs_hash"`
	Signature   string      `json:"signature,omitempty"`
}

// VerifyReceipt is the receipt attached to a verify/agent response
// (main.py:verify_agent's receipt dict).
type VerifyReceipt struct {
	AgentID   string `json:"agent_id"`
	Level     string `json:"level"`
	TsUnix    int64  `json:"ts_unix"`
	Signature string `json:"signature,omitempty"`
}

// Signer is the narrow HMAC-signing interface pkg/receipts depends on,
// deliberately decoupled from cryptoutil so an Ed25519 or KMS-backed signer
// can replace it later without changing the receipt envelope (spec §9 OQ2).
type Signer interface {
	Sign(key, canonicalJSON []byte) string
}

// hmacSigner adapts cryptoutil.HMACSign to the Signer interface.
type hmacSigner struct{}

func (hmacSigner) Sign(key, canonicalJSON []byte) string {
	return cryptoutil.HMACSign(key, canonicalJSON)
}

// Issuer signs receipts under a single shared signing key
// (INNERI_RECEIPT_SIGNING_KEY).
type Issuer struct {
	key    []byte
	signer Signer
}

// NewIssuer constructs an Issuer over the default HMAC-SHA256 signer.
func NewIssuer(signingKey []byte) *Issuer {
	return &Issuer{key: signingKey, signer: hmacSigner{}}
}

// NewIssuerWithSigner constructs an Issuer over a custom Signer, for tests
// or a future asymmetric signing backend.
func NewIssuerWithSigner(signingKey []byte, signer Signer) *Issuer {
	return &Issuer{key: signingKey, signer: signer}
}

// IssueCallReceipt signs a secure_call receipt. The signature commits to
// every field except itself, matching the original's pattern of computing
// the signature over the receipt dict before the signature key is added.
// outputs is hashed (not embedded) via the same canonicalizer and digest
// the audit chain uses, so outputs_hash is independently recomputable.
func (i *Issuer) IssueCallReceipt(agentID, intent, mode string, ts time.Time, decision interface{}, outputs interface{}) (CallReceipt, error) {
	outputsCanonical, err := canon.JCS(outputs)
	if err != nil {
		return CallReceipt{}, err
	}

	r := CallReceipt{
		TsUnix:      ts.Unix(),
		AgentID:     agentID,
		Intent:      intent,
		Mode:        mode,
		Decision:    decision,
		OutputsHash: cryptoutil.Digest(outputsCanonical),
	}
	canonical, err := canon.JCS(r)
	if err != nil {
		return CallReceipt{}, err
	}
	r.Signature = i.signer.Sign(i.key, canonical)
	return r, nil
}

// IssueVerifyReceipt signs a verify/agent receipt.
func (i *Issuer) IssueVerifyReceipt(agentID, level string, ts time.Time) (VerifyReceipt, error) {
	r := VerifyReceipt{AgentID: agentID, Level: level, TsUnix: ts.Unix()}
	canonical, err := canon.JCS(r)
	if err != nil {
		return VerifyReceipt{}, err
	}
	r.Signature = i.signer.Sign(i.key, canonical)
	return r, nil
}
