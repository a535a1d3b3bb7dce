package receipts_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inneri/gateway/pkg/canon"
	"github.com/inneri/gateway/pkg/cryptoutil"
	"github.com/inneri/gateway/pkg/receipts"
)

func TestIssueCallReceipt_SignatureVerifiable(t *testing.T) {
	key := []byte("test-receipt-key")
	issuer := receipts.NewIssuer(key)

	ts := time.Unix(1700000000, 0).UTC()
	decision := map[string]interface{}{"allow": true, "mode": "normal"}
	outputs := []map[string]interface{}{{"tool_id": "echo", "output": map[string]interface{}{"text": "hi"}}}
	r, err := issuer.IssueCallReceipt("agent-1", "say hi", "normal", ts, decision, outputs)
	require.NoError(t, err)
	require.NotEmpty(t, r.Signature)

	unsigned := r
	unsigned.Signature = ""
	canonical, err := canon.JCS(unsigned)
	require.NoError(t, err)
	require.True(t, cryptoutil.HMACVerify(key, canonical, r.Signature))
}

func TestIssueCallReceipt_DifferentOutputsDifferentSignature(t *testing.T) {
	issuer := receipts.NewIssuer([]byte("key"))
	ts := time.Unix(1700000000, 0).UTC()

	decision := map[string]interface{}{"allow": true, "mode": "normal"}
	r1, err := issuer.IssueCallReceipt("agent-1", "intent", "normal", ts, decision, map[string]interface{}{"v": 1})
	require.NoError(t, err)
	r2, err := issuer.IssueCallReceipt("agent-1", "intent", "normal", ts, decision, map[string]interface{}{"v": 2})
	require.NoError(t, err)

	require.NotEqual(t, r1.OutputsHash, r2.OutputsHash)
	require.NotEqual(t, r1.Signature, r2.Signature)
}

func TestIssueVerifyReceipt(t *testing.T) {
	issuer := receipts.NewIssuer([]byte("key"))
	ts := time.Unix(1700000000, 0).UTC()

	r, err := issuer.IssueVerifyReceipt("agent-1", "basic", ts)
	require.NoError(t, err)
	require.Equal(t, "agent-1", r.AgentID)
	require.Equal(t, "basic", r.Level)
	require.NotEmpty(t, r.Signature)
}
