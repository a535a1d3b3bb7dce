package pdp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inneri/gateway/pkg/pdp"
)

func TestHTTPClient_AllowPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"allow": true, "mode": "normal", "ttl_seconds": 60, "reasons": []string{}},
		})
	}))
	defer srv.Close()

	client := pdp.NewHTTPClient(srv.URL, false)
	d := client.Decide(context.Background(), pdp.Input{})
	require.True(t, d.Allow)
	require.Equal(t, pdp.ModeNormal, d.Mode)
}

func TestHTTPClient_NoResultDegradesToDeny(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	client := pdp.NewHTTPClient(srv.URL, false)
	d := client.Decide(context.Background(), pdp.Input{})
	require.False(t, d.Allow)
	require.Equal(t, pdp.ModeDeny, d.Mode)
	require.Contains(t, d.Reasons, "opa_no_result")
}

func TestHTTPClient_UnreachableFailsClosedByDefault(t *testing.T) {
	client := pdp.NewHTTPClient("http://127.0.0.1:1", false)
	d := client.Decide(context.Background(), pdp.Input{})
	require.False(t, d.Allow)
	require.Equal(t, pdp.ModeDeny, d.Mode)
	require.Len(t, d.Reasons, 1)
	require.Contains(t, d.Reasons[0], "opa_unavailable:")
}

func TestHTTPClient_UnreachableFailsOpenWhenConfigured(t *testing.T) {
	client := pdp.NewHTTPClient("http://127.0.0.1:1", true)
	d := client.Decide(context.Background(), pdp.Input{})
	require.True(t, d.Allow)
	require.Equal(t, pdp.ModeSandbox, d.Mode)
	require.Equal(t, 30, d.TTLSeconds)
	require.Contains(t, d.Reasons[0], "opa_unavailable_fail_open:")
}

func TestHTTPClient_NonOKStatusFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := pdp.NewHTTPClient(srv.URL, false)
	d := client.Decide(context.Background(), pdp.Input{})
	require.False(t, d.Allow)
	require.Contains(t, d.Reasons[0], "http_500")
}

func TestDecision_NormalizeFillsDefaults(t *testing.T) {
	d := pdp.Decision{Allow: true}.Normalize()
	require.Equal(t, pdp.ModeNormal, d.Mode)
	require.NotNil(t, d.Reasons)
}
