package broker_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inneri/gateway/pkg/broker"
)

func TestHTTPClient_DatabaseCreds(t *testing.T) {
	var gotToken, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Vault-Token")
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{
			"lease_id":       "lease-123",
			"lease_duration": 3600,
			"data":           map[string]any{"username": "v-role-abc", "password": "s3cr3t"},
		})
	}))
	defer srv.Close()

	client := broker.NewHTTPClient(srv.URL, "my-token")
	creds, err := client.DatabaseCreds(context.Background(), "inneri-readonly")
	require.NoError(t, err)
	require.Equal(t, "my-token", gotToken)
	require.Equal(t, "/v1/database/creds/inneri-readonly", gotPath)
	require.Equal(t, "v-role-abc", creds.Username)
	require.Equal(t, "s3cr3t", creds.Password)
	require.Equal(t, "lease-123", creds.LeaseID)
	require.Equal(t, 3600, creds.LeaseDuration)
}

func TestHTTPClient_NonOKStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := broker.NewHTTPClient(srv.URL, "tok")
	_, err := client.DatabaseCreds(context.Background(), "role")
	require.Error(t, err)
}
