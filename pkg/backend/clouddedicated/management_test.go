package clouddedicated

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsbridge/tsbridge/pkg/backend"
	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
	"github.com/tsbridge/tsbridge/pkg/clients"
	"github.com/tsbridge/tsbridge/pkg/config"
	"github.com/tsbridge/tsbridge/pkg/logger"
)

func newManagementBackend(t *testing.T, handler http.Handler) backend.Backend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.NewConfig(config.VariantCloudDedicated)
	cfg.ClusterID = "abc123"
	cfg.AccountID = "acct-1"
	cfg.ManagementToken = "mgmt_token"
	cfg.ManagementURL = server.URL

	client := clients.NewHTTPClient(clients.DefaultHTTPConfig(), logger.Get())
	t.Cleanup(func() { _ = client.Close() })

	b, err := New(cfg, client)
	require.NoError(t, err)
	return b
}

func TestNewRejectsSelfHostedVariant(t *testing.T) {
	cfg := config.NewConfig(config.VariantCore)
	client := clients.NewHTTPClient(clients.DefaultHTTPConfig(), logger.Get())
	defer client.Close()

	b, err := New(cfg, client)
	assert.Nil(t, b)
	assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypeConfig), "got %v", err)
}

func TestManagementOnlyBackendHasNilFlightHandle(t *testing.T) {
	b := newManagementBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	assert.Nil(t, b.(*CloudDedicatedBackend).FlightHandle())
}

func TestQueryWithoutFlightHandleIsConfigError(t *testing.T) {
	b := newManagementBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	_, err := b.Query(context.Background(), backend.QueryRequest{SQL: "SELECT 1", Database: "metrics"})
	assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypeConfig), "got %v", err)
}

func TestCreateDatabasePayload(t *testing.T) {
	b := newManagementBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v0/accounts/acct-1/clusters/abc123/databases", r.URL.Path)
		assert.Equal(t, "Bearer mgmt_token", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "metrics", body["name"])
		w.WriteHeader(http.StatusOK)
	}))

	assert.NoError(t, b.CreateDatabase(context.Background(), "metrics"))
}

func TestDeleteDatabaseEscapesName(t *testing.T) {
	b := newManagementBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v0/accounts/acct-1/clusters/abc123/databases/my%2Fdb", r.URL.EscapedPath())
		w.WriteHeader(http.StatusOK)
	}))

	assert.NoError(t, b.DeleteDatabase(context.Background(), "my/db"))
}

func TestGetTokenMapsWireForm(t *testing.T) {
	b := newManagementBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v0/accounts/acct-1/clusters/abc123/tokens/t1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"t1","description":"ci writer","createdAt":"2026-01-01T00:00:00Z"}`))
	}))

	token, err := b.(backend.CloudTokenAPI).GetToken(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", token.ID)
	assert.Equal(t, "ci writer", token.Description)
	assert.Empty(t, token.Secret, "list and get responses never carry the secret")
}

func TestUpdateTokenUsesPatch(t *testing.T) {
	b := newManagementBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v0/accounts/acct-1/clusters/abc123/tokens/t1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"t1","description":"renamed"}`))
	}))

	token, err := b.(backend.CloudTokenAPI).UpdateToken(context.Background(), "t1",
		backend.CloudTokenRequest{Description: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", token.Description)
}

func TestManagementErrorNormalization(t *testing.T) {
	b := newManagementBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"token lacks permission"}`))
	}))

	_, err := b.ListDatabases(context.Background())
	assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypeForbidden), "got %v", err)
	assert.Contains(t, err.Error(), "token lacks permission")
}
