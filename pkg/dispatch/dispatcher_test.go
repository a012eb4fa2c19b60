package dispatch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsbridge/tsbridge/pkg/backend"
	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
	"github.com/tsbridge/tsbridge/pkg/config"
	"github.com/tsbridge/tsbridge/pkg/connection"

	_ "github.com/tsbridge/tsbridge/pkg/backend/clouddedicated"
	_ "github.com/tsbridge/tsbridge/pkg/backend/selfhosted"
)

func newCoreDispatcher(t *testing.T, handler http.Handler) *Dispatcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.NewConfig(config.VariantCore)
	cfg.URL = server.URL
	cfg.DataToken = "apiv3_secret"

	conn := connection.New(cfg)
	t.Cleanup(func() { _ = conn.Close() })
	return New(conn)
}

func newCloudManagementDispatcher(t *testing.T, handler http.Handler) *Dispatcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.NewConfig(config.VariantCloudDedicated)
	cfg.ClusterID = "abc123"
	cfg.AccountID = "acct-1"
	cfg.ManagementToken = "mgmt_token"
	cfg.ManagementURL = server.URL

	conn := connection.New(cfg)
	t.Cleanup(func() { _ = conn.Close() })
	return New(conn)
}

func writeJSON(t *testing.T, w http.ResponseWriter, value interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(value))
}

func TestExecuteQuery(t *testing.T) {
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/query_sql", r.URL.Path)
		assert.Equal(t, "Token apiv3_secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "metrics", body["db"])
		assert.Equal(t, "SELECT 1", body["q"])
		assert.Equal(t, "json", body["format"])

		writeJSON(t, w, []map[string]interface{}{{"value": 1.0}})
	}))

	result, err := d.ExecuteQuery(context.Background(), "SELECT 1", "metrics", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, 1.0, result.Rows[0]["value"])
}

func TestExecuteQueryCSVPassthrough(t *testing.T) {
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/csv", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("value\n1\n"))
	}))

	result, err := d.ExecuteQuery(context.Background(), "SELECT 1", "metrics", QueryOptions{
		Format: backend.FormatCSV,
	})
	require.NoError(t, err)
	assert.Nil(t, result.Rows)
	assert.Equal(t, "value\n1\n", string(result.Raw))
	assert.Equal(t, "text/csv", result.ContentType)
}

func TestExecuteQueryWithoutDataCredentials(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	t.Cleanup(server.Close)

	cfg := config.NewConfig(config.VariantCore)
	cfg.URL = server.URL

	conn := connection.New(cfg)
	t.Cleanup(func() { _ = conn.Close() })
	d := New(conn)

	_, err := d.ExecuteQuery(context.Background(), "SELECT 1", "metrics", QueryOptions{})
	assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypeCapability), "got %v", err)
	assert.Zero(t, requests.Load(), "capability failures must not reach the network")
}

func TestExecuteQueryNormalizesBackendError(t *testing.T) {
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	}))

	_, err := d.ExecuteQuery(context.Background(), "SELECT 1", "metrics", QueryOptions{})
	assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypeUnauthorized), "got %v", err)
	assert.Contains(t, err.Error(), "invalid token")
}

func TestWriteLineProtocol(t *testing.T) {
	payload := "cpu,host=a usage=0.5 1700000000000000000"

	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/write_lp", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "metrics", q.Get("db"))
		assert.Equal(t, "ns", q.Get("precision"))
		assert.Equal(t, "true", q.Get("accept_partial"))
		assert.Equal(t, "false", q.Get("no_sync"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, payload, string(body))
		w.WriteHeader(http.StatusNoContent)
	}))

	err := d.WriteLineProtocol(context.Background(), []byte(payload), "metrics", WriteOptions{
		Precision:     "ns",
		AcceptPartial: true,
	})
	assert.NoError(t, err)
}

func TestWriteLineProtocolPayloadTooLarge(t *testing.T) {
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))

	err := d.WriteLineProtocol(context.Background(), []byte("cpu usage=1"), "metrics", WriteOptions{})
	assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypePayloadTooLarge), "got %v", err)
}

func TestListDatabases(t *testing.T) {
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/configure/database", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		writeJSON(t, w, []string{"metrics", "logs"})
	}))

	dbs, err := d.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Database{{Name: "metrics"}, {Name: "logs"}}, dbs)
}

func TestListDatabasesWithoutBackendIsEmpty(t *testing.T) {
	conn := connection.New(config.NewConfig("serverless"))
	t.Cleanup(func() { _ = conn.Close() })

	dbs, err := New(conn).ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Database{}, dbs)
}

func TestListDatabasesMalformedShape(t *testing.T) {
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"items": []string{"metrics"}})
	}))

	_, err := d.ListDatabases(context.Background())
	assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypeMalformedResponse), "got %v", err)
}

func TestCreateDatabase(t *testing.T) {
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/configure/database", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "metrics", body["db"])
		w.WriteHeader(http.StatusOK)
	}))

	assert.NoError(t, d.CreateDatabase(context.Background(), "metrics"))
}

func TestCreateDatabaseConflict(t *testing.T) {
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"database \"metrics\" already exists"}`))
	}))

	err := d.CreateDatabase(context.Background(), "metrics")
	assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypeConflict), "got %v", err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCreateDatabaseEmptyName(t *testing.T) {
	var requests atomic.Int64
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))

	err := d.CreateDatabase(context.Background(), "")
	assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypeInvalidArgument), "got %v", err)
	assert.Zero(t, requests.Load())
}

func TestDeleteDatabase(t *testing.T) {
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "metrics", r.URL.Query().Get("db"))
		w.WriteHeader(http.StatusOK)
	}))

	assert.NoError(t, d.DeleteDatabase(context.Background(), "metrics"))
}

func TestGetMeasurements(t *testing.T) {
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body["q"], "information_schema.tables")

		writeJSON(t, w, []map[string]interface{}{
			{"table_name": "cpu"},
			{"table_name": "mem"},
		})
	}))

	measurements, err := d.GetMeasurements(context.Background(), "metrics")
	require.NoError(t, err)
	assert.Equal(t, []Measurement{{Name: "cpu"}, {Name: "mem"}}, measurements)
}

func TestGetMeasurementSchema(t *testing.T) {
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]interface{}{
			{"column_name": "time", "data_type": "Timestamp(Nanosecond, None)"},
			{"column_name": "usage", "data_type": "Float64"},
		})
	}))

	schema, err := d.GetMeasurementSchema(context.Background(), "cpu", "metrics")
	require.NoError(t, err)
	assert.Equal(t, "cpu", schema.Measurement)
	assert.Equal(t, []Column{
		{Name: "time", Type: "Timestamp(Nanosecond, None)"},
		{Name: "usage", Type: "Float64"},
	}, schema.Columns)
}

func TestGetMeasurementSchemaDistinguishesEmptyFromMissing(t *testing.T) {
	// Column queries answer empty; the existence check decides the outcome.
	handler := func(exists bool) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

			if strings.Contains(body["q"], "information_schema.columns") {
				writeJSON(t, w, []map[string]interface{}{})
				return
			}
			if exists {
				writeJSON(t, w, []map[string]interface{}{{"table_name": "cpu"}})
				return
			}
			writeJSON(t, w, []map[string]interface{}{})
		})
	}

	t.Run("existing measurement with no columns", func(t *testing.T) {
		d := newCoreDispatcher(t, handler(true))
		schema, err := d.GetMeasurementSchema(context.Background(), "cpu", "metrics")
		require.NoError(t, err)
		assert.Empty(t, schema.Columns)
	})

	t.Run("missing measurement", func(t *testing.T) {
		d := newCoreDispatcher(t, handler(false))
		_, err := d.GetMeasurementSchema(context.Background(), "cpu", "metrics")
		assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypeNotFound), "got %v", err)
	})
}

func TestListServerTokens(t *testing.T) {
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body["q"], "system.tokens")
		assert.Contains(t, body["q"], "permissions = '*:*:*'")

		writeJSON(t, w, []map[string]interface{}{
			{"id": 1.0, "name": "_admin", "created_at": "2026-01-01T00:00:00Z"},
		})
	}))

	tokens, err := d.ListAdminTokens(context.Background())
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "1", tokens[0].ID)
	assert.Equal(t, "_admin", tokens[0].Name)
}

func TestCreateAdminTokenRevealsSecretOnce(t *testing.T) {
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/configure/token/admin", r.URL.Path)
		writeJSON(t, w, map[string]string{"name": "_admin", "token": "apiv3_new_secret"})
	}))

	token, err := d.CreateAdminToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "_admin", token.Name)
	assert.Equal(t, "apiv3_new_secret", token.Secret)
}

func TestServerTokenAdministrationUnsupportedOnCloud(t *testing.T) {
	var requests atomic.Int64
	d := newCloudManagementDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))

	_, err := d.CreateAdminToken(context.Background())
	assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypeUnsupported), "got %v", err)

	_, err = d.ListAdminTokens(context.Background())
	assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypeUnsupported), "got %v", err)

	_, err = d.ListResourceTokens(context.Background())
	assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypeUnsupported), "got %v", err)
	assert.Zero(t, requests.Load())
}

func TestCloudListTokens(t *testing.T) {
	d := newCloudManagementDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v0/accounts/acct-1/clusters/abc123/tokens", r.URL.Path)
		assert.Equal(t, "Bearer mgmt_token", r.Header.Get("Authorization"))

		writeJSON(t, w, []map[string]interface{}{
			{"id": "t1", "description": "ci writer", "createdAt": "2026-01-01T00:00:00Z"},
		})
	}))

	tokens, err := d.ListTokens(context.Background())
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "t1", tokens[0].ID)
	assert.Equal(t, "ci writer", tokens[0].Name)
}

func TestCloudTokensRequireManagementCredentials(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	t.Cleanup(server.Close)

	cfg := config.NewConfig(config.VariantCloudDedicated)
	cfg.ClusterID = "abc123"
	cfg.DataToken = "db_token"
	cfg.ManagementURL = server.URL

	conn := connection.New(cfg)
	t.Cleanup(func() { _ = conn.Close() })

	_, err := New(conn).ListTokens(context.Background())
	assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypeCapability), "got %v", err)
	assert.Zero(t, requests.Load())
}

func TestCloudTokensUnsupportedOnCore(t *testing.T) {
	d := newCoreDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	_, err := d.ListTokens(context.Background())
	assert.True(t, bridgeerrors.IsType(err, bridgeerrors.ErrorTypeUnsupported), "got %v", err)
}

func TestCloudCreateToken(t *testing.T) {
	d := newCloudManagementDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v0/accounts/acct-1/clusters/abc123/tokens", r.URL.Path)

		var body backend.CloudTokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ci writer", body.Description)

		writeJSON(t, w, map[string]interface{}{
			"id":          "t1",
			"description": "ci writer",
			"accessToken": "secret_once",
		})
	}))

	token, err := d.CreateToken(context.Background(), backend.CloudTokenRequest{
		Description: "ci writer",
		Permissions: []backend.TokenPermission{{Action: "write", Resource: "metrics"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", token.ID)
	assert.Equal(t, "secret_once", token.Secret)
}
