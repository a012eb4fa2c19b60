package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsbridge/tsbridge/pkg/config"

	_ "github.com/tsbridge/tsbridge/pkg/backend/selfhosted"
)

func newCoreConfig(url string) *config.Config {
	cfg := config.NewConfig(config.VariantCore)
	cfg.URL = url
	cfg.DataToken = "apiv3_secret"
	return cfg
}

func TestNewBuildsBackend(t *testing.T) {
	conn := New(newCoreConfig("http://localhost:8181"))
	defer conn.Close()

	b, err := conn.Backend()
	require.NoError(t, err)
	assert.Equal(t, config.VariantCore, b.Variant())
}

func TestNewUnknownVariantLeavesNilBackend(t *testing.T) {
	cfg := config.NewConfig("serverless")
	conn := New(cfg)
	defer conn.Close()

	b, err := conn.Backend()
	assert.Nil(t, b)
	assert.Error(t, err)
}

func TestCapabilityPredicates(t *testing.T) {
	conn := New(newCoreConfig("http://localhost:8181"))
	defer conn.Close()
	assert.True(t, conn.HasDataCapabilities())
	assert.True(t, conn.HasManagementCapabilities())

	cfg := config.NewConfig(config.VariantCore)
	cfg.URL = "http://localhost:8181"
	bare := New(cfg)
	defer bare.Close()
	assert.False(t, bare.HasDataCapabilities())
	assert.False(t, bare.HasManagementCapabilities())
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ping", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	conn := New(newCoreConfig(server.URL))
	defer conn.Close()

	result := conn.Ping(context.Background())
	assert.True(t, result.OK)
	assert.Empty(t, result.Message)
}

func TestPingFailSoft(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	conn := New(newCoreConfig(server.URL))
	defer conn.Close()

	result := conn.Ping(context.Background())
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Message)
}

func TestPingFailSoftWithoutBackend(t *testing.T) {
	conn := New(config.NewConfig("serverless"))
	defer conn.Close()

	result := conn.Ping(context.Background())
	assert.False(t, result.OK)
}

func TestHealthStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"pass","version":"3.0.1"}`))
	}))
	defer server.Close()

	conn := New(newCoreConfig(server.URL))
	defer conn.Close()

	result := conn.HealthStatus(context.Background())
	assert.Equal(t, "pass", result.Status)
	assert.Equal(t, "3.0.1", result.Details["version"])
}

func TestHealthStatusBare200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	conn := New(newCoreConfig(server.URL))
	defer conn.Close()

	result := conn.HealthStatus(context.Background())
	assert.Equal(t, "pass", result.Status)
}

func TestHealthStatusFailSoft(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	conn := New(newCoreConfig(server.URL))
	defer conn.Close()

	result := conn.HealthStatus(context.Background())
	assert.Equal(t, "fail", result.Status)
	assert.NotEmpty(t, result.Message)
}
