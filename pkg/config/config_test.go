package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig(VariantCloudDedicated)

	assert.Equal(t, VariantCloudDedicated, cfg.Variant)
	assert.Equal(t, DefaultDataDomain, cfg.DataDomain)
	assert.Equal(t, DefaultManagementURL, cfg.ManagementURL)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Request)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid core config",
			mutate: func(c *Config) { c.URL = "http://localhost:8181" },
		},
		{
			name:   "missing credentials still validates",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown variant",
			mutate:  func(c *Config) { c.Variant = "serverless" },
			wantErr: "unknown product variant",
		},
		{
			name:    "negative request timeout",
			mutate:  func(c *Config) { c.Timeouts.Request = -time.Second },
			wantErr: "request timeout cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(VariantCore)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestCapabilityPredicates(t *testing.T) {
	tests := []struct {
		name           string
		cfg            Config
		wantData       bool
		wantManagement bool
	}{
		{
			name: "core with url and token has both",
			cfg: Config{
				Variant:   VariantCore,
				URL:       "http://localhost:8181",
				DataToken: "apiv3_secret",
			},
			wantData:       true,
			wantManagement: true,
		},
		{
			name: "enterprise without token has neither",
			cfg: Config{
				Variant: VariantEnterprise,
				URL:     "http://localhost:8181",
			},
		},
		{
			name: "core token without url has neither",
			cfg: Config{
				Variant:   VariantCore,
				DataToken: "apiv3_secret",
			},
		},
		{
			name: "cloud-dedicated with cluster and data token has data only",
			cfg: Config{
				Variant:   VariantCloudDedicated,
				ClusterID: "abc123",
				DataToken: "db_token",
			},
			wantData: true,
		},
		{
			name: "cloud-dedicated with full management set has management only",
			cfg: Config{
				Variant:         VariantCloudDedicated,
				ClusterID:       "abc123",
				AccountID:       "acct-1",
				ManagementToken: "mgmt_token",
			},
			wantManagement: true,
		},
		{
			name: "cloud-dedicated management token without account id has neither",
			cfg: Config{
				Variant:         VariantCloudDedicated,
				ClusterID:       "abc123",
				ManagementToken: "mgmt_token",
			},
		},
		{
			name: "cloud-dedicated with everything has both",
			cfg: Config{
				Variant:         VariantCloudDedicated,
				ClusterID:       "abc123",
				AccountID:       "acct-1",
				DataToken:       "db_token",
				ManagementToken: "mgmt_token",
			},
			wantData:       true,
			wantManagement: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantData, tt.cfg.HasDataCapabilities(), "data capability")
			assert.Equal(t, tt.wantManagement, tt.cfg.HasManagementCapabilities(), "management capability")
		})
	}
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("TSBRIDGE_TEST_TOKEN", "apiv3_from_env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("variant: core\nurl: http://localhost:8181\ndata_token: ${TSBRIDGE_TEST_TOKEN}\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg := NewConfig(VariantCore)
	require.NoError(t, Load(path, cfg))

	assert.Equal(t, VariantCore, cfg.Variant)
	assert.Equal(t, "http://localhost:8181", cfg.URL)
	assert.Equal(t, "apiv3_from_env", cfg.DataToken)
}

func TestLoadMissingFile(t *testing.T) {
	cfg := NewConfig(VariantCore)
	assert.Error(t, Load(filepath.Join(t.TempDir(), "absent.yaml"), cfg))
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := NewConfig(VariantCloudDedicated)
	cfg.ClusterID = "abc123"
	cfg.AccountID = "acct-1"
	cfg.ManagementToken = "mgmt_token"

	path := filepath.Join(t.TempDir(), "tsbridge.yaml")
	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "config files may carry tokens")

	loaded := NewConfig(VariantCore)
	require.NoError(t, Load(path, loaded))
	assert.Equal(t, cfg, loaded)
}
