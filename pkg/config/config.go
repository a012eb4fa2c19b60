// Package config defines the process-lifetime configuration for tsbridge.
// A single Config value describes which backend deployment variant is active
// and which endpoints and credentials belong to it. The value is loaded once
// at startup and treated as immutable thereafter; fields that do not apply to
// the active variant are carried but ignored, not rejected.
//
// Example usage:
//
//	cfg := config.NewConfig(config.VariantCore)
//	cfg.URL = "http://localhost:8181"
//	cfg.DataToken = os.Getenv("TSBRIDGE_TOKEN")
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"net/url"
	"time"
)

// ProductVariant identifies one of the three backend deployment modes.
type ProductVariant string

const (
	// VariantCore is a self-hosted InfluxDB 3 Core server.
	VariantCore ProductVariant = "core"
	// VariantEnterprise is a self-hosted InfluxDB 3 Enterprise server.
	VariantEnterprise ProductVariant = "enterprise"
	// VariantCloudDedicated is a multi-tenant InfluxDB 3 Cloud-Dedicated cluster.
	VariantCloudDedicated ProductVariant = "cloud-dedicated"
)

// Known reports whether v is one of the supported variants.
func (v ProductVariant) Known() bool {
	switch v {
	case VariantCore, VariantEnterprise, VariantCloudDedicated:
		return true
	}
	return false
}

// SelfHosted reports whether v is served by a single self-hosted server.
func (v ProductVariant) SelfHosted() bool {
	return v == VariantCore || v == VariantEnterprise
}

// Config is the immutable process-lifetime configuration. Exactly one variant
// is active per process; the remaining fields are interpreted relative to it.
type Config struct {
	// Variant selects the active backend deployment mode
	Variant ProductVariant `yaml:"variant" json:"variant"`

	// URL is the base URL of a self-hosted server (core/enterprise)
	URL string `yaml:"url" json:"url"`

	// ClusterID qualifies the cloud-dedicated data-plane host
	ClusterID string `yaml:"cluster_id" json:"cluster_id"`

	// AccountID scopes cloud-dedicated management-plane requests
	AccountID string `yaml:"account_id" json:"account_id"`

	// DataToken authenticates query and write requests. For self-hosted
	// variants this is the server's single token.
	DataToken string `yaml:"data_token" json:"data_token"`

	// ManagementToken authenticates cloud-dedicated management requests
	ManagementToken string `yaml:"management_token" json:"management_token"`

	// DataDomain is the cloud-dedicated data-plane domain suffix
	DataDomain string `yaml:"data_domain" json:"data_domain"`

	// ManagementURL is the cloud-dedicated control-plane base URL
	ManagementURL string `yaml:"management_url" json:"management_url"`

	// Timeouts define transport-level timeout durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Observability settings for logging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// TimeoutConfig contains transport timeout settings.
type TimeoutConfig struct {
	// Request timeout for individual operations
	Request time.Duration `yaml:"request" json:"request"`
	// Connection timeout for establishing connections
	Connection time.Duration `yaml:"connection" json:"connection"`
	// Idle timeout before closing inactive connections
	Idle time.Duration `yaml:"idle" json:"idle"`
}

// ObservabilityConfig contains logging settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// Development enables console encoding and colored levels
	Development bool `yaml:"development" json:"development"`
}

const (
	// DefaultDataDomain is the domain suffix under which cloud-dedicated
	// cluster data-plane hosts are provisioned.
	DefaultDataDomain = "a.influxdb.io"
	// DefaultManagementURL is the fixed cloud-dedicated control-plane host.
	DefaultManagementURL = "https://console.influxdata.com"
)

// NewConfig creates a Config for the given variant with transport defaults.
func NewConfig(variant ProductVariant) *Config {
	return &Config{
		Variant:       variant,
		DataDomain:    DefaultDataDomain,
		ManagementURL: DefaultManagementURL,
		Timeouts: TimeoutConfig{
			Request:    30 * time.Second,
			Connection: 10 * time.Second,
			Idle:       90 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

// Validate checks the configuration for structural correctness. Per-variant
// credential presence is deliberately not enforced here: operations that need
// a credential fail individually with a config error at dispatch time, and
// capability predicates let callers check up front.
func (c *Config) Validate() error {
	if !c.Variant.Known() {
		return fmt.Errorf("unknown product variant %q", c.Variant)
	}
	if c.URL != "" {
		if _, err := url.Parse(c.URL); err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
	}
	if c.Timeouts.Request < 0 {
		return fmt.Errorf("request timeout cannot be negative")
	}
	return nil
}

// HasDataCapabilities reports whether the variant-specific minimum credential
// set for query/write operations is present. Pure over the configuration;
// independent of whether any client handle was successfully constructed.
func (c *Config) HasDataCapabilities() bool {
	if c.Variant.SelfHosted() {
		return c.URL != "" && c.DataToken != ""
	}
	return c.ClusterID != "" && c.DataToken != ""
}

// HasManagementCapabilities reports whether database and token lifecycle
// operations can be issued. Self-hosted variants use the same single token
// for both planes; cloud-dedicated needs a separate management token plus
// account and cluster identifiers.
func (c *Config) HasManagementCapabilities() bool {
	if c.Variant.SelfHosted() {
		return c.URL != "" && c.DataToken != ""
	}
	return c.ManagementToken != "" && c.AccountID != "" && c.ClusterID != ""
}
