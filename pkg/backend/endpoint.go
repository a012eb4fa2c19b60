package backend

import (
	"strings"

	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
	"github.com/tsbridge/tsbridge/pkg/config"
)

// RequestKind distinguishes the two endpoint planes a request can target.
type RequestKind string

const (
	// RequestKindData is the plane for query and write operations.
	RequestKindData RequestKind = "data"
	// RequestKindManagement is the plane for database and credential
	// lifecycle operations.
	RequestKindManagement RequestKind = "management"
)

// Endpoint is a resolved (host, credential) pair. Endpoints are recomputed
// per call from configuration, never cached, because the two planes can
// carry different credentials within the same process.
type Endpoint struct {
	URL   string
	Token string
	Kind  RequestKind

	authScheme string
}

// AuthHeader returns the Authorization header value for the endpoint.
// Self-hosted servers expect "Token <t>"; the cloud planes expect Bearer.
func (e *Endpoint) AuthHeader() string {
	return e.authScheme + " " + e.Token
}

// Host returns the endpoint host without the URL scheme.
func (e *Endpoint) Host() string {
	host := e.URL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	return strings.TrimSuffix(host, "/")
}

// ResolveEndpoint is the credential/endpoint resolver: a pure function of
// configuration and request kind. For self-hosted variants both kinds
// resolve to the same URL and single token. For cloud-dedicated, data
// resolves to the cluster-qualified host with the data token and management
// to the fixed control-plane host with the management token.
//
// Missing prerequisites yield a config error and never a partial endpoint.
// Callers are expected to check capability predicates first; this function
// re-validates defensively.
func ResolveEndpoint(cfg *config.Config, kind RequestKind) (*Endpoint, error) {
	switch {
	case cfg.Variant.SelfHosted():
		if cfg.URL == "" {
			return nil, bridgeerrors.Newf(bridgeerrors.ErrorTypeConfig,
				"%s requires a server url", cfg.Variant)
		}
		if cfg.DataToken == "" {
			return nil, bridgeerrors.Newf(bridgeerrors.ErrorTypeConfig,
				"%s requires a token", cfg.Variant)
		}
		return &Endpoint{
			URL:        strings.TrimSuffix(cfg.URL, "/"),
			Token:      cfg.DataToken,
			Kind:       kind,
			authScheme: "Token",
		}, nil

	case cfg.Variant == config.VariantCloudDedicated && kind == RequestKindData:
		if cfg.ClusterID == "" {
			return nil, bridgeerrors.New(bridgeerrors.ErrorTypeConfig,
				"cloud-dedicated requires a cluster id")
		}
		if cfg.DataToken == "" {
			return nil, bridgeerrors.New(bridgeerrors.ErrorTypeConfig,
				"cloud-dedicated requires a database token")
		}
		domain := cfg.DataDomain
		if domain == "" {
			domain = config.DefaultDataDomain
		}
		return &Endpoint{
			URL:        "https://" + cfg.ClusterID + "." + domain,
			Token:      cfg.DataToken,
			Kind:       kind,
			authScheme: "Bearer",
		}, nil

	case cfg.Variant == config.VariantCloudDedicated && kind == RequestKindManagement:
		if cfg.ManagementToken == "" {
			return nil, bridgeerrors.New(bridgeerrors.ErrorTypeConfig,
				"cloud-dedicated requires a management token")
		}
		if cfg.AccountID == "" || cfg.ClusterID == "" {
			return nil, bridgeerrors.New(bridgeerrors.ErrorTypeConfig,
				"cloud-dedicated requires account and cluster ids")
		}
		base := cfg.ManagementURL
		if base == "" {
			base = config.DefaultManagementURL
		}
		return &Endpoint{
			URL:        strings.TrimSuffix(base, "/"),
			Token:      cfg.ManagementToken,
			Kind:       kind,
			authScheme: "Bearer",
		}, nil
	}

	return nil, bridgeerrors.Newf(bridgeerrors.ErrorTypeConfig,
		"unknown product variant %q", cfg.Variant)
}
