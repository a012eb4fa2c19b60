// Package connection holds the process-wide connection context: the resolved
// configuration, the backend handle built once at startup, and the capability
// predicates every dispatcher checks before touching the network.
package connection

import (
	"context"

	"go.uber.org/zap"

	"github.com/tsbridge/tsbridge/pkg/backend"
	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
	"github.com/tsbridge/tsbridge/pkg/clients"
	"github.com/tsbridge/tsbridge/pkg/config"
	"github.com/tsbridge/tsbridge/pkg/logger"
)

// Context owns the backend handle exclusively. It is constructed once
// alongside the configuration and lives for the process lifetime; after
// construction everything here is read-only, so concurrent operation calls
// need no locking.
type Context struct {
	cfg        *config.Config
	httpClient *clients.HTTPClient
	backend    backend.Backend
	logger     *zap.Logger
}

// PingResult is the fail-soft outcome of a ping probe.
type PingResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// HealthResult is the fail-soft outcome of a health probe.
type HealthResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// New constructs the connection context, building the backend handle
// eagerly. A backend that cannot be constructed (unknown variant, missing
// prerequisites) leaves a nil handle: the context stays usable for
// capability checks, and operations fail individually with a typed error.
func New(cfg *config.Config) *Context {
	log := logger.Get().With(zap.String("component", "connection"))

	httpCfg := clients.DefaultHTTPConfig()
	if cfg.Timeouts.Request > 0 {
		httpCfg.RequestTimeout = cfg.Timeouts.Request
	}
	if cfg.Timeouts.Connection > 0 {
		httpCfg.DialTimeout = cfg.Timeouts.Connection
	}
	if cfg.Timeouts.Idle > 0 {
		httpCfg.IdleConnTimeout = cfg.Timeouts.Idle
	}
	httpClient := clients.NewHTTPClient(httpCfg, log)

	b, err := backend.Create(cfg, httpClient)
	if err != nil {
		log.Warn("backend not constructed", zap.String("variant", string(cfg.Variant)), zap.Error(err))
		b = nil
	}

	return &Context{
		cfg:        cfg,
		httpClient: httpClient,
		backend:    b,
		logger:     log,
	}
}

// Config returns the immutable configuration.
func (c *Context) Config() *config.Config {
	return c.cfg
}

// Backend returns the backend handle, or a config error when none could be
// constructed at startup.
func (c *Context) Backend() (backend.Backend, error) {
	if c.backend == nil {
		return nil, bridgeerrors.Newf(bridgeerrors.ErrorTypeConfig,
			"no backend available for variant %q", c.cfg.Variant)
	}
	return c.backend, nil
}

// HTTPClient returns the shared HTTP transport.
func (c *Context) HTTPClient() *clients.HTTPClient {
	return c.httpClient
}

// HasDataCapabilities reports whether query/write operations can be issued.
// Pure over configuration, independent of backend construction.
func (c *Context) HasDataCapabilities() bool {
	return c.cfg.HasDataCapabilities()
}

// HasManagementCapabilities reports whether lifecycle operations can be
// issued.
func (c *Context) HasManagementCapabilities() bool {
	return c.cfg.HasManagementCapabilities()
}

// Ping is a best-effort diagnostic probe. Transport failures degrade to
// {ok:false} instead of propagating: health checks must never crash the
// caller.
func (c *Context) Ping(ctx context.Context) PingResult {
	b, err := c.Backend()
	if err != nil {
		return PingResult{OK: false, Message: err.Error()}
	}
	if err := b.Ping(ctx); err != nil {
		c.logger.Debug("ping failed", zap.Error(err))
		return PingResult{OK: false, Message: err.Error()}
	}
	return PingResult{OK: true}
}

// HealthStatus is a best-effort diagnostic probe, degrading to
// {status:"fail"} on any failure.
func (c *Context) HealthStatus(ctx context.Context) HealthResult {
	b, err := c.Backend()
	if err != nil {
		return HealthResult{Status: "fail", Message: err.Error()}
	}
	details, err := b.Health(ctx)
	if err != nil {
		c.logger.Debug("health probe failed", zap.Error(err))
		return HealthResult{Status: "fail", Message: err.Error()}
	}

	status := "pass"
	if s, ok := details["status"].(string); ok && s != "" {
		status = s
	}
	return HealthResult{Status: status, Details: details}
}

// Close releases transport resources.
func (c *Context) Close() error {
	var firstErr error
	if c.backend != nil {
		if err := c.backend.Close(); err != nil {
			firstErr = err
		}
	}
	if err := c.httpClient.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
