package backend

import (
	"sync"

	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
	"github.com/tsbridge/tsbridge/pkg/clients"
	"github.com/tsbridge/tsbridge/pkg/config"
	"github.com/tsbridge/tsbridge/pkg/logger"
	"go.uber.org/zap"
)

// Registry manages backend registration and instantiation per product
// variant. Adding a fourth deployment variant is a matter of registering one
// more factory.
type Registry struct {
	factories map[config.ProductVariant]Factory
	mu        sync.RWMutex
}

// Factory creates a backend instance for its variant. The HTTP client is
// shared across backends and owned by the caller.
type Factory func(cfg *config.Config, httpClient *clients.HTTPClient) (Backend, error)

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new backend registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[config.ProductVariant]Factory),
	}
}

// Register registers a backend factory for a product variant
func (r *Registry) Register(variant config.ProductVariant, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[variant]; exists {
		return bridgeerrors.Newf(bridgeerrors.ErrorTypeConfig,
			"backend for variant %s already registered", variant)
	}

	r.factories[variant] = factory
	logger.Get().Debug("backend registered",
		zap.String("component", "backend_registry"),
		zap.String("variant", string(variant)))
	return nil
}

// Create creates a backend instance for the configured variant
func (r *Registry) Create(cfg *config.Config, httpClient *clients.HTTPClient) (Backend, error) {
	r.mu.RLock()
	factory, exists := r.factories[cfg.Variant]
	r.mu.RUnlock()

	if !exists {
		return nil, bridgeerrors.Newf(bridgeerrors.ErrorTypeConfig,
			"no backend registered for variant %q", cfg.Variant)
	}

	b, err := factory(cfg, httpClient)
	if err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeConfig,
			"failed to create backend for variant "+string(cfg.Variant))
	}

	return b, nil
}

// Variants returns the registered product variants
func (r *Registry) Variants() []config.ProductVariant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	variants := make([]config.ProductVariant, 0, len(r.factories))
	for v := range r.factories {
		variants = append(variants, v)
	}
	return variants
}

// Register registers a backend factory in the global registry
func Register(variant config.ProductVariant, factory Factory) error {
	return globalRegistry.Register(variant, factory)
}

// Create creates a backend from the global registry
func Create(cfg *config.Config, httpClient *clients.HTTPClient) (Backend, error) {
	return globalRegistry.Create(cfg, httpClient)
}

// Variants returns the variants registered in the global registry
func Variants() []config.ProductVariant {
	return globalRegistry.Variants()
}
