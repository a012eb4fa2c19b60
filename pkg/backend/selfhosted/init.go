package selfhosted

import (
	"github.com/tsbridge/tsbridge/pkg/backend"
	"github.com/tsbridge/tsbridge/pkg/config"
)

func init() {
	// Core and Enterprise share one implementation; they differ only in
	// server licensing, not in wire surface.
	_ = backend.Register(config.VariantCore, New)
	_ = backend.Register(config.VariantEnterprise, New)
}
