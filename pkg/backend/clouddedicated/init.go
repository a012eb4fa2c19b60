package clouddedicated

import (
	"github.com/tsbridge/tsbridge/pkg/backend"
	"github.com/tsbridge/tsbridge/pkg/config"
)

func init() {
	_ = backend.Register(config.VariantCloudDedicated, New)
}
