// Package dispatch implements the operation dispatchers: the uniform
// operation surface over the backend variants. Each operation checks its
// capability prerequisites before any network call, hands the request to the
// single backend instance selected at startup, and normalizes the response
// into a variant-independent result or a taxonomy error. Dispatchers never
// inspect HTTP status codes and never branch on the product variant for
// request construction; both concerns live below this layer.
package dispatch

import (
	"go.uber.org/zap"

	"github.com/tsbridge/tsbridge/pkg/backend"
	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
	"github.com/tsbridge/tsbridge/pkg/connection"
	"github.com/tsbridge/tsbridge/pkg/logger"
	"github.com/tsbridge/tsbridge/pkg/metrics"
)

// Dispatcher exposes every logical operation. It is stateless beyond the
// shared read-only connection context and safe for concurrent use.
type Dispatcher struct {
	conn   *connection.Context
	logger *zap.Logger
}

// New creates a dispatcher over the given connection context.
func New(conn *connection.Context) *Dispatcher {
	return &Dispatcher{
		conn:   conn,
		logger: logger.Get().With(zap.String("component", "dispatch")),
	}
}

// Connection returns the underlying connection context.
func (d *Dispatcher) Connection() *connection.Context {
	return d.conn
}

func (d *Dispatcher) variant() string {
	return string(d.conn.Config().Variant)
}

// requireData fails with a capability error before any network call when the
// data credential set is absent.
func (d *Dispatcher) requireData() (backend.Backend, error) {
	if !d.conn.HasDataCapabilities() {
		return nil, bridgeerrors.Newf(bridgeerrors.ErrorTypeCapability,
			"operation requires data credentials for variant %q", d.conn.Config().Variant)
	}
	return d.conn.Backend()
}

// requireManagement fails with a capability error before any network call
// when the management credential set is absent.
func (d *Dispatcher) requireManagement() (backend.Backend, error) {
	if !d.conn.HasManagementCapabilities() {
		return nil, bridgeerrors.Newf(bridgeerrors.ErrorTypeCapability,
			"operation requires management credentials for variant %q", d.conn.Config().Variant)
	}
	return d.conn.Backend()
}

// observe records operation metrics. Meant to be deferred with a named error
// return.
func (d *Dispatcher) observe(op string, timer *metrics.Timer, errp *error) {
	kind := ""
	if *errp != nil {
		kind = string(bridgeerrors.TypeOf(*errp))
	}
	metrics.RecordOperation(op, d.variant(), timer.Stop(), kind)
}
