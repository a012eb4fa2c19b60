package dispatch

import (
	"context"

	"github.com/tsbridge/tsbridge/pkg/backend"
	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
	"github.com/tsbridge/tsbridge/pkg/metrics"
)

// WriteOptions tunes a line-protocol write.
type WriteOptions struct {
	// Precision of timestamps in the payload, passed through verbatim.
	Precision string
	// AcceptPartial asks the server to keep valid lines when some fail.
	AcceptPartial bool
	// NoSync acknowledges the write before it is fsynced.
	NoSync bool
}

// WriteLineProtocol transmits a line-protocol payload to the data plane. The
// payload is opaque to this layer: no parsing, no validation, no
// deduplication. The backend appends, so the operation is not idempotent and
// is never retried here; at-most-once from this layer's perspective.
func (d *Dispatcher) WriteLineProtocol(ctx context.Context, payload []byte, database string, opts WriteOptions) (err error) {
	defer d.observe("write_line_protocol", metrics.NewTimer(), &err)

	b, err := d.requireData()
	if err != nil {
		return err
	}

	err = b.Write(ctx, backend.WriteRequest{
		Payload:       payload,
		Database:      database,
		Precision:     opts.Precision,
		AcceptPartial: opts.AcceptPartial,
		NoSync:        opts.NoSync,
	})
	if err != nil {
		return bridgeerrors.Normalize(err)
	}
	return nil
}
