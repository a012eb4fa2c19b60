package dispatch

import (
	"context"

	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
	"github.com/tsbridge/tsbridge/pkg/metrics"
)

// ListDatabases lists databases through the management plane and normalizes
// the response shape. When no backend connection was ever established the
// result is an empty list: that is a capability pre-check, not a swallowed
// error, and it is the only sanctioned default in this layer.
func (d *Dispatcher) ListDatabases(ctx context.Context) (databases []Database, err error) {
	defer d.observe("list_databases", metrics.NewTimer(), &err)

	if _, berr := d.conn.Backend(); berr != nil {
		return []Database{}, nil
	}

	b, err := d.requireManagement()
	if err != nil {
		return nil, err
	}

	decoded, err := b.ListDatabases(ctx)
	if err != nil {
		return nil, bridgeerrors.Normalize(err)
	}

	return normalizeDatabaseList(decoded)
}

// CreateDatabase creates a database through the management plane.
func (d *Dispatcher) CreateDatabase(ctx context.Context, name string) (err error) {
	defer d.observe("create_database", metrics.NewTimer(), &err)

	if name == "" {
		return bridgeerrors.New(bridgeerrors.ErrorTypeInvalidArgument,
			"database name is required")
	}

	b, err := d.requireManagement()
	if err != nil {
		return err
	}

	if err := b.CreateDatabase(ctx, name); err != nil {
		return bridgeerrors.Normalize(err)
	}
	return nil
}

// DeleteDatabase deletes a database through the management plane. The
// operation is irreversible; confirmation is the caller's concern.
func (d *Dispatcher) DeleteDatabase(ctx context.Context, name string) (err error) {
	defer d.observe("delete_database", metrics.NewTimer(), &err)

	if name == "" {
		return bridgeerrors.New(bridgeerrors.ErrorTypeInvalidArgument,
			"database name is required")
	}

	b, err := d.requireManagement()
	if err != nil {
		return err
	}

	if err := b.DeleteDatabase(ctx, name); err != nil {
		return bridgeerrors.Normalize(err)
	}
	return nil
}
