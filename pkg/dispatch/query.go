package dispatch

import (
	"context"
	"strings"

	"github.com/tsbridge/tsbridge/pkg/backend"
	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
	"github.com/tsbridge/tsbridge/pkg/metrics"
)

// QueryOptions tunes a query operation.
type QueryOptions struct {
	// Format selects the response encoding; empty negotiates JSON.
	Format backend.QueryFormat
}

// Measurement is a normalized measurement descriptor.
type Measurement struct {
	Name string `json:"name"`
}

// Column is a normalized column descriptor.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// MeasurementSchema describes the columns of one measurement. Columns is
// empty, not nil, for an existing measurement with no columns.
type MeasurementSchema struct {
	Measurement string   `json:"measurement"`
	Columns     []Column `json:"columns"`
}

// ExecuteQuery runs a SQL query against the data plane and returns the
// variant-independent result.
func (d *Dispatcher) ExecuteQuery(ctx context.Context, query, database string, opts QueryOptions) (result *backend.QueryResult, err error) {
	defer d.observe("execute_query", metrics.NewTimer(), &err)

	b, err := d.requireData()
	if err != nil {
		return nil, err
	}

	result, err = b.Query(ctx, backend.QueryRequest{
		SQL:      query,
		Database: database,
		Format:   opts.Format,
	})
	if err != nil {
		return nil, bridgeerrors.Normalize(err)
	}
	return result, nil
}

// GetMeasurements lists the measurements in a database, built entirely on
// the query path with a variant-specific introspection statement.
func (d *Dispatcher) GetMeasurements(ctx context.Context, database string) (measurements []Measurement, err error) {
	defer d.observe("get_measurements", metrics.NewTimer(), &err)

	b, err := d.requireData()
	if err != nil {
		return nil, err
	}

	rows, err := d.introspect(ctx, b, database, measurementListQuery(b.Variant().SelfHosted()))
	if err != nil {
		return nil, err
	}

	measurements = make([]Measurement, 0, len(rows))
	for _, row := range rows {
		name, _ := row["table_name"].(string)
		if name == "" {
			continue
		}
		if schema, ok := row["table_schema"].(string); ok && schema != "iox" {
			continue
		}
		measurements = append(measurements, Measurement{Name: name})
	}
	return measurements, nil
}

// GetMeasurementSchema describes the columns of one measurement. A
// measurement that exists with zero columns yields an empty column list; a
// measurement that does not exist yields a not-found error. The two cases
// are distinguished with a follow-up existence check, never conflated.
func (d *Dispatcher) GetMeasurementSchema(ctx context.Context, measurement, database string) (schema *MeasurementSchema, err error) {
	defer d.observe("get_measurement_schema", metrics.NewTimer(), &err)

	b, err := d.requireData()
	if err != nil {
		return nil, err
	}

	selfHosted := b.Variant().SelfHosted()
	rows, err := d.introspect(ctx, b, database, columnListQuery(selfHosted, measurement))
	if err != nil {
		return nil, err
	}

	columns := make([]Column, 0, len(rows))
	for _, row := range rows {
		name, _ := row["column_name"].(string)
		if name == "" {
			continue
		}
		colType, _ := row["data_type"].(string)
		columns = append(columns, Column{Name: name, Type: colType})
	}

	if len(columns) == 0 {
		exists, err := d.measurementExists(ctx, b, database, measurement)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, bridgeerrors.Newf(bridgeerrors.ErrorTypeNotFound,
				"measurement %q not found in database %q", measurement, database)
		}
	}

	return &MeasurementSchema{Measurement: measurement, Columns: columns}, nil
}

// introspect runs a JSON-formatted introspection query and returns its rows.
func (d *Dispatcher) introspect(ctx context.Context, b backend.Backend, database, query string) ([]map[string]interface{}, error) {
	result, err := b.Query(ctx, backend.QueryRequest{
		SQL:      query,
		Database: database,
		Format:   backend.FormatJSON,
	})
	if err != nil {
		return nil, bridgeerrors.Normalize(err)
	}
	return result.Rows, nil
}

func (d *Dispatcher) measurementExists(ctx context.Context, b backend.Backend, database, measurement string) (bool, error) {
	rows, err := d.introspect(ctx, b, database, measurementExistsQuery(measurement))
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		name, _ := row["table_name"].(string)
		if name == measurement {
			return true, nil
		}
	}
	return false, nil
}

func measurementListQuery(selfHosted bool) string {
	if selfHosted {
		return "SELECT table_name FROM information_schema.tables " +
			"WHERE table_schema = 'iox' ORDER BY table_name"
	}
	return "SHOW TABLES"
}

func columnListQuery(selfHosted bool, measurement string) string {
	if selfHosted {
		return "SELECT column_name, data_type FROM information_schema.columns " +
			"WHERE table_schema = 'iox' AND table_name = " + quoteString(measurement) +
			" ORDER BY ordinal_position"
	}
	return "SHOW COLUMNS IN " + quoteIdent(measurement)
}

// measurementExistsQuery works unchanged on every variant: the IOx engine
// serves information_schema on the cloud path too.
func measurementExistsQuery(measurement string) string {
	return "SELECT table_name FROM information_schema.tables " +
		"WHERE table_schema = 'iox' AND table_name = " + quoteString(measurement)
}

// quoteString renders a SQL string literal with embedded quotes doubled.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteIdent renders a double-quoted SQL identifier.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
