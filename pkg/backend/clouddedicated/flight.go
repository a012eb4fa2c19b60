package clouddedicated

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight/flightsql"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
)

// FlightClient wraps the Arrow Flight SQL client for the cluster data plane.
// Built once at startup, read-only afterwards, safe for concurrent calls.
type FlightClient struct {
	client *flightsql.Client
	token  string
}

// NewFlightClient dials the cluster-qualified data-plane address over TLS.
// gRPC connects lazily, so construction succeeding says nothing about
// reachability; the first query surfaces any transport failure.
func NewFlightClient(addr, token string) (*FlightClient, error) {
	client, err := flightsql.NewClient(addr, nil, nil,
		grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})),
	)
	if err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeTransport,
			"failed to construct flight client for "+addr)
	}

	return &FlightClient{client: client, token: token}, nil
}

// QueryRows executes SQL and drains every endpoint of the resulting cursor
// into an in-memory row slice. No partial delivery: the full result
// materializes before returning.
func (fc *FlightClient) QueryRows(ctx context.Context, database, query string) ([]map[string]interface{}, error) {
	ctx = metadata.AppendToOutgoingContext(ctx,
		"authorization", "Bearer "+fc.token,
		"database", database,
		"bucket-name", database,
	)

	info, err := fc.client.Execute(ctx, query)
	if err != nil {
		return nil, bridgeerrors.Normalize(err)
	}

	rows := []map[string]interface{}{}
	for _, endpoint := range info.Endpoint {
		reader, err := fc.client.DoGet(ctx, endpoint.Ticket)
		if err != nil {
			return nil, bridgeerrors.Normalize(err)
		}

		for reader.Next() {
			rows = append(rows, recordRows(reader.Record())...)
		}
		err = reader.Err()
		reader.Release()
		if err != nil {
			return nil, bridgeerrors.Normalize(err)
		}
	}

	return rows, nil
}

// Close tears down the underlying gRPC channel.
func (fc *FlightClient) Close() error {
	return fc.client.Close()
}

// recordRows converts one Arrow record batch into row maps keyed by column
// name.
func recordRows(rec arrow.Record) []map[string]interface{} {
	schema := rec.Schema()
	numRows := int(rec.NumRows())
	numCols := int(rec.NumCols())

	rows := make([]map[string]interface{}, numRows)
	for i := range rows {
		rows[i] = make(map[string]interface{}, numCols)
	}

	for c := 0; c < numCols; c++ {
		name := schema.Field(c).Name
		col := rec.Column(c)
		for r := 0; r < numRows; r++ {
			rows[r][name] = columnValue(col, r)
		}
	}

	return rows
}

// columnValue extracts one cell as a plain Go value. Timestamps become
// RFC 3339 strings in UTC; dictionary-encoded and exotic types fall back to
// their string rendering.
func columnValue(col arrow.Array, i int) interface{} {
	if col.IsNull(i) {
		return nil
	}

	switch arr := col.(type) {
	case *array.Boolean:
		return arr.Value(i)
	case *array.Int32:
		return int64(arr.Value(i))
	case *array.Int64:
		return arr.Value(i)
	case *array.Uint64:
		return arr.Value(i)
	case *array.Float32:
		return float64(arr.Value(i))
	case *array.Float64:
		return arr.Value(i)
	case *array.String:
		return arr.Value(i)
	case *array.LargeString:
		return arr.Value(i)
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return arr.Value(i).ToTime(unit).UTC().Format(time.RFC3339Nano)
	default:
		return col.ValueStr(i)
	}
}
