// Package clouddedicated implements the backend contract for multi-tenant
// Cloud-Dedicated clusters. Queries travel over an Arrow Flight SQL client
// against the cluster-qualified data-plane host; writes are HTTP against the
// same host; database and token lifecycle operations are HTTP against the
// fixed control-plane host with a separate management token.
package clouddedicated

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/tsbridge/tsbridge/pkg/backend"
	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
	"github.com/tsbridge/tsbridge/pkg/clients"
	"github.com/tsbridge/tsbridge/pkg/config"
	"github.com/tsbridge/tsbridge/pkg/logger"
)

// CloudDedicatedBackend issues requests to a cloud-dedicated cluster. The
// Flight client handle is built once at construction and is nil when the
// data-plane prerequisites (cluster id + data token) are absent; management
// operations never touch it.
type CloudDedicatedBackend struct {
	cfg        *config.Config
	httpClient *clients.HTTPClient
	flight     *FlightClient
	logger     *zap.Logger
}

// New creates a backend for a cloud-dedicated cluster. A missing data
// credential set leaves the streaming handle nil rather than failing: the
// process may legitimately hold only management credentials.
func New(cfg *config.Config, httpClient *clients.HTTPClient) (backend.Backend, error) {
	if cfg.Variant != config.VariantCloudDedicated {
		return nil, bridgeerrors.Newf(bridgeerrors.ErrorTypeConfig,
			"variant %q is not cloud-dedicated", cfg.Variant)
	}

	b := &CloudDedicatedBackend{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Get().With(zap.String("component", "clouddedicated_backend")),
	}

	if cfg.HasDataCapabilities() {
		ep, err := backend.ResolveEndpoint(cfg, backend.RequestKindData)
		if err != nil {
			return nil, err
		}
		fc, err := NewFlightClient(ep.Host()+":443", cfg.DataToken)
		if err != nil {
			// Leave the handle nil; data operations will fail individually
			b.logger.Warn("failed to construct flight client", zap.Error(err))
		} else {
			b.flight = fc
		}
	}

	return b, nil
}

// Variant returns the configured product variant.
func (b *CloudDedicatedBackend) Variant() config.ProductVariant {
	return b.cfg.Variant
}

// ResolveEndpoint resolves the endpoint for a request kind.
func (b *CloudDedicatedBackend) ResolveEndpoint(kind backend.RequestKind) (*backend.Endpoint, error) {
	return backend.ResolveEndpoint(b.cfg, kind)
}

// FlightHandle returns the streaming client handle, or nil when the data
// credential set is absent or construction failed.
func (b *CloudDedicatedBackend) FlightHandle() *FlightClient {
	return b.flight
}

// Query opens a Flight SQL cursor and eagerly drains it into memory before
// returning. There is no partial delivery: result size is bounded by
// available memory. A deliberate simplification, kept in parity with how the
// result is consumed downstream, not a bug to silently fix.
func (b *CloudDedicatedBackend) Query(ctx context.Context, req backend.QueryRequest) (*backend.QueryResult, error) {
	if b.flight == nil {
		return nil, bridgeerrors.New(bridgeerrors.ErrorTypeConfig,
			"cloud-dedicated query requires a cluster id and database token")
	}

	rows, err := b.flight.QueryRows(ctx, req.Database, req.SQL)
	if err != nil {
		return nil, err
	}
	return &backend.QueryResult{Rows: rows, ContentType: "application/json"}, nil
}

// Write transmits the line-protocol payload verbatim to the cluster host
// over the v2-compatible write endpoint. accept_partial and no_sync are
// self-hosted knobs with no cloud equivalent and are ignored here.
func (b *CloudDedicatedBackend) Write(ctx context.Context, req backend.WriteRequest) error {
	ep, err := b.ResolveEndpoint(backend.RequestKindData)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("bucket", req.Database)
	if req.Precision != "" {
		params.Set("precision", req.Precision)
	}

	headers := map[string]string{
		"Authorization": ep.AuthHeader(),
		"Content-Type":  "text/plain; charset=utf-8",
	}

	_, err = b.roundTrip(ctx, http.MethodPost, ep.URL+"/api/v2/write", params, req.Payload, headers)
	return err
}

// Ping issues a minimal read against the cluster host.
func (b *CloudDedicatedBackend) Ping(ctx context.Context) error {
	ep, err := b.ResolveEndpoint(backend.RequestKindData)
	if err != nil {
		return err
	}
	_, err = b.roundTrip(ctx, http.MethodGet, ep.URL+"/ping", nil, nil, map[string]string{
		"Authorization": ep.AuthHeader(),
	})
	return err
}

// Health probes the cluster host health endpoint.
func (b *CloudDedicatedBackend) Health(ctx context.Context) (map[string]interface{}, error) {
	ep, err := b.ResolveEndpoint(backend.RequestKindData)
	if err != nil {
		return nil, err
	}
	body, err := b.roundTrip(ctx, http.MethodGet, ep.URL+"/health", nil, nil, map[string]string{
		"Authorization": ep.AuthHeader(),
	})
	if err != nil {
		return nil, err
	}

	status := map[string]interface{}{}
	if len(body) == 0 || json.Unmarshal(body, &status) != nil {
		status = map[string]interface{}{"status": "pass"}
	}
	return status, nil
}

// Close releases the Flight client handle.
func (b *CloudDedicatedBackend) Close() error {
	if b.flight != nil {
		return b.flight.Close()
	}
	return nil
}

// roundTrip performs one HTTP exchange. Non-2xx responses are mapped through
// the error normalizer; transport failures never escape raw.
func (b *CloudDedicatedBackend) roundTrip(ctx context.Context, method, rawURL string, params url.Values, payload []byte, headers map[string]string) ([]byte, error) {
	if len(params) > 0 {
		rawURL = rawURL + "?" + params.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	var resp *http.Response
	var err error
	switch method {
	case http.MethodGet:
		resp, err = b.httpClient.Get(ctx, rawURL, headers)
	case http.MethodDelete:
		resp, err = b.httpClient.Delete(ctx, rawURL, headers)
	case http.MethodPatch:
		resp, err = b.httpClient.Patch(ctx, rawURL, bodyReader, headers)
	default:
		resp, err = b.httpClient.Post(ctx, rawURL, bodyReader, headers)
	}
	if err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeTransport,
			"request to "+method+" "+rawURL+" failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeTransport,
			"failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, bridgeerrors.FromStatus(resp.StatusCode, body,
			method+" "+rawURL+" returned status "+strconv.Itoa(resp.StatusCode))
	}

	return body, nil
}
