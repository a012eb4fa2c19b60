// Package selfhosted implements the backend contract for self-hosted
// InfluxDB 3 Core and Enterprise servers. Both planes resolve to the same
// base URL and single token; every operation is a synchronous HTTP call
// against the /api/v3 surface.
package selfhosted

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

// CoreEnterpriseBackend issues requests to a self-hosted server. It is
// stateless beyond the shared HTTP client and safe for concurrent use.
type CoreEnterpriseBackend struct {
	cfg        *config.Config
	httpClient *clients.HTTPClient
	logger     *zap.Logger
}

// New creates a backend for a self-hosted core or enterprise server.
func New(cfg *config.Config, httpClient *clients.HTTPClient) (backend.Backend, error) {
	if !cfg.Variant.SelfHosted() {
		return nil, bridgeerrors.Newf(bridgeerrors.ErrorTypeConfig,
			"variant %q is not self-hosted", cfg.Variant)
	}
	return &CoreEnterpriseBackend{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Get().With(zap.String("component", "selfhosted_backend")),
	}, nil
}

// Variant returns the configured product variant.
func (b *CoreEnterpriseBackend) Variant() config.ProductVariant {
	return b.cfg.Variant
}

// ResolveEndpoint resolves the endpoint for a request kind.
func (b *CoreEnterpriseBackend) ResolveEndpoint(kind backend.RequestKind) (*backend.Endpoint, error) {
	return backend.ResolveEndpoint(b.cfg, kind)
}

// Query executes SQL via POST /api/v3/query_sql. The Accept header is chosen
// by format; JSON responses are decoded into rows, everything else is
// returned verbatim.
func (b *CoreEnterpriseBackend) Query(ctx context.Context, req backend.QueryRequest) (*backend.QueryResult, error) {
	ep, err := b.ResolveEndpoint(backend.RequestKindData)
	if err != nil {
		return nil, err
	}

	format := req.Format
	if format == "" {
		format = backend.FormatJSON
	}

	payload, err := json.Marshal(map[string]string{
		"db":     req.Database,
		"q":      req.SQL,
		"format": string(format),
	})
	if err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeInvalidArgument,
			"failed to encode query request")
	}

	headers := map[string]string{
		"Authorization": ep.AuthHeader(),
		"Content-Type":  "application/json",
		"Accept":        format.AcceptHeader(),
	}

	body, contentType, err := b.roundTrip(ctx, http.MethodPost, ep.URL+"/api/v3/query_sql", nil, payload, headers)
	if err != nil {
		return nil, err
	}

	if format != backend.FormatJSON {
		return &backend.QueryResult{Raw: body, ContentType: contentType}, nil
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeMalformedResponse,
			"query response is not a row array")
	}
	return &backend.QueryResult{Rows: rows, ContentType: contentType}, nil
}

// Write transmits the line-protocol payload verbatim via
// POST /api/v3/write_lp. The payload is never parsed or validated here and
// the operation is not retried: the endpoint appends, so a blind retry could
// duplicate points.
func (b *CoreEnterpriseBackend) Write(ctx context.Context, req backend.WriteRequest) error {
	ep, err := b.ResolveEndpoint(backend.RequestKindData)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("db", req.Database)
	if req.Precision != "" {
		params.Set("precision", req.Precision)
	}
	params.Set("accept_partial", strconv.FormatBool(req.AcceptPartial))
	params.Set("no_sync", strconv.FormatBool(req.NoSync))

	headers := map[string]string{
		"Authorization": ep.AuthHeader(),
		"Content-Type":  "text/plain; charset=utf-8",
	}

	_, _, err = b.roundTrip(ctx, http.MethodPost, ep.URL+"/api/v3/write_lp", params, req.Payload, headers)
	return err
}

// Ping issues a minimal authenticated read against the server.
func (b *CoreEnterpriseBackend) Ping(ctx context.Context) error {
	ep, err := b.ResolveEndpoint(backend.RequestKindData)
	if err != nil {
		return err
	}
	_, _, err = b.roundTrip(ctx, http.MethodGet, ep.URL+"/ping", nil, nil, map[string]string{
		"Authorization": ep.AuthHeader(),
	})
	return err
}

// Health fetches the server health payload.
func (b *CoreEnterpriseBackend) Health(ctx context.Context) (map[string]interface{}, error) {
	ep, err := b.ResolveEndpoint(backend.RequestKindData)
	if err != nil {
		return nil, err
	}
	body, _, err := b.roundTrip(ctx, http.MethodGet, ep.URL+"/health", nil, nil, map[string]string{
		"Authorization": ep.AuthHeader(),
	})
	if err != nil {
		return nil, err
	}

	status := map[string]interface{}{}
	if len(body) == 0 || json.Unmarshal(body, &status) != nil {
		// Older servers answer a bare 200
		status = map[string]interface{}{"status": "pass"}
	}
	return status, nil
}

// Close releases nothing: the HTTP client is shared and owned by the caller.
func (b *CoreEnterpriseBackend) Close() error {
	return nil
}

// roundTrip performs one HTTP exchange against the server. 2xx responses
// return the body and content type; everything else is mapped through the
// error normalizer. Transport-level failures never escape as raw errors.
func (b *CoreEnterpriseBackend) roundTrip(ctx context.Context, method, rawURL string, params url.Values, payload []byte, headers map[string]string) ([]byte, string, error) {
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
	default:
		resp, err = b.httpClient.Post(ctx, rawURL, bodyReader, headers)
	}
	if err != nil {
		return nil, "", bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeTransport,
			"request to "+method+" "+rawURL+" failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeTransport,
			"failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", bridgeerrors.FromStatus(resp.StatusCode, body,
			method+" "+rawURL+" returned status "+strconv.Itoa(resp.StatusCode))
	}

	return body, resp.Header.Get("Content-Type"), nil
}
