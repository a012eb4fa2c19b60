package selfhosted

import (
	"context"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"

	"github.com/tsbridge/tsbridge/pkg/backend"
	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
)

// ListDatabases fetches the database list via the configure API. The decoded
// body is returned without shape normalization; legacy servers disagree on
// the envelope and the dispatch layer owns the shape probing.
func (b *CoreEnterpriseBackend) ListDatabases(ctx context.Context) (interface{}, error) {
	ep, err := b.ResolveEndpoint(backend.RequestKindManagement)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("format", "json")

	body, _, err := b.roundTrip(ctx, http.MethodGet, ep.URL+"/api/v3/configure/database", params, nil, map[string]string{
		"Authorization": ep.AuthHeader(),
		"Accept":        "application/json",
	})
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeMalformedResponse,
			"database list response is not valid JSON")
	}
	return decoded, nil
}

// CreateDatabase creates a database via POST /api/v3/configure/database.
func (b *CoreEnterpriseBackend) CreateDatabase(ctx context.Context, name string) error {
	ep, err := b.ResolveEndpoint(backend.RequestKindManagement)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{"db": name})
	if err != nil {
		return bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeInvalidArgument,
			"failed to encode create database request")
	}

	_, _, err = b.roundTrip(ctx, http.MethodPost, ep.URL+"/api/v3/configure/database", nil, payload, map[string]string{
		"Authorization": ep.AuthHeader(),
		"Content-Type":  "application/json",
	})
	return err
}

// DeleteDatabase deletes a database via DELETE /api/v3/configure/database.
func (b *CoreEnterpriseBackend) DeleteDatabase(ctx context.Context, name string) error {
	ep, err := b.ResolveEndpoint(backend.RequestKindManagement)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("db", name)

	_, _, err = b.roundTrip(ctx, http.MethodDelete, ep.URL+"/api/v3/configure/database", params, nil, map[string]string{
		"Authorization": ep.AuthHeader(),
	})
	return err
}

// CreateAdminToken mints a new admin token. The secret in the returned
// descriptor is revealed exactly once and is never logged.
func (b *CoreEnterpriseBackend) CreateAdminToken(ctx context.Context) (*backend.Token, error) {
	ep, err := b.ResolveEndpoint(backend.RequestKindManagement)
	if err != nil {
		return nil, err
	}

	body, _, err := b.roundTrip(ctx, http.MethodPost, ep.URL+"/api/v3/configure/token/admin", nil, nil, map[string]string{
		"Authorization": ep.AuthHeader(),
		"Accept":        "application/json",
	})
	if err != nil {
		return nil, err
	}
	return decodeToken(body)
}

// RegenerateOperatorToken rotates the operator token. The previous operator
// token stops working as soon as the server acknowledges, so the caller must
// capture the returned secret immediately.
func (b *CoreEnterpriseBackend) RegenerateOperatorToken(ctx context.Context) (*backend.Token, error) {
	ep, err := b.ResolveEndpoint(backend.RequestKindManagement)
	if err != nil {
		return nil, err
	}

	body, _, err := b.roundTrip(ctx, http.MethodPost, ep.URL+"/api/v3/configure/token/admin/regenerate", nil, nil, map[string]string{
		"Authorization": ep.AuthHeader(),
		"Accept":        "application/json",
	})
	if err != nil {
		return nil, err
	}
	return decodeToken(body)
}

// CreateResourceToken mints a named token scoped to specific databases.
func (b *CoreEnterpriseBackend) CreateResourceToken(ctx context.Context, name string, grants []backend.ResourceGrant, expirySeconds int) (*backend.Token, error) {
	ep, err := b.ResolveEndpoint(backend.RequestKindManagement)
	if err != nil {
		return nil, err
	}

	request := map[string]interface{}{
		"token_name":  name,
		"permissions": grants,
	}
	if expirySeconds > 0 {
		request["expiry_secs"] = expirySeconds
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeInvalidArgument,
			"failed to encode create token request")
	}

	body, _, err := b.roundTrip(ctx, http.MethodPost, ep.URL+"/api/v3/configure/token", nil, payload, map[string]string{
		"Authorization": ep.AuthHeader(),
		"Content-Type":  "application/json",
		"Accept":        "application/json",
	})
	if err != nil {
		return nil, err
	}
	return decodeToken(body)
}

// DeleteToken removes a token by name.
func (b *CoreEnterpriseBackend) DeleteToken(ctx context.Context, name string) error {
	ep, err := b.ResolveEndpoint(backend.RequestKindManagement)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("token_name", name)

	_, _, err = b.roundTrip(ctx, http.MethodDelete, ep.URL+"/api/v3/configure/token", params, nil, map[string]string{
		"Authorization": ep.AuthHeader(),
	})
	return err
}

// decodeToken decodes a token descriptor response, accepting both the flat
// form and the {"token": {...}} envelope some releases answer with.
func decodeToken(body []byte) (*backend.Token, error) {
	var flat backend.Token
	if err := json.Unmarshal(body, &flat); err == nil && (flat.Secret != "" || flat.Name != "" || flat.ID != "") {
		return &flat, nil
	}

	var wrapped struct {
		Token backend.Token `json:"token"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil &&
		(wrapped.Token.Secret != "" || wrapped.Token.Name != "" || wrapped.Token.ID != "") {
		return &wrapped.Token, nil
	}

	return nil, bridgeerrors.New(bridgeerrors.ErrorTypeMalformedResponse,
		"token response shape not recognized")
}
