package dispatch

import (
	"context"

	"github.com/tsbridge/tsbridge/pkg/backend"
	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
	"github.com/tsbridge/tsbridge/pkg/metrics"
)

// cloudTokens returns the token API of the cloud-dedicated backend, failing
// with a capability error before any network call when management
// credentials are absent, and with an unsupported-operation error on
// self-hosted variants.
func (d *Dispatcher) cloudTokens() (backend.CloudTokenAPI, error) {
	b, err := d.requireManagement()
	if err != nil {
		return nil, err
	}
	api, ok := b.(backend.CloudTokenAPI)
	if !ok {
		return nil, bridgeerrors.Newf(bridgeerrors.ErrorTypeUnsupported,
			"variant %q does not support cluster token administration", d.conn.Config().Variant)
	}
	return api, nil
}

// ListTokens lists cluster database tokens. Secrets never appear in list
// responses.
func (d *Dispatcher) ListTokens(ctx context.Context) (tokens []TokenSummary, err error) {
	defer d.observe("list_tokens", metrics.NewTimer(), &err)

	api, err := d.cloudTokens()
	if err != nil {
		return nil, err
	}

	decoded, err := api.ListTokens(ctx)
	if err != nil {
		return nil, bridgeerrors.Normalize(err)
	}

	return normalizeTokenList(decoded)
}

// GetToken fetches one cluster token descriptor by id.
func (d *Dispatcher) GetToken(ctx context.Context, id string) (token *backend.Token, err error) {
	defer d.observe("get_token", metrics.NewTimer(), &err)

	if id == "" {
		return nil, bridgeerrors.New(bridgeerrors.ErrorTypeInvalidArgument,
			"token id is required")
	}

	api, err := d.cloudTokens()
	if err != nil {
		return nil, err
	}

	token, err = api.GetToken(ctx, id)
	if err != nil {
		return nil, bridgeerrors.Normalize(err)
	}
	return token, nil
}

// CreateToken mints a cluster database token. The access token in the
// response is revealed exactly once; this layer does not log or cache it.
func (d *Dispatcher) CreateToken(ctx context.Context, req backend.CloudTokenRequest) (token *backend.Token, err error) {
	defer d.observe("create_token", metrics.NewTimer(), &err)

	api, err := d.cloudTokens()
	if err != nil {
		return nil, err
	}

	token, err = api.CreateToken(ctx, req)
	if err != nil {
		return nil, bridgeerrors.Normalize(err)
	}
	return token, nil
}

// UpdateToken updates a cluster token's description or permissions.
func (d *Dispatcher) UpdateToken(ctx context.Context, id string, req backend.CloudTokenRequest) (token *backend.Token, err error) {
	defer d.observe("update_token", metrics.NewTimer(), &err)

	if id == "" {
		return nil, bridgeerrors.New(bridgeerrors.ErrorTypeInvalidArgument,
			"token id is required")
	}

	api, err := d.cloudTokens()
	if err != nil {
		return nil, err
	}

	token, err = api.UpdateToken(ctx, id, req)
	if err != nil {
		return nil, bridgeerrors.Normalize(err)
	}
	return token, nil
}

// DeleteToken revokes a cluster token by id. Irreversible.
func (d *Dispatcher) DeleteToken(ctx context.Context, id string) (err error) {
	defer d.observe("delete_token", metrics.NewTimer(), &err)

	if id == "" {
		return bridgeerrors.New(bridgeerrors.ErrorTypeInvalidArgument,
			"token id is required")
	}

	api, err := d.cloudTokens()
	if err != nil {
		return err
	}

	if err := api.DeleteToken(ctx, id); err != nil {
		return bridgeerrors.Normalize(err)
	}
	return nil
}

// normalizeTokenList probes the control-plane token list shapes: a bare
// array, or the same nested under a data or tokens key.
func normalizeTokenList(decoded interface{}) ([]TokenSummary, error) {
	entries, ok := decoded.([]interface{})
	if !ok {
		obj, isObj := decoded.(map[string]interface{})
		if !isObj {
			return nil, bridgeerrors.New(bridgeerrors.ErrorTypeMalformedResponse,
				"token list response shape not recognized")
		}
		for _, key := range []string{"tokens", "data"} {
			if inner, found := obj[key].([]interface{}); found {
				entries = inner
				ok = true
				break
			}
		}
		if !ok {
			return nil, bridgeerrors.New(bridgeerrors.ErrorTypeMalformedResponse,
				"token list response shape not recognized")
		}
	}

	tokens := make([]TokenSummary, 0, len(entries))
	for _, entry := range entries {
		obj, isObj := entry.(map[string]interface{})
		if !isObj {
			return nil, bridgeerrors.New(bridgeerrors.ErrorTypeMalformedResponse,
				"token list entry shape not recognized")
		}
		summary := TokenSummary{
			ID:        stringField(obj, "id"),
			Name:      stringField(obj, "description"),
			CreatedAt: stringField(obj, "createdAt"),
			ExpiresAt: stringField(obj, "expiresAt"),
		}
		tokens = append(tokens, summary)
	}
	return tokens, nil
}
