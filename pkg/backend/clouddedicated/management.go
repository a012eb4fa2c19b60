package clouddedicated

import (
	"context"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"

	"github.com/tsbridge/tsbridge/pkg/backend"
	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
)

// managementBase returns the account/cluster-scoped control-plane URL prefix.
func (b *CloudDedicatedBackend) managementBase() (*backend.Endpoint, string, error) {
	ep, err := b.ResolveEndpoint(backend.RequestKindManagement)
	if err != nil {
		return nil, "", err
	}
	base := ep.URL + "/api/v0/accounts/" + url.PathEscape(b.cfg.AccountID) +
		"/clusters/" + url.PathEscape(b.cfg.ClusterID)
	return ep, base, nil
}

// ListDatabases fetches the cluster database list from the control plane.
// The decoded body is returned unshaped; the dispatch layer probes it.
func (b *CloudDedicatedBackend) ListDatabases(ctx context.Context) (interface{}, error) {
	ep, base, err := b.managementBase()
	if err != nil {
		return nil, err
	}

	body, err := b.roundTrip(ctx, http.MethodGet, base+"/databases", nil, nil, map[string]string{
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

// CreateDatabase creates a cluster database via the control plane.
func (b *CloudDedicatedBackend) CreateDatabase(ctx context.Context, name string) error {
	ep, base, err := b.managementBase()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeInvalidArgument,
			"failed to encode create database request")
	}

	_, err = b.roundTrip(ctx, http.MethodPost, base+"/databases", nil, payload, map[string]string{
		"Authorization": ep.AuthHeader(),
		"Content-Type":  "application/json",
	})
	return err
}

// DeleteDatabase deletes a cluster database via the control plane.
func (b *CloudDedicatedBackend) DeleteDatabase(ctx context.Context, name string) error {
	ep, base, err := b.managementBase()
	if err != nil {
		return err
	}

	_, err = b.roundTrip(ctx, http.MethodDelete, base+"/databases/"+url.PathEscape(name), nil, nil, map[string]string{
		"Authorization": ep.AuthHeader(),
	})
	return err
}

// cloudToken is the control-plane token descriptor wire form.
type cloudToken struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	AccessToken string `json:"accessToken"`
	CreatedAt   string `json:"createdAt"`
	ExpiresAt   string `json:"expiresAt"`
}

func (t *cloudToken) toToken() *backend.Token {
	return &backend.Token{
		ID:          t.ID,
		Description: t.Description,
		Secret:      t.AccessToken,
		CreatedAt:   t.CreatedAt,
		ExpiresAt:   t.ExpiresAt,
	}
}

// ListTokens fetches the database token list. Secrets are not present in
// list responses; only creation reveals them.
func (b *CloudDedicatedBackend) ListTokens(ctx context.Context) (interface{}, error) {
	ep, base, err := b.managementBase()
	if err != nil {
		return nil, err
	}

	body, err := b.roundTrip(ctx, http.MethodGet, base+"/tokens", nil, nil, map[string]string{
		"Authorization": ep.AuthHeader(),
		"Accept":        "application/json",
	})
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeMalformedResponse,
			"token list response is not valid JSON")
	}
	return decoded, nil
}

// GetToken fetches one token descriptor by id.
func (b *CloudDedicatedBackend) GetToken(ctx context.Context, id string) (*backend.Token, error) {
	ep, base, err := b.managementBase()
	if err != nil {
		return nil, err
	}

	body, err := b.roundTrip(ctx, http.MethodGet, base+"/tokens/"+url.PathEscape(id), nil, nil, map[string]string{
		"Authorization": ep.AuthHeader(),
		"Accept":        "application/json",
	})
	if err != nil {
		return nil, err
	}

	var token cloudToken
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeMalformedResponse,
			"token response is not valid JSON")
	}
	return token.toToken(), nil
}

// CreateToken mints a database token. The access token in the response is
// revealed exactly once and never logged.
func (b *CloudDedicatedBackend) CreateToken(ctx context.Context, req backend.CloudTokenRequest) (*backend.Token, error) {
	ep, base, err := b.managementBase()
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeInvalidArgument,
			"failed to encode create token request")
	}

	body, err := b.roundTrip(ctx, http.MethodPost, base+"/tokens", nil, payload, map[string]string{
		"Authorization": ep.AuthHeader(),
		"Content-Type":  "application/json",
		"Accept":        "application/json",
	})
	if err != nil {
		return nil, err
	}

	var token cloudToken
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeMalformedResponse,
			"token response is not valid JSON")
	}
	return token.toToken(), nil
}

// UpdateToken updates a token's description or permissions.
func (b *CloudDedicatedBackend) UpdateToken(ctx context.Context, id string, req backend.CloudTokenRequest) (*backend.Token, error) {
	ep, base, err := b.managementBase()
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeInvalidArgument,
			"failed to encode update token request")
	}

	body, err := b.roundTrip(ctx, http.MethodPatch, base+"/tokens/"+url.PathEscape(id), nil, payload, map[string]string{
		"Authorization": ep.AuthHeader(),
		"Content-Type":  "application/json",
		"Accept":        "application/json",
	})
	if err != nil {
		return nil, err
	}

	var token cloudToken
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeMalformedResponse,
			"token response is not valid JSON")
	}
	return token.toToken(), nil
}

// DeleteToken revokes a token by id.
func (b *CloudDedicatedBackend) DeleteToken(ctx context.Context, id string) error {
	ep, base, err := b.managementBase()
	if err != nil {
		return err
	}

	_, err = b.roundTrip(ctx, http.MethodDelete, base+"/tokens/"+url.PathEscape(id), nil, nil, map[string]string{
		"Authorization": ep.AuthHeader(),
	})
	return err
}
