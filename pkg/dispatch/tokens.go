package dispatch

import (
	"context"
	"strconv"

	"github.com/tsbridge/tsbridge/pkg/backend"
	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
	"github.com/tsbridge/tsbridge/pkg/metrics"
)

// TokenSummary describes an existing token without its secret value.
type TokenSummary struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// adminPermissions is the unrestricted grant in system.tokens.
const adminPermissions = "*:*:*"

// selfHostedTokens returns a management-capable backend and its token API,
// or an unsupported-operation error on any variant without one.
func (d *Dispatcher) selfHostedTokens() (backend.Backend, backend.SelfHostedTokenAPI, error) {
	b, err := d.requireManagement()
	if err != nil {
		return nil, nil, err
	}
	api, ok := b.(backend.SelfHostedTokenAPI)
	if !ok {
		return nil, nil, bridgeerrors.Newf(bridgeerrors.ErrorTypeUnsupported,
			"variant %q does not support server token administration", d.conn.Config().Variant)
	}
	return b, api, nil
}

// CreateAdminToken mints an admin token. The secret appears once in the
// returned descriptor and is neither logged nor cached by this layer.
func (d *Dispatcher) CreateAdminToken(ctx context.Context) (token *backend.Token, err error) {
	defer d.observe("create_admin_token", metrics.NewTimer(), &err)

	_, api, err := d.selfHostedTokens()
	if err != nil {
		return nil, err
	}

	token, err = api.CreateAdminToken(ctx)
	if err != nil {
		return nil, bridgeerrors.Normalize(err)
	}
	return token, nil
}

// RegenerateOperatorToken rotates the operator token, invalidating the
// previous one immediately. One-shot and irreversible.
func (d *Dispatcher) RegenerateOperatorToken(ctx context.Context) (token *backend.Token, err error) {
	defer d.observe("regenerate_operator_token", metrics.NewTimer(), &err)

	_, api, err := d.selfHostedTokens()
	if err != nil {
		return nil, err
	}

	token, err = api.RegenerateOperatorToken(ctx)
	if err != nil {
		return nil, bridgeerrors.Normalize(err)
	}
	return token, nil
}

// CreateResourceToken mints a token scoped to specific databases.
func (d *Dispatcher) CreateResourceToken(ctx context.Context, name string, grants []backend.ResourceGrant, expirySeconds int) (token *backend.Token, err error) {
	defer d.observe("create_resource_token", metrics.NewTimer(), &err)

	if name == "" {
		return nil, bridgeerrors.New(bridgeerrors.ErrorTypeInvalidArgument,
			"token name is required")
	}

	_, api, err := d.selfHostedTokens()
	if err != nil {
		return nil, err
	}

	token, err = api.CreateResourceToken(ctx, name, grants, expirySeconds)
	if err != nil {
		return nil, bridgeerrors.Normalize(err)
	}
	return token, nil
}

// DeleteServerToken removes a self-hosted token by name.
func (d *Dispatcher) DeleteServerToken(ctx context.Context, name string) (err error) {
	defer d.observe("delete_server_token", metrics.NewTimer(), &err)

	if name == "" {
		return bridgeerrors.New(bridgeerrors.ErrorTypeInvalidArgument,
			"token name is required")
	}

	_, api, err := d.selfHostedTokens()
	if err != nil {
		return err
	}

	if err := api.DeleteToken(ctx, name); err != nil {
		return bridgeerrors.Normalize(err)
	}
	return nil
}

// ListAdminTokens lists tokens carrying the unrestricted grant. Self-hosted
// servers expose tokens through SQL introspection, so this rides the query
// path rather than a dedicated REST endpoint.
func (d *Dispatcher) ListAdminTokens(ctx context.Context) (tokens []TokenSummary, err error) {
	defer d.observe("list_admin_tokens", metrics.NewTimer(), &err)
	return d.listServerTokens(ctx, true)
}

// ListResourceTokens lists tokens scoped to specific resources.
func (d *Dispatcher) ListResourceTokens(ctx context.Context) (tokens []TokenSummary, err error) {
	defer d.observe("list_resource_tokens", metrics.NewTimer(), &err)
	return d.listServerTokens(ctx, false)
}

func (d *Dispatcher) listServerTokens(ctx context.Context, admin bool) ([]TokenSummary, error) {
	// Token introspection exists only on self-hosted servers
	b, _, err := d.selfHostedTokens()
	if err != nil {
		return nil, err
	}

	operator := "!="
	if admin {
		operator = "="
	}
	query := "SELECT id, name, created_at, expiry FROM system.tokens " +
		"WHERE permissions " + operator + " " + quoteString(adminPermissions) +
		" ORDER BY name"

	result, err := b.Query(ctx, backend.QueryRequest{
		SQL:    query,
		Format: backend.FormatJSON,
	})
	if err != nil {
		return nil, bridgeerrors.Normalize(err)
	}

	tokens := make([]TokenSummary, 0, len(result.Rows))
	for _, row := range result.Rows {
		summary := TokenSummary{}
		summary.ID = stringField(row, "id")
		summary.Name = stringField(row, "name")
		summary.CreatedAt = stringField(row, "created_at")
		summary.ExpiresAt = stringField(row, "expiry")
		tokens = append(tokens, summary)
	}
	return tokens, nil
}

// stringField renders a row field as a string, tolerating numeric ids.
func stringField(row map[string]interface{}, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case float64:
		return formatNumber(v)
	default:
		return ""
	}
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
