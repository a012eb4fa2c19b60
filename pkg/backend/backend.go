// Package backend defines the variant-independent backend contract for
// tsbridge. Each supported deployment variant (self-hosted Core/Enterprise,
// Cloud-Dedicated) provides one Backend implementation; the operation
// dispatchers hold exactly one instance, selected at startup, and never
// branch on the product variant themselves.
package backend

import (
	"context"

	"github.com/tsbridge/tsbridge/pkg/config"
)

// QueryFormat selects the response encoding for a query.
type QueryFormat string

const (
	FormatJSON    QueryFormat = "json"
	FormatJSONL   QueryFormat = "jsonl"
	FormatCSV     QueryFormat = "csv"
	FormatParquet QueryFormat = "parquet"
)

// AcceptHeader returns the Accept MIME type for the format. Unknown formats
// negotiate JSON.
func (f QueryFormat) AcceptHeader() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	case FormatJSONL:
		return "application/jsonl"
	default:
		return "application/json"
	}
}

// QueryRequest describes one SQL query against the data plane.
type QueryRequest struct {
	SQL      string
	Database string
	Format   QueryFormat
}

// QueryResult carries a query response. Rows is populated for JSON-decoded
// results; Raw carries the payload verbatim for the other formats. Exactly
// one of the two is set.
type QueryResult struct {
	Rows        []map[string]interface{}
	Raw         []byte
	ContentType string
}

// WriteRequest describes one line-protocol write. The payload is transmitted
// verbatim; this layer never parses line-protocol text.
type WriteRequest struct {
	Payload       []byte
	Database      string
	Precision     string
	AcceptPartial bool
	NoSync        bool
}

// Token describes a credential returned by a token lifecycle operation. The
// secret value is present only on the single creation/regeneration response
// and must not be logged or cached.
type Token struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Secret      string `json:"token,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// ResourceGrant scopes a resource token to one database.
type ResourceGrant struct {
	Database string   `json:"db"`
	Actions  []string `json:"actions"`
}

// TokenPermission is a cloud-dedicated token permission entry.
type TokenPermission struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

// CloudTokenRequest describes a cloud-dedicated token create/update.
type CloudTokenRequest struct {
	Description string            `json:"description,omitempty"`
	Permissions []TokenPermission `json:"permissions,omitempty"`
}

// Backend is the variant-specific request issuer. List operations return the
// decoded response body without shape normalization: legacy servers disagree
// on the envelope, and the dispatch layer owns the ordered shape probing.
type Backend interface {
	Variant() config.ProductVariant

	// ResolveEndpoint recomputes the (host, credential) pair for a request
	// kind from configuration. Never cached between calls.
	ResolveEndpoint(kind RequestKind) (*Endpoint, error)

	// Query executes SQL against the data plane.
	Query(ctx context.Context, req QueryRequest) (*QueryResult, error)

	// Write transmits a line-protocol payload to the data plane.
	Write(ctx context.Context, req WriteRequest) error

	// Database lifecycle, routed to the management plane.
	ListDatabases(ctx context.Context) (interface{}, error)
	CreateDatabase(ctx context.Context, name string) error
	DeleteDatabase(ctx context.Context, name string) error

	// Ping issues a minimal read probe against the data endpoint.
	Ping(ctx context.Context) error

	// Health reports the backend's own health status payload.
	Health(ctx context.Context) (map[string]interface{}, error)

	// Close releases any transport resources held by the backend.
	Close() error
}

// SelfHostedTokenAPI is implemented by the core/enterprise backend. Creation
// and regeneration reveal the token secret exactly once.
type SelfHostedTokenAPI interface {
	CreateAdminToken(ctx context.Context) (*Token, error)
	RegenerateOperatorToken(ctx context.Context) (*Token, error)
	CreateResourceToken(ctx context.Context, name string, grants []ResourceGrant, expirySeconds int) (*Token, error)
	DeleteToken(ctx context.Context, name string) error
}

// CloudTokenAPI is implemented by the cloud-dedicated backend and routed to
// the control plane.
type CloudTokenAPI interface {
	ListTokens(ctx context.Context) (interface{}, error)
	GetToken(ctx context.Context, id string) (*Token, error)
	CreateToken(ctx context.Context, req CloudTokenRequest) (*Token, error)
	UpdateToken(ctx context.Context, id string, req CloudTokenRequest) (*Token, error)
	DeleteToken(ctx context.Context, id string) error
}
