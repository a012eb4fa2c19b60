// Package tsbridge provides a unified client layer for the InfluxDB 3 product
// variants: self-hosted Core, self-hosted Enterprise, and Cloud-Dedicated
// clusters. One configuration selects the active variant; a single operation
// surface dispatches queries, line-protocol writes, database lifecycle, and
// token administration to the right endpoints with the right credentials.
//
// # Architecture
//
// tsbridge is organized around three layers:
//
// 1. Resolution: pkg/config holds the immutable per-process configuration and
// the capability predicates; pkg/backend resolves (endpoint, credential)
// pairs per request kind as a pure function of configuration. Self-hosted
// variants use one URL and one token for everything; Cloud-Dedicated splits
// into a cluster-qualified data plane and a fixed control plane with separate
// tokens.
//
// 2. Backends: pkg/backend/selfhosted and pkg/backend/clouddedicated
// implement the variant-specific wire protocols (the /api/v3 HTTP surface;
// Arrow Flight SQL plus the v0 management API). Backends are selected once at
// startup through a factory registry and never inspected by callers.
//
// 3. Dispatch: pkg/dispatch exposes the uniform operations. Every operation
// checks its capability prerequisites before touching the network, normalizes
// response shapes, and surfaces failures through the fixed error taxonomy in
// pkg/bridgeerrors. Raw HTTP statuses never cross the dispatcher boundary.
//
// # Quick Start
//
//	import (
//	    "context"
//
//	    "github.com/tsbridge/tsbridge/pkg/config"
//	    "github.com/tsbridge/tsbridge/pkg/connection"
//	    "github.com/tsbridge/tsbridge/pkg/dispatch"
//
//	    _ "github.com/tsbridge/tsbridge/pkg/backend/selfhosted"
//	)
//
//	cfg := config.NewConfig(config.VariantCore)
//	cfg.URL = "http://localhost:8181"
//	cfg.DataToken = "apiv3_..."
//
//	conn := connection.New(cfg)
//	defer conn.Close()
//
//	d := dispatch.New(conn)
//	result, err := d.ExecuteQuery(context.Background(),
//	    "SELECT * FROM cpu LIMIT 10", "metrics", dispatch.QueryOptions{})
//
// The tsbridge command in cmd/tsbridge wraps the same surface for shell use.
package tsbridge
