package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tsbridge/tsbridge/pkg/backend"
	"github.com/tsbridge/tsbridge/pkg/config"
	"github.com/tsbridge/tsbridge/pkg/connection"
	"github.com/tsbridge/tsbridge/pkg/dispatch"
	"github.com/tsbridge/tsbridge/pkg/logger"

	// Import the backends to register them
	_ "github.com/tsbridge/tsbridge/pkg/backend/clouddedicated"
	_ "github.com/tsbridge/tsbridge/pkg/backend/selfhosted"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TSBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var configFile, variantFlag, logLevel string

	root := &cobra.Command{
		Use:   "tsbridge",
		Short: "tsbridge - unified client for InfluxDB 3 product variants",
		Long: `tsbridge resolves endpoints and credentials for the InfluxDB 3 product
variants (core, enterprise, cloud-dedicated) and dispatches queries, writes
and administrative operations through a single uniform surface.`,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&variantFlag, "variant", "", "Product variant (core, enterprise, cloud-dedicated)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	loadCfg := func() (*config.Config, error) {
		return loadConfig(v, configFile, variantFlag, logLevel)
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tsbridge v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	defer logger.Sync() //nolint:errcheck

	root.AddCommand(newConfigCmd(&variantFlag))
	root.AddCommand(newQueryCmd(loadCfg))
	root.AddCommand(newWriteCmd(loadCfg))
	root.AddCommand(newDatabasesCmd(loadCfg))
	root.AddCommand(newTokensCmd(loadCfg))
	root.AddCommand(newPingCmd(loadCfg))
	root.AddCommand(newHealthCmd(loadCfg))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig assembles the effective configuration: file values first, then
// TSBRIDGE_* environment variables, then explicit flags.
func loadConfig(v *viper.Viper, configFile, variantFlag, logLevel string) (*config.Config, error) {
	cfg := config.NewConfig(config.ProductVariant(v.GetString("variant")))

	if configFile != "" {
		if err := config.Load(configFile, cfg); err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
	}

	if s := v.GetString("url"); s != "" {
		cfg.URL = s
	}
	if s := v.GetString("cluster_id"); s != "" {
		cfg.ClusterID = s
	}
	if s := v.GetString("account_id"); s != "" {
		cfg.AccountID = s
	}
	if s := v.GetString("data_token"); s != "" {
		cfg.DataToken = s
	}
	if s := v.GetString("management_token"); s != "" {
		cfg.ManagementToken = s
	}
	if s := v.GetString("data_domain"); s != "" {
		cfg.DataDomain = s
	}
	if s := v.GetString("management_url"); s != "" {
		cfg.ManagementURL = s
	}
	if s := v.GetString("log_level"); s != "" {
		cfg.Observability.LogLevel = s
	}
	if variantFlag != "" {
		cfg.Variant = config.ProductVariant(variantFlag)
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	encoding := "json"
	if cfg.Observability.Development {
		encoding = "console"
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Development: cfg.Observability.Development,
		Encoding:    encoding,
	}); err != nil {
		return nil, fmt.Errorf("logging configuration error: %w", err)
	}
	return cfg, nil
}

type configLoader func() (*config.Config, error)

// newDispatcher builds the connection context and dispatcher for one command
// invocation. The caller owns the returned close function.
func newDispatcher(load configLoader) (*dispatch.Dispatcher, func(), error) {
	cfg, err := load()
	if err != nil {
		return nil, nil, err
	}
	conn := connection.New(cfg)
	return dispatch.New(conn), func() { _ = conn.Close() }, nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Minute)
}

func printJSON(value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// newConfigCmd provides "config init", which writes a starter tsbridge.yaml
// with the defaults for the chosen variant filled in.
func newConfigCmd(variantFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tsbridge configuration files",
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			variant := config.VariantCore
			if *variantFlag != "" {
				variant = config.ProductVariant(*variantFlag)
			}
			if !variant.Known() {
				return fmt.Errorf("unknown variant %q", variant)
			}
			if _, err := os.Stat(output); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", output)
			}
			if err := config.Save(output, config.NewConfig(variant)); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "tsbridge.yaml", "Path for the generated file")
	cmd.AddCommand(initCmd)

	return cmd
}

func newQueryCmd(load configLoader) *cobra.Command {
	var database, format string

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a SQL query against the data plane",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			result, err := d.ExecuteQuery(ctx, args[0], database, dispatch.QueryOptions{
				Format: backend.QueryFormat(format),
			})
			if err != nil {
				return err
			}
			if result.Rows != nil {
				return printJSON(result.Rows)
			}
			_, err = os.Stdout.Write(result.Raw)
			return err
		},
	}
	cmd.Flags().StringVarP(&database, "database", "d", "", "Target database (required)")
	cmd.Flags().StringVar(&format, "format", "json", "Response format (json, jsonl, csv, parquet)")
	_ = cmd.MarkFlagRequired("database")
	return cmd
}

func newWriteCmd(load configLoader) *cobra.Command {
	var database, precision, file string
	var acceptPartial, noSync bool

	cmd := &cobra.Command{
		Use:   "write [line-protocol]",
		Short: "Write line protocol to the data plane",
		Long: `Write line protocol to the data plane. The payload comes from the
argument, or from --file, or from stdin when neither is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(args, file)
			if err != nil {
				return err
			}

			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			return d.WriteLineProtocol(ctx, payload, database, dispatch.WriteOptions{
				Precision:     precision,
				AcceptPartial: acceptPartial,
				NoSync:        noSync,
			})
		},
	}
	cmd.Flags().StringVarP(&database, "database", "d", "", "Target database (required)")
	cmd.Flags().StringVar(&precision, "precision", "", "Timestamp precision (ns, us, ms, s)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the payload from a file")
	cmd.Flags().BoolVar(&acceptPartial, "accept-partial", false, "Keep valid lines when some fail")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Acknowledge before fsync")
	_ = cmd.MarkFlagRequired("database")
	return cmd
}

func readPayload(args []string, file string) ([]byte, error) {
	if len(args) == 1 {
		return []byte(args[0]), nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file %s: %w", file, err)
		}
		return data, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
	}
	return data, nil
}

func newDatabasesCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "databases",
		Short: "Manage databases",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			databases, err := d.ListDatabases(ctx)
			if err != nil {
				return err
			}
			for _, db := range databases {
				fmt.Println(db.Name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			if err := d.CreateDatabase(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("database %q created\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a database and all of its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			if err := d.DeleteDatabase(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("database %q deleted\n", args[0])
			return nil
		},
	})

	return cmd
}

func newTokensCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage tokens",
	}
	cmd.AddCommand(newServerTokensCmd(load))
	cmd.AddCommand(newClusterTokensCmd(load))
	return cmd
}

// newServerTokensCmd covers the core/enterprise token surface.
func newServerTokensCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Manage core/enterprise server tokens",
	}

	var expirySeconds int
	var grantsSpec string

	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin token",
		Long: `Create an admin token. The token value is printed exactly once and cannot
be retrieved again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			token, err := d.CreateAdminToken(ctx)
			if err != nil {
				return err
			}
			return printJSON(token)
		},
	}
	cmd.AddCommand(createAdmin)

	cmd.AddCommand(&cobra.Command{
		Use:   "regenerate-operator",
		Short: "Regenerate the operator token",
		Long: `Regenerate the operator token. The previous operator token is invalidated
and the new value is printed exactly once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			token, err := d.RegenerateOperatorToken(ctx)
			if err != nil {
				return err
			}
			return printJSON(token)
		},
	})

	createResource := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a scoped resource token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grants, err := parseGrants(grantsSpec)
			if err != nil {
				return err
			}

			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			token, err := d.CreateResourceToken(ctx, args[0], grants, expirySeconds)
			if err != nil {
				return err
			}
			return printJSON(token)
		},
	}
	createResource.Flags().StringVar(&grantsSpec, "grants", "", `Comma-separated db:action grants, e.g. "mydb:read,mydb:write" (required)`)
	createResource.Flags().IntVar(&expirySeconds, "expiry", 0, "Token lifetime in seconds (0 for no expiry)")
	_ = createResource.MarkFlagRequired("grants")
	cmd.AddCommand(createResource)

	cmd.AddCommand(&cobra.Command{
		Use:   "list-admin",
		Short: "List admin tokens",
		RunE:  listTokensRunE(load, (*dispatch.Dispatcher).ListAdminTokens),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List scoped resource tokens",
		RunE:  listTokensRunE(load, (*dispatch.Dispatcher).ListResourceTokens),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a token by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			if err := d.DeleteServerToken(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("token %q deleted\n", args[0])
			return nil
		},
	})

	return cmd
}

// newClusterTokensCmd covers the cloud-dedicated token surface.
func newClusterTokensCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Manage cloud-dedicated cluster tokens",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cluster tokens",
		RunE:  listTokensRunE(load, (*dispatch.Dispatcher).ListTokens),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show one cluster token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			token, err := d.GetToken(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(token)
		},
	})

	var description string
	var permissionsSpec string

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a cluster token",
		Long: `Create a cluster database token. The access token is printed exactly once
and cannot be retrieved again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			perms, err := parsePermissions(permissionsSpec)
			if err != nil {
				return err
			}

			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			token, err := d.CreateToken(ctx, backend.CloudTokenRequest{
				Description: description,
				Permissions: perms,
			})
			if err != nil {
				return err
			}
			return printJSON(token)
		},
	}
	create.Flags().StringVar(&description, "description", "", "Token description (required)")
	create.Flags().StringVar(&permissionsSpec, "permissions", "", `Comma-separated action:db permissions, e.g. "read:mydb,write:mydb"`)
	_ = create.MarkFlagRequired("description")
	cmd.AddCommand(create)

	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a cluster token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perms, err := parsePermissions(permissionsSpec)
			if err != nil {
				return err
			}

			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			token, err := d.UpdateToken(ctx, args[0], backend.CloudTokenRequest{
				Description: description,
				Permissions: perms,
			})
			if err != nil {
				return err
			}
			return printJSON(token)
		},
	}
	update.Flags().StringVar(&description, "description", "", "New token description")
	update.Flags().StringVar(&permissionsSpec, "permissions", "", `Comma-separated action:db permissions`)
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke a cluster token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			if err := d.DeleteToken(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("token %q revoked\n", args[0])
			return nil
		},
	})

	return cmd
}

func listTokensRunE(load configLoader, list func(*dispatch.Dispatcher, context.Context) ([]dispatch.TokenSummary, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		d, done, err := newDispatcher(load)
		if err != nil {
			return err
		}
		defer done()

		ctx, cancel := commandContext()
		defer cancel()

		tokens, err := list(d, ctx)
		if err != nil {
			return err
		}
		return printJSON(tokens)
	}
}

func newPingCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check whether the backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			result := d.Connection().Ping(ctx)
			if err := printJSON(result); err != nil {
				return err
			}
			if !result.OK {
				os.Exit(1)
			}
			return nil
		},
	}
}

func newHealthCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report backend health status",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, done, err := newDispatcher(load)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext()
			defer cancel()

			result := d.Connection().HealthStatus(ctx)
			if err := printJSON(result); err != nil {
				return err
			}
			if result.Status == "fail" {
				os.Exit(1)
			}
			return nil
		},
	}
}

// parseGrants parses "db:action" pairs into resource grants, merging actions
// for the same database.
func parseGrants(raw string) ([]backend.ResourceGrant, error) {
	byDB := map[string]*backend.ResourceGrant{}
	var order []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		db, action, ok := strings.Cut(part, ":")
		if !ok || db == "" || action == "" {
			return nil, fmt.Errorf("invalid grant %q, expected db:action", part)
		}
		grant, seen := byDB[db]
		if !seen {
			grant = &backend.ResourceGrant{Database: db}
			byDB[db] = grant
			order = append(order, db)
		}
		grant.Actions = append(grant.Actions, action)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("at least one grant is required")
	}
	grants := make([]backend.ResourceGrant, 0, len(order))
	for _, db := range order {
		grants = append(grants, *byDB[db])
	}
	return grants, nil
}

// parsePermissions parses "action:db" pairs into cluster token permissions.
func parsePermissions(raw string) ([]backend.TokenPermission, error) {
	var perms []backend.TokenPermission
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		action, resource, ok := strings.Cut(part, ":")
		if !ok || action == "" || resource == "" {
			return nil, fmt.Errorf("invalid permission %q, expected action:db", part)
		}
		perms = append(perms, backend.TokenPermission{Action: action, Resource: resource})
	}
	return perms, nil
}
