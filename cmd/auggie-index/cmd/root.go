// Package cmd provides the CLI commands for auggie-index.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/config"
	"github.com/augmentcode/auggie-index/internal/contextengine"
	"github.com/augmentcode/auggie-index/internal/logging"
	"github.com/augmentcode/auggie-index/internal/store"
	"github.com/augmentcode/auggie-index/internal/store/localdir"
	"github.com/augmentcode/auggie-index/internal/store/objectstore"
	"github.com/augmentcode/auggie-index/pkg/version"
)

var (
	debugMode      bool
	storePathFlag  string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the auggie-index CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auggie-index",
		Short: "Semantic search indexes over code, docs, and websites",
		Long: `auggie-index builds and maintains semantic search indexes over
local directories, hosted Git repositories, and crawled websites,
and serves typed search/list/read tools over MCP (stdio or HTTP).

Index state persists locally or in an S3-compatible object store,
so any machine with the right credentials can search or update it.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("auggie-index version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&storePathFlag, "store-path", "", "Index state directory (overrides AUGGIE_STORE_PATH)")

	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		opts := logging.Options{Level: "info", Path: logging.ServerLogPath()}
		if debugMode {
			opts.Level = "debug"
			opts.Console = true
		}
		if c.Name() == "index" {
			// Standalone indexing runs get their own log file so a
			// long-running server's log doesn't interleave with them.
			opts.Path = logging.IndexLogPath()
		}
		_, cleanup, err := logging.Setup(opts)
		if err != nil {
			return err
		}
		loggingCleanup = cleanup
		return nil
	}
	cmd.PersistentPostRun = func(c *cobra.Command, args []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(
		newIndexCmd(),
		newSearchCmd(),
		newLsCmd(),
		newCatCmd(),
		newIndexesCmd(),
		newServeCmd(),
		newLogsCmd(),
	)

	return cmd
}

// loadConfig builds the effective configuration, letting the
// --store-path flag take the highest precedence.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if storePathFlag != "" {
		cfg.Store.Path = storePathFlag
	}
	return cfg, nil
}

// openStore constructs the configured store backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Writer, error) {
	switch cfg.Store.Type {
	case config.StoreTypeLocal:
		return localdir.New(cfg.StorePath())
	case config.StoreTypeS3:
		return objectstore.New(ctx, objectstore.Config{
			Bucket:       cfg.Store.S3.Bucket,
			Prefix:       cfg.Store.S3.Prefix,
			Endpoint:     cfg.Store.S3.Endpoint,
			Region:       cfg.Store.S3.Region,
			UsePathStyle: cfg.Store.S3.UsePathStyle,
		})
	default:
		return nil, apperrors.ConfigError("unknown store type", nil).WithDetail("type", string(cfg.Store.Type))
	}
}

// requireEngineCreds fails early when the Context Engine credentials are
// missing, before any work is attempted.
func requireEngineCreds(cfg *config.Config) error {
	if cfg.Engine.APIToken == "" {
		return apperrors.ConfigError("AUGGIE_API_TOKEN is required", nil)
	}
	if cfg.Engine.APIURL == "" {
		return apperrors.ConfigError("AUGGIE_API_URL is required", nil)
	}
	return nil
}

// engineFactory returns the live Context Engine factory.
func engineFactory() contextengine.Factory {
	return contextengine.HTTPFactory{}
}
