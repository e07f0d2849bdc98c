package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/augmentcode/auggie-index/internal/indexer"
	"github.com/augmentcode/auggie-index/internal/logging"
	"github.com/augmentcode/auggie-index/internal/server"
	"github.com/augmentcode/auggie-index/internal/webhook"
)

// serveOptions holds the CLI flags for serve.
type serveOptions struct {
	transport  string
	addr       string
	searchOnly bool
	cors       []string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search/list/read tools over MCP",
		Long: `Serve the tools over stdio (single consumer) or HTTP (multi-index).

The HTTP surface optionally requires a bearer token (AUGGIE_API_KEY)
and, when AUGGIE_WEBHOOK_SECRET is set, accepts GitHub push webhooks
at /webhook to keep repository indexes current.

Examples:
  auggie-index serve
  auggie-index serve --transport http --addr :8377 --cors https://app.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "", "Transport: stdio or http (default from config)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default from config)")
	cmd.Flags().BoolVar(&opts.searchOnly, "search-only", false, "Advertise only the search tool")
	cmd.Flags().StringSliceVar(&opts.cors, "cors", nil, "Allowed CORS origins for the HTTP surface")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireEngineCreds(cfg); err != nil {
		return err
	}
	if opts.transport != "" {
		cfg.Server.Transport = opts.transport
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.searchOnly {
		cfg.Server.SearchOnly = true
	}
	if len(opts.cors) > 0 {
		cfg.Server.CORSOrigins = opts.cors
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Store:         st,
		EngineFactory: engineFactory(),
		APIToken:      cfg.Engine.APIToken,
		APIURL:        cfg.Engine.APIURL,
		SearchOnly:    cfg.Server.SearchOnly,
	})
	if err != nil {
		return err
	}

	if cfg.Server.Transport == "stdio" {
		// stdout belongs to JSON-RPC in stdio mode; route all logging
		// to the server log file before the first protocol byte.
		_, cleanup, err := logging.Quiet(cfg.Logging.Level)
		if err != nil {
			return err
		}
		defer cleanup()
		return srv.ServeStdio(ctx)
	}

	ix, err := indexer.New(indexer.Config{
		Factory:  engineFactory(),
		APIToken: cfg.Engine.APIToken,
		APIURL:   cfg.Engine.APIURL,
	})
	if err != nil {
		return err
	}

	httpCfg := server.HTTPConfig{
		APIKey:      cfg.Server.APIKey,
		CORSOrigins: cfg.Server.CORSOrigins,
		Writer:      st,
		Indexer:     ix,
	}
	if cfg.Server.WebhookSecret != "" {
		httpCfg.Webhook = webhook.New(webhook.Config{
			Secret:  cfg.Server.WebhookSecret,
			Indexer: ix,
			Store:   st,
		})
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.HTTPHandler(httpCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving MCP over HTTP", slog.String("addr", cfg.Server.Addr))
	if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
