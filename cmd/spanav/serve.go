package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/architech/spanav/internal/config"
	"github.com/architech/spanav/internal/devserver"
	spamw "github.com/architech/spanav/pkg/middleware"
)

type serveOptions struct {
	port    int
	host    string
	root    string
	noWatch bool
}

func serveCmd(flags *globalFlags) *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the preview server",
		Long: `Start the preview server for a static site.

Every open tab is driven by its own router over a WebSocket, so links
navigate in place exactly as they will in production. Pages changed on
disk are dropped from the tabs' caches.

Examples:
  spanav serve
  spanav serve --root=dist --port=8080
  spanav serve --config=spanav.yaml --log-level=debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Port to run on (default from config)")
	cmd.Flags().StringVarP(&opts.host, "host", "H", "", "Host to bind to (default from config)")
	cmd.Flags().StringVarP(&opts.root, "root", "r", "", "Site directory (default from config)")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not watch site files")

	return cmd
}

func runServe(cmd *cobra.Command, flags *globalFlags, opts serveOptions) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	applyServeOverrides(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := setupLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	// Tabs talk to the preview host, not the production origin.
	rc := routerConfig(cfg)
	rc.Origin = ""

	srvOpts := devserver.Options{
		Config:  cfg,
		Router:  rc,
		Tracing: spamw.NewTracing(),
		Logger:  logger,
	}
	if cfg.Transport.Kind == config.TransportS3 {
		srvOpts.Transport = newTransport(cfg)
	}

	srv, err := devserver.New(srvOpts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	success("Preview server running at %s", cfg.DevURL())
	info("Site root: %s", cfg.RootPath())
	if cfg.Metrics.Enabled {
		info("Metrics:   %s%s", cfg.DevURL(), cfg.Metrics.Path)
	}
	info("API:       %s%s", cfg.DevURL(), devserver.APIPrefix+"/openapi.json")

	return srv.Start(ctx)
}

func applyServeOverrides(cfg *config.Config, opts serveOptions) {
	if opts.port > 0 {
		cfg.Dev.Port = opts.port
	}
	if opts.host != "" {
		cfg.Dev.Host = opts.host
	}
	if opts.root != "" {
		cfg.Dev.Root = opts.root
	}
	if opts.noWatch {
		cfg.Dev.Watch = false
	}
}
