package cli

import (
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/app"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/logger"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync agent and its local API",
		Long: `Run the sync agent. The storefront page reports connectivity and
identity to the local API and reads both collections from it.

Examples:
  cartsync serve
  cartsync serve --port 8091 --cache-backend sqlite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "HTTP port (overrides SYNC_HTTP_PORT)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	extra := map[string]string{}
	if opts.Port != 0 {
		extra["SYNC_HTTP_PORT"] = strconv.Itoa(opts.Port)
	}
	cfg, err := opts.loadConfig(extra)
	if err != nil {
		return err
	}

	log := logger.New(app.ServiceName, cfg.LogLevel)
	log.Info("starting cartsync",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("cache_backend", cfg.CacheBackend),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		return WrapExitError(ExitCommandError, "initialize application", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := application.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "run application", err)
	}

	log.Info("cartsync stopped")
	return nil
}
