// Package cli implements the cartsync command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format       string // "json" | "text"
	LogLevel     string
	CacheBackend string
	ProfilePath  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the cartsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cartsync",
		Short: "Cart and wishlist sync agent",
		Long: `cartsync keeps a storefront's cart and wishlist in sync with the remote
cart service. It serves a local API for the storefront page, caches both
collections per browser profile and applies changes optimistically.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&opts.CacheBackend, "cache-backend", "", "cache backend: memory, file, sqlite or redis (overrides SYNC_CACHE_BACKEND)")
	cmd.PersistentFlags().StringVar(&opts.ProfilePath, "profile", "", "profile file (overrides SYNC_PROFILE_PATH)")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))
	cmd.AddCommand(NewProfileCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))

	return cmd
}

// loadConfig reads the environment with flag overrides applied.
func (o *RootOptions) loadConfig(extra map[string]string) (*config.Config, error) {
	overrides := make(map[string]string, len(extra)+3)
	if o.LogLevel != "" {
		overrides["LOG_LEVEL"] = o.LogLevel
	}
	if o.CacheBackend != "" {
		overrides["SYNC_CACHE_BACKEND"] = o.CacheBackend
	}
	if o.ProfilePath != "" {
		overrides["SYNC_PROFILE_PATH"] = o.ProfilePath
	}
	for k, v := range extra {
		overrides[k] = v
	}
	cfg, err := config.LoadWith(overrides)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}
