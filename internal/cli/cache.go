package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/app"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/cache"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/profile"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/view"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/logger"
)

// CacheOptions holds flags for the cache commands.
type CacheOptions struct {
	*RootOptions
	Kind string
}

// CollectionDump is the cached state of one collection.
type CollectionDump struct {
	Kind    domain.Kind       `json:"kind"`
	Key     string            `json:"key"`
	Items   []domain.LineItem `json:"items"`
	Summary view.Summary      `json:"summary"`
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the local cache",
	}
	cmd.PersistentFlags().StringVar(&opts.Kind, "kind", "", "collection kind (cart|wishlist); all when empty")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the cached collections of this profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheShow(cmd, opts)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete the cached collections of this profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePurge(cmd, opts)
		},
	})

	return cmd
}

// withStores opens the configured backend and calls fn with one store per selected kind.
func (o *CacheOptions) withStores(ctx context.Context, fn func(kind domain.Kind, s *cache.Store) error) error {
	kinds := []domain.Kind{domain.KindCart, domain.KindWishlist}
	if o.Kind != "" {
		kind, err := domain.ParseKind(o.Kind)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --kind", err)
		}
		kinds = []domain.Kind{kind}
	}

	cfg, err := o.loadConfig(nil)
	if err != nil {
		return err
	}
	prof, _ := profile.Load(cfg.ProfilePath)
	log := logger.New(app.ServiceName, cfg.LogLevel)

	backend, closeBackend, err := app.OpenBackend(ctx, cfg, log, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "open cache", err)
	}
	defer func() { _ = closeBackend() }()

	for _, kind := range kinds {
		if err := fn(kind, cache.NewStore(backend, prof.ID, kind, log)); err != nil {
			return err
		}
	}
	return nil
}

func runCacheShow(cmd *cobra.Command, opts *CacheOptions) error {
	ctx := cmd.Context()
	var dumps []CollectionDump
	err := opts.withStores(ctx, func(kind domain.Kind, s *cache.Store) error {
		items := s.Load(ctx)
		dumps = append(dumps, CollectionDump{
			Kind:    kind,
			Key:     s.Key(),
			Items:   items,
			Summary: view.Project(kind, items),
		})
		return nil
	})
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), dumps)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, d := range dumps {
		fmt.Fprintf(w, "%s (%s): %d items, total %s\n", d.Kind, d.Key, d.Summary.Count, formatMinor(d.Summary.Total))
		for _, item := range d.Items {
			name := item.Name
			if item.Unresolved {
				name = "(unresolved)"
			}
			fmt.Fprintf(w, "  %s\t%s\tx%d\t%s\n", item.ProductID, name, item.Quantity, formatMinor(item.Price))
		}
	}
	return w.Flush()
}

func runCachePurge(cmd *cobra.Command, opts *CacheOptions) error {
	ctx := cmd.Context()
	return opts.withStores(ctx, func(kind domain.Kind, s *cache.Store) error {
		s.Purge(ctx)
		if opts.Format == "json" {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"purged": s.Key()})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", s.Key())
		return nil
	})
}

func formatMinor(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
