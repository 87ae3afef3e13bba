package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/profile"
)

// ProfileInfo is the output of profile show.
type ProfileInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Path      string    `json:"path"`
	Persisted bool      `json:"persisted"`
}

// NewProfileCommand creates the profile command group.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage the browser profile that scopes the local cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the profile id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(nil)
			if err != nil {
				return err
			}
			p, found := profile.Load(cfg.ProfilePath)
			return printProfile(cmd, rootOpts, cfg.ProfilePath, p, found)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Replace the profile with a new one; the old cache entries are orphaned",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(nil)
			if err != nil {
				return err
			}
			p := profile.New()
			if err := profile.Save(cfg.ProfilePath, p); err != nil {
				return WrapExitError(ExitFailure, "save profile", err)
			}
			return printProfile(cmd, rootOpts, cfg.ProfilePath, p, true)
		},
	})

	return cmd
}

func printProfile(cmd *cobra.Command, opts *RootOptions, path string, p profile.Profile, found bool) error {
	if resolved, err := profile.ExpandPath(path); err == nil {
		path = resolved
	}
	info := ProfileInfo{ID: p.ID, CreatedAt: p.CreatedAt, Path: path, Persisted: found}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), info)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "id:         %s\n", info.ID)
	fmt.Fprintf(cmd.OutOrStdout(), "created_at: %s\n", info.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(cmd.OutOrStdout(), "path:       %s\n", info.Path)
	if !found {
		fmt.Fprintln(cmd.OutOrStdout(), "(not persisted yet; created on first serve)")
	}
	return nil
}
