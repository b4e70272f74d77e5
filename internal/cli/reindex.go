package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syntrixbase/indexsync/internal/config"
	"github.com/syntrixbase/indexsync/pkg/model"
)

// ReindexOptions holds the flags of the reindex command.
type ReindexOptions struct {
	ConfigFile  string
	GSearch     string
	GSearchUser string
	GSearchPass string
}

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReindexOptions{}
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Reindex the objects listed in CSV read from stdin",
		Long: `Read CSV rows from stdin and ask GSearch to reindex the object named in
the first column of each row. Values that are not object identifiers
are skipped.

Exit code is 1 if a reindex was attempted and 0 otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(cmd, rootOpts, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.GSearch, "gsearch", defaults.Manager.URL, "URL of the GSearch REST endpoint")
	f.StringVar(&opts.GSearchUser, "gsearch-user", defaults.Manager.Auth.Username, "username for GSearch")
	f.StringVar(&opts.GSearchPass, "gsearch-pass", defaults.Manager.Auth.Password, "password for GSearch")
	f.StringVar(&opts.ConfigFile, "config-file", "", "read settings from a YAML, TOML or JSON file")

	return cmd
}

func runReindex(cmd *cobra.Command, root *RootOptions, opts *ReindexOptions) error {
	runner, closer, err := setup(cmd, root, opts.ConfigFile, func(cfg *config.Config) {
		applyGSearchFlags(cmd, cfg, opts.GSearch, opts.GSearchUser, opts.GSearchPass)
	}, validateReindex)
	if err != nil {
		return err
	}
	defer closer.Close()

	report, err := runner.Reindex(cmd.Context(), cmd.InOrStdin())
	if err != nil {
		return runError("reindex failed", err)
	}
	if report.Updated {
		return updatedError()
	}
	return nil
}

// validateReindex checks only what reindex uses; no sources or window.
func validateReindex(cfg *config.Config) error {
	for _, s := range []config.Section{&cfg.Manager, &cfg.Logging, &cfg.Metrics} {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: %v", model.ErrInvalidConfig, err)
		}
	}
	return nil
}
