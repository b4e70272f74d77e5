// Package cli implements the indexsync command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/syntrixbase/indexsync/internal/config"
	"github.com/syntrixbase/indexsync/internal/logging"
	"github.com/syntrixbase/indexsync/internal/metrics"
	"github.com/syntrixbase/indexsync/internal/reconcile"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose int
	Quiet   int
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "indexsync",
		Short: "Reconcile a Solr index against the Fedora resource index",
		Long: `indexsync compares the objects known to an authority index with the
documents of a derived search index and asks the indexing service to
update or delete whatever is out of date.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().CountVarP(&opts.Verbose, "verbose", "v", "more output, repeatable")
	cmd.PersistentFlags().CountVarP(&opts.Quiet, "quiet", "q", "less output, repeatable")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewReindexCommand(opts))

	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	code := GetExitCode(err)
	if err != nil && code != ExitUpdated {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if code == ExitConfig {
			fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
		}
	}
	return code
}

// setup loads configuration and builds the logger shared by all commands.
// overrides applies command-line flags after the file and environment.
func setup(cmd *cobra.Command, root *RootOptions, path string, overrides func(*config.Config), validate func(*config.Config) error) (*reconcile.Runner, io.Closer, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitConfig, "failed to load configuration", err)
	}
	overrides(cfg)
	logging.ApplyVerbosity(&cfg.Logging, root.Verbose, root.Quiet)

	if err := validate(cfg); err != nil {
		return nil, nil, WrapExitError(ExitConfig, "invalid configuration", err)
	}

	logger, closer, err := logging.NewLogger(cfg.Logging, logging.WithConsole(cmd.ErrOrStderr()))
	if err != nil {
		return nil, nil, WrapExitError(ExitFatal, "failed to set up logging", err)
	}
	logger.Debug("configuration loaded", "config_file", path)

	runner := reconcile.New(cfg,
		reconcile.WithLogger(logger),
		reconcile.WithMetrics(metrics.New()),
	)
	return runner, closer, nil
}
