package cli

import (
	"github.com/spf13/cobra"

	"github.com/syntrixbase/indexsync/internal/config"
)

// DiffOptions holds the flags of the diff command. Only flags set on the
// command line override the configuration file and environment.
type DiffOptions struct {
	ConfigFile string

	RI                    string
	RIUser                string
	RIPass                string
	Solr                  string
	SolrLastModifiedField string
	KeepDocs              bool
	GSearch               string
	GSearchUser           string
	GSearchPass           string
	QueryLimit            int

	All          bool
	LastNDays    int
	LastNSeconds int
	Since        int64
}

var windowFlags = []string{"all", "last-n-days", "last-n-seconds", "since", "config-file"}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{}
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare the resource index with Solr and fix the differences",
		Long: `Compare the objects in the Fedora resource index with the documents in
Solr, ordered by last modification, and ask GSearch to reindex objects
that are missing or outdated and to drop documents whose object is gone.

Exit code is 0 if everything was up to date and 1 if corrective actions
were attempted. Runtime failures exit with 2 and configuration errors
with 3.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, rootOpts, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.RI, "ri", defaults.Authority.URL, "URL of the resource index")
	f.StringVar(&opts.RIUser, "ri-user", defaults.Authority.Auth.Username, "username for the resource index")
	f.StringVar(&opts.RIPass, "ri-pass", defaults.Authority.Auth.Password, "password for the resource index")
	f.StringVar(&opts.Solr, "solr", defaults.Derived.URL, "URL of the Solr core")
	f.StringVar(&opts.SolrLastModifiedField, "solr-last-modified-field", defaults.Derived.Solr.TimestampField, "Solr field holding the last modified date")
	f.BoolVar(&opts.KeepDocs, "keep-docs", false, "keep Solr documents whose object is not in the resource index")
	f.StringVar(&opts.GSearch, "gsearch", defaults.Manager.URL, "URL of the GSearch REST endpoint")
	f.StringVar(&opts.GSearchUser, "gsearch-user", defaults.Manager.Auth.Username, "username for GSearch")
	f.StringVar(&opts.GSearchPass, "gsearch-pass", defaults.Manager.Auth.Password, "password for GSearch")
	f.IntVar(&opts.QueryLimit, "query-limit", defaults.QueryLimit, "records fetched per query")

	f.BoolVar(&opts.All, "all", false, "compare all records")
	f.IntVar(&opts.LastNDays, "last-n-days", 0, "compare records modified in the last N days")
	f.IntVar(&opts.LastNSeconds, "last-n-seconds", 0, "compare records modified in the last N seconds")
	f.Int64Var(&opts.Since, "since", 0, "compare records modified since this unix timestamp")
	f.StringVar(&opts.ConfigFile, "config-file", "", "read settings from a YAML, TOML or JSON file")

	cmd.MarkFlagsMutuallyExclusive(windowFlags...)
	cmd.MarkFlagsOneRequired(windowFlags...)

	return cmd
}

func runDiff(cmd *cobra.Command, root *RootOptions, opts *DiffOptions) error {
	runner, closer, err := setup(cmd, root, opts.ConfigFile, func(cfg *config.Config) {
		opts.apply(cmd, cfg)
	}, func(cfg *config.Config) error {
		return cfg.Validate()
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	report, err := runner.Run(cmd.Context())
	if err != nil {
		return runError("comparison failed", err)
	}
	if report.Updated {
		return updatedError()
	}
	return nil
}

func (o *DiffOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("ri") {
		cfg.Authority.URL = o.RI
	}
	if f.Changed("ri-user") {
		cfg.Authority.Auth.Username = o.RIUser
	}
	if f.Changed("ri-pass") {
		cfg.Authority.Auth.Password = o.RIPass
	}
	if f.Changed("solr") {
		cfg.Derived.URL = o.Solr
	}
	if f.Changed("solr-last-modified-field") {
		cfg.Derived.Solr.TimestampField = o.SolrLastModifiedField
	}
	if f.Changed("keep-docs") {
		cfg.KeepStale = o.KeepDocs
	}
	applyGSearchFlags(cmd, cfg, o.GSearch, o.GSearchUser, o.GSearchPass)
	if f.Changed("query-limit") {
		cfg.QueryLimit = o.QueryLimit
	}

	switch {
	case f.Changed("all"):
		cfg.Window = config.Window{All: o.All}
	case f.Changed("last-n-days"):
		cfg.Window = config.Window{LastNDays: o.LastNDays}
	case f.Changed("last-n-seconds"):
		cfg.Window = config.Window{LastNSeconds: o.LastNSeconds}
	case f.Changed("since"):
		since := o.Since
		cfg.Window = config.Window{Since: &since}
	}
}

func applyGSearchFlags(cmd *cobra.Command, cfg *config.Config, url, user, pass string) {
	f := cmd.Flags()
	if f.Changed("gsearch") {
		cfg.Manager.URL = url
	}
	if f.Changed("gsearch-user") {
		cfg.Manager.Auth.Username = user
	}
	if f.Changed("gsearch-pass") {
		cfg.Manager.Auth.Password = pass
	}
}
