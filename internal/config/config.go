// Package config loads and validates the reconciliation configuration.
//
// Lifecycle: DefaultConfig -> config file -> ApplyDefaults ->
// ApplyEnvOverrides -> ResolvePaths -> command-line flags -> Validate.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/syntrixbase/indexsync/pkg/model"
)

// DefaultQueryLimit is the page size used against both sources.
const DefaultQueryLimit = 10000

// Config holds the configuration of one reconciliation run.
type Config struct {
	Authority  SourceConfig  `yaml:"authority" toml:"authority"`
	Derived    SourceConfig  `yaml:"derived" toml:"derived"`
	Manager    ManagerConfig `yaml:"manager" toml:"manager"`
	QueryLimit int           `yaml:"query_limit" toml:"query_limit"`

	// KeepStale keeps derived entries that are missing from the authority.
	KeepStale bool `yaml:"keep_stale" toml:"keep_stale"`
	// DeleteOnUpdateFailure deletes the derived entry after any failed update.
	DeleteOnUpdateFailure bool `yaml:"delete_on_update_failure" toml:"delete_on_update_failure"`

	// Filter is a CEL expression over id and timestamp applied to both sides.
	Filter string `yaml:"filter" toml:"filter"`

	Window  Window        `yaml:"window" toml:"window"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// Section is the lifecycle every configuration block follows.
type Section interface {
	// ApplyDefaults fills zero values with sensible defaults
	ApplyDefaults()

	// ApplyEnvOverrides applies environment variable overrides
	ApplyEnvOverrides()

	// ResolvePaths resolves relative paths against baseDir.
	ResolvePaths(baseDir string)

	// Validate returns an error if the configuration is invalid.
	Validate() error
}

// DefaultConfig returns the defaults of a stock Fedora 3 / GSearch stack.
func DefaultConfig() *Config {
	return &Config{
		Authority:  DefaultAuthorityConfig(),
		Derived:    DefaultDerivedConfig(),
		Manager:    DefaultManagerConfig(),
		QueryLimit: DefaultQueryLimit,
		Logging:    DefaultLoggingConfig(),
		Metrics:    DefaultMetricsConfig(),
	}
}

// Load builds a configuration from the defaults, the optional file at path
// and the environment. It does not validate; callers apply command-line
// overrides first and then call Validate.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	baseDir := ""
	if path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
		baseDir = filepath.Dir(path)
	}

	for _, s := range cfg.sections() {
		s.ApplyDefaults()
		s.ApplyEnvOverrides()
		s.ResolvePaths(baseDir)
	}
	if cfg.QueryLimit <= 0 {
		cfg.QueryLimit = DefaultQueryLimit
	}
	return cfg, nil
}

// LoadFile overlays the file at path onto cfg. The decoder is chosen by
// extension: YAML and JSON through yaml.v3, TOML through BurntSushi/toml.
// JSON files keyed by the diff command flag names are recognised and mapped.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: the config file %s does not exist", model.ErrInvalidConfig, path)
		}
		return fmt.Errorf("%w: failed to read %s: %v", model.ErrInvalidConfig, path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
			return fmt.Errorf("%w: failed to parse %s: %v", model.ErrInvalidConfig, path, err)
		}
	case ".json":
		legacy, err := parseLegacy(data)
		if err != nil {
			return fmt.Errorf("%w: failed to parse %s: %v", model.ErrInvalidConfig, path, err)
		}
		if legacy.present() {
			legacy.apply(cfg)
			return nil
		}
		fallthrough
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w: failed to parse %s: %v", model.ErrInvalidConfig, path, err)
		}
	default:
		return fmt.Errorf("%w: unsupported config file extension %q", model.ErrInvalidConfig, ext)
	}
	return nil
}

// Validate returns an error wrapping model.ErrInvalidConfig if the
// configuration cannot be run.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	if err := c.Authority.validateRole("authority", SourceResourceIndex, SourceSolr, SourceMongo); err != nil {
		return err
	}
	if err := c.Derived.validateRole("derived", SourceSolr, SourceMongo); err != nil {
		return err
	}
	if c.QueryLimit <= 0 {
		return fmt.Errorf("query_limit must be positive, got %d", c.QueryLimit)
	}
	for _, s := range []Section{&c.Manager, &c.Window, &c.Logging, &c.Metrics} {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) sections() []Section {
	return []Section{
		sourceSection{&c.Authority, "INDEXSYNC_AUTHORITY"},
		sourceSection{&c.Derived, "INDEXSYNC_DERIVED"},
		&c.Manager,
		&c.Window,
		&c.Logging,
		&c.Metrics,
	}
}

// MetricsConfig configures the end-of-run push to a Prometheus Pushgateway.
type MetricsConfig struct {
	PushURL string `yaml:"push_url" toml:"push_url"`
	Job     string `yaml:"job" toml:"job"`
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Job: "indexsync"}
}

// ApplyDefaults implements Section.
func (c *MetricsConfig) ApplyDefaults() {
	if c.Job == "" {
		c.Job = "indexsync"
	}
}

// ApplyEnvOverrides implements Section.
func (c *MetricsConfig) ApplyEnvOverrides() {
	if val := os.Getenv("INDEXSYNC_METRICS_PUSH_URL"); val != "" {
		c.PushURL = val
	}
}

// ResolvePaths implements Section. No paths to resolve.
func (c *MetricsConfig) ResolvePaths(string) {}

// Validate implements Section.
func (c *MetricsConfig) Validate() error {
	if c.PushURL == "" {
		return nil
	}
	if !strings.HasPrefix(c.PushURL, "http://") && !strings.HasPrefix(c.PushURL, "https://") {
		return fmt.Errorf("metrics push_url must be an http(s) URL, got %q", c.PushURL)
	}
	return nil
}
