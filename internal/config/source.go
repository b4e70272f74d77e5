package config

import (
	"fmt"
	"os"
	"time"

	"github.com/syntrixbase/indexsync/internal/httpclient"
	"github.com/syntrixbase/indexsync/internal/sink/natsmgr"
	"github.com/syntrixbase/indexsync/internal/source/mongo"
	"github.com/syntrixbase/indexsync/internal/source/resourceindex"
	"github.com/syntrixbase/indexsync/internal/source/solr"
)

// Source types.
const (
	SourceResourceIndex = "resource_index"
	SourceSolr          = "solr"
	SourceMongo         = "mongo"
)

// Manager types.
const (
	ManagerGSearch = "gsearch"
	ManagerNATS    = "nats"
)

// SourceConfig configures one side of the comparison.
type SourceConfig struct {
	Type    string                `yaml:"type" toml:"type"`
	URL     string                `yaml:"url" toml:"url"`
	Auth    httpclient.AuthConfig `yaml:"auth" toml:"auth"`
	Timeout time.Duration         `yaml:"timeout" toml:"timeout"`

	ResourceIndex ResourceIndexConfig `yaml:"resource_index" toml:"resource_index"`
	Solr          SolrConfig          `yaml:"solr" toml:"solr"`
	Mongo         mongo.Config        `yaml:"mongo" toml:"mongo"`
}

// ResourceIndexConfig holds options of the resource index query.
type ResourceIndexConfig struct {
	ExcludedDisseminationTypes []string `yaml:"excluded_dissemination_types" toml:"excluded_dissemination_types"`
}

// SolrConfig names the Solr fields holding the record key.
type SolrConfig struct {
	TimestampField string `yaml:"timestamp_field" toml:"timestamp_field"`
	IDField        string `yaml:"id_field" toml:"id_field"`
}

// DefaultAuthorityConfig returns the default authority: a local Fedora
// resource index.
func DefaultAuthorityConfig() SourceConfig {
	return SourceConfig{
		Type: SourceResourceIndex,
		URL:  "http://localhost:8080/fedora/risearch",
		Auth: httpclient.AuthConfig{
			Type:     httpclient.AuthBasic,
			Username: "fedoraAdmin",
			Password: "islandora",
		},
		Timeout: httpclient.DefaultTimeout,
		ResourceIndex: ResourceIndexConfig{
			ExcludedDisseminationTypes: resourceindex.DefaultExcludedDisseminationTypes,
		},
	}
}

// DefaultDerivedConfig returns the default derived index: a local Solr.
func DefaultDerivedConfig() SourceConfig {
	return SourceConfig{
		Type:    SourceSolr,
		URL:     "http://localhost:8080/solr",
		Timeout: httpclient.DefaultTimeout,
		Solr: SolrConfig{
			TimestampField: solr.DefaultTimestampField,
			IDField:        solr.DefaultIDField,
		},
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *SourceConfig) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = httpclient.DefaultTimeout
	}
	if c.Solr.TimestampField == "" {
		c.Solr.TimestampField = solr.DefaultTimestampField
	}
	if c.Solr.IDField == "" {
		c.Solr.IDField = solr.DefaultIDField
	}
	if c.Type == SourceMongo {
		c.Mongo.ApplyDefaults()
	}
}

// ApplyEnvOverrides applies <prefix>_URL, <prefix>_USER and
// <prefix>_PASSWORD, and INDEXSYNC_MONGO_URI for a mongo source.
func (c *SourceConfig) ApplyEnvOverrides(prefix string) {
	if val := os.Getenv(prefix + "_URL"); val != "" {
		c.URL = val
	}
	if val := os.Getenv(prefix + "_USER"); val != "" {
		c.Auth.Username = val
	}
	if val := os.Getenv(prefix + "_PASSWORD"); val != "" {
		c.Auth.Password = val
	}
	if c.Type == SourceMongo {
		if val := os.Getenv("INDEXSYNC_MONGO_URI"); val != "" {
			c.Mongo.URI = val
		}
	}
}

// Validate returns an error if the configuration is invalid.
func (c *SourceConfig) Validate() error {
	switch c.Type {
	case SourceResourceIndex, SourceSolr:
		if c.URL == "" {
			return fmt.Errorf("%s source requires a url", c.Type)
		}
		if _, err := httpclient.ParseURL(c.URL); err != nil {
			return err
		}
		return c.Auth.Validate()
	case SourceMongo:
		return c.Mongo.Validate()
	}
	return fmt.Errorf("unknown source type %q", c.Type)
}

func (c *SourceConfig) validateRole(role string, allowed ...string) error {
	ok := false
	for _, t := range allowed {
		if c.Type == t {
			ok = true
		}
	}
	if !ok {
		return fmt.Errorf("%s: type %q not supported (must be one of %v)", role, c.Type, allowed)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%s: %w", role, err)
	}
	return nil
}

// ClientOptions returns the HTTP client options of an HTTP source.
func (c *SourceConfig) ClientOptions() httpclient.Options {
	return httpclient.Options{Timeout: c.Timeout, Auth: c.Auth}
}

// ManagerConfig configures the downstream index manager.
type ManagerConfig struct {
	Type    string                `yaml:"type" toml:"type"`
	URL     string                `yaml:"url" toml:"url"`
	Auth    httpclient.AuthConfig `yaml:"auth" toml:"auth"`
	Timeout time.Duration         `yaml:"timeout" toml:"timeout"`
	NATS    natsmgr.Config        `yaml:"nats" toml:"nats"`
}

// DefaultManagerConfig returns the default manager: a local GSearch.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Type: ManagerGSearch,
		URL:  "http://localhost:8080/fedoragsearch/rest",
		Auth: httpclient.AuthConfig{
			Type:     httpclient.AuthBasic,
			Username: "fedoraAdmin",
			Password: "islandora",
		},
		Timeout: httpclient.DefaultTimeout,
		NATS: natsmgr.Config{
			SubjectPrefix: natsmgr.DefaultSubjectPrefix,
			Timeout:       natsmgr.DefaultTimeout,
		},
	}
}

// ApplyDefaults implements Section.
func (c *ManagerConfig) ApplyDefaults() {
	if c.Type == "" {
		c.Type = ManagerGSearch
	}
	if c.Timeout <= 0 {
		c.Timeout = httpclient.DefaultTimeout
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = natsmgr.DefaultSubjectPrefix
	}
	if c.NATS.Timeout <= 0 {
		c.NATS.Timeout = natsmgr.DefaultTimeout
	}
}

// ApplyEnvOverrides implements Section.
func (c *ManagerConfig) ApplyEnvOverrides() {
	if val := os.Getenv("INDEXSYNC_MANAGER_URL"); val != "" {
		c.URL = val
	}
	if val := os.Getenv("INDEXSYNC_MANAGER_USER"); val != "" {
		c.Auth.Username = val
	}
	if val := os.Getenv("INDEXSYNC_MANAGER_PASSWORD"); val != "" {
		c.Auth.Password = val
	}
	if val := os.Getenv("INDEXSYNC_NATS_URL"); val != "" {
		c.NATS.URL = val
	}
}

// ResolvePaths implements Section. No paths to resolve.
func (c *ManagerConfig) ResolvePaths(string) {}

// Validate implements Section.
func (c *ManagerConfig) Validate() error {
	switch c.Type {
	case ManagerGSearch:
		if c.URL == "" {
			return fmt.Errorf("gsearch manager requires a url")
		}
		if _, err := httpclient.ParseURL(c.URL); err != nil {
			return err
		}
		return c.Auth.Validate()
	case ManagerNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("nats manager requires nats.url")
		}
		return nil
	}
	return fmt.Errorf("unknown manager type %q (must be gsearch or nats)", c.Type)
}

// ClientOptions returns the HTTP client options of the gsearch manager.
func (c *ManagerConfig) ClientOptions() httpclient.Options {
	return httpclient.Options{Timeout: c.Timeout, Auth: c.Auth}
}

// sourceSection adapts a SourceConfig to Section with its env prefix.
type sourceSection struct {
	*SourceConfig
	prefix string
}

func (s sourceSection) ApplyEnvOverrides() { s.SourceConfig.ApplyEnvOverrides(s.prefix) }

func (s sourceSection) ResolvePaths(string) {}
