package config

import (
	"gopkg.in/yaml.v3"
)

// legacyConfig is the flat JSON file format keyed by the long flag names
// of the diff command.
type legacyConfig struct {
	RI                    *string `yaml:"ri"`
	RIUser                *string `yaml:"ri-user"`
	RIPass                *string `yaml:"ri-pass"`
	Solr                  *string `yaml:"solr"`
	SolrLastModifiedField *string `yaml:"solr-last-modified-field"`
	KeepDocs              *bool   `yaml:"keep-docs"`
	GSearch               *string `yaml:"gsearch"`
	GSearchUser           *string `yaml:"gsearch-user"`
	GSearchPass           *string `yaml:"gsearch-pass"`
	QueryLimit            *int    `yaml:"query-limit"`
	All                   *bool   `yaml:"all"`
	LastNDays             *int    `yaml:"last-n-days"`
	LastNSeconds          *int    `yaml:"last-n-seconds"`
	Since                 *int64  `yaml:"since"`
	Verbose               *int    `yaml:"verbose"`
	Quiet                 *int    `yaml:"quiet"`
}

// LoadLegacyJSON overlays a flag-named JSON file onto cfg. Unknown keys
// are ignored.
func LoadLegacyJSON(data []byte, cfg *Config) error {
	legacy, err := parseLegacy(data)
	if err != nil {
		return err
	}
	legacy.apply(cfg)
	return nil
}

func parseLegacy(data []byte) (*legacyConfig, error) {
	var l legacyConfig
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (l *legacyConfig) present() bool {
	return l.RI != nil || l.RIUser != nil || l.RIPass != nil ||
		l.Solr != nil || l.SolrLastModifiedField != nil || l.KeepDocs != nil ||
		l.GSearch != nil || l.GSearchUser != nil || l.GSearchPass != nil ||
		l.QueryLimit != nil || l.All != nil || l.LastNDays != nil ||
		l.LastNSeconds != nil || l.Since != nil || l.Verbose != nil || l.Quiet != nil
}

func (l *legacyConfig) apply(cfg *Config) {
	setString(&cfg.Authority.URL, l.RI)
	setString(&cfg.Authority.Auth.Username, l.RIUser)
	setString(&cfg.Authority.Auth.Password, l.RIPass)
	setString(&cfg.Derived.URL, l.Solr)
	setString(&cfg.Derived.Solr.TimestampField, l.SolrLastModifiedField)
	setString(&cfg.Manager.URL, l.GSearch)
	setString(&cfg.Manager.Auth.Username, l.GSearchUser)
	setString(&cfg.Manager.Auth.Password, l.GSearchPass)
	if l.KeepDocs != nil {
		cfg.KeepStale = *l.KeepDocs
	}
	if l.QueryLimit != nil {
		cfg.QueryLimit = *l.QueryLimit
	}

	switch {
	case l.All != nil && *l.All:
		cfg.Window = Window{All: true}
	case l.LastNDays != nil:
		cfg.Window = Window{LastNDays: *l.LastNDays}
	case l.LastNSeconds != nil:
		cfg.Window = Window{LastNSeconds: *l.LastNSeconds}
	case l.Since != nil:
		since := *l.Since
		cfg.Window = Window{Since: &since}
	}

	steps := 0
	if l.Verbose != nil {
		steps -= *l.Verbose
	}
	if l.Quiet != nil {
		steps += *l.Quiet
	}
	if steps != 0 {
		cfg.Logging.SetLevel(ShiftLevel(cfg.Logging.Level, steps))
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
