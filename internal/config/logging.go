package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string         `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format   string         `yaml:"format" toml:"format"` // text, json
	Dir      string         `yaml:"dir" toml:"dir"`       // log directory path
	Rotation RotationConfig `yaml:"rotation" toml:"rotation"`
	Console  ConsoleConfig  `yaml:"console" toml:"console"`
	File     FileConfig     `yaml:"file" toml:"file"`
}

// RotationConfig holds log rotation settings
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size" toml:"max_size"`       // MB
	MaxBackups int  `yaml:"max_backups" toml:"max_backups"` // number of files
	MaxAge     int  `yaml:"max_age" toml:"max_age"`         // days
	Compress   bool `yaml:"compress" toml:"compress"`       // gzip old files
}

// ConsoleConfig holds console output configuration. Console output goes to
// stderr so stdout stays free for piping.
type ConsoleConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Level   string `yaml:"level" toml:"level"`   // optional override
	Format  string `yaml:"format" toml:"format"` // text or json
}

// FileConfig holds file output configuration
type FileConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Level   string `yaml:"level" toml:"level"`   // optional override
	Format  string `yaml:"format" toml:"format"` // text or json
}

// Levels lists the accepted log levels from most to least verbose.
var Levels = []string{"debug", "info", "warn", "error"}

// DefaultLoggingConfig returns default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
		Dir:    "logs",
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
		Console: ConsoleConfig{
			Enabled: true,
		},
		File: FileConfig{
			Enabled: false,
		},
	}
}

// ApplyDefaults fills in missing values with defaults
func (c *LoggingConfig) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Dir == "" {
		c.Dir = "logs"
	}

	if c.Rotation.MaxSize == 0 {
		c.Rotation.MaxSize = 100
	}
	if c.Rotation.MaxBackups == 0 {
		c.Rotation.MaxBackups = 10
	}
	if c.Rotation.MaxAge == 0 {
		c.Rotation.MaxAge = 30
	}

	if c.Console.Level == "" {
		c.Console.Level = c.Level
	}
	if c.Console.Format == "" {
		c.Console.Format = c.Format
	}
	if c.File.Level == "" {
		c.File.Level = c.Level
	}
	if c.File.Format == "" {
		c.File.Format = c.Format
	}
}

// ApplyEnvOverrides applies environment variable overrides
func (c *LoggingConfig) ApplyEnvOverrides() {
	if val := os.Getenv("INDEXSYNC_LOG_LEVEL"); val != "" {
		c.SetLevel(val)
	}
}

// SetLevel sets the base level and the per-output levels with it.
func (c *LoggingConfig) SetLevel(level string) {
	c.Level = level
	c.Console.Level = level
	c.File.Level = level
}

// ResolvePaths resolves a relative log directory against baseDir.
func (c *LoggingConfig) ResolvePaths(baseDir string) {
	if c.Dir != "" && baseDir != "" && !filepath.IsAbs(c.Dir) {
		c.Dir = filepath.Clean(filepath.Join(baseDir, c.Dir))
	}
}

// Validate validates the configuration
func (c *LoggingConfig) Validate() error {
	validFormats := map[string]bool{
		"text": true,
		"json": true,
	}

	if !validLevel(c.Level) {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Level)
	}
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Format)
	}

	if c.Console.Enabled {
		if c.Console.Level != "" && !validLevel(c.Console.Level) {
			return fmt.Errorf("invalid console log level: %s", c.Console.Level)
		}
		if c.Console.Format != "" && !validFormats[c.Console.Format] {
			return fmt.Errorf("invalid console log format: %s", c.Console.Format)
		}
	}

	if c.File.Enabled {
		if c.Dir == "" {
			return fmt.Errorf("log directory cannot be empty")
		}
		if c.File.Level != "" && !validLevel(c.File.Level) {
			return fmt.Errorf("invalid file log level: %s", c.File.Level)
		}
		if c.File.Format != "" && !validFormats[c.File.Format] {
			return fmt.Errorf("invalid file log format: %s", c.File.Format)
		}
	}

	return nil
}

func validLevel(level string) bool {
	for _, l := range Levels {
		if l == level {
			return true
		}
	}
	return false
}

// ShiftLevel moves level by steps along Levels, clamping at either end.
// Negative steps are more verbose. Unknown levels are treated as info.
func ShiftLevel(level string, steps int) string {
	idx := 1
	for i, l := range Levels {
		if l == level {
			idx = i
		}
	}
	idx += steps
	if idx < 0 {
		idx = 0
	}
	if idx >= len(Levels) {
		idx = len(Levels) - 1
	}
	return Levels[idx]
}
