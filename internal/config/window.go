package config

import (
	"fmt"
	"time"

	"github.com/syntrixbase/indexsync/pkg/model"
)

// Window selects which records take part in a comparison. Exactly one
// field must be set.
type Window struct {
	All          bool   `yaml:"all" toml:"all"`
	LastNDays    int    `yaml:"last_n_days" toml:"last_n_days"`
	LastNSeconds int    `yaml:"last_n_seconds" toml:"last_n_seconds"`
	Since        *int64 `yaml:"since" toml:"since"` // unix seconds
}

// ApplyDefaults implements Section. A window is never defaulted.
func (w *Window) ApplyDefaults() {}

// ApplyEnvOverrides implements Section.
func (w *Window) ApplyEnvOverrides() {}

// ResolvePaths implements Section. No paths to resolve.
func (w *Window) ResolvePaths(string) {}

// Validate implements Section.
func (w *Window) Validate() error {
	if !w.IsSet() {
		return fmt.Errorf("one of all, last_n_days, last_n_seconds or since is required")
	}
	set := 0
	for _, ok := range []bool{w.All, w.LastNDays != 0, w.LastNSeconds != 0, w.Since != nil} {
		if ok {
			set++
		}
	}
	switch {
	case set > 1:
		return fmt.Errorf("all, last_n_days, last_n_seconds and since are mutually exclusive")
	case w.LastNDays < 0 || w.LastNSeconds < 0:
		return fmt.Errorf("window lengths must not be negative")
	}
	return nil
}

// IsSet reports whether any window field is set.
func (w *Window) IsSet() bool {
	return w.All || w.LastNDays != 0 || w.LastNSeconds != 0 || w.Since != nil
}

// Start returns the lower bound of the window relative to now: nil for all
// records, otherwise an id-less cursor at whole-second UTC precision.
func (w *Window) Start(now time.Time) *model.Cursor {
	var start time.Time
	switch {
	case w.All:
		return nil
	case w.LastNDays != 0:
		start = now.Add(-time.Duration(w.LastNDays) * 24 * time.Hour)
	case w.LastNSeconds != 0:
		start = now.Add(-time.Duration(w.LastNSeconds) * time.Second)
	case w.Since != nil:
		start = time.Unix(*w.Since, 0)
	default:
		return nil
	}
	return &model.Cursor{Timestamp: start.UTC().Truncate(time.Second)}
}

// String describes the window for logs.
func (w *Window) String() string {
	if !w.IsSet() {
		return "unset"
	}
	switch {
	case w.All:
		return "all"
	case w.LastNDays != 0:
		return fmt.Sprintf("last %d days", w.LastNDays)
	case w.LastNSeconds != 0:
		return fmt.Sprintf("last %d seconds", w.LastNSeconds)
	case w.Since != nil:
		return fmt.Sprintf("since %d", *w.Since)
	}
	return "unset"
}
