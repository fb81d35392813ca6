// Package config handles loading the dashboard configuration.
//
// Configuration is resolved in three layers, later layers winning:
//
//  1. built-in defaults
//  2. ~/.config/quicklook/config.yaml
//  3. QUICKLOOK_* environment variables (optionally sourced from a
//     .env-style file of "export KEY=value" lines)
//
// A session reads its configuration once at start; later edits to the
// file or environment take effect on the next session, not the current
// one.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreConfig locates the dataset store.
type StoreConfig struct {
	// DSN is the registry location: a path to a SQLite registry file,
	// or ":memory:" for an ephemeral store.
	DSN string `yaml:"dsn"`

	// BaseCollection is the collection prefix visits are published
	// under; datasets for visit v live in "<base_collection>/<v>".
	BaseCollection string `yaml:"base_collection"`
}

// DiscoveryConfig controls visit discovery.
type DiscoveryConfig struct {
	// ObsDate filters visits by observation date (UTC, "2006-01-02").
	// Empty means "today".
	ObsDate string `yaml:"obs_date,omitempty"`

	// RefreshIntervalSec re-runs discovery on this period. 0 disables
	// auto-refresh; the initial discovery at session start always runs.
	RefreshIntervalSec int `yaml:"refresh_interval_sec,omitempty"`

	// Workers bounds concurrent per-visit validation lookups.
	Workers int `yaml:"workers,omitempty"`

	// WatchStore additionally triggers a refresh when the registry file
	// changes on disk.
	WatchStore bool `yaml:"watch_store,omitempty"`
}

// BuildConfig controls the array-build pipeline.
type BuildConfig struct {
	// Workers bounds concurrent build tasks per request.
	Workers int `yaml:"workers,omitempty"`
}

// Config is the top-level configuration for quicklook.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Build     BuildConfig     `yaml:"build"`

	// MetricsAddr exposes prometheus metrics on this address when set
	// (e.g. "localhost:9187"). Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// Default bounds, matching the sizing the pipeline was tuned for.
const (
	DefaultDiscoveryWorkers = 32
	DefaultBuildWorkers     = 16
)

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Store: StoreConfig{
			DSN:            filepath.Join(home, ".quicklook", "datastore.db"),
			BaseCollection: "obsproc/quicklook",
		},
		Discovery: DiscoveryConfig{
			RefreshIntervalSec: 0,
			Workers:            DefaultDiscoveryWorkers,
		},
		Build: BuildConfig{
			Workers: DefaultBuildWorkers,
		},
	}
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "quicklook", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "quicklook", "config.yaml")
}

// Load reads config from disk and applies environment overrides.
// A missing config file is not an error; defaults are used.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path := ConfigPath()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot resolve config path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RefreshInterval returns the auto-refresh period, or 0 when disabled.
func (c *Config) RefreshInterval() time.Duration {
	if c.Discovery.RefreshIntervalSec <= 0 {
		return 0
	}
	return time.Duration(c.Discovery.RefreshIntervalSec) * time.Second
}

// EffectiveObsDate returns the configured observation date, or today's
// UTC date when none is configured.
func (c *Config) EffectiveObsDate(now time.Time) string {
	if c.Discovery.ObsDate != "" {
		return c.Discovery.ObsDate
	}
	return now.UTC().Format("2006-01-02")
}

// applyEnv overlays QUICKLOOK_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("QUICKLOOK_DATASTORE"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("QUICKLOOK_BASE_COLLECTION"); v != "" {
		c.Store.BaseCollection = v
	}
	if v := os.Getenv("QUICKLOOK_OBSDATE_UTC"); v != "" {
		c.Discovery.ObsDate = v
	}
	if v := os.Getenv("QUICKLOOK_REFRESH_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Discovery.RefreshIntervalSec = n
		}
	}
	if v := os.Getenv("QUICKLOOK_DISCOVERY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Discovery.Workers = n
		}
	}
	if v := os.Getenv("QUICKLOOK_BUILD_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Build.Workers = n
		}
	}
	if v := os.Getenv("QUICKLOOK_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
}

// normalize clamps nonsensical values back to defaults.
func (c *Config) normalize() {
	if c.Discovery.Workers <= 0 {
		c.Discovery.Workers = DefaultDiscoveryWorkers
	}
	if c.Build.Workers <= 0 {
		c.Build.Workers = DefaultBuildWorkers
	}
	if c.Discovery.RefreshIntervalSec < 0 {
		c.Discovery.RefreshIntervalSec = 0
	}
}

// LoadEnvFile reads a .env-style file of KEY=value lines (an optional
// leading "export " is stripped, as are matching quotes) and sets each
// key into the process environment. Existing variables are not
// overwritten. Call before Load.
func LoadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}

	return nil
}
