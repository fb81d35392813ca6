package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Store.BaseCollection == "" {
		t.Error("expected non-empty default base collection")
	}
	if cfg.Discovery.Workers != DefaultDiscoveryWorkers {
		t.Errorf("discovery workers = %d, want %d", cfg.Discovery.Workers, DefaultDiscoveryWorkers)
	}
	if cfg.Build.Workers != DefaultBuildWorkers {
		t.Errorf("build workers = %d, want %d", cfg.Build.Workers, DefaultBuildWorkers)
	}
	if cfg.RefreshInterval() != 0 {
		t.Errorf("expected auto-refresh disabled by default, got %v", cfg.RefreshInterval())
	}
}

func TestEffectiveObsDate(t *testing.T) {
	now := time.Date(2025, 5, 21, 3, 0, 0, 0, time.UTC)

	cfg := DefaultConfig()
	if got := cfg.EffectiveObsDate(now); got != "2025-05-21" {
		t.Errorf("EffectiveObsDate() = %q, want today UTC %q", got, "2025-05-21")
	}

	cfg.Discovery.ObsDate = "2025-05-20"
	if got := cfg.EffectiveObsDate(now); got != "2025-05-20" {
		t.Errorf("EffectiveObsDate() = %q, want configured %q", got, "2025-05-20")
	}
}

func TestRefreshInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Discovery.RefreshIntervalSec = 60
	if got := cfg.RefreshInterval(); got != time.Minute {
		t.Errorf("RefreshInterval() = %v, want 1m", got)
	}
}

func TestLoadReadsYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfgDir := filepath.Join(dir, "quicklook")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatal(err)
	}
	yaml := `
store:
  dsn: /data/registry.db
  base_collection: obsproc/s25a
discovery:
  obs_date: "2025-05-20"
  refresh_interval_sec: 120
  workers: 8
`
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	// Env wins over file.
	t.Setenv("QUICKLOOK_BASE_COLLECTION", "obsproc/s25b")
	t.Setenv("QUICKLOOK_BUILD_WORKERS", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Store.DSN != "/data/registry.db" {
		t.Errorf("DSN = %q", cfg.Store.DSN)
	}
	if cfg.Store.BaseCollection != "obsproc/s25b" {
		t.Errorf("BaseCollection = %q, env override lost", cfg.Store.BaseCollection)
	}
	if cfg.Discovery.ObsDate != "2025-05-20" {
		t.Errorf("ObsDate = %q", cfg.Discovery.ObsDate)
	}
	if cfg.Discovery.Workers != 8 {
		t.Errorf("Discovery.Workers = %d, want 8", cfg.Discovery.Workers)
	}
	if cfg.Build.Workers != 4 {
		t.Errorf("Build.Workers = %d, want 4", cfg.Build.Workers)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Discovery.Workers != DefaultDiscoveryWorkers {
		t.Errorf("expected defaults when config file missing")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := `
# store location
export QUICKLOOK_TEST_A=/work/datastore
QUICKLOOK_TEST_B="obsproc/s25a/20250520b"
QUICKLOOK_TEST_C='2025-05-20'
malformed line without equals
`
	if err := os.WriteFile(envPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	// Pre-set one variable; LoadEnvFile must not clobber it.
	t.Setenv("QUICKLOOK_TEST_A", "/already/set")
	t.Setenv("QUICKLOOK_TEST_B", "")
	os.Unsetenv("QUICKLOOK_TEST_B")
	t.Setenv("QUICKLOOK_TEST_C", "")
	os.Unsetenv("QUICKLOOK_TEST_C")

	if err := LoadEnvFile(envPath); err != nil {
		t.Fatalf("LoadEnvFile() error: %v", err)
	}

	if got := os.Getenv("QUICKLOOK_TEST_A"); got != "/already/set" {
		t.Errorf("existing variable overwritten: %q", got)
	}
	if got := os.Getenv("QUICKLOOK_TEST_B"); got != "obsproc/s25a/20250520b" {
		t.Errorf("QUICKLOOK_TEST_B = %q", got)
	}
	if got := os.Getenv("QUICKLOOK_TEST_C"); got != "2025-05-20" {
		t.Errorf("QUICKLOOK_TEST_C = %q", got)
	}
}

func TestNormalizeClampsBadValues(t *testing.T) {
	cfg := &Config{
		Discovery: DiscoveryConfig{Workers: -1, RefreshIntervalSec: -5},
		Build:     BuildConfig{Workers: 0},
	}
	cfg.normalize()

	if cfg.Discovery.Workers != DefaultDiscoveryWorkers {
		t.Errorf("Discovery.Workers = %d", cfg.Discovery.Workers)
	}
	if cfg.Build.Workers != DefaultBuildWorkers {
		t.Errorf("Build.Workers = %d", cfg.Build.Workers)
	}
	if cfg.Discovery.RefreshIntervalSec != 0 {
		t.Errorf("RefreshIntervalSec = %d", cfg.Discovery.RefreshIntervalSec)
	}
}
