package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joshlzx/starswap/internal/portal"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Addr == "" {
		t.Error("Addr should not be empty")
	}
	if cfg.Browser.PoolSize != 1 {
		t.Errorf("PoolSize = %d, want 1", cfg.Browser.PoolSize)
	}
	if !cfg.Browser.Headless {
		t.Error("Headless should default to true")
	}
	if cfg.Swap.TimeBudget.Duration != 2*time.Hour {
		t.Errorf("TimeBudget = %v, want 2h", cfg.Swap.TimeBudget.Duration)
	}
	if cfg.Swap.PassInterval.Duration != 5*time.Minute {
		t.Errorf("PassInterval = %v, want 5m", cfg.Swap.PassInterval.Duration)
	}
	if cfg.Portal.LoginURL == "" {
		t.Error("portal login URL should have a default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "starswap.toml")
	content := `
addr = ":8080"
store_path = "/tmp/test.db"

[browser]
headless = false
pool_size = 2

[swap]
time_budget = "1h"
pass_interval = "30s"

[portal.locators.course_table]
strategy = "xpath"
value = "//table[@id='planner']"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.Browser.Headless {
		t.Error("headless override not applied")
	}
	if cfg.Browser.PoolSize != 2 {
		t.Errorf("PoolSize = %d, want 2", cfg.Browser.PoolSize)
	}
	if cfg.Swap.TimeBudget.Duration != time.Hour {
		t.Errorf("TimeBudget = %v, want 1h", cfg.Swap.TimeBudget.Duration)
	}
	if cfg.Swap.PassInterval.Duration != 30*time.Second {
		t.Errorf("PassInterval = %v, want 30s", cfg.Swap.PassInterval.Duration)
	}

	// Unset fields keep defaults.
	if cfg.Portal.LoginURL == "" {
		t.Error("unset portal login URL lost its default")
	}

	pc := cfg.PortalConfig()
	if got := pc.Locators.Get(portal.StepCourseTable).Value; got != "//table[@id='planner']" {
		t.Errorf("locator override not applied: %q", got)
	}
	if got := pc.Locators.Get(portal.StepUsernameField).Value; got != "UID" {
		t.Errorf("untouched locator changed: %q", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() on missing file error: %v", err)
	}
	if cfg.Addr != ":5000" {
		t.Errorf("Addr = %q, want default", cfg.Addr)
	}
}

func TestPortEnvOverride(t *testing.T) {
	t.Setenv("PORT", "9999")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("Addr = %q, want :9999 from PORT", cfg.Addr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "empty addr", mutate: func(c *Config) { c.Addr = "" }, wantErr: true},
		{name: "empty store path", mutate: func(c *Config) { c.StorePath = "" }, wantErr: true},
		{name: "negative pool size", mutate: func(c *Config) { c.Browser.PoolSize = -1 }, wantErr: true},
		{name: "zero time budget", mutate: func(c *Config) { c.Swap.TimeBudget.Duration = 0 }, wantErr: true},
		{name: "zero pass interval", mutate: func(c *Config) { c.Swap.PassInterval.Duration = 0 }, wantErr: true},
		{name: "empty login url", mutate: func(c *Config) { c.Portal.LoginURL = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOrchConfig(t *testing.T) {
	cfg := Default()
	cfg.Swap.TimeBudget = Duration{time.Hour}
	cfg.Swap.RecoveryLimit = 5

	oc := cfg.OrchConfig()
	if oc.TimeBudget != time.Hour {
		t.Errorf("TimeBudget = %v, want 1h", oc.TimeBudget)
	}
	if oc.RecoveryLimit != 5 {
		t.Errorf("RecoveryLimit = %d, want 5", oc.RecoveryLimit)
	}
	if oc.Portal.LoginURL != cfg.Portal.LoginURL {
		t.Error("portal config not propagated")
	}
}
