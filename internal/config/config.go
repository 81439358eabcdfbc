// Package config loads and validates the service configuration from a
// TOML file, with environment overrides for deployment platforms that
// only speak env vars.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/joshlzx/starswap/internal/browser"
	"github.com/joshlzx/starswap/internal/orch"
	"github.com/joshlzx/starswap/internal/portal"
)

// Duration is a time.Duration that decodes from TOML strings like "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// BrowserConfig controls the Chrome sessions.
type BrowserConfig struct {
	// ChromePath overrides binary discovery. Empty lets chromedp look.
	ChromePath string `toml:"chrome_path"`

	// Headless runs Chrome without a display. Default true.
	Headless bool `toml:"headless"`

	WindowWidth  int `toml:"window_width"`
	WindowHeight int `toml:"window_height"`

	// PoolSize is the number of sessions pre-created at startup.
	// Default 1: concurrent swap sessions serialize on one Chrome.
	PoolSize int `toml:"pool_size"`
}

// SwapConfig bounds orchestration runs.
type SwapConfig struct {
	// TimeBudget is the wall-clock ceiling per run. Default "2h".
	TimeBudget Duration `toml:"time_budget"`

	// PassInterval is the sleep between passes. Default "5m".
	PassInterval Duration `toml:"pass_interval"`

	// RecoveryLimit caps session replacements per candidate per pass.
	RecoveryLimit int `toml:"recovery_limit"`
}

// PortalConfig binds the service to the enrollment portal. Locator
// overrides keep selector drift a config change, not a release.
type PortalConfig struct {
	LoginURL     string `toml:"login_url"`
	PlannerURL   string `toml:"planner_url"`
	TimetableURL string `toml:"timetable_url"`

	ElementWait Duration `toml:"element_wait"`
	DialogWait  Duration `toml:"dialog_wait"`

	// Locators overrides entries of the default locator table, keyed by
	// step name (e.g. "course_table").
	Locators map[string]browser.Locator `toml:"locators"`
}

// Config is the full service configuration.
type Config struct {
	// Addr is the HTTP listen address. Default ":5000"; the PORT env
	// var (when set) wins.
	Addr string `toml:"addr"`

	// StorePath is the SQLite status database. Default "starswap.db".
	StorePath string `toml:"store_path"`

	Browser BrowserConfig `toml:"browser"`
	Swap    SwapConfig    `toml:"swap"`
	Portal  PortalConfig  `toml:"portal"`
}

// Default returns the production defaults. Portal URLs and waits come
// from the portal package's defaults.
func Default() *Config {
	pc := portal.DefaultConfig()
	return &Config{
		Addr:      ":5000",
		StorePath: "starswap.db",
		Browser: BrowserConfig{
			Headless:     true,
			WindowWidth:  1920,
			WindowHeight: 1080,
			PoolSize:     1,
		},
		Swap: SwapConfig{
			TimeBudget:    Duration{2 * time.Hour},
			PassInterval:  Duration{5 * time.Minute},
			RecoveryLimit: 3,
		},
		Portal: PortalConfig{
			LoginURL:     pc.LoginURL,
			PlannerURL:   pc.PlannerURL,
			TimetableURL: pc.TimetableURL,
			ElementWait:  Duration{pc.ElementWait},
			DialogWait:   Duration{pc.DialogWait},
		},
	}
}

// Load reads path over the defaults. A missing file is not an error;
// the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if os.IsNotExist(err) {
				return cfg.applyEnv(), nil
			}
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}
	return cfg.applyEnv(), nil
}

// applyEnv overlays environment variables used by hosting platforms.
func (c *Config) applyEnv() *Config {
	if port := os.Getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	return c
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.StorePath == "" {
		return fmt.Errorf("store_path must not be empty")
	}
	if c.Browser.PoolSize < 0 {
		return fmt.Errorf("browser.pool_size must not be negative")
	}
	if c.Swap.TimeBudget.Duration <= 0 {
		return fmt.Errorf("swap.time_budget must be positive")
	}
	if c.Swap.PassInterval.Duration <= 0 {
		return fmt.Errorf("swap.pass_interval must be positive")
	}
	if c.Portal.LoginURL == "" {
		return fmt.Errorf("portal.login_url must not be empty")
	}
	return nil
}

// PortalConfig materializes the portal state-machine configuration,
// applying locator overrides onto the defaults.
func (c *Config) PortalConfig() portal.Config {
	pc := portal.DefaultConfig()
	pc.LoginURL = c.Portal.LoginURL
	pc.PlannerURL = c.Portal.PlannerURL
	pc.TimetableURL = c.Portal.TimetableURL
	if c.Portal.ElementWait.Duration > 0 {
		pc.ElementWait = c.Portal.ElementWait.Duration
	}
	if c.Portal.DialogWait.Duration > 0 {
		pc.DialogWait = c.Portal.DialogWait.Duration
	}
	if len(c.Portal.Locators) > 0 {
		overrides := make(portal.Locators, len(c.Portal.Locators))
		for step, loc := range c.Portal.Locators {
			overrides[portal.Step(step)] = loc
		}
		pc.Locators = pc.Locators.Merge(overrides)
	}
	return pc
}

// BrowserOptions materializes the Chrome session options.
func (c *Config) BrowserOptions() browser.Options {
	opts := browser.DefaultOptions()
	opts.ChromePath = c.Browser.ChromePath
	opts.Headless = c.Browser.Headless
	if c.Browser.WindowWidth > 0 {
		opts.WindowWidth = c.Browser.WindowWidth
	}
	if c.Browser.WindowHeight > 0 {
		opts.WindowHeight = c.Browser.WindowHeight
	}
	return opts
}

// OrchConfig materializes the orchestrator run bounds.
func (c *Config) OrchConfig() orch.Config {
	oc := orch.DefaultConfig()
	oc.TimeBudget = c.Swap.TimeBudget.Duration
	oc.PassInterval = c.Swap.PassInterval.Duration
	if c.Swap.RecoveryLimit > 0 {
		oc.RecoveryLimit = c.Swap.RecoveryLimit
	}
	oc.Portal = c.PortalConfig()
	return oc
}
