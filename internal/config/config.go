// Package config holds cachewarm configuration and model pricing data.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Option bounds. Values outside these ranges are clamped on load so a
// hand-edited config file cannot produce a runaway refresher.
const (
	MinRefreshInterval = 30 * time.Second
	MaxRefreshInterval = 10 * time.Minute
	MinRefreshAttempts = 1
	MaxRefreshAttempts = 20
)

// Config holds all cachewarm configuration.
type Config struct {
	Refresh RefreshConfig `toml:"refresh"`
	Pricing PricingConfig `toml:"pricing"`
	Proxy   ProxyConfig   `toml:"proxy"`
	Daemon  DaemonConfig  `toml:"daemon"`
	API     APIConfig     `toml:"api"`
}

// RefreshConfig controls the cache-refresh scheduler.
type RefreshConfig struct {
	Enabled              bool  `toml:"enabled"`
	IntervalMs           int64 `toml:"interval_ms"`
	MaxAttempts          int   `toml:"max_attempts"`
	MissWarningThreshold int   `toml:"miss_warning_threshold"`
}

// Interval returns the refresh cadence as a duration.
func (r RefreshConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMs) * time.Millisecond
}

// PricingConfig selects the model used for savings estimates.
type PricingConfig struct {
	Model string `toml:"model"`
}

// ProxyConfig holds the interception proxy settings.
type ProxyConfig struct {
	Addr string `toml:"addr"`
	// Upstreams overrides provider base URLs, mainly for testing.
	Upstreams map[string]string `toml:"upstreams,omitempty"`
}

// DaemonConfig holds the status API settings.
type DaemonConfig struct {
	Addr         string `toml:"addr"`
	EventsBuffer int    `toml:"events_buffer"`
}

// APIConfig holds Anthropic API settings for refresh pings.
type APIConfig struct {
	APIKey  string `toml:"api_key,omitempty"`
	BaseURL string `toml:"base_url,omitempty"`
	Model   string `toml:"model,omitempty"`
}

// DefaultConfig returns the default configuration. The refresh interval
// sits just inside the provider's 5-minute cache TTL.
func DefaultConfig() Config {
	return Config{
		Refresh: RefreshConfig{
			Enabled:              true,
			IntervalMs:           (4*time.Minute + 30*time.Second).Milliseconds(),
			MaxAttempts:          5,
			MissWarningThreshold: 3,
		},
		Pricing: PricingConfig{
			Model: DefaultPricingModel,
		},
		Proxy: ProxyConfig{
			Addr: "127.0.0.1:8788",
		},
		Daemon: DaemonConfig{
			Addr:         "127.0.0.1:8787",
			EventsBuffer: 200,
		},
	}
}

// Dir returns the XDG-compliant config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cachewarm")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cachewarm")
}

// Path returns the full path to the config file.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// DataDir returns the directory used for the usage store and runtime files.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "cachewarm")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "cachewarm")
}

// StorePath returns the default SQLite usage store path.
func StorePath() string {
	return filepath.Join(DataDir(), "usage.db")
}

// Load reads the config file, returning clamped defaults if it doesn't
// exist. A malformed file is an error; a missing one is not.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Clamp()
	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(Path(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Clamp forces option values into their documented ranges.
func (c *Config) Clamp() {
	if c.Refresh.IntervalMs < MinRefreshInterval.Milliseconds() {
		c.Refresh.IntervalMs = MinRefreshInterval.Milliseconds()
	}
	if c.Refresh.IntervalMs > MaxRefreshInterval.Milliseconds() {
		c.Refresh.IntervalMs = MaxRefreshInterval.Milliseconds()
	}
	if c.Refresh.MaxAttempts < MinRefreshAttempts {
		c.Refresh.MaxAttempts = MinRefreshAttempts
	}
	if c.Refresh.MaxAttempts > MaxRefreshAttempts {
		c.Refresh.MaxAttempts = MaxRefreshAttempts
	}
	if c.Refresh.MissWarningThreshold < 1 {
		c.Refresh.MissWarningThreshold = 1
	}
	if c.Daemon.EventsBuffer < 1 {
		c.Daemon.EventsBuffer = 200
	}
	if _, ok := LookupPricing(c.Pricing.Model); !ok {
		c.Pricing.Model = DefaultPricingModel
	}
}

// GetAPIKey returns the API key from env var or config, in that order.
func GetAPIKey(cfg Config) string {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key
	}
	return cfg.API.APIKey
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(Path())
	return err == nil
}
