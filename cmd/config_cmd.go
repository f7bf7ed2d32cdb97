// Package cmd implements the cachewarm CLI commands.
package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"cachewarm/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
	RunE:  runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration option",
	Long: `Set a single configuration option and save the config file.

Recognized keys:
  refresh.enabled            bool
  refresh.interval_ms        int (clamped 30000-600000)
  refresh.max_attempts       int (clamped 1-20)
  refresh.miss_threshold     int
  pricing.model              pricing table key
  api.key                    Anthropic API key
  api.base_url               override Messages API base URL
  api.model                  model used for refresh pings
  proxy.addr                 proxy listen address
  daemon.addr                daemon listen address`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Printf("  Config file: %s\n", config.Path())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [Refresh]")
	fmt.Printf("    Enabled:         %v\n", cfg.Refresh.Enabled)
	fmt.Printf("    Interval:        %s\n", cfg.Refresh.Interval())
	fmt.Printf("    Max attempts:    %d\n", cfg.Refresh.MaxAttempts)
	fmt.Printf("    Miss threshold:  %d\n", cfg.Refresh.MissWarningThreshold)
	fmt.Println()

	fmt.Println("  [API]")
	apiKey := config.GetAPIKey(cfg)
	if apiKey != "" {
		fmt.Printf("    API key:  %s\n", maskAPIKey(apiKey))
	} else {
		fmt.Println("    API key:  not configured (warming disabled)")
	}
	if cfg.API.BaseURL != "" {
		fmt.Printf("    Base URL: %s\n", cfg.API.BaseURL)
	}
	if cfg.API.Model != "" {
		fmt.Printf("    Model:    %s\n", cfg.API.Model)
	}
	fmt.Println()

	fmt.Println("  [Pricing]")
	fmt.Printf("    Model: %s\n", cfg.Pricing.Model)
	fmt.Println()

	fmt.Println("  [Proxy]")
	fmt.Printf("    Listen: %s\n", cfg.Proxy.Addr)
	for provider, base := range cfg.Proxy.Upstreams {
		fmt.Printf("    Upstream %s: %s\n", provider, base)
	}
	fmt.Println()

	fmt.Println("  [Daemon]")
	fmt.Printf("    Listen:        %s\n", cfg.Daemon.Addr)
	fmt.Printf("    Events buffer: %d\n", cfg.Daemon.EventsBuffer)
	fmt.Println()

	fmt.Printf("  Usage store: %s\n", config.StorePath())
	fmt.Println("  Run `cachewarm setup` to reconfigure.")
	return nil
}

func runConfigSet(_ *cobra.Command, args []string) error {
	key, value := strings.ToLower(args[0]), args[1]

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := applyConfigValue(&cfg, key, value); err != nil {
		return err
	}

	cfg.Clamp()
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("  Set %s = %s\n", key, value)
	fmt.Println("  Restart `cachewarm run` for changes to take effect.")
	return nil
}

func applyConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "refresh.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects true or false: %w", key, err)
		}
		cfg.Refresh.Enabled = b
	case "refresh.interval_ms":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%s expects milliseconds: %w", key, err)
		}
		cfg.Refresh.IntervalMs = n
	case "refresh.max_attempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects an integer: %w", key, err)
		}
		cfg.Refresh.MaxAttempts = n
	case "refresh.miss_threshold":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects an integer: %w", key, err)
		}
		cfg.Refresh.MissWarningThreshold = n
	case "pricing.model":
		name := config.NormalizeModelName(value)
		if _, ok := config.LookupPricing(name); !ok {
			return fmt.Errorf("unknown pricing model %q (see `cachewarm setup` for choices)", value)
		}
		cfg.Pricing.Model = name
	case "api.key":
		cfg.API.APIKey = value
	case "api.base_url":
		cfg.API.BaseURL = value
	case "api.model":
		cfg.API.Model = value
	case "proxy.addr":
		cfg.Proxy.Addr = value
	case "daemon.addr":
		cfg.Daemon.Addr = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func maskAPIKey(key string) string {
	if len(key) > 16 {
		return key[:8] + "..." + key[len(key)-4:]
	}
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return "****"
}
