package cmd

import (
	"fmt"
	"strconv"
	"time"

	"cachewarm/internal/config"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, _ := config.Load()

	apiKey := cfg.API.APIKey
	intervalSec := strconv.FormatInt(cfg.Refresh.IntervalMs/1000, 10)
	pricingModel := cfg.Pricing.Model
	warmingOn := cfg.Refresh.Enabled

	modelOpts := make([]huh.Option[string], 0, len(config.ModelNames()))
	for _, name := range config.ModelNames() {
		modelOpts = append(modelOpts, huh.NewOption(name, name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Anthropic API key").
				Description("Used for cache-warming pings. Leave blank to monitor only\n(the ANTHROPIC_API_KEY env var also works).").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),

			huh.NewConfirm().
				Title("Enable cache warming?").
				Description("Re-ping the API shortly before the 5-minute cache TTL expires.").
				Value(&warmingOn),

			huh.NewInput().
				Title("Warm interval (seconds)").
				Description("How long after the last prompt to re-ping. Keep under 300.").
				Value(&intervalSec).
				Validate(func(s string) error {
					secs, err := strconv.Atoi(s)
					if err != nil {
						return fmt.Errorf("not a number")
					}
					min := int(config.MinRefreshInterval / time.Second)
					max := int(config.MaxRefreshInterval / time.Second)
					if secs < min || secs > max {
						return fmt.Errorf("must be between %d and %d", min, max)
					}
					return nil
				}),

			huh.NewSelect[string]().
				Title("Pricing model for savings estimates").
				Options(modelOpts...).
				Value(&pricingModel),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	cfg.API.APIKey = apiKey
	cfg.Refresh.Enabled = warmingOn
	if secs, err := strconv.Atoi(intervalSec); err == nil {
		cfg.Refresh.IntervalMs = int64(secs) * 1000
	}
	cfg.Pricing.Model = pricingModel
	cfg.Clamp()

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", config.Path())
	fmt.Println("  Run `cachewarm setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}
