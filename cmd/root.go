package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cachewarm",
	Short: "Prompt cache monitor and warmer",
	Long: "Keep LLM prompt caches warm: intercept API responses through a local proxy,\n" +
		"track cache hit rates and savings, and re-ping the API before the cache TTL expires.",
	RunE: runMonitor,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
