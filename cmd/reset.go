package cmd

import (
	"fmt"
	"net/http"
	"time"

	"cachewarm/internal/config"
	"cachewarm/internal/store"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear session statistics and stored usage",
	RunE:  runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Prefer the running monitor so its live counters reset too; fall
	// back to clearing the store directly when nothing is running.
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Post("http://"+cfg.Daemon.Addr+"/v1/reset", "application/json", nil)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			fmt.Println("  session statistics reset")
			return nil
		}
		return fmt.Errorf("monitor refused reset: %s", resp.Status)
	}

	st, err := store.Open(config.StorePath())
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ResetAll(); err != nil {
		return err
	}
	fmt.Println("  stored usage cleared (no monitor running)")
	return nil
}
