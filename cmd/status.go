package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cachewarm/internal/cli"
	"cachewarm/internal/config"
	"cachewarm/internal/daemon"

	"github.com/spf13/cobra"
)

var flagStatusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running monitor's state",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&flagStatusJSON, "json", false, "Print raw JSON status")
	rootCmd.AddCommand(statusCmd)
}

func fetchStatus(addr string) (daemon.Status, error) {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://" + addr + "/v1/status")
	if err != nil {
		return daemon.Status{}, fmt.Errorf("monitor not reachable at %s (is `cachewarm run` active?): %w", addr, err)
	}
	defer resp.Body.Close()

	var st daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return daemon.Status{}, fmt.Errorf("decoding status: %w", err)
	}
	return st, nil
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	st, err := fetchStatus(cfg.Daemon.Addr)
	if err != nil {
		return err
	}

	if flagStatusJSON {
		out, _ := json.MarshalIndent(st, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("cachewarm status"))
	fmt.Println()

	u := st.Usage
	fmt.Println(cli.RenderTable(cli.Table{
		Title:   "Session",
		Headers: []string{"", "Value"},
		Rows: [][]string{
			{"Requests", cli.FormatNumber(int64(u.TotalRequests))},
			{"Hits / misses", fmt.Sprintf("%d / %d", u.Hits, u.Misses)},
			{"Hit rate", cli.RenderHitRate(u.HitRate())},
			{"Cache reads", cli.FormatTokens(u.CacheReadTokens)},
			{"Cache writes", cli.FormatTokens(u.CacheWriteTokens)},
			{"Est. savings", cli.FormatCost(u.EstimatedSavingsUSD)},
		},
	}))

	r := st.Refresh
	rows := [][]string{
		{"State", r.StateLabel},
		{"Attempts", fmt.Sprintf("%d / %d", r.Attempts, r.MaxAttempts)},
	}
	if r.SecondsRemaining > 0 {
		rows = append(rows, []string{"Next warm in", cli.FormatCountdown(r.SecondsRemaining)})
	}
	if r.Identity != "" {
		rows = append(rows, []string{"Conversation", r.Identity})
	}
	fmt.Println(cli.RenderTable(cli.Table{
		Title:   "Cache refresh",
		Headers: []string{"", "Value"},
		Rows:    rows,
	}))

	uptime := int64(time.Since(st.StartedAt).Seconds())
	fmt.Printf("  up %s (since %s)\n\n", cli.FormatDuration(uptime), st.StartedAt.Format("2006-01-02 15:04:05"))
	return nil
}
