package cmd

import (
	"fmt"

	"cachewarm/internal/cli"
	"cachewarm/internal/config"
	"cachewarm/internal/store"

	"github.com/spf13/cobra"
)

var flagStatsLimit int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report stored usage: per-model totals and recent requests",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().IntVar(&flagStatsLimit, "recent", 10, "Number of recent requests to show")
	rootCmd.AddCommand(statsCmd)
}

func runStats(_ *cobra.Command, _ []string) error {
	st, err := store.Open(config.StorePath())
	if err != nil {
		return err
	}
	defer st.Close()

	count, err := st.RecordCount()
	if err != nil {
		return err
	}
	if count == 0 {
		fmt.Println("  no usage recorded yet, start the monitor with `cachewarm run`")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("cachewarm usage"))
	fmt.Println()

	breakdown, err := st.ModelBreakdown()
	if err != nil {
		return err
	}

	var rows [][]string
	for _, mu := range breakdown {
		hitRate := 0.0
		if mu.Requests > 0 {
			hitRate = float64(mu.Hits) / float64(mu.Requests)
		}
		model := mu.Model
		if model == "" {
			model = "(unknown)"
		}
		cost := config.CalculateCost(mu.Model, mu.InputTokens, mu.OutputTokens, mu.CacheWriteTokens, mu.CacheReadTokens)
		rows = append(rows, []string{
			model,
			cli.FormatNumber(int64(mu.Requests)),
			cli.FormatPercent(hitRate),
			cli.FormatTokens(mu.CacheReadTokens),
			cli.FormatTokens(mu.CacheWriteTokens),
			cli.FormatTokens(mu.InputTokens),
			cli.FormatTokens(mu.OutputTokens),
			cli.FormatCost(cost),
			cli.FormatCost(config.CacheSavings(mu.Model, mu.CacheReadTokens)),
		})
	}
	fmt.Println(cli.RenderTable(cli.Table{
		Title:   fmt.Sprintf("By model (%s requests total)", cli.FormatNumber(int64(count))),
		Headers: []string{"Model", "Reqs", "Hit rate", "Cache read", "Cache write", "Input", "Output", "Cost", "Saved"},
		Rows:    rows,
	}))

	recent, err := st.RecentRecords(flagStatsLimit)
	if err != nil {
		return err
	}
	rows = rows[:0]
	for _, r := range recent {
		marker := "miss"
		if r.IsHit() {
			marker = "hit"
		}
		rows = append(rows, []string{
			r.ObservedAt.Local().Format("15:04:05"),
			marker,
			cli.FormatTokens(r.CacheReadTokens),
			cli.FormatTokens(r.InputTokens),
			cli.FormatTokens(r.OutputTokens),
			r.Model,
		})
	}
	fmt.Println(cli.RenderTable(cli.Table{
		Title:   "Recent requests",
		Headers: []string{"Time", "Cache", "Read", "Input", "Output", "Model"},
		Rows:    rows,
	}))

	if snap, found, err := st.LoadSnapshot(); err == nil && found {
		fmt.Printf("  estimated savings this session: %s\n\n", cli.FormatCost(snap.EstimatedSavingsUSD))
	}
	return nil
}
