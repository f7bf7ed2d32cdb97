package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"cachewarm/internal/cli"
	"cachewarm/internal/stream"
	"cachewarm/internal/usage"

	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract usage telemetry from a captured response",
	Long: `Parse a saved API response (plain JSON body or SSE stream) from a
file or stdin and print the usage fields the monitor would record.
Useful for checking what a provider actually reports.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

func runExtract(_ *cobra.Command, args []string) error {
	var r io.Reader = os.Stdin
	source := "stdin"
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
		source = args[0]
	}

	f, model, found, err := extractCapture(r)
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("  no usage telemetry found in %s\n", source)
		return nil
	}

	rows := [][]string{
		{"Cache reads", cli.FormatTokens(f.CacheReadTokens)},
		{"Cache writes", cli.FormatTokens(f.CacheWriteTokens)},
		{"Input", cli.FormatTokens(f.InputTokens)},
		{"Output", cli.FormatTokens(f.OutputTokens)},
	}
	if model != "" {
		rows = append(rows, []string{"Model", model})
	}
	marker := "miss"
	if f.IsHit() {
		marker = "hit"
	}
	rows = append(rows, []string{"Cache", marker})

	fmt.Println(cli.RenderTable(cli.Table{
		Title:   "Extracted usage",
		Headers: []string{"", "Value"},
		Rows:    rows,
	}))
	return nil
}

// extractCapture sniffs the capture format: a body starting with '{' is
// a complete JSON response, anything else is treated as an SSE stream.
func extractCapture(r io.Reader) (usage.Fields, string, bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return usage.Fields{}, "", false, fmt.Errorf("reading capture: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var v any
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return usage.Fields{}, "", false, fmt.Errorf("parsing capture: %w", err)
		}
		f, found := usage.Extract(v)
		return f, usage.ExtractModel(v), found, nil
	}

	f, model, found, err := stream.Consume(bytes.NewReader(data))
	if err != nil {
		return usage.Fields{}, "", false, err
	}
	return f, model, found, nil
}
