package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/units"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show the current transfer counters",
	RunE:  runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.Flags().StringP("output", "o", "text", "Output format (text, json, yaml)")
}

func runUsage(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("output")

	account, err := initAccount(cfg)
	if err != nil {
		return err
	}
	snap, err := account.Snapshot(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetch usage: %w", err)
	}

	return writeOutput(cmd.OutOrStdout(), format, snap, func(w io.Writer) error {
		fmt.Fprintf(w, "Used:       %s (%s bytes)\n", snap.UsedDisplay, humanize.Comma(snap.UsedBytes))
		fmt.Fprintf(w, "Plan:       %s\n", units.Bytes(snap.PlanBytes))
		fmt.Fprintf(w, "Remaining:  %s\n", units.Bytes(snap.RemainingBytes()))
		fmt.Fprintf(w, "Consumed:   %.1f%%\n", snap.UsedPct())
		if snap.ResetAt > 0 {
			fmt.Fprintf(w, "Resets:     %s (%s)\n", snap.ResetTime().Format(time.RFC3339), humanize.Time(snap.ResetTime()))
		}
		return nil
	})
}
