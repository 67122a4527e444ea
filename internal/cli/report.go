package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/model"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/monitor"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Send the usage report now",
	Long:  `Fetch the current transfer usage and send it to every configured notifier, regardless of thresholds.`,
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().Bool("no-notify", false, "Print the report without sending it")
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	noNotify, _ := cmd.Flags().GetBool("no-notify")

	var snap *model.UsageSnapshot
	if noNotify {
		account, err := initAccount(cfg)
		if err != nil {
			return err
		}
		snap, err = account.Snapshot(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetch usage: %w", err)
		}
	} else {
		deps, err := initMonitor(cfg, newLogger(cfg), nil)
		if err != nil {
			return err
		}
		defer deps.baselines.Close()

		snap, err = deps.reporter.Report(cmd.Context())
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "=== Transfer Usage Report ===\n%s", monitor.FormatReport(snap, time.Now()))
	return nil
}
