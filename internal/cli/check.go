package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/model"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/monitor"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/units"
)

var checkCmd = &cobra.Command{
	Use:   "check [hourly|daily|weekly]...",
	Short: "Evaluate window thresholds once",
	Long: `Fetch the current usage and evaluate the given windows against their
stored baselines. An alert is sent for every window over its threshold and the
baseline is moved to the current usage. --dry-run only prints the outcome.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("all", false, "Evaluate every window")
	checkCmd.Flags().Bool("dry-run", false, "Do not send alerts or update baselines")
	checkCmd.Flags().StringP("output", "o", "text", "Output format (text, json, yaml)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	format, _ := cmd.Flags().GetString("output")

	windows, err := selectWindows(args, all)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	deps, err := initMonitor(cfg, newLogger(cfg), nil)
	if err != nil {
		return err
	}
	defer deps.baselines.Close()

	var (
		results []*monitor.Result
		errs    []error
	)
	for _, w := range windows {
		var res *monitor.Result
		if dryRun {
			res, err = deps.evaluator.Preview(cmd.Context(), w)
		} else {
			res, err = deps.evaluator.Evaluate(cmd.Context(), w)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}

	if err := writeOutput(cmd.OutOrStdout(), format, results, func(out io.Writer) error {
		return printResults(out, results, dryRun)
	}); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func selectWindows(args []string, all bool) ([]model.WindowType, error) {
	if all {
		if len(args) > 0 {
			return nil, fmt.Errorf("--all cannot be combined with window arguments")
		}
		return model.Windows, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("name at least one window or pass --all")
	}

	windows := make([]model.WindowType, 0, len(args))
	for _, a := range args {
		w, err := model.ParseWindowType(a)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func printResults(out io.Writer, results []*monitor.Result, dryRun bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "WINDOW\tUSED\tBASELINE\tDELTA\tTHRESHOLD\tSTATUS\n")
	for _, r := range results {
		baseline, delta := "-", "-"
		if r.HasBaseline {
			baseline = units.Bytes(r.Baseline)
			delta = units.Bytes(r.Delta)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Window, r.Snapshot.UsedDisplay, baseline, delta, units.Bytes(r.Threshold), status(r, dryRun))
	}
	return w.Flush()
}

func status(r *monitor.Result, dryRun bool) string {
	switch {
	case !r.HasBaseline:
		return "baseline recorded"
	case !r.Alerted:
		return "ok"
	case dryRun:
		return "over threshold"
	case r.Delivered:
		return "alert sent"
	default:
		return "alert undelivered"
	}
}
