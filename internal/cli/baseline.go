package cli

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/model"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/units"
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Inspect or override stored window baselines",
}

var baselineListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the baseline of every window",
	Args:  cobra.NoArgs,
	RunE:  runBaselineList,
}

var baselineGetCmd = &cobra.Command{
	Use:   "get <window>",
	Short: "Show one window's baseline",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaselineGet,
}

var baselineSetCmd = &cobra.Command{
	Use:   "set <window> <bytes>",
	Short: "Override a window's baseline",
	Long:  `Override a window's baseline. The value is a byte count such as 5000000000 or 4.5GiB.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runBaselineSet,
}

var baselineResetCmd = &cobra.Command{
	Use:   "reset <window>",
	Short: "Move a window's baseline to the current usage",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaselineReset,
}

func init() {
	rootCmd.AddCommand(baselineCmd)
	baselineCmd.AddCommand(baselineListCmd, baselineGetCmd, baselineSetCmd, baselineResetCmd)
	baselineListCmd.Flags().StringP("output", "o", "text", "Output format (text, json, yaml)")
}

func runBaselineList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("output")

	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	baselines, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	return writeOutput(cmd.OutOrStdout(), format, baselines, func(out io.Writer) error {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "WINDOW\tBASELINE\tBYTES\n")
		for _, b := range baselines {
			if !b.Set {
				fmt.Fprintf(w, "%s\t(not set)\t-\n", b.Window)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", b.Window, units.Bytes(b.Value), humanize.Comma(b.Value))
		}
		return w.Flush()
	})
}

func runBaselineGet(cmd *cobra.Command, args []string) error {
	window, err := model.ParseWindowType(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	value, ok, err := store.GetBaseline(cmd.Context(), window)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: not set\n", window)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d (%s)\n", window, value, units.Bytes(value))
	return nil
}

func runBaselineSet(cmd *cobra.Command, args []string) error {
	window, err := model.ParseWindowType(args[0])
	if err != nil {
		return err
	}
	value, err := humanize.ParseBytes(args[1])
	if err != nil {
		return fmt.Errorf("parse baseline %q: %w", args[1], err)
	}
	if value > math.MaxInt64 {
		return fmt.Errorf("baseline %q is out of range", args[1])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetBaseline(cmd.Context(), window, int64(value)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s baseline set to %d (%s)\n", window, value, units.Bytes(int64(value)))
	return nil
}

func runBaselineReset(cmd *cobra.Command, args []string) error {
	window, err := model.ParseWindowType(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	account, err := initAccount(cfg)
	if err != nil {
		return err
	}
	snap, err := account.Snapshot(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetch usage: %w", err)
	}

	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetBaseline(cmd.Context(), window, snap.UsedBytes); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s baseline reset to %d (%s)\n", window, snap.UsedBytes, snap.UsedDisplay)
	return nil
}
