package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/units"
)

var sizeCmd = &cobra.Command{
	Use:   "size <value>",
	Short: "Convert a size between units",
	Example: `  bwg size 1073741825 --decimals 3
  bwg size 10240 --from KB --to PB
  bwg size 1.5 --from GB --to MB --si`,
	Args: cobra.ExactArgs(1),
	RunE: runSize,
}

func init() {
	rootCmd.AddCommand(sizeCmd)
	sizeCmd.Flags().String("from", "B", "Unit of the input value (B, KB, MB, GB, TB, PB)")
	sizeCmd.Flags().String("to", "", "Target unit (default: best fit)")
	sizeCmd.Flags().Bool("si", false, "Use a base of 1000 instead of 1024")
	sizeCmd.Flags().Bool("truncate", false, "Truncate instead of rounding")
	sizeCmd.Flags().Int("decimals", 1, "Digits after the decimal point")
	sizeCmd.Flags().String("sep", " ", "Separator between number and unit")
}

func runSize(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("parse value %q: %w", args[0], err)
	}

	opts := units.DefaultOptions()

	fromFlag, _ := cmd.Flags().GetString("from")
	if opts.From, err = units.ParseUnit(fromFlag); err != nil {
		return err
	}
	if opts.From == units.Auto {
		opts.From = units.Byte
	}

	toFlag, _ := cmd.Flags().GetString("to")
	if opts.To, err = units.ParseUnit(toFlag); err != nil {
		return err
	}

	if si, _ := cmd.Flags().GetBool("si"); si {
		opts.Base = units.SI
	}
	if truncate, _ := cmd.Flags().GetBool("truncate"); truncate {
		opts.Mode = units.Truncate
	}
	opts.Decimals, _ = cmd.Flags().GetInt("decimals")
	if opts.Decimals < 0 {
		return fmt.Errorf("--decimals must not be negative")
	}
	opts.Separator, _ = cmd.Flags().GetString("sep")

	fmt.Fprintln(cmd.OutOrStdout(), units.FormatSize(value, opts))
	return nil
}
