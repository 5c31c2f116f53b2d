package cmd

import (
	"fmt"

	"github.com/mosalloc-go/mosalloc/internal/csvlayout"
	"github.com/mosalloc-go/mosalloc/internal/layout"
	"github.com/mosalloc-go/mosalloc/internal/output"
	"github.com/mosalloc-go/mosalloc/internal/rawsyscalls"
	"github.com/spf13/cobra"
)

func addValidateCommand(root *cobra.Command) {
	var poolFlag string

	validateCmd := &cobra.Command{
		Use:   "validate <csv-file>",
		Short: "Check a pool-layout CSV file for alignment and size errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			poolType := csvlayout.PoolType(poolFlag)
			switch poolType {
			case csvlayout.PoolMmap, csvlayout.PoolBrk, csvlayout.PoolFile:
			default:
				return fmt.Errorf("--pool must be one of mmap, brk, file (got %q)", poolFlag)
			}

			res, err := csvlayout.ParseFile(rawsyscalls.RealMapper{}, args[0], poolType)
			if err != nil {
				return err
			}
			defer res.Intervals.Close()

			verdict := layout.Validate(res.Intervals)

			if output.IsJSON() {
				return output.PrintJSON(cmd.OutOrStdout(), map[string]any{
					"pool":      poolType,
					"size":      res.Size,
					"intervals": res.Intervals.Len(),
					"valid":     verdict == layout.Success,
					"error":     verdict.String(),
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "pool %s: size=%d bytes, %d interval(s)\n", poolType, res.Size, res.Intervals.Len())
			if verdict == layout.Success {
				fmt.Fprintln(cmd.OutOrStdout(), "layout is valid")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "layout is invalid: %s\n", verdict)
			cmd.SilenceUsage = true
			return fmt.Errorf("validation failed: %s", verdict)
		},
	}

	validateCmd.Flags().StringVar(&poolFlag, "pool", "mmap", "Which pool's rows to validate: mmap, brk, or file")
	root.AddCommand(validateCmd)
}
