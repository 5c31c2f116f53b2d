package cmd

import (
	"fmt"
	"os"

	"github.com/mosalloc-go/mosalloc/internal/output"
	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	jsonFlag    bool
	verboseFlag bool
	quietFlag   bool
	noColorFlag bool
	profileFlag string
	profileDir  string
)

func NewRootCmd() *cobra.Command {
	cmd := newRootCmd()
	addValidateCommand(cmd)
	addProfileCommands(cmd)
	addRunCommand(cmd)
	addServeCommand(cmd)
	addWatchCommand(cmd)
	return cmd
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mosalloc",
		Short:         "Huge-page-backed memory allocator shim",
		Long:          "mosalloc — reserves virtual-address pools backed by a caller-specified mix of 4KiB/2MiB/1GiB pages and serves a target process's allocations from them.",
		Version:       fmt.Sprintf("mosalloc v%s", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verboseFlag && quietFlag {
				return fmt.Errorf("--verbose and --quiet are mutually exclusive")
			}
			if jsonFlag {
				quietFlag = true
			}
			output.SetFlags(jsonFlag, quietFlag, verboseFlag)
			return nil
		},
	}

	rootCmd.SetVersionTemplate("{{.Version}}\n")

	pflags := rootCmd.PersistentFlags()
	pflags.BoolVarP(&jsonFlag, "json", "j", false, "Output as JSON")
	pflags.BoolVarP(&verboseFlag, "verbose", "v", false, "Extra detail to stderr")
	pflags.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	pflags.BoolVar(&noColorFlag, "no-color", false, "Disable ANSI colors")
	pflags.StringVar(&profileFlag, "profile", "", "Named layout profile to use instead of HPC_CONFIGURATION_FILE")
	pflags.StringVar(&profileDir, "profile-dir", "", "Directory profiles are read from (default: ~/.mosalloc/profiles)")

	if os.Getenv("NO_COLOR") != "" {
		noColorFlag = true
	}
	if os.Getenv("MOSALLOC_JSON") == "1" {
		jsonFlag = true
	}

	return rootCmd
}

func Execute() error {
	cmd := NewRootCmd()
	return cmd.Execute()
}
