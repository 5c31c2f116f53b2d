package cmd

import (
	"fmt"

	"github.com/mosalloc-go/mosalloc/internal/config"
	"github.com/mosalloc-go/mosalloc/internal/output"
	"github.com/mosalloc-go/mosalloc/internal/profile"
	"github.com/spf13/cobra"
)

func addProfileCommands(root *cobra.Command) {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect named pool-layout presets",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles available in the profile directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := resolvedProfileDir()
			names, err := profile.List(dir)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.PrintJSON(cmd.OutOrStdout(), map[string]any{"dir": dir, "profiles": names})
			}
			if len(names) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no profiles found in %s\n", dir)
				return nil
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a profile's pool sizes and intervals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := resolvedProfileDir()
			p, err := profile.Load(dir, args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.PrintJSON(cmd.OutOrStdout(), p)
			}
			printPoolSpec(cmd, "mmap", p.Pool.Mmap)
			printPoolSpec(cmd, "brk", p.Pool.Brk)
			printPoolSpec(cmd, "file", p.Pool.File)
			return nil
		},
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show which profile would be used and why",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := resolvedProfileDir()
			resolved, err := config.ResolveProfile(dir, profileFlag)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.PrintJSON(cmd.OutOrStdout(), resolved)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (source: %s)\n", resolved.ProfileName, resolved.Source)
			return nil
		},
	}

	profileCmd.AddCommand(listCmd, showCmd, resolveCmd)
	root.AddCommand(profileCmd)
}

func resolvedProfileDir() string {
	if profileDir != "" {
		return profileDir
	}
	return profile.Dir()
}

func printPoolSpec(cmd *cobra.Command, name string, spec profile.PoolSpec) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: size=%d bytes, %d interval(s)\n", name, spec.Size, len(spec.Intervals))
	for _, iv := range spec.Intervals {
		fmt.Fprintf(cmd.OutOrStdout(), "  [%d, %d) page_size=%d\n", iv.Start, iv.End, iv.PageSize)
	}
}
