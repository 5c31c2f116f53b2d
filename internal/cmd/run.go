package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mosalloc-go/mosalloc/internal/exec"
	"github.com/mosalloc-go/mosalloc/internal/rpcshim"
	"github.com/spf13/cobra"
)

func addRunCommand(root *cobra.Command) {
	var timeout time.Duration

	runCmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Launch a command with MOSALLOC_SOCK pointed at a freshly started allocator",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ip, log, err := buildInterposer(profileFlag)
			if err != nil {
				return fmt.Errorf("starting allocator: %w", err)
			}
			defer ip.Close()

			sockPath := filepath.Join(os.TempDir(), fmt.Sprintf("mosalloc-%d.sock", os.Getpid()))
			srv := &rpcshim.Server{SocketPath: sockPath, Interposer: ip, Log: log}
			ln, err := srv.Listen()
			if err != nil {
				return err
			}
			defer ln.Close()
			defer os.Remove(sockPath)

			go func() {
				if err := srv.Serve(ln); err != nil {
					log.WithError(err).Warn("rpcshim: server stopped")
				}
			}()

			code, err := exec.Run(&exec.RunConfig{
				Command:    args,
				SocketPath: sockPath,
				Timeout:    timeout,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			os.Exit(code)
			return nil
		},
	}

	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "Kill the command's process group after this long")
	root.AddCommand(runCmd)
}
