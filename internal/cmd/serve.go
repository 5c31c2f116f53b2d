package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mosalloc-go/mosalloc/internal/rpcshim"
	"github.com/spf13/cobra"
)

func addServeCommand(root *cobra.Command) {
	var sockFlag string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the allocator daemon in the foreground, serving rpcshim requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ip, log, err := buildInterposer(profileFlag)
			if err != nil {
				return fmt.Errorf("starting allocator: %w", err)
			}
			defer ip.Close()

			sockPath := sockFlag
			if sockPath == "" {
				sockPath = os.Getenv("MOSALLOC_SOCK")
			}
			if sockPath == "" {
				sockPath = rpcshim.DefaultSocketPath(os.Getpid())
			}
			if err := os.MkdirAll(filepath.Dir(sockPath), 0o755); err != nil {
				return fmt.Errorf("creating socket directory: %w", err)
			}

			srv := &rpcshim.Server{SocketPath: sockPath, Interposer: ip, Log: log}
			ln, err := srv.Listen()
			if err != nil {
				return err
			}
			defer ln.Close()
			defer os.Remove(sockPath)

			fmt.Fprintf(cmd.OutOrStdout(), "mosalloc: serving on %s (pid %d)\n", sockPath, os.Getpid())

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve(ln) }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case <-sigCh:
				fmt.Fprintln(cmd.OutOrStdout(), "mosalloc: shutting down")
				return nil
			}
		},
	}

	serveCmd.Flags().StringVar(&sockFlag, "socket", "", "Unix socket path (default: $MOSALLOC_SOCK, else /run/mosalloc/<pid>.sock)")
	root.AddCommand(serveCmd)
}
