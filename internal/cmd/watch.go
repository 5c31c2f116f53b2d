package cmd

import (
	"fmt"
	"time"

	"github.com/mosalloc-go/mosalloc/internal/rpcshim"
	"github.com/mosalloc-go/mosalloc/internal/session"
	"github.com/mosalloc-go/mosalloc/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func addWatchCommand(root *cobra.Command) {
	var sockFlag string
	var interval time.Duration

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of pool occupancy for a running allocator daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sockFlag == "" {
				return fmt.Errorf("--socket is required (the daemon's MOSALLOC_SOCK path)")
			}

			client, err := rpcshim.Dial(sockFlag, session.New())
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", sockFlag, err)
			}
			defer client.Close()

			snapshot := func() []tui.PoolStatus {
				stats, err := client.Stats()
				if err != nil {
					return nil
				}
				return []tui.PoolStatus{
					{Name: "anon-mmap", MaxSize: stats.AnonEnd - stats.AnonStart, CurrentSize: stats.AnonCur, MaxObserved: stats.AnonMax},
					{Name: "file-mmap", MaxSize: stats.FileEnd - stats.FileStart, CurrentSize: stats.FileCur, MaxObserved: stats.FileMax},
					{Name: "brk", MaxSize: stats.BrkEnd - stats.BrkStart, CurrentSize: stats.BrkCur, MaxObserved: stats.BrkMax},
				}
			}

			model := tui.NewDashboard(snapshot, interval)
			_, err = tea.NewProgram(model).Run()
			return err
		},
	}

	watchCmd.Flags().StringVar(&sockFlag, "socket", "", "Allocator daemon's Unix socket path")
	watchCmd.Flags().DurationVar(&interval, "interval", time.Second, "Snapshot poll interval")
	root.AddCommand(watchCmd)
}
