package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

func TestHumanBytes(t *testing.T) {
	require.Equal(t, "512B", humanBytes(512))
	require.Equal(t, "4.0KiB", humanBytes(4*1024))
	require.Equal(t, "2.0GiB", humanBytes(2<<30))
}

func TestDashboardUpdateSnapshotPopulatesBars(t *testing.T) {
	m := NewDashboard(func() []PoolStatus { return nil }, time.Second)
	pools := []PoolStatus{{Name: "anon-mmap", MaxSize: 100, CurrentSize: 50, MaxObserved: 60}}

	next, _ := m.Update(snapshotMsg(pools))
	dm := next.(Dashboard)
	require.Len(t, dm.pools, 1)
	require.Contains(t, dm.bars, "anon-mmap")
}

func TestDashboardQuitKey(t *testing.T) {
	m := NewDashboard(func() []PoolStatus { return nil }, time.Second)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
}
