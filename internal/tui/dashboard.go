// Package tui renders a live dashboard of pool occupancy: each pool's
// reserved ceiling, materialized size, and high-water mark, refreshed on a
// timer through the caller-supplied Snapshot function.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

// PoolStatus is one pool's snapshot for a single dashboard frame.
type PoolStatus struct {
	Name        string
	MaxSize     uint64
	CurrentSize uint64
	MaxObserved uint64
}

// Snapshot is queried on a timer; the dashboard never reaches into the
// allocator's internals directly so it works identically whether the
// allocator is in-process or reached through rpcshim.
type Snapshot func() []PoolStatus

type dashboardKeyMap struct {
	Quit key.Binding
	Help key.Binding
}

func (k dashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Help}
}

func (k dashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Quit, k.Help}}
}

type tickMsg time.Time

type snapshotMsg []PoolStatus

// Dashboard is the bubbletea model rendering pool occupancy bars.
type Dashboard struct {
	snapshot Snapshot
	interval time.Duration

	keys  dashboardKeyMap
	help  help.Model
	bars  map[string]progress.Model
	pools []PoolStatus
	width int
}

// NewDashboard builds a dashboard that polls snapshot every interval.
func NewDashboard(snapshot Snapshot, interval time.Duration) Dashboard {
	return Dashboard{
		snapshot: snapshot,
		interval: interval,
		keys: dashboardKeyMap{
			Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
			Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
		},
		help: help.New(),
		bars: map[string]progress.Model{},
	}
}

func (m Dashboard) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.poll())
}

func (m Dashboard) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Dashboard) poll() tea.Cmd {
	return func() tea.Msg { return snapshotMsg(m.snapshot()) }
}

func (m Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.tick(), m.poll())

	case snapshotMsg:
		m.pools = msg
		for _, p := range m.pools {
			if _, ok := m.bars[p.Name]; !ok {
				m.bars[p.Name] = progress.New(progress.WithDefaultGradient())
			}
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
	}
	return m, nil
}

func (m Dashboard) View() string {
	var b strings.Builder
	b.WriteString(StyleTitle.Render("mosalloc pool occupancy"))
	b.WriteString("\n\n")

	if len(m.pools) == 0 {
		b.WriteString(StyleDim.Render("  waiting for a snapshot...\n"))
	}

	for _, p := range m.pools {
		frac := 0.0
		if p.MaxSize > 0 {
			frac = float64(p.CurrentSize) / float64(p.MaxSize)
		}
		bar := m.bars[p.Name]
		width := m.width - 4
		if width < 10 {
			width = 40
		}
		bar.Width = width
		b.WriteString(fmt.Sprintf("  %-10s %s\n", p.Name, bar.ViewAs(frac)))
		b.WriteString(StyleDim.Render(fmt.Sprintf(
			"             %s materialized / %s reserved (peak %s)\n",
			humanBytes(p.CurrentSize), humanBytes(p.MaxSize), humanBytes(p.MaxObserved),
		)))
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
