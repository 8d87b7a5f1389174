// Package tui provides the interactive `hwgw top` view.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/simonsavoca/bitburner/internal/model"
	"github.com/simonsavoca/bitburner/internal/uds"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			MarginLeft(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	summaryStyle = lipgloss.NewStyle().
			Bold(true).
			MarginLeft(1)

	batchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			MarginLeft(1).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginLeft(1).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			MarginLeft(1)
)

// Snapshot is one poll of the daemon.
type Snapshot struct {
	Status model.DaemonStatus
	Fleet  []model.WorkerNode
}

// Fetcher polls the daemon.
type Fetcher func() (Snapshot, error)

// Model is the top view state.
type Model struct {
	table      table.Model
	fetch      Fetcher
	unitCost   float64
	interval   time.Duration
	snap       Snapshot
	lastUpdate time.Time
	err        error
	quitting   bool
}

type tickMsg time.Time
type snapshotMsg Snapshot
type errMsg struct{ err error }

// New creates the view. unitCost converts free RAM into threads for the node table.
func New(fetch Fetcher, unitCost float64, interval time.Duration) Model {
	columns := []table.Column{
		{Title: "Node", Width: 20},
		{Title: "Access", Width: 7},
		{Title: "Used GB", Width: 9},
		{Title: "Max GB", Width: 9},
		{Title: "Free thr", Width: 9},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true).
		Foreground(lipgloss.Color("12"))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	if interval <= 0 {
		interval = time.Second
	}
	return Model{table: t, fetch: fetch, unitCost: unitCost, interval: interval}
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) poll() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.fetch()
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg(snap)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tickCmd(), m.poll())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.poll()
		}

	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-10, 3))
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.tickCmd(), m.poll())

	case snapshotMsg:
		m.snap = Snapshot(msg)
		m.err = nil
		m.lastUpdate = time.Now()
		m.table.SetRows(m.rows())
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.snap.Fleet))
	for _, n := range m.snap.Fleet {
		access := "no"
		free := "-"
		if n.HasAccess {
			access = "yes"
			if m.unitCost > 0 {
				free = fmt.Sprintf("%d", int(n.Capacity.Free()/m.unitCost))
			}
		}
		rows = append(rows, table.Row{
			n.ID,
			access,
			fmt.Sprintf("%.2f", n.Capacity.Used),
			fmt.Sprintf("%.2f", n.Capacity.Max),
			free,
		})
	}
	return rows
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	title := titleStyle.Render("hwgw top")
	timestamp := timestampStyle.Render(fmt.Sprintf("Last update: %s", m.lastUpdate.Format("15:04:05")))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, title, strings.Repeat(" ", 5), timestamp))
	b.WriteString("\n\n")

	st := m.snap.Status.Status
	phase := string(st.Phase)
	if st.ResumePhase != "" {
		phase += "/" + string(st.ResumePhase)
	}
	target := st.Target
	if target == "" {
		target = "-"
	}
	c := m.snap.Status.Counters
	b.WriteString(summaryStyle.Render(fmt.Sprintf(
		"mode=%s phase=%s target=%s iter=%d | fleet=%d free=%d | batches=%d skipped=%d",
		st.Mode, phase, target, st.Iteration, st.FleetNodes, st.FreeThreads, c.Batches, c.SkippedBatches,
	)))
	b.WriteString("\n")
	if p := st.LastPartition; p != nil {
		b.WriteString(batchStyle.Render(fmt.Sprintf("last batch H:%d W:%d G:%d W:%d unused:%d",
			p.Extract, p.Penalty1, p.Yield, p.Penalty2, p.Remainder())))
	} else {
		b.WriteString(batchStyle.Render("no batch yet"))
	}
	b.WriteString("\n")

	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓: navigate • r: refresh • q/esc: quit"))

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	return b.String()
}

// DaemonFetcher polls the daemon listening in stateDir.
func DaemonFetcher(stateDir string) Fetcher {
	client := uds.NewClient(filepath.Join(stateDir, uds.DefaultSocketName), 2*time.Second)
	return func() (Snapshot, error) {
		var snap Snapshot
		if err := client.Call("status", nil, &snap.Status); err != nil {
			return snap, err
		}
		if err := client.Call("fleet", nil, &snap.Fleet); err != nil {
			return snap, err
		}
		return snap, nil
	}
}

// Run starts the interactive view.
func Run(stateDir string, unitCost float64, interval time.Duration) error {
	p := tea.NewProgram(
		New(DaemonFetcher(stateDir), unitCost, interval),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
