// Package tui renders a terminal status view while one scan runs.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/smazurov/qrgrabber/internal/capture"
	"github.com/smazurov/qrgrabber/internal/scan"
)

const refreshInterval = 100 * time.Millisecond

// Scanner is the part of *scan.Controller the view needs.
type Scanner interface {
	StopScan(ctx context.Context) error
	RelayStats() capture.RelayStats
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	resultStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	spinnerCells = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
)

type tickMsg time.Time

// resultMsg carries the outcome of StartScan.
type resultMsg struct {
	result scan.Result
	err    error
}

// Model is the bubbletea model of a single scan.
type Model struct {
	scanner    Scanner
	device     string
	resolution capture.Resolution
	started    time.Time
	now        time.Time
	frame      int

	stats    capture.RelayStats
	stopping bool
	done     bool
	result   scan.Result
	err      error
}

// NewModel creates a model for a scan on device with the negotiated resolution.
func NewModel(scanner Scanner, device string, res capture.Resolution) Model {
	now := time.Now()
	return Model{
		scanner:    scanner,
		device:     device,
		resolution: res,
		started:    now,
		now:        now,
	}
}

// Result returns the scan outcome once the model is done.
func (m Model) Result() (scan.Result, error) {
	return m.result, m.err
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.stopping || m.done {
				return m, nil
			}
			m.stopping = true
			return m, m.stop()
		}
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.now = time.Time(msg)
		m.frame++
		if m.scanner != nil {
			m.stats = m.scanner.RelayStats()
		}
		return m, tick()
	case resultMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

// stop releases the pending scan. StartScan then returns and its result
// message ends the program.
func (m Model) stop() tea.Cmd {
	scanner := m.scanner
	return func() tea.Msg {
		if scanner == nil {
			return resultMsg{err: scan.ErrScanStopped}
		}
		if err := scanner.StopScan(context.Background()); err != nil {
			return resultMsg{err: err}
		}
		return nil
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("qrgrabber"))
	b.WriteString("\n\n")
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("  %-10s", label)))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	row("device", m.device)
	row("format", m.resolution.String())
	row("elapsed", m.now.Sub(m.started).Truncate(100*time.Millisecond).String())
	row("frames", fmt.Sprintf("%d delivered, %d replaced, %d failed",
		m.stats.Delivered, m.stats.Overwritten, m.stats.Errors+m.stats.SinkFailures))
	b.WriteString("\n")

	switch {
	case m.done && m.err == nil:
		b.WriteString(resultStyle.Render("  decoded: " + m.result.Label))
	case m.done:
		b.WriteString(errorStyle.Render("  " + m.err.Error()))
	case m.stopping:
		b.WriteString("  stopping...")
	default:
		b.WriteString("  " + spinnerCells[m.frame%len(spinnerCells)] + " point a QR code at the camera")
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("  q: cancel"))
	}
	b.WriteString("\n")
	return b.String()
}
