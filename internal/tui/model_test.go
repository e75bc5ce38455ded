package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/smazurov/qrgrabber/internal/capture"
	"github.com/smazurov/qrgrabber/internal/scan"
)

type stubScanner struct {
	mu    sync.Mutex
	stops int
	stats capture.RelayStats
	err   error
}

func (s *stubScanner) StopScan(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return s.err
}

func (s *stubScanner) RelayStats() capture.RelayStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return nm, cmd
}

func TestModelTickRefreshesStats(t *testing.T) {
	sc := &stubScanner{stats: capture.RelayStats{Delivered: 12, Overwritten: 3}}
	m := NewModel(sc, "/dev/video0", capture.Resolution{Width: 800, Height: 600})

	m, cmd := update(t, m, tickMsg(m.started.Add(1500*time.Millisecond)))
	if cmd == nil {
		t.Fatal("tick should schedule the next tick")
	}
	view := m.View()
	for _, want := range []string{"/dev/video0", "800x600", "12 delivered", "3 replaced", "1.5s", "q: cancel"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModelQuitStopsScanOnce(t *testing.T) {
	sc := &stubScanner{}
	m := NewModel(sc, "cam", capture.Resolution{})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a stop command")
	}
	if msg := cmd(); msg != nil {
		t.Errorf("successful stop returned %v", msg)
	}
	if sc.stops != 1 {
		t.Errorf("stops = %d, want 1", sc.stops)
	}
	if !strings.Contains(m.View(), "stopping") {
		t.Error("view should show stopping")
	}

	if _, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc}); cmd != nil {
		t.Error("second cancel should be ignored")
	}
}

func TestModelStopErrorEndsScan(t *testing.T) {
	sc := &stubScanner{err: errors.New("device gone")}
	m := NewModel(sc, "cam", capture.Resolution{})

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	msg, ok := cmd().(resultMsg)
	if !ok || msg.err == nil {
		t.Fatalf("stop failure msg = %#v", msg)
	}
}

func TestModelResult(t *testing.T) {
	tests := []struct {
		name string
		msg  resultMsg
		want string
	}{
		{"decoded", resultMsg{result: scan.Result{Label: "hello"}}, "decoded: hello"},
		{"stopped", resultMsg{err: scan.ErrScanStopped}, "scan stopped"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(&stubScanner{}, "cam", capture.Resolution{})
			m, cmd := update(t, m, tt.msg)
			if cmd == nil {
				t.Fatal("result should quit the program")
			}
			if !strings.Contains(m.View(), tt.want) {
				t.Errorf("view missing %q:\n%s", tt.want, m.View())
			}
			res, err := m.Result()
			if res.Label != tt.msg.result.Label || !errors.Is(err, tt.msg.err) {
				t.Errorf("Result() = %+v, %v", res, err)
			}
			if _, cmd := update(t, m, tickMsg(time.Now())); cmd != nil {
				t.Error("ticks after completion should stop")
			}
		})
	}
}

func TestViewError(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	other := errors.New("tty gone")

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want error
	}{
		{name: "killed by cancelled context", ctx: cancelled, err: tea.ErrProgramKilled, want: context.Canceled},
		{name: "killed while context live", ctx: context.Background(), err: tea.ErrProgramKilled, want: tea.ErrProgramKilled},
		{name: "other failure", ctx: cancelled, err: other, want: other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := viewError(tt.ctx, tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("viewError() = %v, want %v", got, tt.want)
			}
		})
	}
	if err := viewError(cancelled, other); errors.Is(err, context.Canceled) {
		t.Errorf("unrelated error mapped to cancellation: %v", err)
	}
}
