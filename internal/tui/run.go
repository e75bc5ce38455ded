package tui

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/smazurov/qrgrabber/internal/scan"
)

// ScanFunc runs one blocking scan.
type ScanFunc func(ctx context.Context) (scan.Result, error)

// Run shows the status view on out while run scans. It returns the scan
// outcome after the view has closed.
func Run(ctx context.Context, model Model, out io.Writer, run ScanFunc) (scan.Result, error) {
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(out))

	go func() {
		res, err := run(ctx)
		p.Send(resultMsg{result: res, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		// release a scan still waiting for a code
		if model.scanner != nil {
			_ = model.scanner.StopScan(context.WithoutCancel(ctx))
		}
		return scan.Result{}, viewError(ctx, err)
	}
	m, ok := final.(Model)
	if !ok {
		return scan.Result{}, fmt.Errorf("terminal view returned %T", final)
	}
	return m.Result()
}

// viewError maps the error of a view that did not close normally. A view
// killed because ctx ended reports the context error like a plain scan.
func viewError(ctx context.Context, err error) error {
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("terminal view: %w", err)
}
