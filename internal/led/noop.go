package led

import (
	"fmt"
	"log/slog"
)

// noop stands in on boards without known LEDs. Every LED is unknown, so
// API callers get a clear error while the scan indicator stays silent.
type noop struct {
	logger *slog.Logger
}

func newNoop(logger *slog.Logger) *noop {
	return &noop{logger: logger}
}

func (n *noop) Set(ledType string, enabled bool, pattern string) error {
	n.logger.Debug("LED control not available", "led_type", ledType, "enabled", enabled, "pattern", pattern)
	return fmt.Errorf("%w %q: board has no controllable LEDs", ErrUnknownLED, ledType)
}

func (n *noop) Available() []string { return []string{} }
func (n *noop) Patterns() []string  { return []string{} }
