package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

type board struct {
	match string
	leds  map[string]string
	// indicator is the LED the scan manager drives
	indicator string
}

var boards = []board{
	{match: "NanoPC-T6", leds: map[string]string{"user": "usr_led", "system": "sys_led"}, indicator: "user"},
	{match: "Orange Pi", leds: map[string]string{"blue": "blue_led", "green": "green_led"}, indicator: "green"},
	{match: "Raspberry Pi", leds: map[string]string{"act": "ACT"}, indicator: "act"},
}

// New creates an LED controller for the detected board and returns the LED
// to use as scan indicator. Falls back to a no-op controller when the board
// has no known LEDs.
func New(logger *slog.Logger) (Controller, string) {
	model := detectBoard(deviceTreeModelPath)
	logger.Info("Detecting board for LED control", "board_model", model)

	if b, ok := boardFor(model); ok {
		logger.Info("Using sysfs LED controller", "board", b.match, "indicator", b.indicator)
		return newSysfs("", b.leds), b.indicator
	}

	logger.Info("No LED support detected, using no-op controller", "board_model", model)
	return newNoop(logger), ""
}

func boardFor(model string) (board, bool) {
	for _, b := range boards {
		if strings.Contains(model, b.match) {
			return b, true
		}
	}
	return board{}, false
}

// detectBoard reads the device tree model to identify the board.
func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	// device tree strings are NUL terminated
	return strings.TrimRight(string(data), "\x00")
}
