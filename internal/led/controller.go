package led

import "errors"

// ErrUnknownLED is returned by Set for an LED the board does not have.
var ErrUnknownLED = errors.New("unknown LED")

// Pattern names understood by every Controller.
const (
	PatternSolid     = "solid"
	PatternBlink     = "blink"
	PatternHeartbeat = "heartbeat"
)

// Controller abstracts LED hardware control across different SBC boards.
// Implementations handle board-specific LED naming and capabilities.
type Controller interface {
	// Set controls an LED's state and optional pattern.
	//   ledType: board-specific LED identifier (e.g., "user", "act", "blue")
	//   enabled: whether the LED should be on or off
	//   pattern: PatternSolid, PatternBlink, PatternHeartbeat or a raw
	//            trigger name; empty means no pattern change
	Set(ledType string, enabled bool, pattern string) error

	// Available returns the LED types supported by this controller, sorted.
	Available() []string

	// Patterns returns the patterns supported by this controller.
	Patterns() []string
}
