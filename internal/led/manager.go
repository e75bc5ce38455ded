package led

import (
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/qrgrabber/internal/events"
)

// DefaultSuccessHold is how long the indicator stays solid after a decode.
const DefaultSuccessHold = 3 * time.Second

// Manager drives one indicator LED from scan lifecycle events: blinking
// while a scan waits for a code, solid for a while after a successful
// decode, off otherwise.
//
// The bus delivers each event type on its own goroutine, so a start event
// can arrive after the terminal event of the same scan. Such late starts
// are ignored.
type Manager struct {
	controller Controller
	led        string
	eventBus   *events.Bus
	logger     *slog.Logger

	mu          sync.Mutex
	hold        time.Duration
	activeScan  string
	lastEnded   string
	offTimer    *time.Timer
	unsubscribe []func()
}

// NewManager creates a manager for the given indicator LED.
func NewManager(controller Controller, ledType string, eventBus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		led:        ledType,
		eventBus:   eventBus,
		logger:     logger,
		hold:       DefaultSuccessHold,
	}
}

// SetSuccessHold changes how long the LED stays solid after a decode.
// Non-positive values restore the default.
func (m *Manager) SetSuccessHold(d time.Duration) {
	if d <= 0 {
		d = DefaultSuccessHold
	}
	m.mu.Lock()
	m.hold = d
	m.mu.Unlock()
}

// Start subscribes to scan events.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribe = []func(){
		m.eventBus.Subscribe(func(e events.ScanStartedEvent) { m.onStarted(e.ScanID) }),
		m.eventBus.Subscribe(func(e events.ScanCompletedEvent) { m.onEnded(e.ScanID, true) }),
		m.eventBus.Subscribe(func(e events.ScanAbortedEvent) { m.onEnded(e.ScanID, false) }),
	}
	m.logger.Info("LED manager started", "led", m.led)
}

// Stop unsubscribes and turns the LED off.
func (m *Manager) Stop() {
	m.mu.Lock()
	unsubs := m.unsubscribe
	m.unsubscribe = nil
	if m.offTimer != nil {
		m.offTimer.Stop()
		m.offTimer = nil
	}
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	m.set(false, PatternSolid)
	m.logger.Info("LED manager stopped")
}

func (m *Manager) onStarted(scanID string) {
	m.mu.Lock()
	if scanID == m.lastEnded {
		m.mu.Unlock()
		return
	}
	m.activeScan = scanID
	if m.offTimer != nil {
		m.offTimer.Stop()
		m.offTimer = nil
	}
	m.mu.Unlock()

	m.logger.Debug("Scan pending, LED blinking", "scan_id", scanID)
	m.set(true, PatternBlink)
}

func (m *Manager) onEnded(scanID string, success bool) {
	m.mu.Lock()
	m.lastEnded = scanID
	if m.activeScan == scanID {
		m.activeScan = ""
	}
	if m.offTimer != nil {
		m.offTimer.Stop()
		m.offTimer = nil
	}
	if success {
		m.offTimer = time.AfterFunc(m.hold, m.holdExpired)
	}
	m.mu.Unlock()

	if success {
		m.logger.Debug("Scan decoded, LED solid", "scan_id", scanID)
		m.set(true, PatternSolid)
		return
	}
	m.set(false, PatternSolid)
}

func (m *Manager) holdExpired() {
	m.mu.Lock()
	m.offTimer = nil
	pending := m.activeScan != ""
	m.mu.Unlock()
	if !pending {
		m.set(false, PatternSolid)
	}
}

func (m *Manager) set(enabled bool, pattern string) {
	if m.led == "" {
		return
	}
	if err := m.controller.Set(m.led, enabled, pattern); err != nil {
		m.logger.Warn("Failed to set LED", "led", m.led, "pattern", pattern, "error", err)
	}
}
