package led

import (
	"log/slog"
	"sync"

	"github.com/fcclab/streamlab/internal/events"
)

// Manager maps viewer events to an LED pattern: off while closed, blinking
// while connecting, solid while open and fast blinking while recording.
type Manager struct {
	controller Controller
	eventBus   *events.Bus
	logger     *slog.Logger
	unsubs     []func()

	mu        sync.Mutex
	state     string
	recording bool
	current   Pattern
}

// NewManager creates a manager driving controller from eventBus.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
		state:      "closed",
	}
}

// Start subscribes to viewer events and shows the initial pattern.
func (m *Manager) Start() {
	m.unsubs = append(m.unsubs,
		m.eventBus.Subscribe(func(e events.ViewerStateChangedEvent) {
			m.mu.Lock()
			m.state = e.State
			if e.State != "open" {
				m.recording = false
			}
			m.mu.Unlock()
			m.update()
		}),
		m.eventBus.Subscribe(func(events.RecordingStartedEvent) {
			m.mu.Lock()
			m.recording = true
			m.mu.Unlock()
			m.update()
		}),
		m.eventBus.Subscribe(func(events.RecordingStoppedEvent) {
			m.mu.Lock()
			m.recording = false
			m.mu.Unlock()
			m.update()
		}),
	)
	m.update()
	m.logger.Info("LED manager started", "led", m.controller.Name())
}

// Stop unsubscribes and turns the LED off.
func (m *Manager) Stop() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
	if err := m.controller.Set(PatternOff); err != nil {
		m.logger.Warn("Failed to turn LED off", "error", err)
	}
	m.logger.Info("LED manager stopped")
}

// Pattern returns the last pattern shown.
func (m *Manager) Pattern() Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func patternFor(state string, recording bool) Pattern {
	switch {
	case recording:
		return PatternFast
	case state == "open":
		return PatternSolid
	case state == "connecting":
		return PatternBlink
	default:
		return PatternOff
	}
}

func (m *Manager) update() {
	m.mu.Lock()
	defer m.mu.Unlock()

	pattern := patternFor(m.state, m.recording)
	if pattern == m.current {
		return
	}
	if err := m.controller.Set(pattern); err != nil {
		m.logger.Warn("Failed to set LED", "pattern", pattern, "error", err)
		return
	}
	m.current = pattern
	m.logger.Debug("LED pattern changed", "pattern", pattern, "state", m.state, "recording", m.recording)
}
