package led

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fcclab/streamlab/internal/events"
)

// Mock controller for testing
type mockController struct {
	mu    sync.Mutex
	calls []Pattern
}

func (m *mockController) Set(p Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, p)
	return nil
}

func (m *mockController) Name() string { return "mock" }

func (m *mockController) last() Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1]
}

func waitPattern(t *testing.T, ctrl *mockController, want Pattern) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ctrl.last() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("LED pattern = %q, want %q", ctrl.last(), want)
}

func newTestManager(t *testing.T) (*Manager, *mockController, *events.Bus) {
	t.Helper()
	ctrl := &mockController{}
	bus := events.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	mgr := NewManager(ctrl, bus, logger)
	mgr.Start()
	return mgr, ctrl, bus
}

func TestManager_InitialPatternIsOff(t *testing.T) {
	mgr, ctrl, _ := newTestManager(t)
	defer mgr.Stop()

	if got := ctrl.last(); got != PatternOff {
		t.Errorf("initial pattern = %q, want off", got)
	}
}

func TestManager_FollowsViewerState(t *testing.T) {
	mgr, ctrl, bus := newTestManager(t)
	defer mgr.Stop()

	bus.Publish(events.ViewerStateChangedEvent{State: "connecting", Previous: "closed"})
	waitPattern(t, ctrl, PatternBlink)

	bus.Publish(events.ViewerStateChangedEvent{State: "open", Previous: "connecting"})
	waitPattern(t, ctrl, PatternSolid)

	bus.Publish(events.RecordingStartedEvent{Path: "out.mp4"})
	waitPattern(t, ctrl, PatternFast)

	bus.Publish(events.RecordingStoppedEvent{Path: "out.mp4"})
	waitPattern(t, ctrl, PatternSolid)

	bus.Publish(events.ViewerStateChangedEvent{State: "closed", Previous: "open"})
	waitPattern(t, ctrl, PatternOff)
}

func TestManager_SkipsUnchangedPattern(t *testing.T) {
	mgr, ctrl, bus := newTestManager(t)
	defer mgr.Stop()

	bus.Publish(events.ViewerStateChangedEvent{State: "open"})
	waitPattern(t, ctrl, PatternSolid)
	bus.Publish(events.ViewerStateChangedEvent{State: "open"})
	time.Sleep(50 * time.Millisecond)

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.calls) != 2 {
		t.Errorf("calls = %v, want [off solid]", ctrl.calls)
	}
}

func TestManager_StopTurnsOff(t *testing.T) {
	mgr, ctrl, bus := newTestManager(t)

	bus.Publish(events.ViewerStateChangedEvent{State: "open"})
	waitPattern(t, ctrl, PatternSolid)

	mgr.Stop()
	if got := ctrl.last(); got != PatternOff {
		t.Errorf("pattern after stop = %q, want off", got)
	}
}

func TestPatternFor(t *testing.T) {
	tests := []struct {
		state     string
		recording bool
		want      Pattern
	}{
		{"closed", false, PatternOff},
		{"connecting", false, PatternBlink},
		{"open", false, PatternSolid},
		{"open", true, PatternFast},
	}
	for _, tt := range tests {
		if got := patternFor(tt.state, tt.recording); got != tt.want {
			t.Errorf("patternFor(%q, %v) = %q, want %q", tt.state, tt.recording, got, tt.want)
		}
	}
}
