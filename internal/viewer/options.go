package viewer

import (
	"context"
	"log/slog"
	"time"

	"github.com/fcclab/streamlab/internal/events"
)

// Defaults for the reconnect loop and the recording teardown.
const (
	DefaultMaxRetries      = 10
	DefaultRestartPause    = time.Second
	DefaultMuxer           = "mp4mux"
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultStableChecks    = 3
	DefaultFinalizeTimeout = 5 * time.Second
	DefaultElementTimeout  = 2 * time.Second
)

// Option configures a Viewer.
type Option func(*Viewer)

// WithLogger overrides the module logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Viewer) { v.logger = l }
}

// WithEventBus publishes state and recording events on bus.
func WithEventBus(bus *events.Bus) Option {
	return func(v *Viewer) { v.bus = bus }
}

// WithMaxRetries sets how many consecutive failures close a connecting stream.
func WithMaxRetries(n int) Option {
	return func(v *Viewer) { v.maxRetries = n }
}

// WithRestartPause sets the pause after each graph restart.
func WithRestartPause(d time.Duration) Option {
	return func(v *Viewer) { v.restartPause = d }
}

// WithRecordingsDir sets where default recording names are placed.
func WithRecordingsDir(dir string) Option {
	return func(v *Viewer) { v.recordingsDir = dir }
}

// WithMuxer selects mp4mux or matroskamux for recordings.
func WithMuxer(factory string) Option {
	return func(v *Viewer) { v.muxer = factory }
}

// WithFinalizeTiming tunes how a stopping recording waits for its file to
// settle and its elements to reach NULL.
func WithFinalizeTiming(interval time.Duration, stableChecks int, timeout, elementTimeout time.Duration) Option {
	return func(v *Viewer) {
		v.pollInterval = interval
		v.stableChecks = stableChecks
		v.finalizeTimeout = timeout
		v.elementTimeout = elementTimeout
	}
}

// WithPreflight runs check before each Open. Failures are logged only.
func WithPreflight(check func(ctx context.Context, url string) error) Option {
	return func(v *Viewer) { v.preflight = check }
}
