// Package viewer plays one RTSP stream at a time and keeps it alive. A
// single goroutine drains the graph's bus and drives the Closed,
// Connecting and Open states; user calls and bus reactions are serialized
// on one operation lock. While a stream is Open a recording branch can be
// spliced onto the tee after the parser and removed again without
// stopping playback.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fcclab/streamlab/internal/events"
	"github.com/fcclab/streamlab/internal/logging"
	"github.com/fcclab/streamlab/internal/media"
	"github.com/fcclab/streamlab/internal/metrics"
	"github.com/fcclab/streamlab/internal/pipeline"
)

var (
	// ErrNotOpen is returned when recording is requested on a stream that is not Open.
	ErrNotOpen = errors.New("stream is not open")
	// ErrAlreadyRecording is returned by StartRecording while a recording is active.
	ErrAlreadyRecording = errors.New("recording already active")
)

// readFailure is the warning rtspsrc posts when the server stops sending.
const readFailure = "Could not read from resource."

const popTimeout = 100 * time.Millisecond

// Status is a snapshot of the viewer.
type Status struct {
	State          State
	URL            string
	Retries        int
	Recording      bool
	RecordingID    string
	RecordingPath  string
	RecordingSince time.Time
	Controls       Controls
}

// Viewer owns one playback graph.
type Viewer struct {
	graph  media.Graph
	source media.Element
	tee    media.Element
	logger *slog.Logger
	bus    *events.Bus

	maxRetries      int
	restartPause    time.Duration
	recordingsDir   string
	muxer           string
	pollInterval    time.Duration
	stableChecks    int
	finalizeTimeout time.Duration
	elementTimeout  time.Duration
	preflight       func(ctx context.Context, url string) error

	// opMu serializes graph operations.
	opMu sync.Mutex

	mu      sync.Mutex
	state   State
	url     string
	retries int
	rec     *recording
	// faulted is set when a fault arrives while recording; the restart
	// is deferred until the recording stops.
	faulted bool
}

// New parses the viewer description and returns a Closed viewer.
func New(engine media.Engine, description string, opts ...Option) (*Viewer, error) {
	v := &Viewer{
		logger:          logging.GetLogger("viewer"),
		maxRetries:      DefaultMaxRetries,
		restartPause:    DefaultRestartPause,
		recordingsDir:   ".",
		muxer:           DefaultMuxer,
		pollInterval:    DefaultPollInterval,
		stableChecks:    DefaultStableChecks,
		finalizeTimeout: DefaultFinalizeTimeout,
		elementTimeout:  DefaultElementTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}

	g, err := engine.Parse(description)
	if err != nil {
		return nil, fmt.Errorf("create viewer graph: %w", err)
	}
	v.graph = g
	if v.source, err = g.Element(pipeline.ViewerSource); err != nil {
		g.Close()
		return nil, fmt.Errorf("viewer graph: %w", err)
	}
	if v.tee, err = g.Element(pipeline.ViewerTee); err != nil {
		g.Close()
		return nil, fmt.Errorf("viewer graph: %w", err)
	}
	metrics.SetViewerState(int(StateClosed))
	return v, nil
}

// State returns the current state.
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Status returns a snapshot including the control affordances.
func (v *Viewer) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := Status{
		State:    v.state,
		URL:      v.url,
		Retries:  v.retries,
		Controls: ControlsFor(v.state, v.rec != nil),
	}
	if v.rec != nil {
		s.Recording = true
		s.RecordingID = v.rec.id
		s.RecordingPath = v.rec.path
		s.RecordingSince = v.rec.started
	}
	return s
}

// Open starts playing url. An already open or connecting stream is closed first.
func (v *Viewer) Open(ctx context.Context, url string) error {
	if v.preflight != nil {
		if err := v.preflight(ctx, url); err != nil {
			v.logger.Warn("Stream pre-flight failed", "url", url, "error", err)
		}
	}

	v.opMu.Lock()
	defer v.opMu.Unlock()

	if v.State() != StateClosed {
		v.closeLocked(ctx)
	}

	if err := v.source.Set("location", url); err != nil {
		return fmt.Errorf("set location: %w", err)
	}
	if err := v.graph.SetState(media.StatePlaying); err != nil {
		_ = v.graph.SetState(media.StateNull)
		return fmt.Errorf("start stream: %w", err)
	}

	v.mu.Lock()
	v.url = url
	v.retries = 0
	v.faulted = false
	v.mu.Unlock()
	v.setState(StateConnecting)
	v.logger.Info("Opening stream", "url", url)
	return nil
}

// Close stops any recording and the stream. Closing a closed viewer is a no-op.
func (v *Viewer) Close(ctx context.Context) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if v.State() == StateClosed {
		v.logger.Debug("Close requested on closed stream")
		return nil
	}
	v.closeLocked(ctx)
	return nil
}

func (v *Viewer) closeLocked(ctx context.Context) {
	if err := v.stopRecordingLocked(ctx, false); err != nil {
		v.logger.Warn("Recording teardown failed during close", "error", err)
	}
	if err := v.graph.SetState(media.StateNull); err != nil {
		v.logger.Warn("Failed to stop graph", "error", err)
	}
	v.setState(StateClosed)
}

// Run drains the bus until ctx is done.
func (v *Viewer) Run(ctx context.Context) {
	for ctx.Err() == nil {
		msg := v.graph.Pop(popTimeout)
		if msg == nil {
			continue
		}
		if !v.handle(ctx, msg) || v.restartPause <= 0 {
			continue
		}
		t := time.NewTimer(v.restartPause)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
}

// Shutdown closes the stream and releases the graph.
func (v *Viewer) Shutdown(ctx context.Context) {
	_ = v.Close(ctx)
	v.graph.Close()
}

// handle applies one bus message and reports whether the graph was restarted.
func (v *Viewer) handle(ctx context.Context, msg *media.Message) bool {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	state := v.State()
	switch msg.Type {
	case media.MessageStateChanged:
		if msg.FromPipeline && msg.NewState == media.StatePlaying && state == StateConnecting {
			v.mu.Lock()
			v.retries = 0
			v.mu.Unlock()
			v.setState(StateOpen)
			v.logger.Info("Stream open", "url", v.Status().URL)
		}
		return false

	case media.MessageError:
		v.logger.Warn("Stream error", "source", msg.Source, "error", msg.Text, "debug", msg.Debug, "state", state)
		return v.recover(ctx, state)

	case media.MessageWarning:
		v.logger.Debug("Stream warning", "source", msg.Source, "warning", msg.Text)
		if state == StateOpen && strings.Contains(msg.Text, readFailure) {
			return v.recover(ctx, state)
		}
		return false

	case media.MessageEOS:
		v.logger.Info("End of stream", "state", state)
		if state == StateOpen {
			return v.recover(ctx, state)
		}
		if state != StateClosed {
			_ = v.graph.SetState(media.StateNull)
			v.setState(StateClosed)
		}
		return false
	}
	return false
}

func (v *Viewer) recover(ctx context.Context, state State) bool {
	switch state {
	case StateConnecting:
		v.mu.Lock()
		v.retries++
		retries := v.retries
		v.mu.Unlock()
		if retries >= v.maxRetries {
			v.logger.Error("Giving up on stream", "url", v.Status().URL, "failures", retries)
			v.closeLocked(ctx)
			return false
		}
		v.logger.Info("Retrying stream", "attempt", retries, "max", v.maxRetries)
		v.restart(state)
		v.publishState(StateConnecting, StateConnecting)
		return true

	case StateOpen:
		if v.recording() {
			v.mu.Lock()
			v.faulted = true
			v.mu.Unlock()
			v.logger.Warn("Stream fault while recording, restart deferred until recording stops")
			return false
		}
		v.restart(state)
		return true
	}
	return false
}

func (v *Viewer) restart(state State) {
	metrics.IncViewerRestart(state.String())
	if err := v.graph.SetState(media.StateNull); err != nil {
		v.logger.Warn("Failed to stop graph for restart", "error", err)
	}
	if err := v.graph.SetState(media.StatePlaying); err != nil {
		v.logger.Warn("Failed to restart graph", "error", err)
	}
}

func (v *Viewer) recording() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rec != nil
}

func (v *Viewer) setState(s State) {
	v.mu.Lock()
	prev := v.state
	v.state = s
	v.mu.Unlock()
	if prev == s {
		return
	}
	v.publishState(prev, s)
}

func (v *Viewer) publishState(prev, s State) {
	metrics.SetViewerState(int(s))
	st := v.Status()
	v.bus.Publish(events.ViewerStateChangedEvent{
		State:     s.String(),
		Previous:  prev.String(),
		URL:       st.URL,
		Retries:   st.Retries,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
