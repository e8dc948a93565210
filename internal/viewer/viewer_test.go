package viewer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fcclab/streamlab/internal/events"
	"github.com/fcclab/streamlab/internal/media"
	"github.com/fcclab/streamlab/internal/media/mediatest"
	"github.com/fcclab/streamlab/internal/pipeline"
)

const testURL = "rtsp://127.0.0.1:8554/front"

func newTestViewer(t *testing.T, opts ...Option) (*Viewer, *mediatest.Graph) {
	t.Helper()
	desc := pipeline.BuildViewer(pipeline.ViewerParams{VideoSink: "fakesink"})
	engine := mediatest.NewEngine()
	base := []Option{
		WithRestartPause(0),
		WithRecordingsDir(t.TempDir()),
		WithFinalizeTiming(time.Millisecond, 2, 50*time.Millisecond, 50*time.Millisecond),
	}
	v, err := New(engine, desc, append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return v, engine.Last()
}

func run(t *testing.T, v *Viewer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		v.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func openStream(t *testing.T, v *Viewer, g *mediatest.Graph) {
	t.Helper()
	if err := v.Open(context.Background(), testURL); err != nil {
		t.Fatal(err)
	}
	g.PostPlaying()
	waitFor(t, "open", func() bool { return v.State() == StateOpen })
}

func TestNewRequiresNamedElements(t *testing.T) {
	engine := mediatest.NewEngine()
	if _, err := New(engine, "videotestsrc ! fakesink"); !errors.Is(err, media.ErrNoElement) {
		t.Fatalf("expected ErrNoElement, got %v", err)
	}
	if !engine.Last().Closed() {
		t.Error("graph should be closed after a failed New")
	}
}

func TestNewPropagatesEngineError(t *testing.T) {
	engine := mediatest.NewEngine()
	engine.ParseErr = media.ErrUnavailable
	if _, err := New(engine, "x"); !errors.Is(err, media.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestOpenTransitions(t *testing.T) {
	bus := events.New()
	seen := make(chan events.ViewerStateChangedEvent, 16)
	unsub := bus.Subscribe(func(e events.ViewerStateChangedEvent) { seen <- e })
	defer unsub()

	v, g := newTestViewer(t, WithEventBus(bus))
	run(t, v)

	if v.State() != StateClosed {
		t.Fatalf("initial state = %s", v.State())
	}
	if err := v.Open(context.Background(), testURL); err != nil {
		t.Fatal(err)
	}
	if v.State() != StateConnecting {
		t.Fatalf("state after open = %s, want connecting", v.State())
	}
	loc, _ := g.Lookup(pipeline.ViewerSource).Property("location")
	if loc != testURL {
		t.Errorf("location = %v", loc)
	}
	if h := g.History(); len(h) == 0 || h[len(h)-1] != media.StatePlaying {
		t.Errorf("graph not commanded to PLAYING: %v", h)
	}

	g.PostPlaying()
	waitFor(t, "open", func() bool { return v.State() == StateOpen })

	want := []string{"connecting", "open"}
	for _, w := range want {
		select {
		case e := <-seen:
			if e.State != w {
				t.Errorf("event state = %s, want %s", e.State, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %s event", w)
		}
	}
}

func TestStateChangeFromChildIgnored(t *testing.T) {
	v, g := newTestViewer(t)
	run(t, v)
	if err := v.Open(context.Background(), testURL); err != nil {
		t.Fatal(err)
	}
	g.Post(&media.Message{Type: media.MessageStateChanged, Source: "decoder", NewState: media.StatePlaying})
	g.PostWarning("decoder", "marker")
	time.Sleep(50 * time.Millisecond)
	if v.State() != StateConnecting {
		t.Errorf("child state change moved viewer to %s", v.State())
	}
}

func TestTenErrorsWhileConnectingClose(t *testing.T) {
	v, g := newTestViewer(t)
	run(t, v)
	if err := v.Open(context.Background(), testURL); err != nil {
		t.Fatal(err)
	}

	for range DefaultMaxRetries - 1 {
		g.PostError(pipeline.ViewerSource, "Could not open resource for reading and writing.")
	}
	waitFor(t, "nine restarts", func() bool { return g.Restarts() == DefaultMaxRetries-1 })
	st := v.Status()
	if st.State != StateConnecting || st.Retries != DefaultMaxRetries-1 {
		t.Fatalf("status after nine errors = %+v", st)
	}

	g.PostError(pipeline.ViewerSource, "Could not open resource for reading and writing.")
	waitFor(t, "closed", func() bool { return v.State() == StateClosed })
	h := g.History()
	if h[len(h)-1] != media.StateNull {
		t.Errorf("graph should end in NULL, history %v", h)
	}
}

func TestSuccessResetsRetries(t *testing.T) {
	v, g := newTestViewer(t)
	run(t, v)
	if err := v.Open(context.Background(), testURL); err != nil {
		t.Fatal(err)
	}
	g.PostError(pipeline.ViewerSource, "timeout")
	g.PostError(pipeline.ViewerSource, "timeout")
	waitFor(t, "two restarts", func() bool { return g.Restarts() == 2 })
	g.PostPlaying()
	waitFor(t, "open", func() bool { return v.State() == StateOpen })
	if r := v.Status().Retries; r != 0 {
		t.Errorf("retries after open = %d", r)
	}
}

func TestErrorWhileOpenRestartsInPlace(t *testing.T) {
	v, g := newTestViewer(t)
	run(t, v)
	openStream(t, v, g)

	before := g.Restarts()
	g.PostError("decoder", "decoding error")
	waitFor(t, "restart", func() bool { return g.Restarts() == before+1 })
	if v.State() != StateOpen {
		t.Errorf("state after error while open = %s, want open", v.State())
	}

	g.PostEOS()
	waitFor(t, "restart on eos", func() bool { return g.Restarts() == before+2 })
	if v.State() != StateOpen {
		t.Errorf("state after eos while open = %s, want open", v.State())
	}
}

func TestReadWarningWhileOpenRestarts(t *testing.T) {
	v, g := newTestViewer(t)
	run(t, v)
	openStream(t, v, g)

	before := g.Restarts()
	g.PostWarning(pipeline.ViewerSource, "Could not read from resource.")
	waitFor(t, "restart", func() bool { return g.Restarts() == before+1 })
	if v.State() != StateOpen {
		t.Errorf("state = %s, want open", v.State())
	}
}

func TestEOSWhileConnectingCloses(t *testing.T) {
	v, g := newTestViewer(t)
	run(t, v)
	if err := v.Open(context.Background(), testURL); err != nil {
		t.Fatal(err)
	}
	g.PostEOS()
	waitFor(t, "closed", func() bool { return v.State() == StateClosed })
}

func TestCloseWhenClosedIsNoop(t *testing.T) {
	v, g := newTestViewer(t)
	if err := v.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(g.History()) != 0 {
		t.Errorf("closing a closed viewer touched the graph: %v", g.History())
	}
}

func TestOpenWhileOpenReopens(t *testing.T) {
	v, g := newTestViewer(t)
	run(t, v)
	openStream(t, v, g)

	other := "rtsp://127.0.0.1:8554/rear"
	if err := v.Open(context.Background(), other); err != nil {
		t.Fatal(err)
	}
	st := v.Status()
	if st.State != StateConnecting || st.URL != other {
		t.Errorf("status after reopen = %+v", st)
	}
	h := g.History()
	if len(h) < 2 || h[len(h)-2] != media.StateNull || h[len(h)-1] != media.StatePlaying {
		t.Errorf("expected NULL then PLAYING, history %v", h)
	}
}

func TestStartRecordingRequiresOpen(t *testing.T) {
	v, g := newTestViewer(t)
	before := len(g.Names())

	if _, err := v.StartRecording(context.Background(), ""); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if len(g.Names()) != before {
		t.Error("a branch was created while closed")
	}
	if n := g.Lookup(pipeline.ViewerTee).RequestedPads(); n != 0 {
		t.Errorf("tee has %d request pads", n)
	}
}

func TestStartRecordingTwice(t *testing.T) {
	v, g := newTestViewer(t)
	run(t, v)
	openStream(t, v, g)

	path, err := v.StartRecording(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(filepath.Base(path), "recording_") || filepath.Ext(path) != ".mp4" {
		t.Errorf("unexpected default path %s", path)
	}
	if _, err := v.StartRecording(context.Background(), ""); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}

	tee := g.Lookup(pipeline.ViewerTee)
	if n := tee.RequestedPads(); n != 1 {
		t.Errorf("tee request pads = %d, want 1", n)
	}
	q := g.Lookup(recQueue)
	if q == nil || !q.LinkedTo(recParser) {
		t.Fatal("recording queue missing or unlinked")
	}
	if g.Lookup(recMuxer).Factory() != "mp4mux" {
		t.Errorf("muxer = %s", g.Lookup(recMuxer).Factory())
	}
	if loc, _ := g.Lookup(recSink).Property("location"); loc != path {
		t.Errorf("filesink location = %v", loc)
	}
	st := v.Status()
	if !st.Recording || st.RecordingPath != path || !st.Controls.RecordEnabled || st.Controls.RecordLabel != "Stop recording" {
		t.Errorf("status = %+v", st)
	}
}

func TestStopRecording(t *testing.T) {
	bus := events.New()
	stopped := make(chan events.RecordingStoppedEvent, 1)
	unsub := bus.Subscribe(func(e events.RecordingStoppedEvent) { stopped <- e })
	defer unsub()

	v, g := newTestViewer(t, WithEventBus(bus))
	run(t, v)
	openStream(t, v, g)

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("mdat"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := v.StartRecording(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	queue := g.Lookup(recQueue)
	restarts := g.Restarts()
	id := v.Status().RecordingID
	if id == "" {
		t.Fatal("recording has no session id")
	}

	if err := v.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !queue.ReceivedEOS() {
		t.Error("EOS was not sent into the recording branch")
	}
	for _, n := range []string{recQueue, recParser, recMuxer, recSink} {
		if g.Lookup(n) != nil {
			t.Errorf("%s still in graph", n)
		}
	}
	tee := g.Lookup(pipeline.ViewerTee)
	if tee.RequestedPads() != 0 || tee.ReleasedPads() != 1 {
		t.Errorf("tee pads outstanding=%d released=%d", tee.RequestedPads(), tee.ReleasedPads())
	}
	if v.Status().Recording {
		t.Error("recording flag still set")
	}
	if g.Restarts() != restarts {
		t.Error("graph restarted although playback was still running")
	}

	select {
	case e := <-stopped:
		if e.ID != id || e.Path != path || e.Bytes != 4 {
			t.Errorf("stopped event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no stopped event")
	}
}

func TestStopRecordingRestartsStalledPlayback(t *testing.T) {
	v, g := newTestViewer(t)
	run(t, v)
	openStream(t, v, g)

	if _, err := v.StartRecording(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	g.SetStuck(media.StatePaused)
	restarts := g.Restarts()
	if err := v.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if g.Restarts() != restarts+1 {
		t.Errorf("restarts = %d, want %d", g.Restarts(), restarts+1)
	}
}

func TestStopRecordingWhenIdle(t *testing.T) {
	v, g := newTestViewer(t)
	if err := v.StopRecording(context.Background()); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if v.State() != StateClosed || len(g.History()) != 0 {
		t.Error("idle stop changed state")
	}
}

func TestStartRecordingLinkFailureCleansUp(t *testing.T) {
	v, g := newTestViewer(t)
	run(t, v)
	openStream(t, v, g)

	g.FailLinks[recParser] = errors.New("not-negotiated")
	if _, err := v.StartRecording(context.Background(), ""); err == nil {
		t.Fatal("expected link failure")
	}
	for _, n := range []string{recQueue, recParser, recMuxer, recSink} {
		if g.Lookup(n) != nil {
			t.Errorf("%s left in graph", n)
		}
	}
	if g.Lookup(pipeline.ViewerTee).RequestedPads() != 0 {
		t.Error("tee pad leaked")
	}
	if v.Status().Recording {
		t.Error("recording flag set after failure")
	}

	delete(g.FailLinks, recParser)
	if _, err := v.StartRecording(context.Background(), ""); err != nil {
		t.Fatalf("retry after cleanup failed: %v", err)
	}
}

func TestStartRecordingMissingMuxer(t *testing.T) {
	v, g := newTestViewer(t, WithMuxer("matroskamux"))
	run(t, v)
	openStream(t, v, g)

	g.FailElements["matroskamux"] = errors.New("no such element factory")
	if _, err := v.StartRecording(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
	if g.Lookup(recQueue) != nil {
		t.Error("queue added despite failure")
	}
}

func TestStartRecordingReleasesUnaddedElements(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(g *mediatest.Graph)
		created int
	}{
		{
			name:    "muxer missing",
			setup:   func(g *mediatest.Graph) { g.FailElements["mp4mux"] = errors.New("no such element factory") },
			created: 2,
		},
		{
			name:    "location rejected",
			setup:   func(g *mediatest.Graph) { g.FailSet["location"] = errors.New("read-only property") },
			created: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, g := newTestViewer(t)
			run(t, v)
			openStream(t, v, g)

			tt.setup(g)
			if _, err := v.StartRecording(context.Background(), ""); err == nil {
				t.Fatal("expected error")
			}
			created := g.Created()
			if len(created) != tt.created {
				t.Fatalf("created %d elements, want %d", len(created), tt.created)
			}
			for _, el := range created {
				states := el.States()
				if len(states) == 0 || states[len(states)-1] != media.StateNull {
					t.Errorf("%s not released, states %v", el.Name(), states)
				}
				if g.Lookup(el.Name()) != nil {
					t.Errorf("%s left in graph", el.Name())
				}
			}
			if v.Status().Recording {
				t.Error("recording reported after failed start")
			}
		})
	}
}

func TestErrorWhileRecordingSuppressesRestart(t *testing.T) {
	v, g := newTestViewer(t)
	run(t, v)
	openStream(t, v, g)

	if _, err := v.StartRecording(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	restarts := g.Restarts()
	g.PostError("decoder", "decoding error")
	g.PostWarning("decoder", "flush")
	time.Sleep(100 * time.Millisecond)
	if g.Restarts() != restarts {
		t.Error("graph restarted while recording")
	}
	if v.State() != StateOpen || !v.Status().Recording {
		t.Errorf("status = %+v", v.Status())
	}
}

func TestStopRecordingRestartsAfterDeferredFault(t *testing.T) {
	v, g := newTestViewer(t)
	run(t, v)
	openStream(t, v, g)

	if _, err := v.StartRecording(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	restarts := g.Restarts()
	g.PostError("source", "Could not read from resource.")
	waitFor(t, "deferred fault", func() bool {
		v.mu.Lock()
		defer v.mu.Unlock()
		return v.faulted
	})
	if g.Restarts() != restarts {
		t.Fatal("graph restarted while recording")
	}

	// the graph still reports PLAYING after the error
	if err := v.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if g.Restarts() != restarts+1 {
		t.Errorf("restarts = %d, want %d", g.Restarts(), restarts+1)
	}
	if v.State() != StateOpen {
		t.Errorf("state = %s, want open", v.State())
	}

	// a second recording without faults does not restart
	if _, err := v.StartRecording(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if err := v.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if g.Restarts() != restarts+1 {
		t.Errorf("restarts = %d after clean recording, want %d", g.Restarts(), restarts+1)
	}
}

func TestCloseStopsRecording(t *testing.T) {
	v, g := newTestViewer(t)
	run(t, v)
	openStream(t, v, g)

	if _, err := v.StartRecording(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if err := v.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v.State() != StateClosed || v.Status().Recording {
		t.Errorf("status after close = %+v", v.Status())
	}
	if g.Lookup(recQueue) != nil {
		t.Error("recording branch left after close")
	}
	if g.Lookup(pipeline.ViewerTee).RequestedPads() != 0 {
		t.Error("tee pad leaked after close")
	}
}

func TestPreflightFailureDoesNotBlockOpen(t *testing.T) {
	called := false
	v, _ := newTestViewer(t, WithPreflight(func(_ context.Context, url string) error {
		called = url == testURL
		return errors.New("401 Unauthorized")
	}))
	if err := v.Open(context.Background(), testURL); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("preflight not called with the stream url")
	}
	if v.State() != StateConnecting {
		t.Errorf("state = %s", v.State())
	}
}

func TestControlsFor(t *testing.T) {
	tests := []struct {
		state     State
		recording bool
		want      Controls
	}{
		{StateClosed, false, Controls{SelectEnabled: true, ButtonEnabled: true, ButtonLabel: "Open", RecordLabel: "Record"}},
		{StateConnecting, false, Controls{ButtonEnabled: true, ButtonLabel: "Connecting...", RecordLabel: "Record"}},
		{StateOpen, false, Controls{ButtonEnabled: true, ButtonLabel: "Close", RecordEnabled: true, RecordLabel: "Record"}},
		{StateOpen, true, Controls{ButtonEnabled: true, ButtonLabel: "Close", RecordEnabled: true, RecordLabel: "Stop recording"}},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := ControlsFor(tt.state, tt.recording); got != tt.want {
				t.Errorf("ControlsFor(%s, %v) = %+v, want %+v", tt.state, tt.recording, got, tt.want)
			}
		})
	}
}

func TestDefaultRecordingPath(t *testing.T) {
	v := &Viewer{recordingsDir: "/data", muxer: "matroskamux"}
	now := time.Date(2025, 1, 27, 10, 30, 5, 0, time.UTC)
	if got := v.defaultRecordingPath(now); got != "/data/recording_20250127_103005.mkv" {
		t.Errorf("path = %s", got)
	}
}
