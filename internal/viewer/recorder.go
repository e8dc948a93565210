package viewer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fcclab/streamlab/internal/events"
	"github.com/fcclab/streamlab/internal/media"
	"github.com/fcclab/streamlab/internal/metrics"
)

// Recording branch element names.
const (
	recQueue  = "recqueue"
	recParser = "recparse"
	recMuxer  = "recmux"
	recSink   = "recsink"
)

type recording struct {
	id       string
	path     string
	started  time.Time
	teePad   media.Pad
	sinkPad  media.Pad
	elements []media.Element // link order
	added    bool
}

// StartRecording attaches a recording branch writing to path and returns
// the file name used. An empty path picks a timestamped name in the
// recordings directory.
func (v *Viewer) StartRecording(ctx context.Context, path string) (string, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	state, active := v.state, v.rec != nil
	v.mu.Unlock()
	if state != StateOpen {
		return "", ErrNotOpen
	}
	if active {
		return "", ErrAlreadyRecording
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if path == "" {
		path = v.defaultRecordingPath(time.Now())
	}
	rec, err := v.attach(path)
	if err != nil {
		metrics.IncRecording("error")
		return "", fmt.Errorf("start recording: %w", err)
	}

	v.mu.Lock()
	v.rec = rec
	v.mu.Unlock()
	metrics.SetViewerRecording(true)
	v.bus.Publish(events.RecordingStartedEvent{ID: rec.id, Path: path, Timestamp: rec.started.Format(time.RFC3339)})
	v.logger.Info("Recording started", "id", rec.id, "path", path)
	return path, nil
}

// StopRecording finalizes and detaches the recording branch. It is a no-op
// when no recording is active.
func (v *Viewer) StopRecording(ctx context.Context) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()
	return v.stopRecordingLocked(ctx, true)
}

func (v *Viewer) defaultRecordingPath(now time.Time) string {
	ext := "mp4"
	if v.muxer == "matroskamux" {
		ext = "mkv"
	}
	return filepath.Join(v.recordingsDir, fmt.Sprintf("recording_%s.%s", now.Format("20060102_150405"), ext))
}

func (v *Viewer) attach(path string) (*recording, error) {
	rec := &recording{id: uuid.NewString(), path: path, started: time.Now()}

	specs := []struct{ factory, name string }{
		{"queue", recQueue},
		{"h264parse", recParser},
		{v.muxer, recMuxer},
		{"filesink", recSink},
	}
	for _, s := range specs {
		el, err := v.graph.NewElement(s.factory, s.name)
		if err != nil {
			v.discard(rec)
			return nil, err
		}
		rec.elements = append(rec.elements, el)
	}
	created := rec.elements
	queue, sink := created[0], created[3]

	// Unbounded queue so the tee blocks instead of dropping.
	for prop, val := range map[string]any{
		"max-size-buffers": uint(0),
		"max-size-bytes":   uint(0),
		"max-size-time":    uint64(0),
	} {
		if err := queue.Set(prop, val); err != nil {
			v.discard(rec)
			return nil, fmt.Errorf("configure queue: %w", err)
		}
	}
	if err := sink.Set("location", path); err != nil {
		v.discard(rec)
		return nil, fmt.Errorf("configure filesink: %w", err)
	}

	if err := v.graph.Add(created...); err != nil {
		v.discard(rec)
		return nil, err
	}
	rec.added = true

	for i := 0; i < len(created)-1; i++ {
		if err := created[i].Link(created[i+1]); err != nil {
			v.discard(rec)
			return nil, fmt.Errorf("link %s: %w", created[i].Name(), err)
		}
	}
	for _, el := range created {
		if err := el.SyncStateWithParent(); err != nil {
			v.discard(rec)
			return nil, err
		}
	}

	teePad, err := v.tee.RequestPad("src_%u")
	if err != nil {
		v.discard(rec)
		return nil, err
	}
	rec.teePad = teePad
	if rec.sinkPad, err = queue.StaticPad("sink"); err != nil {
		v.discard(rec)
		return nil, err
	}
	if err := teePad.Link(rec.sinkPad); err != nil {
		v.discard(rec)
		return nil, err
	}
	return rec, nil
}

// discard removes whatever part of a branch exists.
func (v *Viewer) discard(rec *recording) {
	if rec.teePad != nil {
		if rec.sinkPad != nil {
			rec.teePad.Unlink(rec.sinkPad)
		}
		v.tee.ReleasePad(rec.teePad)
		rec.teePad = nil
	}
	for i := len(rec.elements) - 1; i >= 0; i-- {
		el := rec.elements[i]
		_ = el.SetState(media.StateNull)
		if !rec.added {
			continue
		}
		if err := v.graph.Remove(el); err != nil {
			v.logger.Debug("Remove recording element", "element", el.Name(), "error", err)
		}
	}
	rec.elements = nil
}

func (v *Viewer) stopRecordingLocked(ctx context.Context, checkPlayback bool) error {
	v.mu.Lock()
	rec := v.rec
	v.mu.Unlock()
	if rec == nil {
		return nil
	}

	var errs []error
	if !rec.sinkPad.SendEOS() {
		errs = append(errs, errors.New("recording branch refused EOS"))
	}
	size := v.waitFinalized(ctx, rec.path)

	rec.teePad.Unlink(rec.sinkPad)
	for i := len(rec.elements) - 1; i >= 0; i-- {
		el := rec.elements[i]
		if err := el.SetState(media.StateNull); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", el.Name(), err))
		}
		if err := v.waitNull(ctx, el); err != nil {
			errs = append(errs, err)
		}
		if err := v.graph.Remove(el); err != nil {
			errs = append(errs, err)
		}
	}
	v.tee.ReleasePad(rec.teePad)

	v.mu.Lock()
	v.rec = nil
	faulted := v.faulted
	v.faulted = false
	v.mu.Unlock()
	metrics.SetViewerRecording(false)

	err := errors.Join(errs...)
	ev := events.RecordingStoppedEvent{ID: rec.id, Path: rec.path, Bytes: size, Timestamp: time.Now().Format(time.RFC3339)}
	if err != nil {
		ev.Error = err.Error()
		metrics.IncRecording("error")
		v.logger.Warn("Recording stopped with errors", "path", rec.path, "bytes", size, "error", err)
	} else {
		metrics.IncRecording("ok")
		v.logger.Info("Recording stopped", "path", rec.path, "bytes", size, "duration", time.Since(rec.started).Round(time.Second))
	}
	v.bus.Publish(ev)

	if checkPlayback {
		v.ensurePlaying(faulted)
	}
	return err
}

// ensurePlaying restarts the graph when a fault was deferred during the
// recording or removing the branch left it out of PLAYING.
func (v *Viewer) ensurePlaying(faulted bool) {
	if faulted {
		v.logger.Warn("Restarting stream after fault during recording")
		v.restart(v.State())
		return
	}
	st, err := v.graph.CurrentState(v.elementTimeout)
	if err == nil && st == media.StatePlaying {
		return
	}
	v.logger.Warn("Playback not running after recording teardown, restarting", "state", st, "error", err)
	v.restart(v.State())
}

// waitFinalized polls the file size until it is unchanged for the
// configured number of checks or the timeout passes.
func (v *Viewer) waitFinalized(ctx context.Context, path string) int64 {
	deadline := time.Now().Add(v.finalizeTimeout)
	last, stable := fileSize(path), 0
	for stable < v.stableChecks && time.Now().Before(deadline) {
		if !sleepCtx(ctx, v.pollInterval) {
			break
		}
		size := fileSize(path)
		if size == last {
			stable++
		} else {
			stable = 0
			last = size
		}
	}
	if last < 0 {
		return 0
	}
	return last
}

func (v *Viewer) waitNull(ctx context.Context, el media.Element) error {
	deadline := time.Now().Add(v.elementTimeout)
	for {
		st, err := el.CurrentState(v.pollInterval)
		if err == nil && st == media.StateNull {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s did not reach NULL (state %s)", el.Name(), st)
		}
		if !sleepCtx(ctx, v.pollInterval/5) {
			return ctx.Err()
		}
	}
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return fi.Size()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
