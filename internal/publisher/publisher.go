// Package publisher keeps a publishing pipeline running. The graph runner
// drives the pipeline in process, watches the sink's byte counter and
// rebuilds the graph after errors or stalls. The launch runner does the same
// with a gst-launch-1.0 subprocess.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fcclab/streamlab/internal/events"
	"github.com/fcclab/streamlab/internal/logging"
	"github.com/fcclab/streamlab/internal/media"
	"github.com/fcclab/streamlab/internal/metrics"
	"github.com/fcclab/streamlab/internal/pipeline"
	"github.com/fcclab/streamlab/internal/process"
)

// Defaults for status reporting and reconnects.
const (
	DefaultStatusInterval = time.Second
	DefaultStallThreshold = 5
	DefaultReconnectDelay = 2 * time.Second
)

// stallRateMbps is the bitrate under which a playing pipeline counts as stalled.
const stallRateMbps = 0.01

const popTimeout = 100 * time.Millisecond

// Option configures a runner.
type Option func(*config)

type config struct {
	logger         *slog.Logger
	bus            *events.Bus
	statusInterval time.Duration
	stallThreshold int
	reconnectDelay time.Duration
	maxAttempts    int
}

func newConfig(opts []Option) config {
	c := config{
		logger:         logging.GetLogger("publisher"),
		statusInterval: DefaultStatusInterval,
		stallThreshold: DefaultStallThreshold,
		reconnectDelay: DefaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithEventBus publishes a status event on every tick.
func WithEventBus(bus *events.Bus) Option {
	return func(c *config) { c.bus = bus }
}

// WithLogger overrides the module logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTiming overrides the status interval, the number of stalled ticks
// that force a restart and the delay before reconnecting.
func WithTiming(status time.Duration, stallTicks int, reconnect time.Duration) Option {
	return func(c *config) {
		c.statusInterval = status
		c.stallThreshold = stallTicks
		c.reconnectDelay = reconnect
	}
}

// WithMaxAttempts stops after n attempts. Zero means no limit.
func WithMaxAttempts(n int) Option {
	return func(c *config) { c.maxAttempts = n }
}

// Runner publishes until its context is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// GraphRunner runs the description in process.
type GraphRunner struct {
	engine      media.Engine
	description string
	target      string
	cfg         config
}

// NewGraphRunner returns a runner for description. target names the
// destination in logs, events and metrics.
func NewGraphRunner(engine media.Engine, description, target string, opts ...Option) *GraphRunner {
	return &GraphRunner{engine: engine, description: description, target: target, cfg: newConfig(opts)}
}

// Run publishes until ctx is cancelled. It returns an error only when the
// pipeline cannot be built at all or the attempt limit is reached.
func (r *GraphRunner) Run(ctx context.Context) error {
	defer metrics.DeletePublisherMetrics(r.target)
	for attempt := 1; ; attempt++ {
		r.cfg.logger.Info("Starting stream", "target", r.target, "attempt", attempt)
		metrics.IncPublisherAttempt(r.target)
		if err := r.runOnce(ctx, attempt); err != nil {
			return err
		}
		if ctx.Err() != nil {
			r.cfg.logger.Info("Stopped by user", "target", r.target)
			return nil
		}
		if r.cfg.maxAttempts > 0 && attempt >= r.cfg.maxAttempts {
			return fmt.Errorf("giving up after %d attempts", attempt)
		}
		r.cfg.logger.Info("Restarting stream", "delay", r.cfg.reconnectDelay, "attempt", attempt)
		if !sleepCtx(ctx, r.cfg.reconnectDelay) {
			return nil
		}
	}
}

// runOnce plays one graph until it errors, stalls, ends or ctx is done.
func (r *GraphRunner) runOnce(ctx context.Context, attempt int) error {
	g, err := r.engine.Parse(r.description)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	defer g.Close()

	sink, err := g.Element(pipeline.SinkName)
	if err != nil {
		r.cfg.logger.Warn("Sink not found, stall detection disabled", "sink", pipeline.SinkName)
	}
	if err := g.SetState(media.StatePlaying); err != nil {
		r.cfg.logger.Error("Failed to start pipeline", "error", err)
		return nil
	}
	defer func() {
		if err := g.SetState(media.StateNull); err != nil {
			r.cfg.logger.Warn("Failed to stop pipeline", "error", err)
		}
	}()

	mon := &monitor{threshold: r.cfg.stallThreshold, last: time.Now()}
	nextTick := time.Now().Add(r.cfg.statusInterval)
	for ctx.Err() == nil {
		wait := min(popTimeout, max(time.Until(nextTick), 0))
		if msg := g.Pop(wait); msg != nil {
			switch msg.Type {
			case media.MessageEOS:
				r.cfg.logger.Info("End of stream", "target", r.target)
				return nil
			case media.MessageError:
				r.cfg.logger.Error("Pipeline error", "source", msg.Source, "error", msg.Text, "debug", msg.Debug)
				return nil
			case media.MessageWarning:
				r.cfg.logger.Warn("Pipeline warning", "source", msg.Source, "warning", msg.Text)
			}
		}
		if time.Now().Before(nextTick) {
			continue
		}
		nextTick = nextTick.Add(r.cfg.statusInterval)

		state, _ := g.CurrentState(0)
		bytes := sinkBytes(sink)
		rate, stalled, restart := mon.observe(time.Now(), bytes, state == media.StatePlaying)
		metrics.SetPublisherBytes(r.target, bytes)
		r.cfg.bus.Publish(events.PublisherStatusEvent{
			Target:    r.target,
			Attempt:   attempt,
			Bytes:     bytes,
			Stalled:   stalled,
			Timestamp: time.Now().Format(time.RFC3339),
		})
		r.cfg.logger.Debug("Status", "state", state, "mbps", fmt.Sprintf("%.2f", rate), "stalled", mon.stalls)
		if restart {
			metrics.IncPublisherStall(r.target)
			r.cfg.logger.Warn("Stream stalled, forcing restart", "seconds", mon.stalls, "target", r.target)
			return nil
		}
	}
	return nil
}

// monitor turns byte counter samples into bitrate and stall decisions.
type monitor struct {
	threshold int
	lastBytes uint64
	last      time.Time
	stalls    int
}

// observe records a sample and returns the bitrate in Mbit/s, whether the
// sample counts as stalled and whether the stall threshold was reached.
func (m *monitor) observe(now time.Time, bytes uint64, playing bool) (rate float64, stalled, restart bool) {
	elapsed := now.Sub(m.last).Seconds()
	if elapsed <= 0 {
		return 0, false, false
	}
	if bytes >= m.lastBytes {
		rate = float64(bytes-m.lastBytes) * 8 / (1024 * 1024) / elapsed
	}
	m.lastBytes, m.last = bytes, now

	if playing && rate < stallRateMbps {
		m.stalls++
		return rate, true, m.stalls >= m.threshold
	}
	m.stalls = 0
	return rate, false, false
}

// sinkBytes reads udpsink's bytes-served or rtmp2sink's stats.out-bytes-total.
func sinkBytes(sink media.Element) uint64 {
	if sink == nil {
		return 0
	}
	if v, err := sink.Property("bytes-served"); err == nil {
		if n, ok := toUint64(v); ok {
			return n
		}
	}
	if v, err := sink.Property("stats"); err == nil {
		if stats, ok := v.(map[string]any); ok {
			if n, ok := toUint64(stats["out-bytes-total"]); ok {
				return n
			}
		}
	}
	return 0
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case int64:
		return uint64(max(n, 0)), true
	case int:
		return uint64(max(n, 0)), true
	}
	return 0, false
}

// LaunchRunner runs the description through gst-launch-1.0 and restarts
// it whenever it exits.
type LaunchRunner struct {
	proc   *process.Process
	target string
	cfg    config
}

// NewLaunchRunner returns a subprocess runner for description.
func NewLaunchRunner(description, target string, opts ...Option) (*LaunchRunner, error) {
	args, err := pipeline.LaunchArgs(description)
	if err != nil {
		return nil, err
	}
	cfg := newConfig(opts)
	proc := process.New("publisher", args, cfg.logger, process.WithLogParser(process.ParseLaunchLine))
	return &LaunchRunner{proc: proc, target: target, cfg: cfg}, nil
}

// Run restarts the subprocess after every exit until ctx is cancelled.
func (r *LaunchRunner) Run(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		metrics.IncPublisherAttempt(r.target)
		code, err := r.proc.Run(ctx)
		if err != nil {
			return fmt.Errorf("start gst-launch-1.0: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		r.cfg.logger.Warn("gst-launch-1.0 exited", "code", code, "attempt", attempt)
		if r.cfg.maxAttempts > 0 && attempt >= r.cfg.maxAttempts {
			return errors.Join(fmt.Errorf("giving up after %d attempts", attempt), &process.ExitError{Code: code})
		}
		if !sleepCtx(ctx, r.cfg.reconnectDelay) {
			return nil
		}
	}
}

// FileRunner plays a file once or in a loop through gst-launch-1.0.
type FileRunner struct {
	proc *process.Process
	loop bool
	cfg  config
}

// NewFileRunner returns a runner for a file publishing description.
func NewFileRunner(description string, loop bool, opts ...Option) (*FileRunner, error) {
	args, err := pipeline.LaunchArgs(description)
	if err != nil {
		return nil, err
	}
	cfg := newConfig(opts)
	proc := process.New("publish-file", args, cfg.logger, process.WithLogParser(process.ParseLaunchLine))
	return &FileRunner{proc: proc, loop: loop, cfg: cfg}, nil
}

// Run plays the file. With loop set it restarts after each clean exit; any
// failure ends the loop with a *process.ExitError.
func (r *FileRunner) Run(ctx context.Context) error {
	return r.proc.Loop(ctx, process.LoopOptions{Loop: r.loop, RestartDelay: 0})
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
