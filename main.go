package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fcclab/streamlab/cmd"
	"github.com/fcclab/streamlab/internal/api"
	"github.com/fcclab/streamlab/internal/config"
	"github.com/fcclab/streamlab/internal/events"
	"github.com/fcclab/streamlab/internal/led"
	"github.com/fcclab/streamlab/internal/logging"
	"github.com/fcclab/streamlab/internal/media/gstmedia"
	"github.com/fcclab/streamlab/internal/pipeline"
	"github.com/fcclab/streamlab/internal/rtspprobe"
	"github.com/fcclab/streamlab/internal/settings"
	"github.com/fcclab/streamlab/internal/systemd"
	"github.com/fcclab/streamlab/internal/viewer"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Viewer settings
	ViewerSettingsFile    string `help:"Active settings file" default:"settings.json" toml:"viewer.settings_file" env:"VIEWER_SETTINGS_FILE"`
	ViewerDefaultSettings string `help:"Default settings file used to seed and backfill" default:"default_settings.json" toml:"viewer.default_settings" env:"VIEWER_DEFAULT_SETTINGS"`
	ViewerVideoSink       string `help:"Display element" default:"autovideosink" toml:"viewer.video_sink" env:"VIEWER_VIDEO_SINK"`
	ViewerLatency         int    `help:"rtspsrc latency in milliseconds" default:"100" toml:"viewer.latency_ms" env:"VIEWER_LATENCY_MS"`
	ViewerMaxRetries      int    `help:"Consecutive failures before giving up while connecting" default:"10" toml:"viewer.max_retries" env:"VIEWER_MAX_RETRIES"`
	ViewerAutoOpen        bool   `help:"Open the selected stream at startup" default:"false" toml:"viewer.auto_open" env:"VIEWER_AUTO_OPEN"`
	ViewerPreflight       bool   `help:"RTSP DESCRIBE before each open" default:"true" toml:"viewer.preflight" env:"VIEWER_PREFLIGHT"`
	ViewerScreenWidth     int    `help:"Screen width for window geometry checks" default:"1920" toml:"viewer.screen_width" env:"VIEWER_SCREEN_WIDTH"`
	ViewerScreenHeight    int    `help:"Screen height for window geometry checks" default:"1080" toml:"viewer.screen_height" env:"VIEWER_SCREEN_HEIGHT"`

	// Recording settings
	RecordingDir   string `help:"Directory for timestamped recordings" default:"." toml:"recording.dir" env:"RECORDING_DIR"`
	RecordingMuxer string `help:"Container muxer element" default:"mp4mux" toml:"recording.muxer" env:"RECORDING_MUXER"`

	// Features settings
	FeaturesLEDControl bool   `help:"Show the viewer state on a board LED" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`
	FeaturesLEDName    string `help:"sysfs LED name, detected from the board when empty" default:"" toml:"features.led_name" env:"FEATURES_LED_NAME"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingViewer    string `help:"Viewer logging level" default:"info" toml:"logging.viewer" env:"LOGGING_VIEWER"`
	LoggingPublisher string `help:"Publisher logging level" default:"info" toml:"logging.publisher" env:"LOGGING_PUBLISHER"`
	LoggingEncoders  string `help:"Encoders logging level" default:"info" toml:"logging.encoders" env:"LOGGING_ENCODERS"`
	LoggingSettings  string `help:"Settings logging level" default:"info" toml:"logging.settings" env:"LOGGING_SETTINGS"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP      string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

const shutdownTimeout = 10 * time.Second

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"viewer":    opts.LoggingViewer,
				"publisher": opts.LoggingPublisher,
				"encoders":  opts.LoggingEncoders,
				"settings":  opts.LoggingSettings,
				"api":       opts.LoggingAPI,
				"http":      opts.LoggingHTTP,
			},
		})

		logger := logging.GetLogger("main")
		svc := &service{opts: opts, logger: logger}

		hooks.OnStart(func() {
			if err := svc.start(); err != nil {
				logger.Error("Viewer service failed", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			svc.stop()
		})
	})

	cmd.Register(cli.Root())

	// Run the CLI
	cli.Run()
}

// service is the default command: a headless viewer controlled over HTTP.
type service struct {
	opts   *Options
	logger *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	viewer   *viewer.Viewer
	live     *settings.Live
	watcher  *config.Watcher[*settings.Settings]
	server   *api.Server
	notifier *systemd.Notifier
	leds     *led.Manager
	loopDone atomic.Bool
	runDone  chan struct{}
}

func (s *service) start() error {
	opts := s.opts
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if !gstmedia.Available {
		s.logger.Warn("Built without GStreamer bindings, rebuild with -tags gst")
	}

	// Create event bus for in-process event handling
	eventBus := events.New()

	// Initialize LED control if enabled
	if opts.FeaturesLEDControl {
		ledLogger := logging.GetLogger("led")
		s.leds = led.NewManager(led.New(ledLogger, opts.FeaturesLEDName), eventBus, ledLogger)
		s.leds.Start()
	}

	store := settings.NewStore(opts.ViewerSettingsFile, opts.ViewerDefaultSettings)
	s.live = settings.NewLive(store)

	viewerOpts := []viewer.Option{
		viewer.WithEventBus(eventBus),
		viewer.WithMaxRetries(opts.ViewerMaxRetries),
		viewer.WithRecordingsDir(opts.RecordingDir),
		viewer.WithMuxer(opts.RecordingMuxer),
	}
	if opts.ViewerPreflight {
		viewerOpts = append(viewerOpts, viewer.WithPreflight(rtspprobe.Check))
	}
	description := pipeline.BuildViewer(pipeline.ViewerParams{
		LatencyMS: opts.ViewerLatency,
		VideoSink: opts.ViewerVideoSink,
	})
	v, err := viewer.New(gstmedia.New(), description, viewerOpts...)
	if err != nil {
		return err
	}
	s.viewer = v

	s.runDone = make(chan struct{})
	go func() {
		defer close(s.runDone)
		v.Run(s.ctx)
		s.loopDone.Store(true)
	}()

	// Hot reload of the settings file (non-fatal if it fails)
	s.watcher = config.NewWatcher(store.Path(), store.LoadFile, s.logger,
		config.WithDebounce[*settings.Settings](500*time.Millisecond))
	s.watcher.OnReload(func(st *settings.Settings) {
		s.live.Reload(st)
		eventBus.Publish(events.SettingsReloadedEvent{
			URLs:      len(st.URLs),
			URLIndex:  st.URLIndex,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})
	if watchErr := s.watcher.Start(s.ctx); watchErr != nil {
		s.logger.Warn("Failed to start settings watcher, hot-reload disabled", "error", watchErr)
	}

	s.server = api.NewServer(&api.Options{
		AuthUsername:      opts.AuthUsername,
		AuthPassword:      opts.AuthPassword,
		Viewer:            v,
		Settings:          s.live,
		EventBus:          eventBus,
		GStreamer:         gstmedia.Available,
		PrometheusHandler: promhttp.Handler(),
	})

	if opts.ViewerAutoOpen {
		if sel, ok := s.live.Current().Selected(); ok {
			if openErr := v.Open(s.ctx, sel.URL); openErr != nil {
				s.logger.Warn("Auto-open failed", "url", sel.URL, "error", openErr)
			}
		} else {
			s.logger.Warn("Auto-open requested but no stream is selected")
		}
	}

	s.notifier = systemd.NewNotifier(s.logger)
	go s.notifier.Watchdog(s.ctx, func() bool { return !s.loopDone.Load() })
	s.notifier.Ready()

	s.logger.Info("Starting HTTP server", "port", opts.Port, "settings", store.Path())
	if startErr := s.server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
		return startErr
	}
	return nil
}

func (s *service) stop() {
	s.logger.Info("Shutting down viewer service")
	if s.notifier != nil {
		s.notifier.Stopping()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.server != nil {
		if err := s.server.Stop(ctx); err != nil {
			s.logger.Error("Error stopping HTTP server", "error", err)
		}
	}
	if s.watcher != nil {
		_ = s.watcher.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.runDone != nil {
		select {
		case <-s.runDone:
		case <-ctx.Done():
		}
	}
	if s.viewer != nil {
		// finalizes an active recording before the graph is released
		s.viewer.Shutdown(ctx)
	}
	if s.leds != nil {
		s.leds.Stop()
	}
	if s.live != nil {
		screen := settings.Screen{Width: s.opts.ViewerScreenWidth, Height: s.opts.ViewerScreenHeight}
		if _, err := s.live.Update(func(st *settings.Settings) error {
			st.SetGeometry(st.Geometry(screen))
			return nil
		}); err != nil {
			s.logger.Warn("Failed to persist settings on exit", "error", err)
		}
	}
}
