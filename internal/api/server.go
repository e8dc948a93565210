// Package api exposes the viewer service over HTTP: stream control,
// recording, settings, logs, an event stream and Prometheus metrics.
package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/fcclab/streamlab/internal/api/models"
	"github.com/fcclab/streamlab/internal/events"
	"github.com/fcclab/streamlab/internal/logging"
	"github.com/fcclab/streamlab/internal/rtspprobe"
	"github.com/fcclab/streamlab/internal/settings"
	"github.com/fcclab/streamlab/internal/version"
	"github.com/fcclab/streamlab/internal/viewer"
)

const authRealm = `Basic realm="streamlab"`

var errInvalidAuthType = errors.New("invalid authentication type")

// Viewer is the stream controller served by the API.
type Viewer interface {
	Status() viewer.Status
	Open(ctx context.Context, url string) error
	Close(ctx context.Context) error
	StartRecording(ctx context.Context, path string) (string, error)
	StopRecording(ctx context.Context) error
}

// Settings is the live settings holder served by the API.
type Settings interface {
	Current() *settings.Settings
	Update(fn func(*settings.Settings) error) (*settings.Settings, error)
}

// ProbeFunc issues an RTSP DESCRIBE.
type ProbeFunc func(ctx context.Context, url string) (*rtspprobe.Result, error)

// Options configures the server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Viewer            Viewer
	Settings          Settings
	EventBus          *events.Bus
	Probe             ProbeFunc    // defaults to rtspprobe.Describe
	GStreamer         bool         // reported by /api/version
	PrometheusHandler http.Handler // optional, served on GET /metrics without auth
}

// Server is the Huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	viewer     Viewer
	settings   Settings
	eventBus   *events.Bus
	probe      ProbeFunc
	logger     *slog.Logger
}

// basicAuthMiddleware creates middleware for HTTP basic authentication
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		// Skip auth for operations without security requirements
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		credentials, err := requestCredentials(ctx)
		if err != nil {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials format", err)
			return
		}
		if credentials == "" {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Authentication required")
			return
		}

		user, pass, ok := strings.Cut(credentials, ":")
		if !ok || user != username || pass != password {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

// requestCredentials returns the decoded "user:pass" from the Authorization
// header, or from the auth query parameter for EventSource clients.
func requestCredentials(ctx huma.Context) (string, error) {
	encoded := ""
	if header := ctx.Header("Authorization"); header != "" {
		const prefix = "Basic "
		if !strings.HasPrefix(header, prefix) {
			return "", errInvalidAuthType
		}
		encoded = header[len(prefix):]
	} else {
		encoded = ctx.Query("auth")
	}
	if encoded == "" {
		return "", nil
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// NewServer creates the API server using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	config := huma.DefaultConfig("streamlab API", version.Version)
	config.Info.Description = "Viewer control, recording and settings for the streaming lab"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	probe := opts.Probe
	if probe == nil {
		probe = rtspprobe.Describe
	}
	bus := opts.EventBus
	if bus == nil {
		bus = events.New()
	}
	server := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		viewer:   opts.Viewer,
		settings: opts.Settings,
		eventBus: bus,
		probe:    probe,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Registered on the mux directly so scrapers need no credentials.
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting streamlab API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down, waiting for in-flight requests until ctx is done.
// Open event streams are cut when ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

// registerRoutes sets up all API endpoints
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"system"},
		Security:    []map[string][]string{}, // Empty security = no auth required
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		return &models.VersionResponse{Body: version.Get(s.options.GStreamer)}, nil
	})

	s.registerViewerRoutes()
	s.registerSettingsRoutes()
	s.registerLogRoutes()
	s.registerSSERoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
