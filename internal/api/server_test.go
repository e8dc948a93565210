package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fcclab/streamlab/internal/api/models"
	"github.com/fcclab/streamlab/internal/events"
	"github.com/fcclab/streamlab/internal/media/mediatest"
	"github.com/fcclab/streamlab/internal/pipeline"
	"github.com/fcclab/streamlab/internal/rtspprobe"
	"github.com/fcclab/streamlab/internal/settings"
	"github.com/fcclab/streamlab/internal/viewer"
)

const (
	testUser = "lab"
	testPass = "secret"
)

type testEnv struct {
	server *httptest.Server
	viewer *viewer.Viewer
	graph  *mediatest.Graph
	live   *settings.Live
	store  *settings.Store
	bus    *events.Bus
	probed []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithSettings(t, filepath.Join(t.TempDir(), "settings.json"))
}

func newTestEnvWithSettings(t *testing.T, settingsPath string) *testEnv {
	t.Helper()
	env := &testEnv{bus: events.New()}

	engine := mediatest.NewEngine()
	v, err := viewer.New(engine, pipeline.BuildViewer(pipeline.ViewerParams{VideoSink: "fakesink"}),
		viewer.WithEventBus(env.bus),
		viewer.WithRestartPause(0),
		viewer.WithRecordingsDir(t.TempDir()),
		viewer.WithFinalizeTiming(time.Millisecond, 2, 50*time.Millisecond, 50*time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	env.viewer = v
	env.graph = engine.Last()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		v.Run(ctx)
		close(done)
	}()

	env.store = settings.NewStore(settingsPath, "")
	env.live = settings.NewLive(env.store)
	if _, err := env.live.Update(func(s *settings.Settings) error {
		s.URLs = []settings.Stream{
			{Name: "Front", URL: "rtsp://10.0.0.2:8554/front"},
			{Name: "Rear", URL: "rtsp://10.0.0.2:8554/rear"},
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	srv := NewServer(&Options{
		AuthUsername: testUser,
		AuthPassword: testPass,
		Viewer:       v,
		Settings:     env.live,
		EventBus:     env.bus,
		Probe: func(_ context.Context, url string) (*rtspprobe.Result, error) {
			env.probed = append(env.probed, url)
			if strings.HasSuffix(url, "/missing") {
				return nil, errors.New("404 Not Found")
			}
			return &rtspprobe.Result{URL: url, Tracks: []rtspprobe.Track{
				{Kind: "video", Codec: "H264", ClockRate: 90000, PayloadType: 96},
			}}, nil
		},
		PrometheusHandler: promhttp.Handler(),
	})
	env.server = httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		env.server.Close()
		cancel()
		<-done
		v.Shutdown(context.Background())
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, auth bool) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.SetBasicAuth(testUser, testPass)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
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

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)

	expectStatus(t, env.do(t, http.MethodGet, "/health", nil, false), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/api/version", nil, false), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/metrics", nil, false), http.StatusOK)

	resp := env.do(t, http.MethodGet, "/api/viewer", nil, false)
	expectStatus(t, resp, http.StatusUnauthorized)
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/viewer", nil)
	req.SetBasicAuth(testUser, "wrong")
	bad, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	expectStatus(t, bad, http.StatusUnauthorized)

	// EventSource clients pass credentials as a query parameter
	auth := base64.StdEncoding.EncodeToString([]byte(testUser + ":" + testPass))
	expectStatus(t, env.do(t, http.MethodGet, "/api/viewer?auth="+auth, nil, false), http.StatusOK)
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/health", nil, false)
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("response has no request id")
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	echoed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	echoed.Body.Close()
	if got := echoed.Header.Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}

func TestViewerLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/viewer", nil, true)
	expectStatus(t, resp, http.StatusOK)
	st := decode[models.ViewerData](t, resp)
	if st.State != "closed" || st.Controls.ButtonLabel != "Open" || !st.Controls.SelectEnabled {
		t.Fatalf("initial viewer = %+v", st)
	}

	index := 1
	resp = env.do(t, http.MethodPost, "/api/viewer/open", models.OpenRequestData{Index: &index}, true)
	expectStatus(t, resp, http.StatusOK)
	st = decode[models.ViewerData](t, resp)
	if st.State != "connecting" || st.URL != "rtsp://10.0.0.2:8554/rear" || st.Controls.ButtonLabel != "Connecting..." {
		t.Fatalf("after open = %+v", st)
	}
	if env.store.Load().URLIndex != 1 {
		t.Error("selection by index was not saved")
	}

	env.graph.PostPlaying()
	waitFor(t, "open", func() bool { return env.viewer.State() == viewer.StateOpen })

	resp = env.do(t, http.MethodPost, "/api/viewer/close", nil, true)
	expectStatus(t, resp, http.StatusOK)
	if st = decode[models.ViewerData](t, resp); st.State != "closed" {
		t.Errorf("after close = %+v", st)
	}

	// close while closed is a no-op
	expectStatus(t, env.do(t, http.MethodPost, "/api/viewer/close", nil, true), http.StatusOK)
}

func TestOpenSelectedAndByURL(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/viewer/open", nil, true)
	expectStatus(t, resp, http.StatusOK)
	if st := decode[models.ViewerData](t, resp); st.URL != "rtsp://10.0.0.2:8554/front" {
		t.Errorf("opened %q, want the selected stream", st.URL)
	}

	resp = env.do(t, http.MethodPost, "/api/viewer/open", models.OpenRequestData{URL: "rtsp://lab:8554/adhoc"}, true)
	expectStatus(t, resp, http.StatusOK)
	if st := decode[models.ViewerData](t, resp); st.URL != "rtsp://lab:8554/adhoc" || st.State != "connecting" {
		t.Errorf("after reopen = %+v", st)
	}

	index := 7
	expectStatus(t, env.do(t, http.MethodPost, "/api/viewer/open", models.OpenRequestData{Index: &index}, true),
		http.StatusUnprocessableEntity)
}

func TestOpenByIndexWithUnwritableSettings(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	env := newTestEnvWithSettings(t, filepath.Join(blocker, "settings.json"))

	index := 1
	resp := env.do(t, http.MethodPost, "/api/viewer/open", models.OpenRequestData{Index: &index}, true)
	expectStatus(t, resp, http.StatusOK)
	if st := decode[models.ViewerData](t, resp); st.URL != "rtsp://10.0.0.2:8554/rear" || st.State != "connecting" {
		t.Errorf("after open = %+v", st)
	}
	if env.live.Current().URLIndex != 1 {
		t.Error("selection not kept in memory")
	}
}

func TestRecordingEndpoints(t *testing.T) {
	env := newTestEnv(t)

	expectStatus(t, env.do(t, http.MethodPost, "/api/viewer/recording", nil, true), http.StatusConflict)

	expectStatus(t, env.do(t, http.MethodPost, "/api/viewer/open", nil, true), http.StatusOK)
	env.graph.PostPlaying()
	waitFor(t, "open", func() bool { return env.viewer.State() == viewer.StateOpen })

	path := filepath.Join(t.TempDir(), "run1.mp4")
	resp := env.do(t, http.MethodPost, "/api/viewer/recording", models.RecordRequestData{Path: path}, true)
	expectStatus(t, resp, http.StatusCreated)
	st := decode[models.ViewerData](t, resp)
	if st.Recording == nil || st.Recording.Path != path || st.Recording.ID == "" {
		t.Fatalf("recording = %+v", st.Recording)
	}
	if st.Controls.RecordLabel != "Stop recording" {
		t.Errorf("record label = %q", st.Controls.RecordLabel)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/viewer/recording", nil, true), http.StatusConflict)

	resp = env.do(t, http.MethodDelete, "/api/viewer/recording", nil, true)
	expectStatus(t, resp, http.StatusOK)
	if st = decode[models.ViewerData](t, resp); st.Recording != nil || st.State != "open" {
		t.Errorf("after stop = %+v", st)
	}

	// stopping while idle is a no-op
	expectStatus(t, env.do(t, http.MethodDelete, "/api/viewer/recording", nil, true), http.StatusOK)
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/settings", nil, true)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[models.SettingsData](t, resp); len(got.URLs) != 2 || got.URLIndex != 0 {
		t.Fatalf("settings = %+v", got)
	}

	invalid := models.SettingsData{URLs: []settings.Stream{{Name: "", URL: "rtsp://x"}}}
	expectStatus(t, env.do(t, http.MethodPut, "/api/settings", invalid, true), http.StatusUnprocessableEntity)

	outOfRange := models.SettingsData{URLs: []settings.Stream{{Name: "A", URL: "rtsp://a"}}, URLIndex: 2}
	expectStatus(t, env.do(t, http.MethodPut, "/api/settings", outOfRange, true), http.StatusUnprocessableEntity)

	next := models.SettingsData{
		URLs:     []settings.Stream{{Name: "A", URL: "rtsp://a"}, {Name: "B", URL: "rtsp://b"}, {Name: "C", URL: "rtsp://c"}},
		URLIndex: 2,
	}
	resp = env.do(t, http.MethodPut, "/api/settings", next, true)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[models.SettingsData](t, resp); got.URLIndex != 2 || len(got.URLs) != 3 {
		t.Errorf("put result = %+v", got)
	}
	if saved := env.store.Load(); saved.URLIndex != 2 || saved.URLs[2].Name != "C" {
		t.Errorf("saved = %+v", saved)
	}
}

func TestProbeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/viewer/probe", nil, true)
	expectStatus(t, resp, http.StatusOK)
	got := decode[models.ProbeData](t, resp)
	if !got.HasVideo || len(got.Tracks) != 1 || got.URL != "rtsp://10.0.0.2:8554/front" {
		t.Errorf("probe = %+v", got)
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/viewer/probe?url=rtsp://lab/missing", nil, true), http.StatusBadGateway)
	if len(env.probed) != 2 || env.probed[1] != "rtsp://lab/missing" {
		t.Errorf("probed = %v", env.probed)
	}
}

func TestLogsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/logs?limit=5", nil, true)
	expectStatus(t, resp, http.StatusOK)
	got := decode[models.LogsData](t, resp)
	if got.Count != len(got.Entries) || got.Count > 5 {
		t.Errorf("logs = %d entries, count %d", len(got.Entries), got.Count)
	}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/api/events", nil)
	req.SetBasicAuth(testUser, testPass)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	next := func(prefix string) string {
		t.Helper()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %q", prefix)
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-ctx.Done():
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}

	if line := next("event:"); !strings.Contains(line, "viewer-state") {
		t.Errorf("first event = %q", line)
	}
	if line := next("data:"); !strings.Contains(line, `"state":"closed"`) {
		t.Errorf("initial data = %q", line)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/viewer/open", nil, true), http.StatusOK)
	if line := next("data:"); !strings.Contains(line, `"state":"connecting"`) {
		t.Errorf("transition data = %q", line)
	}
}
