package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "config.json"), "")

	in := Builtin()
	in.URLs = []Stream{
		{Name: "Front", URL: "rtsp://10.0.0.2:8554/front"},
		{Name: "Rear", URL: "rtsp://10.0.0.2:8554/rear"},
	}
	if err := in.SetURLIndex(1); err != nil {
		t.Fatal(err)
	}
	in.SetGeometry(Geometry{X: 10, Y: 20, Width: 800, Height: 600})

	store.Save(in)
	out := store.Load()
	if !reflect.DeepEqual(out.URLs, in.URLs) {
		t.Errorf("urls = %+v, want %+v", out.URLs, in.URLs)
	}
	if out.URLIndex != 1 {
		t.Errorf("url_index = %d", out.URLIndex)
	}
	if g := out.Geometry(Screen{Width: 1920, Height: 1080}); g != (Geometry{10, 20, 800, 600}) {
		t.Errorf("geometry = %+v", g)
	}
}

func TestInvalidEntriesFiltered(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeFile(t, path, `{
		"urls": [
			{"name": "Front", "url": "rtsp://a/front"},
			{"name": "No url"},
			{"url": "rtsp://a/noname"},
			"not an object",
			{"name": "Rear", "url": "rtsp://a/rear", "extra": true}
		],
		"url_index": 0
	}`)

	got := NewStore(path, "").Load()
	want := []Stream{{Name: "Front", URL: "rtsp://a/front"}, {Name: "Rear", URL: "rtsp://a/rear"}}
	if !reflect.DeepEqual(got.URLs, want) {
		t.Errorf("urls = %+v", got.URLs)
	}
}

func TestBackfillFromDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	defPath := filepath.Join(dir, "default_config.json")
	writeFile(t, defPath, `{"urls": [{"name": "Lab", "url": "rtsp://lab/cam"}], "url_index": 0, "window_x": null, "window_y": null, "window_width": 1024, "window_height": null, "theme": "dark"}`)
	writeFile(t, path, `{"url_index": 0, "custom": 42}`)

	store := NewStore(path, defPath)
	got := store.Load()
	if len(got.URLs) != 1 || got.URLs[0].Name != "Lab" {
		t.Errorf("urls not backfilled: %+v", got.URLs)
	}
	if got.WindowWidth == nil || *got.WindowWidth != 1024 {
		t.Errorf("window_width not backfilled: %v", got.WindowWidth)
	}

	store.Save(got)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["custom"] != float64(42) || raw["theme"] != "dark" {
		t.Errorf("unknown keys not preserved: %v", raw)
	}
}

func TestEmptyListFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	defPath := filepath.Join(dir, "default_config.json")
	writeFile(t, defPath, `{"urls": [{"name": "Lab", "url": "rtsp://lab/cam"}], "url_index": 0}`)
	writeFile(t, path, `{"urls": [{"name": "broken"}], "url_index": 0}`)

	got := NewStore(path, defPath).Load()
	if len(got.URLs) != 1 || got.URLs[0].URL != "rtsp://lab/cam" {
		t.Errorf("urls = %+v", got.URLs)
	}
}

func TestSeedFromDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	defPath := filepath.Join(dir, "default_config.json")
	writeFile(t, defPath, `{"urls": [{"name": "Lab", "url": "rtsp://lab/cam"}], "url_index": 0}`)

	got := NewStore(path, defPath).Load()
	if len(got.URLs) != 1 {
		t.Errorf("urls = %+v", got.URLs)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("active file not created: %v", err)
	}
}

func TestMalformedUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	defPath := filepath.Join(dir, "default_config.json")
	writeFile(t, defPath, `{"urls": [{"name": "Lab", "url": "rtsp://lab/cam"}], "url_index": 0}`)
	writeFile(t, path, `{"urls": [`)

	got := NewStore(path, defPath).Load()
	if len(got.URLs) != 1 || got.URLs[0].Name != "Lab" {
		t.Errorf("urls = %+v", got.URLs)
	}
}

func TestBuiltinDefaults(t *testing.T) {
	got := NewStore(filepath.Join(t.TempDir(), "config.json"), "").Load()
	if got.URLs == nil || len(got.URLs) != 0 || got.URLIndex != 0 || got.WindowX != nil {
		t.Errorf("unexpected builtin settings %+v", got)
	}
}

func TestSaveErrorIsLogged(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	writeFile(t, blocker, "x")
	store := NewStore(filepath.Join(blocker, "config.json"), "")
	store.Save(Builtin())

	data, err := os.ReadFile(blocker)
	if err != nil || string(data) != "x" {
		t.Errorf("blocking file changed: %q, %v", data, err)
	}
}

func TestWrongTypedKeyUsesDefaultForThatKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	defPath := filepath.Join(dir, "default_config.json")
	writeFile(t, defPath, `{"urls": [{"name": "Default", "url": "rtsp://d"}], "url_index": 0, "window_x": 40, "window_y": null}`)
	writeFile(t, path, `{
		"urls": [{"name": "Front", "url": "rtsp://a/front"}, {"name": "Rear", "url": "rtsp://a/rear"}],
		"url_index": 1,
		"window_x": "left",
		"window_y": 30,
		"custom": true
	}`)

	got := NewStore(path, defPath).Load()
	want := []Stream{{Name: "Front", URL: "rtsp://a/front"}, {Name: "Rear", URL: "rtsp://a/rear"}}
	if !reflect.DeepEqual(got.URLs, want) {
		t.Errorf("urls = %+v, want %+v", got.URLs, want)
	}
	if got.URLIndex != 1 {
		t.Errorf("url_index = %d, want 1", got.URLIndex)
	}
	if got.WindowX == nil || *got.WindowX != 40 {
		t.Errorf("window_x = %v, want default 40", got.WindowX)
	}
	if got.WindowY == nil || *got.WindowY != 30 {
		t.Errorf("window_y = %v, want 30", got.WindowY)
	}
	if _, ok := got.extra["custom"]; !ok {
		t.Error("unknown key dropped")
	}
}

func TestWrongTypedIndexWithoutDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"urls": [{"name": "Front", "url": "rtsp://a/front"}], "url_index": "one"}`)

	got := NewStore(path, "").Load()
	if len(got.URLs) != 1 || got.URLIndex != 0 {
		t.Errorf("settings = %+v", got)
	}
}

func TestGeometry(t *testing.T) {
	screen := Screen{Width: 1920, Height: 1080}
	centered := Geometry{X: 320, Y: 180, Width: DefaultWidth, Height: DefaultHeight}
	ptr := func(v int) *int { return &v }

	tests := []struct {
		name string
		s    Settings
		want Geometry
	}{
		{"missing", Settings{}, centered},
		{"valid", Settings{WindowX: ptr(0), WindowY: ptr(0), WindowWidth: ptr(640), WindowHeight: ptr(480)}, Geometry{0, 0, 640, 480}},
		{"off screen", Settings{WindowX: ptr(1920), WindowY: ptr(0), WindowWidth: ptr(640), WindowHeight: ptr(480)}, centered},
		{"negative", Settings{WindowX: ptr(-5), WindowY: ptr(0), WindowWidth: ptr(640), WindowHeight: ptr(480)}, centered},
		{"zero size", Settings{WindowX: ptr(5), WindowY: ptr(5), WindowWidth: ptr(0), WindowHeight: ptr(480)}, centered},
		{"partial", Settings{WindowX: ptr(5), WindowY: ptr(5)}, centered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Geometry(screen); got != tt.want {
				t.Errorf("Geometry() = %+v, want %+v", got, tt.want)
			}
		})
	}

	small := (&Settings{}).Geometry(Screen{Width: 800, Height: 600})
	if small.X != 0 || small.Y != 0 {
		t.Errorf("small screen default = %+v", small)
	}
}

func TestSelected(t *testing.T) {
	s := Builtin()
	if _, ok := s.Selected(); ok {
		t.Error("empty list has a selection")
	}
	s.URLs = []Stream{{Name: "a", URL: "rtsp://a"}}
	if err := s.SetURLIndex(3); err == nil {
		t.Error("expected out of range error")
	}
	st, ok := s.Selected()
	if !ok || st.Name != "a" {
		t.Errorf("Selected() = %+v, %v", st, ok)
	}
}

func TestClone(t *testing.T) {
	s := Builtin()
	s.URLs = []Stream{{Name: "a", URL: "rtsp://a"}}
	s.SetGeometry(Geometry{1, 2, 3, 4})
	c := s.Clone()
	c.URLs[0].Name = "b"
	*c.WindowX = 99
	if s.URLs[0].Name != "a" || *s.WindowX != 1 {
		t.Error("clone shares state with original")
	}
}
