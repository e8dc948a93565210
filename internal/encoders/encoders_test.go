package encoders

import (
	"context"
	"errors"
	"testing"
)

func fakeProber(present ...string) (*CachingProber, *int) {
	calls := 0
	set := make(map[string]bool)
	for _, p := range present {
		set[p] = true
	}
	return &CachingProber{Prober: ProberFunc(func(_ context.Context, element string) (bool, error) {
		calls++
		return set[element], nil
	})}, &calls
}

func TestSelectPriority(t *testing.T) {
	tests := []struct {
		name    string
		present []string
		want    string
	}{
		{"jetson wins over everything", []string{"x264enc", "v4l2h264enc", "vaapih264enc", "nvv4l2h264enc"}, "nvv4l2h264enc"},
		{"nvidia desktop", []string{"nv264enc", "vaapih264enc"}, "nv264enc"},
		{"vaapi before v4l2", []string{"v4l2h264enc", "vaapih264enc"}, "vaapih264enc"},
		{"v4l2 only", []string{"v4l2h264enc"}, "v4l2h264enc"},
		{"software fallback", nil, "x264enc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober, _ := fakeProber(tt.present...)
			got, err := Select(context.Background(), prober)
			if err != nil {
				t.Fatal(err)
			}
			if got.Element != tt.want {
				t.Errorf("Select = %s, want %s", got.Element, tt.want)
			}
		})
	}
}

func TestSelectIsDeterministic(t *testing.T) {
	prober, _ := fakeProber("vaapih264enc", "v4l2h264enc")
	first, _ := Select(context.Background(), prober)
	for range 5 {
		again, _ := Select(context.Background(), prober)
		if again.Element != first.Element {
			t.Fatalf("selection changed from %s to %s", first.Element, again.Element)
		}
	}
}

func TestSelectPropagatesProbeErrors(t *testing.T) {
	prober := ProberFunc(func(context.Context, string) (bool, error) {
		return false, ErrGStreamerMissing
	})
	if _, err := Select(context.Background(), prober); !errors.Is(err, ErrGStreamerMissing) {
		t.Errorf("err = %v, want ErrGStreamerMissing", err)
	}
}

func TestCachingProber(t *testing.T) {
	prober, calls := fakeProber("vaapih264enc")
	for range 3 {
		if ok, _ := prober.HasElement(context.Background(), "vaapih264enc"); !ok {
			t.Fatal("expected vaapih264enc to be present")
		}
	}
	if *calls != 1 {
		t.Errorf("wrapped prober called %d times, want 1", *calls)
	}
}

func TestProbeReport(t *testing.T) {
	prober, _ := fakeProber("v4l2h264enc", "x264enc")
	report, err := Probe(context.Background(), prober)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Encoders) != len(Profiles()) {
		t.Fatalf("report has %d encoders, want %d", len(report.Encoders), len(Profiles()))
	}
	if report.Selected.Element != "v4l2h264enc" {
		t.Errorf("selected = %s", report.Selected.Element)
	}
	last := report.Encoders[len(report.Encoders)-1]
	if last.Profile.Element != "x264enc" || !last.Available {
		t.Errorf("last entry = %+v", last)
	}
}

func TestProfileModes(t *testing.T) {
	vaapi, ok := Lookup("vaapih264enc")
	if !ok {
		t.Fatal("vaapih264enc not found")
	}
	if got := Props(vaapi.Properties(ModeLive)); got != "bitrate=2000000 tune=low-latency keyframe-period=30" {
		t.Errorf("live props = %q", got)
	}
	if got := Props(vaapi.Properties(ModeFile)); got != "tune=low-latency keyframe-period=1" {
		t.Errorf("file props = %q", got)
	}
	if len(Software.Properties(ModeFile)) != 0 {
		t.Error("software encoder should run bare on file input")
	}
	if got := Software.Caps(ModeFile); got != "video/x-raw,format=I420" {
		t.Errorf("software file caps = %q", got)
	}
	if Software.Caps(ModeLive) != "" {
		t.Error("software live caps should be empty")
	}
	if !Software.AcceptsNative("i420") || Software.AcceptsNative("UYVY") {
		t.Error("unexpected native format handling")
	}
	if _, ok := Lookup("h264_vaapi"); ok {
		t.Error("unexpected profile for ffmpeg encoder name")
	}
}
