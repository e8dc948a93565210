package version

import (
	"strings"
	"testing"
)

func TestInfoString(t *testing.T) {
	info := Get(true)
	s := info.String()
	if !strings.HasPrefix(s, "streamlab dev (") {
		t.Errorf("String() = %q", s)
	}
	if !strings.Contains(s, "gstreamer") {
		t.Errorf("String() missing backend: %q", s)
	}
	if Get(false).GStreamer {
		t.Error("GStreamer should be false")
	}
	if UserAgent() != "streamlab/dev" {
		t.Errorf("UserAgent() = %q", UserAgent())
	}
}
