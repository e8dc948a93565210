// Package version carries build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// GitCommit is the short commit hash.
	GitCommit = "unknown"
	// BuildDate is the UTC build timestamp.
	BuildDate = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version" example:"v0.4.1" doc:"Release version"`
	GitCommit string `json:"git_commit" example:"3f2a9c1" doc:"Git commit"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build date"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"OS and architecture"`
	GStreamer bool   `json:"gstreamer" doc:"Whether the in-process GStreamer backend is compiled in"`
}

// Get returns the build information. gst reports whether the binary was
// built with the GStreamer backend.
func Get(gst bool) Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		GStreamer: gst,
	}
}

// String formats the info for the version command.
func (i Info) String() string {
	backend := "gst-launch"
	if i.GStreamer {
		backend = "gstreamer"
	}
	return fmt.Sprintf("streamlab %s (%s, built %s, %s, %s, %s)",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform, backend)
}

// UserAgent is sent on outgoing HTTP requests.
func UserAgent() string {
	return "streamlab/" + Version
}
