// Package devices lists V4L2 capture devices and the formats they offer.
package devices

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fcclab/streamlab/internal/logging"
	"github.com/fcclab/streamlab/internal/process"
)

// MaxListedFormats caps the formats shown per device in a summary.
const MaxListedFormats = 5

// maxListedSizes caps the sizes shown per format.
const maxListedSizes = 5

// Format is one pixel format with the frame sizes it supports.
type Format struct {
	FourCC string   `json:"fourcc" example:"UYVY" doc:"Pixel format code"`
	Sizes  []string `json:"sizes,omitempty" example:"[\"1280x720\",\"1920x1080\"]" doc:"Supported frame sizes"`
}

// String renders the format as "UYVY (1280x720, 1920x1080)".
func (f Format) String() string {
	if len(f.Sizes) == 0 {
		return f.FourCC
	}
	return fmt.Sprintf("%s (%s)", f.FourCC, strings.Join(f.Sizes, ", "))
}

// Device is one /dev/video node.
type Device struct {
	Path    string   `json:"path" example:"/dev/video4" doc:"Device node"`
	Formats []Format `json:"formats" doc:"Supported formats, empty when the device could not be queried"`
}

// Summary renders the device formats for a listing table.
func (d Device) Summary() string {
	if len(d.Formats) == 0 {
		return "(could not query - device may be in use)"
	}
	parts := make([]string, 0, MaxListedFormats)
	for i, f := range d.Formats {
		if i == MaxListedFormats {
			break
		}
		parts = append(parts, f.String())
	}
	s := strings.Join(parts, ", ")
	if extra := len(d.Formats) - MaxListedFormats; extra > 0 {
		s += fmt.Sprintf(" (+%d more)", extra)
	}
	return s
}

// Runner executes v4l2-ctl and returns its output.
type Runner func(ctx context.Context, args ...string) (string, error)

// V4L2Ctl runs the v4l2-ctl binary.
func V4L2Ctl(ctx context.Context, args ...string) (string, error) {
	return process.Probe(ctx, "v4l2-ctl", args...)
}

// Lister enumerates devices under a device directory.
type Lister struct {
	dir string
	run Runner
}

// NewLister lists /dev/video* using run to query formats.
func NewLister(run Runner) *Lister {
	return &Lister{dir: "/dev", run: run}
}

// List returns every video device, sorted by path. A device whose formats
// cannot be queried is still listed.
func (l *Lister) List(ctx context.Context) ([]Device, error) {
	paths, err := filepath.Glob(filepath.Join(l.dir, "video*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	logger := logging.GetLogger("devices")
	devices := make([]Device, 0, len(paths))
	for _, path := range paths {
		formats, err := l.Formats(ctx, path)
		if err != nil {
			logger.Debug("Failed to query formats", "device", path, "error", err)
		}
		devices = append(devices, Device{Path: path, Formats: formats})
	}
	return devices, nil
}

// Formats queries the formats of one device, falling back to the plain
// format list when the extended listing yields nothing.
func (l *Lister) Formats(ctx context.Context, path string) ([]Format, error) {
	out, err := l.run(ctx, "--device", path, "--list-formats-ext")
	if err == nil {
		if formats := ParseFormats(out); len(formats) > 0 {
			return formats, nil
		}
	}
	out, err = l.run(ctx, "--device", path, "--list-formats")
	if err != nil {
		return nil, err
	}
	return ParseFormats(out), nil
}
