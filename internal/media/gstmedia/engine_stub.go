//go:build !gst

package gstmedia

import "github.com/fcclab/streamlab/internal/media"

// Available reports whether this binary carries the GStreamer backend.
const Available = false

type engine struct{}

// New returns an engine that cannot build graphs.
func New() media.Engine {
	return engine{}
}

func (engine) HasElement(string) bool { return false }

func (engine) Parse(string) (media.Graph, error) {
	return nil, media.ErrUnavailable
}
