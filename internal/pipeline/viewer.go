package pipeline

import (
	"strconv"
	"strings"
)

// Element names used by the viewer description. The viewer looks these up
// at runtime to set the location and to attach recording branches.
const (
	ViewerSource  = "source"
	ViewerDepay   = "depay"
	ViewerParser  = "parser"
	ViewerTee     = "tee"
	ViewerQueue   = "playqueue"
	ViewerDecoder = "decoder"
	ViewerConvert = "convert"
	ViewerSink    = "sink"
)

// DefaultViewerLatency is the rtspsrc jitter buffer in milliseconds.
const DefaultViewerLatency = 100

// ViewerParams configures the viewer playback graph.
type ViewerParams struct {
	// Location is optional; the viewer sets it on the source before playing.
	Location  string
	LatencyMS int
	// VideoSink is the display element, e.g. "autovideosink" or "fakesink".
	VideoSink string
}

// BuildViewer returns the viewer playback description:
//
//	rtspsrc ! rtph264depay ! h264parse ! tee ! queue ! avdec_h264 ! videoconvert ! sink
//
// The tee sits after bitstream parsing and before decoding so a recording
// branch can capture the compressed stream.
func BuildViewer(p ViewerParams) string {
	latency := p.LatencyMS
	if latency <= 0 {
		latency = DefaultViewerLatency
	}
	sink := p.VideoSink
	if sink == "" {
		sink = "autovideosink"
	}

	source := []string{"rtspsrc", "name=" + ViewerSource, "latency=" + strconv.Itoa(latency)}
	if p.Location != "" {
		source = append(source, "location="+quote(p.Location))
	}

	sinkProps := []string{sink, "name=" + ViewerSink, "sync=false"}
	switch sink {
	case "glimagesink", "xvimagesink", "ximagesink":
		sinkProps = append(sinkProps, "force-aspect-ratio=true")
	}

	var c chain
	c.add(strings.Join(source, " "))
	c.add("rtph264depay", "name="+ViewerDepay)
	c.add("h264parse", "name="+ViewerParser)
	c.add("tee", "name="+ViewerTee, "allow-not-linked=true")
	c.add("queue", "name="+ViewerQueue)
	c.add("avdec_h264", "name="+ViewerDecoder)
	c.add("videoconvert", "name="+ViewerConvert)
	c.add(strings.Join(sinkProps, " "))
	return c.String()
}
