// Package metrics provides Prometheus metrics for the viewer, the
// publishers and the provisioning tools.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	viewerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamlab",
		Subsystem: "viewer",
		Name:      "state",
		Help:      "Viewer state (0 closed, 1 connecting, 2 open)",
	})

	viewerRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamlab",
		Subsystem: "viewer",
		Name:      "restarts_total",
		Help:      "Graph restarts triggered by bus errors",
	}, []string{"state"})

	viewerRecording = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamlab",
		Subsystem: "viewer",
		Name:      "recording",
		Help:      "Whether a recording branch is attached",
	})

	viewerRecordings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamlab",
		Subsystem: "viewer",
		Name:      "recordings_total",
		Help:      "Finished recordings by result",
	}, []string{"result"})
)

// SetViewerState records the numeric viewer state.
func SetViewerState(state int) {
	viewerState.Set(float64(state))
}

// IncViewerRestart counts a graph restart in the given state.
func IncViewerRestart(state string) {
	viewerRestarts.WithLabelValues(state).Inc()
}

// SetViewerRecording flags whether a recording is active.
func SetViewerRecording(active bool) {
	if active {
		viewerRecording.Set(1)
		return
	}
	viewerRecording.Set(0)
}

// IncRecording counts a finished recording. result is "ok" or "error".
func IncRecording(result string) {
	viewerRecordings.WithLabelValues(result).Inc()
}
