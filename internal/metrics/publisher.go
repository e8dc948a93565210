package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publisherBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamlab",
		Subsystem: "publisher",
		Name:      "bytes_sent",
		Help:      "Bytes reported by the publisher sink",
	}, []string{"target"})

	publisherStalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamlab",
		Subsystem: "publisher",
		Name:      "stalls_total",
		Help:      "Restarts caused by a stalled sink",
	}, []string{"target"})

	publisherAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamlab",
		Subsystem: "publisher",
		Name:      "attempts_total",
		Help:      "Pipeline start attempts",
	}, []string{"target"})
)

// SetPublisherBytes sets the last sink byte counter for a target.
func SetPublisherBytes(target string, n uint64) {
	publisherBytes.WithLabelValues(target).Set(float64(n))
}

// IncPublisherStall counts a stall-triggered restart.
func IncPublisherStall(target string) {
	publisherStalls.WithLabelValues(target).Inc()
}

// IncPublisherAttempt counts a start attempt.
func IncPublisherAttempt(target string) {
	publisherAttempts.WithLabelValues(target).Inc()
}

// DeletePublisherMetrics removes all series for a target.
func DeletePublisherMetrics(target string) {
	publisherBytes.DeleteLabelValues(target)
	publisherStalls.DeleteLabelValues(target)
	publisherAttempts.DeleteLabelValues(target)
}
