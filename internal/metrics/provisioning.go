package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dashboardImports = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "streamlab",
	Subsystem: "grafana",
	Name:      "dashboard_imports_total",
	Help:      "Dashboard import attempts by result",
}, []string{"result"})

// IncDashboardImport counts a dashboard import. result is "ok" or "error".
func IncDashboardImport(result string) {
	dashboardImports.WithLabelValues(result).Inc()
}
