package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server-level (as opposed to repository-level)
// counters and gauges, registered against an injected registerer so
// tests can use a fresh registry instead of the global default one.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	WorkersBusy       prometheus.Gauge
	CommandsProcessed *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "unagi",
			Subsystem: "server",
			Name:      "active_connections",
			Help:      "Number of connections currently being served.",
		}),
		WorkersBusy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "unagi",
			Subsystem: "server",
			Name:      "workers_busy",
			Help:      "Number of threaded-mode worker goroutines currently handling a connection.",
		}),
		CommandsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unagi",
			Subsystem: "server",
			Name:      "commands_processed_total",
			Help:      "Number of requests dispatched, by verb.",
		}, []string{"verb"}),
	}
}
