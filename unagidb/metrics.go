package unagidb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the repository's process-lifetime counters/gauges.
// Construct one per Repository instance via NewMetrics so tests can pass
// a fresh prometheus.Registry instead of colliding on the global default.
type Metrics struct {
	DocumentsAdded prometheus.Counter
	BytesIndexed   prometheus.Counter
	QueriesServed  prometheus.Counter
	QueryDuration  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DocumentsAdded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "unagi",
			Subsystem: "repo",
			Name:      "documents_added_total",
			Help:      "Total number of documents added to the repository.",
		}),
		BytesIndexed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "unagi",
			Subsystem: "repo",
			Name:      "bytes_indexed_total",
			Help:      "Total number of text bytes appended to the shared text buffer.",
		}),
		QueriesServed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "unagi",
			Subsystem: "repo",
			Name:      "queries_served_total",
			Help:      "Total number of query/count calls served.",
		}),
		QueryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "unagi",
			Subsystem: "repo",
			Name:      "query_duration_seconds",
			Help:      "Time to resolve the occurrences of a Query call, including lock wait and cache lookup.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
