// Package metrics exposes EntiDB's Prometheus instrumentation. EntiDB is an
// embedded library that may be opened multiple times in one process, so
// each Metrics value owns its own prometheus.Registry rather than
// registering into the process-wide default via promauto.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every EntiDB counter/gauge/histogram.
type Metrics struct {
	Registry *prometheus.Registry

	CommitsTotal     prometheus.Counter
	AbortsTotal      prometheus.Counter
	WalAppendsTotal  prometheus.Counter
	WalBytesTotal    prometheus.Counter
	CompactionsTotal prometheus.Counter
	SegmentSeals     prometheus.Counter
	CommitLatency    prometheus.Histogram
	ActiveSegments   prometheus.Gauge
}

// New builds a fresh Metrics bound to its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		CommitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entidb_commits_total",
			Help: "Total number of committed write transactions.",
		}),
		AbortsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entidb_aborts_total",
			Help: "Total number of aborted write transactions.",
		}),
		WalAppendsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entidb_wal_appends_total",
			Help: "Total number of records appended to the WAL.",
		}),
		WalBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entidb_wal_bytes_total",
			Help: "Total number of bytes appended to the WAL.",
		}),
		CompactionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entidb_compactions_total",
			Help: "Total number of completed compaction runs.",
		}),
		SegmentSeals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entidb_segment_seals_total",
			Help: "Total number of segments sealed due to reaching max_segment_size.",
		}),
		CommitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "entidb_commit_duration_seconds",
			Help:    "Latency of the commit path, WAL append through segment flush.",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "entidb_active_segment_count",
			Help: "Number of segment files currently open (active + sealed).",
		}),
	}
	reg.MustRegister(
		m.CommitsTotal, m.AbortsTotal, m.WalAppendsTotal, m.WalBytesTotal,
		m.CompactionsTotal, m.SegmentSeals, m.CommitLatency, m.ActiveSegments,
	)
	return m
}
