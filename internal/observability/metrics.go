package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the download and enrichment
// pipelines.
type Metrics struct {
	TilesDownloaded  *prometheus.CounterVec // labels: outcome={downloaded,skipped,failed}
	DownloadDuration prometheus.Histogram
	DownloadRetries  prometheus.Counter
	ActiveJobs       prometheus.Gauge

	PointsEnriched *prometheus.CounterVec // labels: result={matched,unmatched}
	EnrichDuration prometheus.Histogram

	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,empty,error}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all collectors with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.TilesDownloaded,
		m.DownloadDuration,
		m.DownloadRetries,
		m.ActiveJobs,
		m.PointsEnriched,
		m.EnrichDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		TilesDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egms",
			Name:      "tiles_downloaded_total",
			Help:      "Tile download attempts by outcome.",
		}, []string{"outcome"}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "egms",
			Name:      "download_duration_seconds",
			Help:      "Duration of a single tile download including extraction.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		DownloadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "egms",
			Name:      "download_retries_total",
			Help:      "Transient download failures that were retried.",
		}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "egms",
			Name:      "active_download_jobs",
			Help:      "Batch download jobs currently running.",
		}),
		PointsEnriched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egms",
			Name:      "points_enriched_total",
			Help:      "Enriched points by match result.",
		}, []string{"result"}),
		EnrichDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "egms",
			Name:      "enrich_duration_seconds",
			Help:      "Duration of a full dataset enrichment run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egms",
			Name:      "geocode_requests_total",
			Help:      "Geocoder lookups by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egms",
			Name:      "geocode_cache_total",
			Help:      "Geocode cache lookups by result.",
		}, []string{"result"}),
	}
}
