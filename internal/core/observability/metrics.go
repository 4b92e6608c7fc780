package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tile outcomes.
const (
	OutcomeHit      = "hit"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	tilesServedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiles_served_total",
			Help: "Tiles served by store and outcome (hit, fallback, error).",
		},
		[]string{"store", "outcome"},
	)

	archiveEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_handle_events_total",
			Help: "Archive handle lifecycle events (opened, closed, reused).",
		},
		[]string{"event"},
	)

	archiveOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "archive_handles_open",
			Help: "Number of open archive handles.",
		},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveTile counts one tile response of the given store ("mbtiles", "tiles").
func ObserveTile(store, outcome string) {
	tilesServedTotal.WithLabelValues(store, outcome).Inc()
}

// ArchiveMetrics records archive handle events; it satisfies archive.Observer.
type ArchiveMetrics struct{}

func (ArchiveMetrics) ArchiveOpened(string) {
	archiveEventsTotal.WithLabelValues("opened").Inc()
	archiveOpen.Inc()
}

func (ArchiveMetrics) ArchiveClosed(string) {
	archiveEventsTotal.WithLabelValues("closed").Inc()
	archiveOpen.Dec()
}

func (ArchiveMetrics) ArchiveReused(string) {
	archiveEventsTotal.WithLabelValues("reused").Inc()
}
