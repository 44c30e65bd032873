// Package metrics provides Prometheus metrics for the evaluation service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsParsed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fdet",
		Name:      "sessions_parsed_total",
		Help:      "Log sessions successfully parsed and structured.",
	})

	ParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fdet",
		Name:      "parse_failures_total",
		Help:      "Log sessions rejected during validation or parsing.",
	})

	FlightsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fdet",
		Name:      "flights_evaluated_total",
		Help:      "Flights run through the full phase evaluation.",
	})

	BackupBoundaries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fdet",
		Name:      "backup_boundaries_total",
		Help:      "Flights whose phase boundaries needed fallback estimation.",
	})

	Gradings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fdet",
		Name:      "gradings_total",
		Help:      "Grading calls against a reference database.",
	})

	GradingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fdet",
		Name:      "grading_duration_seconds",
		Help:      "Wall time of one grading call including classification.",
		Buckets:   prometheus.DefBuckets,
	})

	DatabaseAppends = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fdet",
		Name:      "database_appends_total",
		Help:      "Evaluated flights added to a scenario database.",
	})
)

// SetupHandlers registers the Prometheus scrape endpoint
func SetupHandlers() {
	http.Handle("/metrics", promhttp.Handler())
}
