package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	pagesClassifiedTotal   *prometheus.CounterVec
	segmentsBuiltTotal     prometheus.Counter
	identityOutcomesTotal  *prometheus.CounterVec
	unitDurationSeconds    *prometheus.HistogramVec
	externalCallSeconds    *prometheus.HistogramVec
	externalFailuresTotal  *prometheus.CounterVec
	batchUnitsTotal        *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used for batch observability.
func RegisterMetrics() {
	registerOnce.Do(func() {
		pagesClassifiedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriptmark_pages_classified_total",
			Help: "Total number of pages run through front-page classification.",
		}, []string{"front_page"})

		segmentsBuiltTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scriptmark_segments_built_total",
			Help: "Total number of script segments carved from batch documents.",
		})

		identityOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriptmark_identity_outcomes_total",
			Help: "Identity resolution outcomes by match method.",
		}, []string{"method"})

		unitDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scriptmark_unit_duration_seconds",
			Help:    "Processing duration distribution per batch unit.",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		}, []string{"status"})

		externalCallSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scriptmark_external_call_duration_seconds",
			Help:    "Latency distribution for external rasterizer and extractor calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"dependency"})

		externalFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriptmark_external_failures_total",
			Help: "Total failed external dependency calls after retries.",
		}, []string{"dependency"})

		batchUnitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriptmark_batch_units_total",
			Help: "Total batch units processed by terminal status.",
		}, []string{"status"})

		prometheus.MustRegister(
			pagesClassifiedTotal,
			segmentsBuiltTotal,
			identityOutcomesTotal,
			unitDurationSeconds,
			externalCallSeconds,
			externalFailuresTotal,
			batchUnitsTotal,
		)
	})
}

// PagesClassified exposes the counter for classified pages.
func PagesClassified() *prometheus.CounterVec {
	RegisterMetrics()
	return pagesClassifiedTotal
}

// SegmentsBuilt exposes the counter for carved segments.
func SegmentsBuilt() prometheus.Counter {
	RegisterMetrics()
	return segmentsBuiltTotal
}

// IdentityOutcomes exposes the counter for identity resolution outcomes.
func IdentityOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return identityOutcomesTotal
}

// UnitDuration exposes the histogram for per-unit processing time.
func UnitDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return unitDurationSeconds
}

// ExternalCallDuration exposes the histogram for external dependency calls.
func ExternalCallDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return externalCallSeconds
}

// ExternalFailures exposes the counter for exhausted external calls.
func ExternalFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return externalFailuresTotal
}

// BatchUnits exposes the counter for terminal unit statuses.
func BatchUnits() *prometheus.CounterVec {
	RegisterMetrics()
	return batchUnitsTotal
}
