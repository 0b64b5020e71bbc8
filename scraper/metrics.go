package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	PagesTotal      prometheus.Counter
	BidsTotal       prometheus.Counter
	RecordsTotal    *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	RunsTotal       *prometheus.CounterVec
	LastRunDuration prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_pages_scraped_total",
			Help: "Total listing pages scraped.",
		},
	)
	bids := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_bids_found_total",
			Help: "Total bid rows extracted from listing pages.",
		},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_records_persisted_total",
			Help: "Total records persisted by outcome.",
		},
		[]string{"outcome"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by category.",
		},
		[]string{"error_type"},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_runs_total",
			Help: "Total scrape runs by result.",
		},
		[]string{"result"},
	)
	lastDuration := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_last_run_duration_seconds",
			Help: "Wall-clock duration of the most recent scrape run.",
		},
	)

	registry.MustRegister(requests, requestDuration, pages, bids, records, errorsTotal, runs, lastDuration)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		PagesTotal:      pages,
		BidsTotal:       bids,
		RecordsTotal:    records,
		ErrorsTotal:     errorsTotal,
		RunsTotal:       runs,
		LastRunDuration: lastDuration,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPage increments the pages scraped counter.
func (m *Metrics) IncPage() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// AddBids adds to the bids found counter.
func (m *Metrics) AddBids(n int) {
	if m == nil {
		return
	}
	m.BidsTotal.Add(float64(n))
}

// IncRecord increments the persisted records counter for an outcome label.
func (m *Metrics) IncRecord(outcome string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(outcome).Inc()
}

// IncError increments the errors counter for a category label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveRun records the outcome and duration of a full scrape run.
func (m *Metrics) ObserveRun(success bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	m.LastRunDuration.Set(d.Seconds())
}
