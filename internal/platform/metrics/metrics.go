package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the SCTE-35 inserter.
type Metrics struct {
	registry                *prometheus.Registry
	requestsTotal           prometheus.Counter
	errorsTotal             prometheus.Counter
	streamsRegisteredTotal  prometheus.Counter
	streamsRemovedTotal     prometheus.Counter
	adBreaksStartedTotal    prometheus.Counter
	adBreaksEndedTotal      prometheus.Counter
	segmentsDownloadedTotal prometheus.Counter
	fetchErrorsTotal        prometheus.Counter
	runningStreams          prometheus.Gauge
}

// New creates and registers Prometheus metrics for the inserter.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scte35_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scte35_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	streamsRegisteredTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scte35_streams_registered_total",
		Help: "Total number of streams registered",
	})
	streamsRemovedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scte35_streams_removed_total",
		Help: "Total number of streams removed",
	})
	adBreaksStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scte35_ad_breaks_started_total",
		Help: "Total number of ad breaks opened (CUE-OUT markers emitted)",
	})
	adBreaksEndedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scte35_ad_breaks_ended_total",
		Help: "Total number of ad breaks closed (CUE-IN markers emitted)",
	})
	segmentsDownloadedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scte35_segments_downloaded_total",
		Help: "Total number of media segments mirrored to disk",
	})
	fetchErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scte35_fetch_errors_total",
		Help: "Total number of failed upstream playlist fetches",
	})
	runningStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scte35_running_streams",
		Help: "Number of stream workers currently running",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		streamsRegisteredTotal,
		streamsRemovedTotal,
		adBreaksStartedTotal,
		adBreaksEndedTotal,
		segmentsDownloadedTotal,
		fetchErrorsTotal,
		runningStreams,
	)

	return &Metrics{
		registry:                registry,
		requestsTotal:           requestsTotal,
		errorsTotal:             errorsTotal,
		streamsRegisteredTotal:  streamsRegisteredTotal,
		streamsRemovedTotal:     streamsRemovedTotal,
		adBreaksStartedTotal:    adBreaksStartedTotal,
		adBreaksEndedTotal:      adBreaksEndedTotal,
		segmentsDownloadedTotal: segmentsDownloadedTotal,
		fetchErrorsTotal:        fetchErrorsTotal,
		runningStreams:          runningStreams,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncStreamsRegistered increments the streams registered counter.
func (m *Metrics) IncStreamsRegistered() {
	m.streamsRegisteredTotal.Inc()
}

// IncStreamsRemoved increments the streams removed counter.
func (m *Metrics) IncStreamsRemoved() {
	m.streamsRemovedTotal.Inc()
}

// IncAdBreaksStarted increments the ad breaks started counter.
func (m *Metrics) IncAdBreaksStarted() {
	m.adBreaksStartedTotal.Inc()
}

// IncAdBreaksEnded increments the ad breaks ended counter.
func (m *Metrics) IncAdBreaksEnded() {
	m.adBreaksEndedTotal.Inc()
}

// AddSegmentsDownloaded adds n to the segments downloaded counter.
func (m *Metrics) AddSegmentsDownloaded(n int) {
	m.segmentsDownloadedTotal.Add(float64(n))
}

// IncFetchErrors increments the failed playlist fetch counter.
func (m *Metrics) IncFetchErrors() {
	m.fetchErrorsTotal.Inc()
}

// SetRunningStreams sets the running workers gauge.
func (m *Metrics) SetRunningStreams(n int) {
	m.runningStreams.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. running streams).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
