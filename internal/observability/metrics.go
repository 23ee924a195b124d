package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP trigger request rate. Watch for: sudden drops (scheduler or caller down) or spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP trigger latency. A full ingest run is several upstream calls, so expect seconds.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent HTTP trigger requests.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap call rate by endpoint (current, forecast) and outcome.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Forecast cache decisions: hit, stale, miss, error. Hit rate = hit/(hit+stale+miss+error).
	ForecastCacheLookupsTotal *prometheus.CounterVec

	// Record store and blob store write failures by target and record type.
	PersistenceErrorsTotal *prometheus.CounterVec

	// Ingest invocations by response status (200, 207, 400).
	IngestInvocationsTotal *prometheus.CounterVec

	// Cities processed across invocations.
	IngestCitiesTotal prometheus.Counter

	// Ingest run duration, invocation start to response.
	IngestDuration prometheus.Histogram

	// Metric batches the emitter failed to publish, by sink.
	MetricPublishErrorsTotal *prometheus.CounterVec

	// Rate limit denials on the HTTP trigger.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	ForecastCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastCacheLookupsTotal",
			Help: "Forecast cache lookups by result (hit, stale, miss, error)",
		},
		[]string{"result"},
	)
	PersistenceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistenceErrorsTotal",
			Help: "Failed record store and blob store writes",
		},
		[]string{"target", "type"},
	)
	IngestInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestInvocationsTotal",
			Help: "Ingest invocations by response status code",
		},
		[]string{"statusCode"},
	)
	IngestCitiesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestCitiesTotal",
			Help: "Cities processed by ingest invocations",
		},
	)
	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingestDurationSeconds",
			Help:    "Ingest invocation duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	MetricPublishErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metricPublishErrorsTotal",
			Help: "Metric batches that could not be published",
		},
		[]string{"sink"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration,
		ForecastCacheLookupsTotal, PersistenceErrorsTotal,
		IngestInvocationsTotal, IngestCitiesTotal, IngestDuration,
		MetricPublishErrorsTotal, RateLimitDeniedTotal,
	)
}

// Registerer exposes the process registry so other packages can add collectors.
func Registerer() prometheus.Registerer {
	return registry
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
