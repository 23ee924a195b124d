package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies label dimensions match their use in client, cache, store, service and http.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/ingest", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/ingest").Observe(0.5)
	WeatherAPICallsTotal.WithLabelValues("current", "success").Inc()
	WeatherAPICallsTotal.WithLabelValues("forecast", "server_error").Inc()
	WeatherAPIDuration.WithLabelValues("forecast", "success").Observe(0.1)
	ForecastCacheLookupsTotal.WithLabelValues("hit").Inc()
	ForecastCacheLookupsTotal.WithLabelValues("stale").Inc()
	PersistenceErrorsTotal.WithLabelValues("blob", "current").Inc()
	IngestInvocationsTotal.WithLabelValues("207").Inc()
	IngestCitiesTotal.Add(3)
	IngestDuration.Observe(1.2)
	MetricPublishErrorsTotal.WithLabelValues("cloudwatch").Inc()
	RateLimitDeniedTotal.Inc()
}

func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	IngestInvocationsTotal.WithLabelValues("200").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ingestInvocationsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
